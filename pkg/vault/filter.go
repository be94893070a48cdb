// Package vault implements the directory-walking query engine (Find) and
// the store-wide integrity scanner (Diagnose) over metadata sidecars.
//
// Grounded on original_source/src/handlers/find.rs for the filter/sort wire
// form and comparison semantics, and original_source/src/models/secrets.rs
// for the walk/diagnose algorithms — with the plaintext-based checksum and
// fingerprint checks that file performed during diagnose replaced by
// ciphertext-based ones, since diagnose must not require a password. See
// DESIGN.md.
package vault

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/cuemby/passd/pkg/metadata"
)

// Operator is a leaf condition's comparison operator.
type Operator string

const (
	OpEq       Operator = "eq"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpContains Operator = "contains"
	OpRegex    Operator = "regex"
)

// Filter is the boolean tree the wire form decodes into: a combinator
// (NOT/AND/OR) wraps nested Filters, or a leaf sets Field/Op/Value
// directly on the same object — the wire form's flat
// {"field":...,"op":...,"value":...} shape, not a condition nested under
// its own key. Exactly one of Not, And, Or, or Field should be set; a
// zero-value Filter matches everything.
type Filter struct {
	Not *Filter  `json:"NOT,omitempty"`
	And []Filter `json:"AND,omitempty"`
	Or  []Filter `json:"OR,omitempty"`

	Field string      `json:"field,omitempty"`
	Op    Operator    `json:"op,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

// SortDirection orders a SortField's comparisons.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortField is one key of a multi-field stable sort.
type SortField struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Matches evaluates f against m's query projection. Fields that don't
// resolve, and conditions over incomparable operand pairs, evaluate to
// false rather than erroring — find silently drops what it can't compare.
func (f Filter) Matches(m metadata.Metadata) bool {
	switch {
	case f.Not != nil:
		return !f.Not.Matches(m)
	case f.And != nil:
		for _, sub := range f.And {
			if !sub.Matches(m) {
				return false
			}
		}
		return true
	case f.Or != nil:
		for _, sub := range f.Or {
			if sub.Matches(m) {
				return true
			}
		}
		return false
	case f.Field != "":
		return f.matchesLeaf(m)
	default:
		return true
	}
}

func (f Filter) matchesLeaf(m metadata.Metadata) bool {
	value, ok := metadata.GetField(m, f.Field)
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return reflect.DeepEqual(value, f.Value)
	case OpGt:
		cmp, ok := compareValues(value, f.Value)
		return ok && cmp > 0
	case OpLt:
		cmp, ok := compareValues(value, f.Value)
		return ok && cmp < 0
	case OpContains:
		return containsMatch(value, f.Value)
	case OpRegex:
		pattern, ok := f.Value.(string)
		if !ok {
			return false
		}
		s, ok := value.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(s)
	default:
		return false
	}
}

// compareValues orders two JSON-projected values: numbers compare as
// float64, strings lexicographically, booleans false < true. Any other
// pairing (including a type mismatch) is incomparable.
func compareValues(a, b interface{}) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if av == bv {
			return 0, true
		}
		if !av && bv {
			return -1, true
		}
		return 1, true
	default:
		return 0, false
	}
}

// containsMatch implements Contains' four shapes: sequence/sequence is
// any-needle-in-haystack, sequence/scalar is membership, string/string is
// substring, anything else falls back to structural equality.
func containsMatch(field, needle interface{}) bool {
	fieldArr, fieldIsArr := field.([]interface{})
	needleArr, needleIsArr := needle.([]interface{})

	if fieldIsArr && needleIsArr {
		for _, n := range needleArr {
			for _, elem := range fieldArr {
				if reflect.DeepEqual(elem, n) {
					return true
				}
			}
		}
		return false
	}
	if fieldIsArr {
		for _, elem := range fieldArr {
			if reflect.DeepEqual(elem, needle) {
				return true
			}
		}
		return false
	}
	if fieldStr, ok := field.(string); ok {
		if needleStr, ok := needle.(string); ok {
			return strings.Contains(fieldStr, needleStr)
		}
	}
	return reflect.DeepEqual(field, needle)
}
