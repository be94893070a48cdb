// Package metadata implements the two-level metadata model: a user-authored
// BaseMetadata template embedded in a system-owned Metadata envelope, the
// deep merge algebra used by Secret.Update, the self-excluding checksum_meta
// digest scheme, and the dotted-path field projection used by pkg/vault's
// query engine.
//
// On disk, a Metadata document flattens its Template fields (including
// extra) to the top level, sibling to path/modifications/fingerprint/
// checksum_main/checksum_meta, via BurntSushi/toml. The query projection
// used by GetField instead mirrors the Go struct shape, with a nested
// "template" object — see DESIGN.md for why these two projections differ.
package metadata

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/cuemby/passd/pkg/checksum"
)

// BaseMetadata is the user-authored template portion of a secret's
// metadata: classification fields plus an open-ended extra map for
// template-specific keys.
type BaseMetadata struct {
	Type        string                 `json:"type"`
	Category    string                 `json:"category"`
	Tags        []string               `json:"tags"`
	Description string                 `json:"description"`
	Attachments []string               `json:"attachments"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// Metadata is the full sidecar document: a BaseMetadata template plus the
// fields passd itself owns.
type Metadata struct {
	Path          string       `json:"path"`
	Template      BaseMetadata `json:"template"`
	Modifications uint64       `json:"modifications"`
	Fingerprint   string       `json:"fingerprint"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	ChecksumMain  string       `json:"checksum_main"`
	ChecksumMeta  string       `json:"checksum_meta"`
}

type rawDoc = map[string]interface{}

var baseFieldNames = map[string]bool{
	"type": true, "category": true, "tags": true,
	"description": true, "attachments": true,
}

var systemFieldNames = map[string]bool{
	"path": true, "modifications": true, "fingerprint": true,
	"created_at": true, "updated_at": true,
	"checksum_main": true, "checksum_meta": true,
}

func stringSliceToRaw(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func rawToStringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (b BaseMetadata) toRaw() rawDoc {
	raw := rawDoc{
		"type":        b.Type,
		"category":    b.Category,
		"tags":        stringSliceToRaw(b.Tags),
		"description": b.Description,
		"attachments": stringSliceToRaw(b.Attachments),
	}
	for k, v := range b.Extra {
		raw[k] = v
	}
	return raw
}

// baseMetadataFromRaw builds a BaseMetadata from a raw document, treating
// any key not in baseFieldNames or reserved as part of Extra.
func baseMetadataFromRaw(raw rawDoc, reserved map[string]bool) BaseMetadata {
	b := BaseMetadata{Extra: map[string]interface{}{}}
	if v, ok := raw["type"].(string); ok {
		b.Type = v
	} else {
		b.Type = "general"
	}
	if v, ok := raw["category"].(string); ok {
		b.Category = v
	} else {
		b.Category = "uncategorized"
	}
	b.Tags = rawToStringSlice(raw["tags"])
	if v, ok := raw["description"].(string); ok {
		b.Description = v
	}
	b.Attachments = rawToStringSlice(raw["attachments"])
	for k, v := range raw {
		if baseFieldNames[k] || reserved[k] {
			continue
		}
		b.Extra[k] = v
	}
	return b
}

func (m Metadata) toRaw() rawDoc {
	raw := m.Template.toRaw()
	raw["path"] = m.Path
	raw["modifications"] = int64(m.Modifications)
	raw["fingerprint"] = m.Fingerprint
	raw["created_at"] = m.CreatedAt
	raw["updated_at"] = m.UpdatedAt
	raw["checksum_main"] = m.ChecksumMain
	raw["checksum_meta"] = m.ChecksumMeta
	return raw
}

func metadataFromRaw(raw rawDoc) Metadata {
	m := Metadata{Template: baseMetadataFromRaw(raw, systemFieldNames)}
	if v, ok := raw["path"].(string); ok {
		m.Path = v
	}
	switch v := raw["modifications"].(type) {
	case int64:
		m.Modifications = uint64(v)
	case float64:
		m.Modifications = uint64(v)
	}
	if v, ok := raw["fingerprint"].(string); ok {
		m.Fingerprint = v
	}
	if v, ok := raw["created_at"].(time.Time); ok {
		m.CreatedAt = v
	}
	if v, ok := raw["updated_at"].(time.Time); ok {
		m.UpdatedAt = v
	}
	if v, ok := raw["checksum_main"].(string); ok {
		m.ChecksumMain = v
	}
	if v, ok := raw["checksum_meta"].(string); ok {
		m.ChecksumMeta = v
	}
	return m
}

func encodeRaw(raw rawDoc) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
		return nil, fmt.Errorf("failed to encode metadata as toml: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeRaw(data []byte) (rawDoc, error) {
	var raw rawDoc
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode metadata toml: %w", err)
	}
	return raw, nil
}

// Serialize renders m to its on-disk TOML form, with Template fields
// (including Extra) flattened to the top level.
func Serialize(m Metadata) ([]byte, error) {
	return encodeRaw(m.toRaw())
}

// Parse reads a Metadata document from its on-disk TOML form.
func Parse(data []byte) (Metadata, error) {
	raw, err := decodeRaw(data)
	if err != nil {
		return Metadata{}, err
	}
	return metadataFromRaw(raw), nil
}

// SerializeBase renders a bare BaseMetadata template to TOML, used when
// persisting a named template file independent of any Metadata envelope.
func SerializeBase(b BaseMetadata) ([]byte, error) {
	return encodeRaw(b.toRaw())
}

// ParseBase reads a bare BaseMetadata template from TOML.
func ParseBase(data []byte) (BaseMetadata, error) {
	raw, err := decodeRaw(data)
	if err != nil {
		return BaseMetadata{}, err
	}
	return baseMetadataFromRaw(raw, nil), nil
}

// mergeValue implements the deep merge algebra: mapping⊕mapping recurses
// key by key, sequence⊕sequence concatenates, and anything else (scalar⊕
// anything, or a type mismatch) lets overlay replace base outright.
func mergeValue(base, overlay interface{}) interface{} {
	if baseMap, ok := base.(rawDoc); ok {
		if overlayMap, ok := overlay.(rawDoc); ok {
			result := make(rawDoc, len(baseMap))
			for k, v := range baseMap {
				result[k] = v
			}
			for k, v := range overlayMap {
				if existing, ok := result[k]; ok {
					result[k] = mergeValue(existing, v)
				} else {
					result[k] = v
				}
			}
			return result
		}
		return overlay
	}
	if baseSeq, ok := base.([]interface{}); ok {
		if overlaySeq, ok := overlay.([]interface{}); ok {
			merged := make([]interface{}, 0, len(baseSeq)+len(overlaySeq))
			merged = append(merged, baseSeq...)
			merged = append(merged, overlaySeq...)
			return merged
		}
		return overlay
	}
	return overlay
}

// Merge applies overlay onto existing's template, following the deep merge
// algebra, and returns the resulting Metadata. System-owned fields
// (path, modifications, fingerprint, timestamps, checksums) are untouched:
// overlay only ever contributes template-level keys. Template fields left at
// their zero value in overlay (empty string or empty list) count as not
// provided and keep existing's value.
func Merge(existing Metadata, overlay BaseMetadata) Metadata {
	overlayRaw := overlay.toRaw()
	for k, v := range overlayRaw {
		if !baseFieldNames[k] {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			delete(overlayRaw, k)
		} else if seq, ok := v.([]interface{}); ok && len(seq) == 0 {
			delete(overlayRaw, k)
		}
	}
	merged := mergeValue(existing.toRaw(), overlayRaw).(rawDoc)
	return metadataFromRaw(merged)
}

// jsonValue converts a raw TOML-decoded value into a JSON-friendly
// equivalent: time.Time becomes RFC3339, int64 becomes float64 so numeric
// comparisons in pkg/vault don't need type switches.
func jsonValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case time.Time:
		return vv.Format(time.RFC3339)
	case int64:
		return float64(vv)
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = jsonValue(e)
		}
		return out
	case rawDoc:
		out := make(rawDoc, len(vv))
		for k, e := range vv {
			out[k] = jsonValue(e)
		}
		return out
	default:
		return vv
	}
}

func (b BaseMetadata) queryProjection() rawDoc {
	out := rawDoc{}
	for k, v := range b.toRaw() {
		out[k] = jsonValue(v)
	}
	return out
}

// queryProjection builds the generic value tree GetField walks: the Go
// struct shape, not the flattened disk form, so dotted paths like
// "template.category" resolve against a nested "template" object.
func (m Metadata) queryProjection() rawDoc {
	return rawDoc{
		"path":           m.Path,
		"template":       m.Template.queryProjection(),
		"modifications":  float64(m.Modifications),
		"fingerprint":    m.Fingerprint,
		"created_at":     m.CreatedAt.Format(time.RFC3339),
		"updated_at":     m.UpdatedAt.Format(time.RFC3339),
		"checksum_main":  m.ChecksumMain,
		"checksum_meta":  m.ChecksumMeta,
	}
}

// ChecksumMetaDigest implements the self-excluding checksum scheme: it
// clears ChecksumMeta, serializes the result, and returns the sha256 digest
// of that serialization. Callers store the returned digest back into
// ChecksumMeta before the real write (two-phase write), and recompute it
// the same way to verify a document later.
func ChecksumMetaDigest(m Metadata) (string, error) {
	cleared := m
	cleared.ChecksumMeta = ""
	data, err := Serialize(cleared)
	if err != nil {
		return "", err
	}
	return checksum.OfBytes(data), nil
}

// GetField resolves a dotted path (e.g. "template.category", "path",
// "template.extra_field") against m's query projection. The second return
// value is false if any segment along the path is missing.
func GetField(m Metadata, dottedPath string) (interface{}, bool) {
	var cur interface{} = m.queryProjection()
	for _, seg := range strings.Split(dottedPath, ".") {
		asMap, ok := cur.(rawDoc)
		if !ok {
			return nil, false
		}
		v, exists := asMap[seg]
		if !exists {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
