// Package genpassword generates random passwords for secrets whose content
// the caller wants passd to choose rather than supply. It is a standalone
// collaborator, not part of the Secret/Vault core: it never touches the
// vault, certificates, or metadata.
//
// Grounded on original_source/src/commands/generate_password.rs, using
// crypto/rand in place of the original's thread_rng CSPRNG.
package genpassword

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Filter selects which character classes contribute to the generated
// password's pool.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterAlphabets Filter = "alphabets"
	FilterCapital   Filter = "capital"
	FilterNumbers   Filter = "numbers"
	FilterSymbols   Filter = "symbols"
	FilterCustom    Filter = "custom"
)

const (
	lowercase = "abcdefghijklmnopqrstuvwxyz"
	uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits    = "0123456789"
	symbols   = "!@#$%^&*()-_=+[]{}"

	// DefaultLength matches the original's default password length.
	DefaultLength = 25
)

// Options configures Generate.
type Options struct {
	// Length is the number of characters before any separators are
	// inserted. DefaultLength is used if Length is zero.
	Length int
	Filter Filter
	// Custom supplies the character pool when Filter is FilterCustom.
	Custom string
	// Separators, if true, inserts a '-' every 4 characters.
	Separators bool
}

func pool(opts Options) (string, error) {
	switch opts.Filter {
	case "", FilterAll:
		return lowercase + uppercase + digits + symbols, nil
	case FilterAlphabets:
		return lowercase + uppercase, nil
	case FilterCapital:
		return uppercase, nil
	case FilterNumbers:
		return digits, nil
	case FilterSymbols:
		return symbols, nil
	case FilterCustom:
		if opts.Custom == "" {
			return "", fmt.Errorf("custom filter requires a non-empty character pool")
		}
		return opts.Custom, nil
	default:
		return "", fmt.Errorf("unknown password filter %q", opts.Filter)
	}
}

func randomChar(charset string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
	if err != nil {
		return 0, fmt.Errorf("failed to draw random index: %w", err)
	}
	return charset[n.Int64()], nil
}

// Generate produces a random password per opts. Separator insertion
// happens after generation, every 4 characters, and does not count toward
// Length.
func Generate(opts Options) (string, error) {
	length := opts.Length
	if length <= 0 {
		length = DefaultLength
	}
	charset, err := pool(opts)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		c, err := randomChar(charset)
		if err != nil {
			return "", err
		}
		sb.WriteByte(c)
	}

	if !opts.Separators {
		return sb.String(), nil
	}
	return insertSeparators(sb.String(), 4, '-'), nil
}

func insertSeparators(s string, every int, sep rune) string {
	var sb strings.Builder
	for i, r := range s {
		if i != 0 && i%every == 0 {
			sb.WriteRune(sep)
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
