// Package passderr defines the error taxonomy shared by every passd
// component. Every operation that can fail returns (or wraps) one of the
// Kind values here so pkg/rpcserver can translate it to a stable RPC error
// code without string-matching messages.
package passderr

import (
	"errors"
	"fmt"
)

// Kind classifies an error independently of its message, so callers can
// branch with errors.Is against the sentinel Kind values below.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindAlreadyExists        Kind = "already_exists"
	KindScopeViolation       Kind = "scope_violation"
	KindInvalidMetadata      Kind = "invalid_metadata"
	KindChecksumMismatch     Kind = "checksum_mismatch"
	KindNoRecipientsInCipher Kind = "no_recipients_in_ciphertext"
	KindKeyNotFound          Kind = "key_not_found"
	KindBadPassword          Kind = "bad_password"
	KindDecryptionFailed     Kind = "decryption_failed"
	KindNotUTF8              Kind = "not_utf8"
	KindNoEncryptionKey      Kind = "no_encryption_key"
	KindEncryptionFailed     Kind = "encryption_failed"
	KindInvalidArgument      Kind = "invalid_argument"
	KindIO                   Kind = "io"
	KindRemovalErrors        Kind = "removal_errors"
)

// Error is a passd error tagged with a Kind. The Kind is what pkg/rpcserver
// and pkg/vault branch on; Msg is for humans and logs.
type Error struct {
	Kind Kind
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.err }

// Is lets errors.Is(err, passderr.KindFoo) work by comparing Kind values,
// since Kind is not itself an error.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds a Kind-tagged error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap tags err with kind, preserving it as the unwrap target.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, err: err}
}

// Sentinel builds a zero-message sentinel usable with errors.Is, e.g.
// errors.Is(err, passderr.Sentinel(KindNotFound)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, defaulting
// to KindIO for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIO
}
