package model

import (
	"errors"
	"fmt"
)

// Kind is a stable tag classifying a ledger failure. The API layer maps
// kinds to response codes; the core only guarantees kind + message.
type Kind string

const (
	// KindNotFound means the entity id does not resolve.
	KindNotFound Kind = "not_found"
	// KindInvalidState means the operation is illegal for the entity's current status.
	KindInvalidState Kind = "invalid_state"
	// KindForbidden means the caller is not the authorized actor for this entity.
	KindForbidden Kind = "forbidden"
	// KindInvalidInput means a value is out of its allowed range or shape.
	KindInvalidInput Kind = "invalid_input"
	// KindInvalidRecipient means the target user is unresolved or disallowed.
	KindInvalidRecipient Kind = "invalid_recipient"
	// KindDuplicateKey means a uniqueness constraint was violated.
	KindDuplicateKey Kind = "duplicate_key"
)

// Error is a kinded domain error. All ledger operations fail with an *Error
// for expected failure modes; anything else is an infrastructure error.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// ErrNotFound constructs a KindNotFound error.
func ErrNotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// ErrInvalidState constructs a KindInvalidState error.
func ErrInvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

// ErrForbidden constructs a KindForbidden error.
func ErrForbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

// ErrInvalidInput constructs a KindInvalidInput error.
func ErrInvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Msg: fmt.Sprintf(format, args...)}
}

// ErrInvalidRecipient constructs a KindInvalidRecipient error.
func ErrInvalidRecipient(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRecipient, Msg: fmt.Sprintf(format, args...)}
}

// ErrDuplicateKey constructs a KindDuplicateKey error.
func ErrDuplicateKey(format string, args ...any) *Error {
	return &Error{Kind: KindDuplicateKey, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}
