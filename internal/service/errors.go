package service

import (
	"errors"
	"fmt"
)

// Kind classifies service failures for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindConflict
	KindNotFound
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	}
	return "internal"
}

// Error is returned by every service operation. Message is safe to show to
// clients; Err carries the underlying cause and is never serialised.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// MessageOf returns the client-facing message of err.
func MessageOf(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return "internal error"
}

func validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

func unauthorized(msg string, cause error) error {
	return &Error{Kind: KindUnauthorized, Message: msg, Err: cause}
}

func conflict(msg string, cause error) error {
	return &Error{Kind: KindConflict, Message: msg, Err: cause}
}

func notFound(msg string, cause error) error {
	return &Error{Kind: KindNotFound, Message: msg, Err: cause}
}

func unavailable(cause error) error {
	return &Error{Kind: KindUnavailable, Message: "service temporarily unavailable", Err: cause}
}

func internal(cause error) error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: cause}
}
