package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error so that callers can decide how to report it
// without matching on messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthRequired
	KindPermissionDenied
	KindNotFound
	KindValidationFailed
	KindRateLimited
	KindStorageFailure
	KindMediaProcessingFailure
)

func (k Kind) String() string {
	switch k {
	case KindAuthRequired:
		return "auth_required"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindValidationFailed:
		return "validation_failed"
	case KindRateLimited:
		return "rate_limited"
	case KindStorageFailure:
		return "storage_failure"
	case KindMediaProcessingFailure:
		return "media_processing_failure"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	msg  string
	// Sensitive is a flag to indicate if the error is sensitive or not.
	// If it is not, its message can be returned to the client.
	Sensitive bool
	cause     error
}

func NewError(kind Kind, msg string, sensitive bool) *Error {
	return &Error{Kind: kind, msg: msg, Sensitive: sensitive}
}

func NewErrorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

func NewSensitiveError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, msg: msg, Sensitive: true, cause: cause}
}

func NewInsensitiveError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg, Sensitive: false}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Message returns the message without the wrapped cause.
func (e *Error) Message() string {
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// PublicMessage returns the message that may be shown to a client and
// false when err carries nothing that is safe to expose.
func PublicMessage(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && !e.Sensitive {
		return e.msg, true
	}
	return "", false
}

func storageError(op string, err error) error {
	return NewSensitiveError(KindStorageFailure, op, err)
}
