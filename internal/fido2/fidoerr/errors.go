// Package fidoerr defines the tagged error taxonomy shared by the client and
// authenticator layers. Kinds mirror the DOMException names a relying party
// expects back from a WebAuthn ceremony.
package fidoerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies one of the error variants a relying party can distinguish.
type Kind string

const (
	KindUriBlocked    Kind = "UriBlocked"
	KindInvalidState  Kind = "InvalidState"
	KindNotAllowed    Kind = "NotAllowed"
	KindSecurity      Kind = "Security"
	KindTypeError     Kind = "TypeError"
	KindNotSupported  Kind = "NotSupported"
	KindUnknown       Kind = "Unknown"
)

// Error is the tagged error value returned by the client and authenticator
// layers. Message is safe to surface to the caller and is part of Error()'s
// text; cause is reachable only through Cause/Unwrap and never appears in
// that text, so vault contents or user identity never leak through it.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the internal cause for errors.Is/errors.As chains without
// putting it in Error()'s text.
func (e *Error) Unwrap() error {
	return e.cause
}

// Cause returns the wrapped internal error, if any, for logging.
func (e *Error) Cause() error {
	return e.cause
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches an internal cause that is never part of Error()'s text.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.WithStack(cause)}
}

func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// AsUnknown maps any error that is not already a *Error into KindUnknown,
// preserving the original as the logged cause. A *Error is returned as-is.
func AsUnknown(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindUnknown, "unexpected failure", err)
}
