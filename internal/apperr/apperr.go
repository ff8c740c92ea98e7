// Package apperr defines the error taxonomy shared by the chat components and
// the request boundary. Every error carries a Kind (what class of failure it
// is) and a stable machine-readable Code that clients match on.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthRequired
	KindAuthInsufficient
	KindNotFound
	KindConflict
	KindNotAuthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthRequired:
		return "auth-required"
	case KindAuthInsufficient:
		return "auth-insufficient"
	case KindNotFound:
		return "not-found"
	case KindConflict:
		return "conflict"
	case KindNotAuthorized:
		return "not-authorized"
	default:
		return "internal"
	}
}

type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so that a wrapped copy of a sentinel still satisfies
// errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// With returns a copy of e carrying cause as its wrapped error.
func (e *Error) With(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Err: cause}
}

func New(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

// Internal wraps an unexpected fault (storage unreachable, encoding failure).
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Err: err}
}

const CodeInternal = "internal-error"

var (
	ErrAuthMissing       = New(KindAuthRequired, "auth-missing")
	ErrInvalidSession    = New(KindAuthRequired, "invalid-session")
	ErrAuthInsufficient  = New(KindAuthInsufficient, "auth-insufficient")
	ErrRequiredUsername  = New(KindValidation, "required-username")
	ErrInvalidUsername   = New(KindValidation, "invalid-username")
	ErrUserExists        = New(KindConflict, "user-exists")
	ErrUserNotRegistered = New(KindAuthRequired, "user-not-registered")

	ErrRequiredName       = New(KindValidation, "required-name")
	ErrInvalidChannelName = New(KindValidation, "invalid-channel-name")
	ErrChannelExists      = New(KindConflict, "channel-exists")
	ErrNoSuchChannel      = New(KindNotFound, "no-such-channel")

	ErrRequiredMessage = New(KindValidation, "required-message")
	ErrNoSuchMessage   = New(KindNotFound, "no-such-message")
	ErrNotAuthorized   = New(KindNotAuthorized, "not-authorized")
	ErrInvalidThreadID = New(KindValidation, "invalid-tid")
	ErrNoSuchThread    = New(KindNotFound, "noSuchThread")
	ErrInvalidParent   = New(KindValidation, "invalid-parent")
	ErrNoSuchID        = New(KindNotFound, "noSuchId")
	ErrInvalidReaction = New(KindValidation, "invalid-reaction")
)

// KindOf reports the Kind of err, KindInternal for anything outside the
// taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the machine code of err, CodeInternal for unknown errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Code
	}
	return CodeInternal
}

// Status maps err onto the HTTP status the request boundary answers with.
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthRequired:
		return http.StatusUnauthorized
	case KindAuthInsufficient, KindNotAuthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
