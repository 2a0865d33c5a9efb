// Package services implements the registry's domain logic on top of the
// repository layer. Services return *Error values classified by Kind; the API
// handlers map kinds to HTTP status codes without inspecting messages.
package services

import "fmt"

// Kind classifies a service error for transport mapping.
type Kind int

const (
	// KindInternal is an unexpected failure (database, storage, bug).
	KindInternal Kind = iota
	// KindBadRequest is invalid caller input.
	KindBadRequest
	// KindUnauthorized means no valid credentials were presented.
	KindUnauthorized
	// KindForbidden means the caller is authenticated but not allowed.
	KindForbidden
	// KindNotFound means the target does not exist or the caller may not
	// learn whether it exists.
	KindNotFound
	// KindConflict means the operation lost to existing state (duplicate
	// name, republished version, settled invitation).
	KindConflict
)

// Error is a classified service error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// BadRequest returns a KindBadRequest error
func BadRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized returns a KindUnauthorized error
func Unauthorized(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// Forbidden returns a KindForbidden error
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a KindNotFound error
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict returns a KindConflict error
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected error with a stable caller-facing message.
func Internal(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}
