package app

import "fmt"

// Kind classifies an application error so the HTTP layer can map it to a
// status code without string matching.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUpstream     Kind = "upstream"
)

// Error is the application error type returned by App operations.
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

func Validation(msg string) *Error   { return &Error{Kind: KindValidation, Message: msg} }
func Unauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }
func Forbidden(msg string) *Error    { return &Error{Kind: KindForbidden, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) *Error     { return &Error{Kind: KindConflict, Message: msg} }

// Upstream wraps a failure from an external dependency.
func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

var (
	// ErrInvalidCredentials deliberately does not distinguish unknown email
	// from wrong password.
	ErrInvalidCredentials = Unauthorized("Incorrect email address or password")

	// ErrAccountInactive is returned on login before activation. The handler
	// surfaces it so the frontend can offer to resend the activation email.
	ErrAccountInactive = Unauthorized("account not activated, a new activation email has been sent")

	ErrEmailAlreadyExists   = Conflict("email already registered")
	ErrInvalidActivation    = Validation("invalid or expired activation token")
	ErrBookAlreadyInLibrary = Conflict("book already in your library")
)
