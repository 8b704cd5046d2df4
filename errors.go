package kvproxy

import (
	"errors"
	"strings"
)

// Error codes. The HTTP layer maps each one to a status.
const (
	EInvalid          = "invalid"
	EUnauthorized     = "unauthorized"
	ENotFound         = "not found"
	EStoreFault       = "store fault"
	EInternal         = "internal error"
	EMethodNotAllowed = "method not allowed"
	ETooLarge         = "request too large"
)

// Error is the error returned by every Proxy operation.
//
// Code drives status mapping; Msg is safe to show to callers for EInvalid and
// ENotFound. Op names the operation, and Err keeps the underlying cause
// (usually a provider error) for logs.
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString("<" + e.Code + ">")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode returns the code of the first *Error in err's chain.
// Errors without one are EInternal; nil is "".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) || e == nil {
		return EInternal
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Err != nil {
		return ErrorCode(e.Err)
	}
	return EInternal
}

// ErrorMessage returns the caller-facing message of err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) || e == nil {
		return "An internal error has occurred."
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return ErrorMessage(e.Err)
	}
	return "An internal error has occurred."
}

func invalid(op, msg string) *Error {
	return &Error{Code: EInvalid, Op: op, Msg: msg}
}

func storeFault(op, msg string, err error) *Error {
	return &Error{Code: EStoreFault, Op: op, Msg: msg, Err: err}
}
