package session

import "errors"

// Code is the RPC-facing status class of a session error. The daemon puts
// it on the wire verbatim.
type Code string

const (
	CodeInvalidArgument Code = "invalid_argument"
	CodeAlreadyExists   Code = "already_exists"
	CodeInternal        Code = "internal"
)

// Error is a session error with an RPC status code.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// ErrAlreadyActive is returned by Start while a non-cancelled session token
// is installed.
var ErrAlreadyActive = &Error{Code: CodeAlreadyExists, Message: "a transcription session is already active"}

// CodeOf classifies any error for the wire. Errors without an explicit code
// are internal.
func CodeOf(err error) Code {
	var sessionErr *Error
	if errors.As(err, &sessionErr) {
		return sessionErr.Code
	}
	return CodeInternal
}
