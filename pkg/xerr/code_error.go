package xerr

import (
	"errors"
	"fmt"
)

// CodeError error carrying a response code for the HTTP envelope
type CodeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	cause   error
}

// Error implements error
func (e *CodeError) Error() string {
	return fmt.Sprintf("Code: %d, Message: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped domain error to errors.Is
func (e *CodeError) Unwrap() error {
	return e.cause
}

// New creates a CodeError
func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Message: msg}
}

// Wrap creates a CodeError that keeps cause in the chain
func Wrap(code int, msg string, cause error) *CodeError {
	return &CodeError{Code: code, Message: msg, cause: cause}
}

// From returns err as a *CodeError when one is in the chain
func From(err error) (*CodeError, bool) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

const (
	OK                  = 200
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	Conflict            = 409
	InternalServerError = 500
	ServiceUnavailable  = 503
)

var (
	ErrSuccess     = New(OK, "Success")
	ErrServerError = New(InternalServerError, "internal error, please contact support")
	ErrParam       = New(BadRequest, "invalid parameters")
)
