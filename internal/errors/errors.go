package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess     Code = 0
	CodeInternal    Code = 1
	CodeUsage       Code = 2
	CodeAuth        Code = 10
	CodeRateLimited Code = 11
	CodeUnavailable Code = 12
	CodeUpstream    Code = 13
	CodeBlocked     Code = 16
	CodeTransport   Code = 17
	CodeExhausted   Code = 18
	CodeNotFound    Code = 19
)

// Error is a typed CLI error that carries a stable error code.
// HTTPStatus and Body are set when the error originates from an upstream response.
type Error struct {
	Code       Code
	Message    string
	Cause      error
	HTTPStatus int
	Body       string
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Upstream builds an error for a non-2xx upstream response.
func Upstream(code Code, status int, body, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: status, Body: body}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// HasCode reports whether any typed error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		if cErr, ok := err.(*Error); ok && cErr.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}

// TypeName is the envelope error type for a code.
func TypeName(code Code) string {
	switch code {
	case CodeUsage:
		return "usage_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "provider_unavailable"
	case CodeUpstream:
		return "upstream_error"
	case CodeBlocked:
		return "command_blocked"
	case CodeTransport:
		return "transport_error"
	case CodeExhausted:
		return "retries_exhausted"
	case CodeNotFound:
		return "not_found"
	default:
		return "internal_error"
	}
}
