package query

import (
	"errors"
	"fmt"
)

// Code classifies a sub-query failure.
type Code string

const (
	CodeSchemaNotFound    Code = "schema_not_found"
	CodeNamespaceNotFound Code = "namespace_not_found"
	CodeNoPlugin          Code = "no_plugin"
	CodeInvalidView       Code = "invalid_view"
	CodeUpstream          Code = "upstream_error"
	CodeInvalidRequest    Code = "invalid_request"
	CodeInvalidSchema     Code = "invalid_schema"
	CodeInternal          Code = "internal_error"
)

// Error is a classified failure of a sub-query.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf returns a classified error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under code.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal.
func CodeOf(err error) Code {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries code.
func IsCode(err error, code Code) bool {
	var qe *Error
	return errors.As(err, &qe) && qe.Code == code
}
