package jsonapi

import (
	"net/http"
	"strconv"
)

// NewError returns an error object for status. The title is the standard
// status text.
func NewError(status int, code, detail string) Error {
	return Error{
		Status: strconv.Itoa(status),
		Code:   code,
		Title:  http.StatusText(status),
		Detail: detail,
	}
}

// WithPointer returns a copy of e whose source points at a request document
// member, e.g. "/queries/0/schema".
func (e Error) WithPointer(pointer string) Error {
	src := ErrorSource{Pointer: pointer}
	if e.Source != nil {
		src.Parameter = e.Source.Parameter
	}
	e.Source = &src
	return e
}

// WithParameter returns a copy of e whose source names a path or query
// parameter.
func (e Error) WithParameter(param string) Error {
	src := ErrorSource{Parameter: param}
	if e.Source != nil {
		src.Pointer = e.Source.Pointer
	}
	e.Source = &src
	return e
}

// WithMeta returns a copy of e carrying key in its meta object.
func (e Error) WithMeta(key string, value any) Error {
	meta := make(Meta, len(e.Meta)+1)
	for k, v := range e.Meta {
		meta[k] = v
	}
	meta[key] = value
	e.Meta = meta
	return e
}

// StatusCode returns the HTTP status code as an int.
func (e Error) StatusCode() int {
	code, _ := strconv.Atoi(e.Status)
	return code
}

// ErrBadRequest creates a 400 Bad Request error.
func ErrBadRequest(detail string) Error {
	return NewError(http.StatusBadRequest, "bad_request", detail)
}

// ErrUnauthorized creates a 401 Unauthorized error.
func ErrUnauthorized(detail string) Error {
	if detail == "" {
		detail = "Authentication required"
	}
	return NewError(http.StatusUnauthorized, "unauthorized", detail)
}

// ErrInternal creates a 500 Internal Server Error.
func ErrInternal(detail string) Error {
	if detail == "" {
		detail = "An internal error occurred"
	}
	return NewError(http.StatusInternalServerError, "internal_error", detail)
}
