// Package apperr holds the error taxonomy shared by stores, services and handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrDuplicate is returned by stores when an insert violates a unique key.
var ErrDuplicate = errors.New("duplicate key")

// ErrNotFound is returned by stores when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func NotFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

// SynthesisError means a voice could not be resolved or the engine failed.
type SynthesisError struct {
	Voice string
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis with voice %q: %v", e.Voice, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

type ForbiddenError struct {
	Msg string
}

func (e *ForbiddenError) Error() string { return e.Msg }

func Forbidden(msg string) error {
	return &ForbiddenError{Msg: msg}
}

// HTTPStatus maps an error from any layer to the response code handlers use.
func HTTPStatus(err error) int {
	var (
		nf  *NotFoundError
		val *ValidationError
		fb  *ForbiddenError
		syn *SynthesisError
	)
	switch {
	case errors.As(err, &nf), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &val):
		return http.StatusBadRequest
	case errors.As(err, &fb):
		return http.StatusForbidden
	case errors.As(err, &syn):
		return http.StatusInternalServerError
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
