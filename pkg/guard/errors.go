package guard

import (
	"errors"
	"fmt"
)

// Code classifies a guarded-write failure. The values double as the wire codes
// returned to clients.
type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeNotFound         Code = "NOT_FOUND"
	CodeVersionConflict  Code = "VERSION_CONFLICT"
	CodeBusinessConflict Code = "BUSINESS_CONFLICT"
	// CodeInternal covers storage and encoding failures that are not part of
	// the guard contract.
	CodeInternal Code = "INTERNAL"
)

var (
	ErrValidation       = errors.New("guard: validation error")
	ErrNotFound         = errors.New("guard: not found")
	ErrVersionConflict  = errors.New("guard: version conflict")
	ErrBusinessConflict = errors.New("guard: business conflict")
)

// Error carries the classification of a rejected mutation together with the
// entity it targeted.
type Error struct {
	Code     Code
	Entity   string
	ID       string
	Expected int64
	Current  int64
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	target := e.Entity
	if e.ID != "" {
		target = fmt.Sprintf("%s %q", e.Entity, e.ID)
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("guard: %s: %s: %v", target, msg, e.Err)
	}
	return fmt.Sprintf("guard: %s: %s", target, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the package sentinels by code so callers can use errors.Is
// without caring about the concrete payload.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrValidation:
		return e.Code == CodeValidation
	case ErrNotFound:
		return e.Code == CodeNotFound
	case ErrVersionConflict:
		return e.Code == CodeVersionConflict
	case ErrBusinessConflict:
		return e.Code == CodeBusinessConflict
	}
	return false
}

// Validation reports malformed input. It is always raised before storage is
// touched.
func Validation(entity, id, format string, args ...any) *Error {
	return &Error{
		Code:    CodeValidation,
		Entity:  entity,
		ID:      id,
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFound reports that the targeted row does not exist.
func NotFound(entity, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Entity:  entity,
		ID:      id,
		Message: "not found",
	}
}

// VersionConflict reports that the row exists but its version moved past the
// one the caller observed.
func VersionConflict(entity, id string, expected, current int64) *Error {
	return &Error{
		Code:     CodeVersionConflict,
		Entity:   entity,
		ID:       id,
		Expected: expected,
		Current:  current,
		Message:  fmt.Sprintf("version conflict: expected %d, current %d", expected, current),
	}
}

// BusinessConflict reports a domain rule that forbids the mutation even though
// the version matched.
func BusinessConflict(entity, id, format string, args ...any) *Error {
	return &Error{
		Code:    CodeBusinessConflict,
		Entity:  entity,
		ID:      id,
		Message: fmt.Sprintf(format, args...),
	}
}

// Internal wraps a storage or encoding failure.
func Internal(entity, id string, err error) *Error {
	return &Error{
		Code:    CodeInternal,
		Entity:  entity,
		ID:      id,
		Message: "internal error",
		Err:     err,
	}
}

// CodeOf classifies err. Errors that did not originate from this package are
// reported as CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var guardErr *Error
	if errors.As(err, &guardErr) {
		return guardErr.Code
	}
	return CodeInternal
}

// Retryable reports whether refreshing state and resubmitting could change the
// outcome. Only version conflicts qualify.
func Retryable(err error) bool {
	return CodeOf(err) == CodeVersionConflict
}
