package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/ifthen/internal/archive"
	"github.com/roach88/ifthen/internal/expression"
	"github.com/roach88/ifthen/internal/ir"
)

// ErrReentrantDispatch is returned when a behavior calls Dispatch or
// Progress while a dispatch is already draining.
var ErrReentrantDispatch = errors.New("dispatch called re-entrantly from a behavior")

// RegistrationError represents a rejected registration.
//
// Registration errors include:
//   - Duplicate status, expression or handler keys
//   - Invalid conditions and dead handlers
//   - Compound expressions referencing unregistered sub-expressions
//   - Initial values that do not fit their status format
//
// Nothing is mutated by a call that returns a RegistrationError. The
// underlying package error is kept in Err for errors.Is.
type RegistrationError struct {
	// Code identifies the error category.
	Code RegistrationErrorCode

	// Message is a human-readable description.
	Message string

	// Key is the status, expression or handler name (or numeric key) involved.
	Key string

	// Err is the wrapped cause, if any.
	Err error
}

// RegistrationErrorCode categorizes registration errors.
type RegistrationErrorCode string

const (
	ErrCodeDuplicateKey     RegistrationErrorCode = "DUPLICATE_KEY"
	ErrCodeInvalidCondition RegistrationErrorCode = "INVALID_CONDITION"
	ErrCodeDeadHandler      RegistrationErrorCode = "DEAD_HANDLER"
	ErrCodeDuplicateHandler RegistrationErrorCode = "DUPLICATE_HANDLER"
	ErrCodeForwardReference RegistrationErrorCode = "FORWARD_REFERENCE"
	ErrCodeEmptyElements    RegistrationErrorCode = "EMPTY_ELEMENTS"
	ErrCodeKindMismatch     RegistrationErrorCode = "KIND_MISMATCH"
	ErrCodeOutOfRange       RegistrationErrorCode = "OUT_OF_RANGE"
	ErrCodeInvalidFormat    RegistrationErrorCode = "INVALID_FORMAT"
	ErrCodeUnknownStatus    RegistrationErrorCode = "UNKNOWN_STATUS"
	ErrCodeDivisionByZero   RegistrationErrorCode = "DIVISION_BY_ZERO"
	ErrCodeInvalidKey       RegistrationErrorCode = "INVALID_KEY"
)

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (key=%s)", e.Code, e.Message, e.Key)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RegistrationError) Unwrap() error { return e.Err }

// Is matches any RegistrationError target with the same Code.
func (e *RegistrationError) Is(target error) bool {
	t, ok := target.(*RegistrationError)
	return ok && t.Code == e.Code
}

// IsRegistrationError returns true if err, or any error it wraps or joins,
// is a RegistrationError with the given code.
func IsRegistrationError(err error, code RegistrationErrorCode) bool {
	return errors.Is(err, &RegistrationError{Code: code})
}

// newRegistrationError classifies a package error into a RegistrationError.
func newRegistrationError(key string, err error) *RegistrationError {
	var re *RegistrationError
	if errors.As(err, &re) {
		return re
	}
	return &RegistrationError{
		Code:    classify(err),
		Message: err.Error(),
		Key:     key,
		Err:     err,
	}
}

func classify(err error) RegistrationErrorCode {
	switch {
	case errors.Is(err, archive.ErrDuplicateKey), errors.Is(err, expression.ErrDuplicateExpression):
		return ErrCodeDuplicateKey
	case errors.Is(err, expression.ErrUnknownSubExpression):
		return ErrCodeForwardReference
	case errors.Is(err, expression.ErrEmptyElements):
		return ErrCodeEmptyElements
	case errors.Is(err, ir.ErrKindMismatch):
		return ErrCodeKindMismatch
	case errors.Is(err, ir.ErrOutOfRange):
		return ErrCodeOutOfRange
	case errors.Is(err, archive.ErrInvalidFormat):
		return ErrCodeInvalidFormat
	case errors.Is(err, archive.ErrUnknownStatus):
		return ErrCodeUnknownStatus
	case errors.Is(err, ir.ErrDivisionByZero):
		return ErrCodeDivisionByZero
	case errors.Is(err, ErrNilBehavior):
		return ErrCodeDeadHandler
	default:
		return ErrCodeInvalidKey
	}
}
