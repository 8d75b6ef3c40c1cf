package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode standardizes data-access failure semantics.
type ErrorCode string

const (
	CodeValidation          ErrorCode = "validation"
	CodeNotFound            ErrorCode = "not_found"
	CodeConflict            ErrorCode = "conflict"
	CodeLockContention      ErrorCode = "lock_contention"
	CodeConstraintViolation ErrorCode = "constraint_violation"
	CodeSerialization       ErrorCode = "serialization"
	CodeCanceled            ErrorCode = "canceled"
	CodeInternal            ErrorCode = "internal"
)

// Error is the canonical data-access error wrapper.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an error with explicit code and operation.
func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates an existing error with a code.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

// IsCode reports whether err, or anything it wraps, carries code.
func IsCode(err error, code ErrorCode) bool {
	var derr *Error
	for err != nil {
		if !errors.As(err, &derr) {
			return false
		}
		if derr.Code == code {
			return true
		}
		err = derr.Cause
	}
	return false
}

// CodeOf extracts the outermost code when available.
func CodeOf(err error) ErrorCode {
	var derr *Error
	if !errors.As(err, &derr) {
		return ""
	}
	return derr.Code
}
