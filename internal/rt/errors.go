package rt

import (
	"errors"
	"fmt"
)

// ErrorCode names a pending exception class of the host runtime.
type ErrorCode string

const (
	ErrType       ErrorCode = "TypeError"
	ErrIndex      ErrorCode = "IndexError"
	ErrZeroDiv    ErrorCode = "ZeroDivisionError"
	ErrMemory     ErrorCode = "MemoryError"
	ErrOverflow   ErrorCode = "OverflowError"
	ErrName       ErrorCode = "NameError"
	ErrRecursion  ErrorCode = "RecursionError"
	ErrUnboundVar ErrorCode = "UnboundLocalError"
	ErrNotImpl    ErrorCode = "NotImplementedError"
)

// Error is an exception raised inside native code or the host runtime.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCode reports whether err is an *Error with the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewTypeError formats a TypeError.
func NewTypeError(format string, args ...any) *Error {
	return &Error{Code: ErrType, Message: fmt.Sprintf(format, args...)}
}
