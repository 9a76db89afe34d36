package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes recoverable engine errors.
//
// Codes double as completion output cases in the command journal, so they
// are stable, human-readable names.
type ErrorCode string

const (
	// ErrCodeInvalidOperation rejects malformed merge/split/assign/set input.
	ErrCodeInvalidOperation ErrorCode = "InvalidOperation"

	// ErrCodeNothingToUndo indicates the history pointer is at the start.
	ErrCodeNothingToUndo ErrorCode = "NothingToUndo"

	// ErrCodeNothingToRedo indicates no undone action is pending.
	ErrCodeNothingToRedo ErrorCode = "NothingToRedo"

	// ErrCodeDuplicateField indicates a metadata field was declared twice.
	ErrCodeDuplicateField ErrorCode = "DuplicateField"

	// ErrCodeUnknownField indicates a metadata field was never declared.
	ErrCodeUnknownField ErrorCode = "UnknownField"

	// ErrCodeReentrantMutation indicates a mutation attempted from inside a
	// change notification callback.
	ErrCodeReentrantMutation ErrorCode = "ReentrantMutation"

	// ErrCodeUnknownAction indicates a journaled command names no action.
	ErrCodeUnknownAction ErrorCode = "UnknownAction"
)

// Error is a local, synchronous, recoverable failure. When an Error is
// returned, no state changed and no notification was delivered.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCode reports whether err (or anything it wraps) is an *Error with code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// NewInvalidOperationError creates an Error for rejected input.
func NewInvalidOperationError(format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeInvalidOperation,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewNothingToUndoError creates an Error for an undo at the history start.
func NewNothingToUndoError() *Error {
	return &Error{Code: ErrCodeNothingToUndo, Message: "no action to undo"}
}

// NewNothingToRedoError creates an Error for a redo with no pending action.
func NewNothingToRedoError() *Error {
	return &Error{Code: ErrCodeNothingToRedo, Message: "no action to redo"}
}

// NewDuplicateFieldError creates an Error for a repeated field declaration.
func NewDuplicateFieldError(field string) *Error {
	return &Error{
		Code:    ErrCodeDuplicateField,
		Message: fmt.Sprintf("field %q already declared", field),
		Details: map[string]string{"field": field},
	}
}

// NewUnknownFieldError creates an Error for an undeclared field.
func NewUnknownFieldError(field string) *Error {
	return &Error{
		Code:    ErrCodeUnknownField,
		Message: fmt.Sprintf("field %q not declared", field),
		Details: map[string]string{"field": field},
	}
}

// NewReentrantMutationError creates an Error for a mutation issued from a
// notification callback.
func NewReentrantMutationError(op string) *Error {
	return &Error{
		Code:    ErrCodeReentrantMutation,
		Message: fmt.Sprintf("%s called while change notification in progress", op),
		Details: map[string]string{"op": op},
	}
}

// NewUnknownActionError creates an Error for an unrecognized command.
func NewUnknownActionError(action string) *Error {
	return &Error{
		Code:    ErrCodeUnknownAction,
		Message: fmt.Sprintf("unknown action %q", action),
		Details: map[string]string{"action": action},
	}
}
