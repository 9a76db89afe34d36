package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/spikeclust/internal/ir"
)

// RuntimeError represents a failure to run a command at all, as opposed to
// a command that ran and was rejected by a core (see ir.Error).
//
// Runtime errors include:
//   - Engine stopped: Submit after Stop or after Run returned
//   - Reentrant invoke: Invoke called from a change notification callback
//   - Journal write: the journal rejected a record
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// SessionID identifies the affected session.
	SessionID string

	// Action names the command, if any.
	Action ir.ActionRef

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeEngineStopped indicates the command queue is closed.
	ErrCodeEngineStopped RuntimeErrorCode = "ENGINE_STOPPED"

	// ErrCodeReentrantInvoke indicates Invoke was called while another
	// command of the same session was running.
	ErrCodeReentrantInvoke RuntimeErrorCode = "REENTRANT_INVOKE"

	// ErrCodeJournalWrite indicates the journal rejected a record.
	ErrCodeJournalWrite RuntimeErrorCode = "JOURNAL_WRITE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.SessionID != "" && e.Action != "" {
		return fmt.Sprintf("%s: %s (session=%s, action=%s)", e.Code, msg, e.SessionID, e.Action)
	}
	if e.SessionID != "" {
		return fmt.Sprintf("%s: %s (session=%s)", e.Code, msg, e.SessionID)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsStoppedError returns true if the error reports a stopped engine.
// Uses errors.As to handle wrapped errors.
func IsStoppedError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeEngineStopped
	}
	return false
}

// IsJournalError returns true if the error reports a journal write failure.
// Uses errors.As to handle wrapped errors.
func IsJournalError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeJournalWrite
	}
	return false
}

// NewStoppedError creates a RuntimeError for a closed command queue.
func NewStoppedError(sessionID string, action ir.ActionRef) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeEngineStopped,
		Message:   "engine is not accepting commands",
		SessionID: sessionID,
		Action:    action,
	}
}

// NewReentrantInvokeError creates a RuntimeError for a nested Invoke.
func NewReentrantInvokeError(sessionID string, action ir.ActionRef) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeReentrantInvoke,
		Message:   "invoke called while another command is running",
		SessionID: sessionID,
		Action:    action,
	}
}

// NewJournalError creates a RuntimeError wrapping a journal failure.
func NewJournalError(sessionID string, action ir.ActionRef, err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeJournalWrite,
		Message:   "journal write failed",
		SessionID: sessionID,
		Action:    action,
		Err:       err,
	}
}
