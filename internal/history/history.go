// Package history provides a linear undo/redo timeline.
//
// A History is an arena of entries plus a position pointer. Entries before
// the pointer are applied; entries at or after it form the redo branch.
// The history never computes effects: callers store entries that already
// carry both the forward and the inverse data of a transition.
package history

import "github.com/roach88/spikeclust/internal/ir"

// History is a linear undo/redo stack of entries.
//
// The zero value is an empty history ready for use. History is not safe for
// concurrent use.
type History[T any] struct {
	entries []T
	pos     int
}

// New returns an empty history.
func New[T any]() *History[T] {
	return &History[T]{}
}

// Do records entry as the newest applied action.
// Any pending redo branch is discarded.
func (h *History[T]) Do(entry T) {
	var zero T
	for i := h.pos; i < len(h.entries); i++ {
		h.entries[i] = zero
	}
	h.entries = append(h.entries[:h.pos], entry)
	h.pos++
}

// Undo steps back over the most recently applied entry and returns it.
// Returns a NothingToUndo error at the start of the history.
func (h *History[T]) Undo() (T, error) {
	if !h.CanUndo() {
		var zero T
		return zero, ir.NewNothingToUndoError()
	}
	h.pos--
	return h.entries[h.pos], nil
}

// Redo steps forward over the next undone entry and returns it.
// Returns a NothingToRedo error when no undone entry is pending.
func (h *History[T]) Redo() (T, error) {
	if !h.CanRedo() {
		var zero T
		return zero, ir.NewNothingToRedoError()
	}
	e := h.entries[h.pos]
	h.pos++
	return e, nil
}

// CanUndo reports whether an applied entry exists.
func (h *History[T]) CanUndo() bool { return h.pos > 0 }

// CanRedo reports whether an undone entry is pending.
func (h *History[T]) CanRedo() bool { return h.pos < len(h.entries) }

// Len returns the total number of stored entries, including the redo branch.
func (h *History[T]) Len() int { return len(h.entries) }

// Position returns the number of applied entries.
func (h *History[T]) Position() int { return h.pos }

// Clear drops every entry.
func (h *History[T]) Clear() {
	clear(h.entries)
	h.entries = h.entries[:0]
	h.pos = 0
}

// Entries returns a copy of the applied entries, oldest first.
func (h *History[T]) Entries() []T {
	out := make([]T, h.pos)
	copy(out, h.entries[:h.pos])
	return out
}
