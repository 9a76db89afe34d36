package engine

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/spikeclust/internal/ir"
)

// SessionLog reads a journaled session back. Implemented by *store.Store
// and *MemoryJournal.
type SessionLog interface {
	ReadSession(ctx context.Context, id string) (ir.Session, error)
	ReadSessionLog(ctx context.Context, sessionID string) ([]ir.Invocation, []ir.Completion, error)
}

// MemoryJournal keeps the command log in memory.
// Used by the scenario harness and by tests that need a journal without
// SQLite. Writes are idempotent by id, like the SQLite store.
//
// Thread-safety: MemoryJournal is safe for concurrent use via internal mutex.
type MemoryJournal struct {
	mu          sync.Mutex
	sessions    map[string]ir.Session
	invocations []ir.Invocation
	completions []ir.Completion
	seen        map[string]bool
}

// NewMemoryJournal creates an empty journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		sessions: make(map[string]ir.Session),
		seen:     make(map[string]bool),
	}
}

// CreateSession records a session header. Repeated calls are ignored.
func (j *MemoryJournal) CreateSession(_ context.Context, sess ir.Session) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.sessions[sess.ID]; !ok {
		j.sessions[sess.ID] = sess
	}
	return nil
}

// WriteInvocation appends an invocation of a known session.
func (j *MemoryJournal) WriteInvocation(_ context.Context, inv ir.Invocation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.sessions[inv.SessionID]; !ok {
		return fmt.Errorf("write invocation %s: unknown session %q", inv.ID, inv.SessionID)
	}
	if j.seen[inv.ID] {
		return nil
	}
	j.seen[inv.ID] = true
	j.invocations = append(j.invocations, inv)
	return nil
}

// WriteCompletion appends the completion of a known invocation. A second
// completion for the same invocation is ignored.
func (j *MemoryJournal) WriteCompletion(_ context.Context, comp ir.Completion) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.seen[comp.InvocationID] {
		return fmt.Errorf("write completion %s: unknown invocation %q", comp.ID, comp.InvocationID)
	}
	key := "completion:" + comp.InvocationID
	if j.seen[key] {
		return nil
	}
	j.seen[key] = true
	j.completions = append(j.completions, comp)
	return nil
}

// ReadSession returns a session header.
func (j *MemoryJournal) ReadSession(_ context.Context, id string) (ir.Session, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	sess, ok := j.sessions[id]
	if !ok {
		return ir.Session{}, fmt.Errorf("read session: %q not found", id)
	}
	return sess, nil
}

// ReadSessionLog returns a session's invocations and completions ordered by
// seq ASC, id ASC.
func (j *MemoryJournal) ReadSessionLog(_ context.Context, sessionID string) ([]ir.Invocation, []ir.Completion, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	invs := []ir.Invocation{}
	member := make(map[string]bool)
	for _, inv := range j.invocations {
		if inv.SessionID == sessionID {
			invs = append(invs, inv)
			member[inv.ID] = true
		}
	}
	comps := []ir.Completion{}
	for _, comp := range j.completions {
		if member[comp.InvocationID] {
			comps = append(comps, comp)
		}
	}

	slices.SortFunc(invs, func(a, b ir.Invocation) int {
		return cmp.Or(cmp.Compare(a.Seq, b.Seq), cmp.Compare(a.ID, b.ID))
	})
	slices.SortFunc(comps, func(a, b ir.Completion) int {
		return cmp.Or(cmp.Compare(a.Seq, b.Seq), cmp.Compare(a.ID, b.ID))
	})
	return invs, comps, nil
}

// Invocations returns every journaled invocation in write order.
func (j *MemoryJournal) Invocations() []ir.Invocation {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.invocations)
}

// Completions returns every journaled completion in write order.
func (j *MemoryJournal) Completions() []ir.Completion {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.completions)
}
