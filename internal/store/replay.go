package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/roach88/spikeclust/internal/ir"
)

// SessionEvent represents a single journal entry (invocation or completion).
type SessionEvent struct {
	Type       EventType
	Seq        int64
	ID         string
	Invocation *ir.Invocation
	Completion *ir.Completion
}

// EventType distinguishes between invocations and completions.
type EventType int

const (
	EventInvocation EventType = iota
	EventCompletion
)

// String returns the event type as a string.
func (t EventType) String() string {
	switch t {
	case EventInvocation:
		return "invocation"
	case EventCompletion:
		return "completion"
	default:
		return "unknown"
	}
}

// ReplaySession returns all events of a session in replay order.
// Events are returned as a merged, seq-ordered stream of invocations and
// completions, used by trace output and determinism checks.
func (s *Store) ReplaySession(ctx context.Context, sessionID string) ([]SessionEvent, error) {
	invocations, completions, err := s.ReadSessionLog(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	events := make([]SessionEvent, 0, len(invocations)+len(completions))
	for i := range invocations {
		inv := &invocations[i]
		events = append(events, SessionEvent{Type: EventInvocation, Seq: inv.Seq, ID: inv.ID, Invocation: inv})
	}
	for i := range completions {
		comp := &completions[i]
		events = append(events, SessionEvent{Type: EventCompletion, Seq: comp.Seq, ID: comp.ID, Completion: comp})
	}

	sortSessionEvents(events)
	return events, nil
}

// sortSessionEvents orders events by seq, then type (invocations before
// completions for equal seq), then ID.
func sortSessionEvents(events []SessionEvent) {
	slices.SortStableFunc(events, func(a, b SessionEvent) int {
		return cmp.Or(
			cmp.Compare(a.Seq, b.Seq),
			cmp.Compare(a.Type, b.Type),
			cmp.Compare(a.ID, b.ID),
		)
	})
}

// GetPendingInvocations returns invocations that don't have completions.
// A pending invocation means the process stopped mid-command; replay treats
// the journal as ending before it.
// Results ordered by seq ASC, id ASC.
func (s *Store) GetPendingInvocations(ctx context.Context, sessionID string) ([]ir.Invocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.session_id, i.action, i.args, i.seq, i.engine_version, i.ir_version
		FROM invocations i
		LEFT JOIN completions c ON i.id = c.invocation_id
		WHERE i.session_id = ? AND c.id IS NULL
		ORDER BY i.seq ASC, i.id COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get pending invocations: %w", err)
	}
	defer rows.Close()

	invocations := []ir.Invocation{}
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		invocations = append(invocations, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending invocations: %w", err)
	}

	return invocations, nil
}

// GetLastSeq returns the highest seq number used in the store.
// Used to resume the logical clock from the correct position.
func (s *Store) GetLastSeq(ctx context.Context) (int64, error) {
	var invSeq, compSeq int64

	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM invocations
	`).Scan(&invSeq); err != nil {
		return 0, fmt.Errorf("get last seq from invocations: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM completions
	`).Scan(&compSeq); err != nil {
		return 0, fmt.Errorf("get last seq from completions: %w", err)
	}

	return max(invSeq, compSeq), nil
}

// GetLastSeqForSession returns the highest seq number used in one session.
func (s *Store) GetLastSeqForSession(ctx context.Context, sessionID string) (int64, error) {
	var invSeq, compSeq int64

	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM invocations WHERE session_id = ?
	`, sessionID).Scan(&invSeq); err != nil {
		return 0, fmt.Errorf("get last seq from invocations: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(c.seq), 0)
		FROM completions c
		JOIN invocations i ON c.invocation_id = i.id
		WHERE i.session_id = ?
	`, sessionID).Scan(&compSeq); err != nil {
		return 0, fmt.Errorf("get last seq from completions: %w", err)
	}

	return max(invSeq, compSeq), nil
}
