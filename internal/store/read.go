package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/spikeclust/internal/ir"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ReadSession retrieves a session header by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadSession(ctx context.Context, id string) (ir.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, assignment, fields, propagate
		FROM sessions
		WHERE id = ?
	`, id)

	var sess ir.Session
	var assignmentJSON, fieldsJSON string
	if err := row.Scan(&sess.ID, &assignmentJSON, &fieldsJSON, &sess.Propagate); err != nil {
		return ir.Session{}, err
	}

	assignment, err := unmarshalAssignment(assignmentJSON)
	if err != nil {
		return ir.Session{}, err
	}
	sess.Assignment = assignment

	fields, err := unmarshalFields(fieldsJSON)
	if err != nil {
		return ir.Session{}, err
	}
	sess.Fields = fields

	return sess, nil
}

// ListSessions returns all session IDs in the database.
// Results ordered by id COLLATE BINARY; UUIDv7 ids therefore sort by creation.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return ids, nil
}

// ReadSessionLog returns all invocations and completions of a session.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns empty slices (not nil) if the session has no commands.
func (s *Store) ReadSessionLog(ctx context.Context, sessionID string) ([]ir.Invocation, []ir.Completion, error) {
	invocations, err := s.readSessionInvocations(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	completions, err := s.readSessionCompletions(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	return invocations, completions, nil
}

func (s *Store) readSessionInvocations(ctx context.Context, sessionID string) ([]ir.Invocation, error) {
	// Deterministic ordering: ORDER BY seq ASC, id COLLATE BINARY ASC
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, action, args, seq, engine_version, ir_version
		FROM invocations
		WHERE session_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
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
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}

	return invocations, nil
}

func (s *Store) readSessionCompletions(ctx context.Context, sessionID string) ([]ir.Completion, error) {
	// Deterministic ordering: ORDER BY seq ASC, id COLLATE BINARY ASC
	// Join with invocations to filter by session_id
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.invocation_id, c.output_case, c.result, c.seq, c.state_hash
		FROM completions c
		JOIN invocations i ON c.invocation_id = i.id
		WHERE i.session_id = ?
		ORDER BY c.seq ASC, c.id COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query completions: %w", err)
	}
	defer rows.Close()

	completions := []ir.Completion{}
	for rows.Next() {
		comp, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		completions = append(completions, comp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}

	return completions, nil
}

// ReadInvocation retrieves a single invocation by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadInvocation(ctx context.Context, id string) (ir.Invocation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, action, args, seq, engine_version, ir_version
		FROM invocations
		WHERE id = ?
	`, id)

	return scanInvocation(row)
}

// ReadCompletion retrieves a single completion by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadCompletion(ctx context.Context, id string) (ir.Completion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, invocation_id, output_case, result, seq, state_hash
		FROM completions
		WHERE id = ?
	`, id)

	return scanCompletion(row)
}

// scanInvocation scans a row into an Invocation struct.
// Scan errors are returned unwrapped so callers can test for sql.ErrNoRows.
func scanInvocation(row rowScanner) (ir.Invocation, error) {
	var inv ir.Invocation
	var action, argsJSON string

	if err := row.Scan(
		&inv.ID, &inv.SessionID, &action, &argsJSON, &inv.Seq,
		&inv.EngineVersion, &inv.IRVersion,
	); err != nil {
		return ir.Invocation{}, err
	}

	inv.Action = ir.ActionRef(action)

	args, err := unmarshalArgs(argsJSON)
	if err != nil {
		return ir.Invocation{}, err
	}
	inv.Args = args

	return inv, nil
}

// scanCompletion scans a row into a Completion struct.
func scanCompletion(row rowScanner) (ir.Completion, error) {
	var comp ir.Completion
	var resultJSON string

	if err := row.Scan(
		&comp.ID, &comp.InvocationID, &comp.OutputCase, &resultJSON, &comp.Seq, &comp.StateHash,
	); err != nil {
		return ir.Completion{}, err
	}

	result, err := unmarshalResult(resultJSON)
	if err != nil {
		return ir.Completion{}, err
	}
	comp.Result = result

	return comp, nil
}

var _ rowScanner = (*sql.Row)(nil)
