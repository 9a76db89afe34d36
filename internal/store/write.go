package store

import (
	"context"
	"fmt"

	"github.com/roach88/spikeclust/internal/ir"
)

// CreateSession inserts a session header.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - recreating a session with
// the same ID is silently ignored.
func (s *Store) CreateSession(ctx context.Context, sess ir.Session) error {
	assignmentJSON, err := marshalAssignment(sess.Assignment)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	fieldsJSON, err := marshalFields(sess.Fields)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions
		(id, assignment, fields, propagate, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		assignmentJSON,
		fieldsJSON,
		sess.Propagate,
		ir.EngineVersion,
		ir.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// WriteInvocation inserts an invocation record into the store.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
// Other constraint violations (e.g., unknown session) still return errors.
//
// The invocation's Args are serialized to canonical JSON per RFC 8785 for
// deterministic replay.
func (s *Store) WriteInvocation(ctx context.Context, inv ir.Invocation) error {
	argsJSON, err := marshalArgs(inv.Args)
	if err != nil {
		return fmt.Errorf("write invocation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invocations
		(id, session_id, action, args, seq, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		inv.ID,
		inv.SessionID,
		string(inv.Action),
		argsJSON,
		inv.Seq,
		inv.EngineVersion,
		inv.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write invocation: %w", err)
	}

	return nil
}

// WriteCompletion inserts a completion record into the store.
// Uses ON CONFLICT DO NOTHING for idempotency - duplicate writes are silently ignored.
// Each invocation can have exactly ONE completion (enforced by UNIQUE constraint on invocation_id).
//
// Note: The invocation referenced by InvocationID must exist (foreign key constraint).
func (s *Store) WriteCompletion(ctx context.Context, comp ir.Completion) error {
	resultJSON, err := marshalResult(comp.Result)
	if err != nil {
		return fmt.Errorf("write completion: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO completions
		(id, invocation_id, output_case, result, seq, state_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		comp.ID,
		comp.InvocationID,
		comp.OutputCase,
		resultJSON,
		comp.Seq,
		comp.StateHash,
	)
	if err != nil {
		return fmt.Errorf("write completion: %w", err)
	}

	return nil
}
