package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/spikeclust/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession writes a session header with one field.
func createTestSession(t *testing.T, s *Store, id string) ir.Session {
	t.Helper()
	sess := ir.Session{
		ID:         id,
		Assignment: []ir.ClusterID{0, 0, 0, 1, 1},
		Fields:     []ir.FieldSpec{{Name: "group", Default: ir.IRString("unsorted")}},
	}
	if err := s.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return sess
}

// createTestInvocation creates a test invocation with minimal required fields.
func createTestInvocation(id, sessionID string, action ir.ActionRef, seq int64) ir.Invocation {
	return ir.Invocation{
		ID:            id,
		SessionID:     sessionID,
		Action:        action,
		Args:          ir.IRObject{},
		Seq:           seq,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
}

// createTestCompletion creates a test completion with minimal required fields.
func createTestCompletion(id, invocationID, outputCase string, seq int64) ir.Completion {
	return ir.Completion{
		ID:           id,
		InvocationID: invocationID,
		OutputCase:   outputCase,
		Result:       ir.IRObject{},
		Seq:          seq,
		StateHash:    "state-" + id,
	}
}
