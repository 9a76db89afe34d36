// Package testutil holds journal fixtures shared by command-level tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/spikeclust/internal/ir"
	"github.com/roach88/spikeclust/internal/store"
)

// OpenStore opens (creating if needed) the SQLite journal at path and
// closes it when the test ends.
func OpenStore(t testing.TB, path string) *store.Store {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// EmptyDatabase returns the path of a freshly migrated journal with no
// sessions. The handle used to create it is already closed.
func EmptyDatabase(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())
	return path
}

// Step is one hand-written command for a forged session log.
type Step struct {
	Action     ir.ActionRef
	Args       ir.IRObject
	OutputCase string
	Result     ir.IRObject
	StateHash  string
}

// ForgeSession journals a session header followed by steps, without
// running an engine. Each step takes two seq numbers starting at 1 and
// gets the ids inv-<n> and comp-<n>. A step with an empty OutputCase is
// written as a pending invocation.
func ForgeSession(t testing.TB, st *store.Store, sess ir.Session, steps ...Step) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateSession(ctx, sess))

	var seq int64
	for i, s := range steps {
		invID := fmt.Sprintf("inv-%d", i+1)
		args := s.Args
		if args == nil {
			args = ir.IRObject{}
		}
		seq++
		require.NoError(t, st.WriteInvocation(ctx, ir.Invocation{
			ID:            invID,
			SessionID:     sess.ID,
			Action:        s.Action,
			Args:          args,
			Seq:           seq,
			EngineVersion: ir.EngineVersion,
			IRVersion:     ir.IRVersion,
		}))
		if s.OutputCase == "" {
			continue
		}

		result := s.Result
		if result == nil {
			result = ir.IRObject{}
		}
		seq++
		require.NoError(t, st.WriteCompletion(ctx, ir.Completion{
			ID:           fmt.Sprintf("comp-%d", i+1),
			InvocationID: invID,
			OutputCase:   s.OutputCase,
			Result:       result,
			Seq:          seq,
			StateHash:    s.StateHash,
		}))
	}
}
