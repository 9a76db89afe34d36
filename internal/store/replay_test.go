package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spikeclust/internal/ir"
)

func writeCommand(t *testing.T, s *Store, sessionID, invID string, seq int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WriteInvocation(ctx, createTestInvocation(invID, sessionID, ir.ActionMerge, seq)))
	require.NoError(t, s.WriteCompletion(ctx, createTestCompletion("comp-"+invID, invID, ir.OutputSuccess, seq+1)))
}

func TestReadSessionLog_Ordering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")
	createTestSession(t, s, "s2")

	// Written out of order on purpose.
	writeCommand(t, s, "s1", "inv-b", 3)
	writeCommand(t, s, "s1", "inv-a", 1)
	writeCommand(t, s, "s2", "inv-c", 1)

	invs, comps, err := s.ReadSessionLog(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, invs, 2)
	require.Len(t, comps, 2)
	assert.Equal(t, "inv-a", invs[0].ID)
	assert.Equal(t, "inv-b", invs[1].ID)
	assert.Equal(t, "comp-inv-a", comps[0].ID)

	invs, comps, err = s.ReadSessionLog(ctx, "empty")
	require.NoError(t, err)
	assert.Equal(t, []ir.Invocation{}, invs)
	assert.Equal(t, []ir.Completion{}, comps)
}

func TestReplaySession_MergedStream(t *testing.T) {
	s := createTestStore(t)
	createTestSession(t, s, "s1")
	writeCommand(t, s, "s1", "inv-2", 3)
	writeCommand(t, s, "s1", "inv-1", 1)

	events, err := s.ReplaySession(context.Background(), "s1")
	require.NoError(t, err)

	var got []string
	for _, ev := range events {
		got = append(got, ev.Type.String()+":"+ev.ID)
	}
	assert.Equal(t, []string{
		"invocation:inv-1",
		"completion:comp-inv-1",
		"invocation:inv-2",
		"completion:comp-inv-2",
	}, got)
	assert.Equal(t, "inv-1", events[0].Invocation.ID)
	assert.Equal(t, "inv-1", events[1].Completion.InvocationID)
}

func TestGetPendingInvocations(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s1")
	writeCommand(t, s, "s1", "inv-1", 1)
	require.NoError(t, s.WriteInvocation(ctx, createTestInvocation("inv-2", "s1", ir.ActionSplit, 3)))

	pending, err := s.GetPendingInvocations(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "inv-2", pending[0].ID)
}

func TestGetLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.GetLastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	createTestSession(t, s, "s1")
	createTestSession(t, s, "s2")
	writeCommand(t, s, "s1", "inv-1", 1)
	writeCommand(t, s, "s2", "inv-2", 7)

	seq, err = s.GetLastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), seq)

	seq, err = s.GetLastSeqForSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "invocation", EventInvocation.String())
	assert.Equal(t, "completion", EventCompletion.String())
	assert.Equal(t, "unknown", EventType(9).String())
}
