package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spikeclust/internal/engine"
	"github.com/roach88/spikeclust/internal/store"
)

// journalScenario runs a scenario from testdata into dbPath under a fixed
// session id and returns the command output.
func journalScenario(t *testing.T, dbPath, scenario, sessionID, format string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})

	opts := &RunOptions{
		RootOptions:      &RootOptions{Format: format},
		Database:         dbPath,
		SessionGenerator: engine.NewFixedGenerator(sessionID),
	}
	err := runSession(opts, filepath.Join(scenariosDir, scenario), cmd)
	return out.String(), err
}

func TestRunMissingDatabaseFlag(t *testing.T) {
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{filepath.Join(scenariosDir, "merge_undo_redo.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestRunNonExistentScenario(t *testing.T) {
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "test.db"), "/nonexistent/scenario.yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load scenario")
}

func TestRunJournalsSession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	out, err := journalScenario(t, dbPath, "merge_undo_redo.yaml", "session-a", "text")
	require.NoError(t, err)

	assert.Contains(t, out, "Session: session-a")
	assert.Contains(t, out, "[1] cluster.merge")
	assert.Contains(t, out, "-> NothingToRedo")
	assert.Contains(t, out, "✓ 4 command(s) journaled")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	sess, err := st.ReadSession(context.Background(), "session-a")
	require.NoError(t, err)
	assert.Len(t, sess.Assignment, 5)

	invs, comps, err := st.ReadSessionLog(context.Background(), "session-a")
	require.NoError(t, err)
	assert.Len(t, invs, 4)
	assert.Len(t, comps, 4)
}

func TestRunJSONWithFieldsAndPropagation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	out, err := journalScenario(t, dbPath, "split_propagation.yaml", "session-b", "json")
	require.NoError(t, err)

	var resp struct {
		Status    string    `json:"status"`
		SessionID string    `json:"session_id"`
		Data      RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "session-b", resp.SessionID)
	assert.Equal(t, 0, resp.Data.Rejected)
	assert.NotEmpty(t, resp.Data.StateHash)
	require.NotEmpty(t, resp.Data.Steps)
	assert.Equal(t, "meta.set", resp.Data.Steps[0].Action)
	assert.Equal(t, int64(1), resp.Data.Steps[0].Seq)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	sess, err := st.ReadSession(context.Background(), "session-b")
	require.NoError(t, err)
	assert.True(t, sess.Propagate)
	assert.Len(t, sess.Fields, 2)
}

func TestRunRejectedCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rejected.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: rejected
description: an unknown action is refused before journaling
assignment: [0, 1]
flow:
  - invoke: cluster.merge
    args: {clusters: [0, 1]}
  - invoke: cluster.explode
    args: {}
assertions:
  - type: trace_count
    action: cluster.merge
    count: 1
`), 0644))

	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	opts := &RunOptions{
		RootOptions:      &RootOptions{Format: "text"},
		Database:         filepath.Join(dir, "test.db"),
		SessionGenerator: engine.NewFixedGenerator("session-r"),
	}

	err := runSession(opts, path, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), "✗ cluster.explode")
	assert.Contains(t, out.String(), "1 command(s) rejected")
}

func TestRunUUIDv7SessionID(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	out := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "json"})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, filepath.Join(scenariosDir, "assign_import.yaml")})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Len(t, resp.SessionID, 36)
	assert.Equal(t, byte('7'), resp.SessionID[14], "version nibble")
}

func TestRunHelpText(t *testing.T) {
	cmd := NewRunCommand(&RootOptions{})
	assert.Equal(t, "run <scenario>", cmd.Use)
	assert.Contains(t, cmd.Long, "single-writer engine loop")
	require.NotNil(t, cmd.Flags().Lookup("db"))
}
