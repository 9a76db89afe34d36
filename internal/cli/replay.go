package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/spikeclust/internal/engine"
	"github.com/roach88/spikeclust/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database  string
	SessionID string // optional - specific session only
}

// ReplayMismatch is one journaled completion the re-run did not reproduce.
type ReplayMismatch struct {
	Seq    int64  `json:"seq"`
	Action string `json:"action"`
	Field  string `json:"field"`
	Want   string `json:"want"`
	Got    string `json:"got"`
}

// ReplaySessionResult holds the replay result for a single session.
type ReplaySessionResult struct {
	SessionID      string           `json:"session_id"`
	Steps          int              `json:"steps"`
	Pending        int              `json:"pending"`
	FinalStateHash string           `json:"final_state_hash"`
	Deterministic  bool             `json:"deterministic"`
	Mismatches     []ReplayMismatch `json:"mismatches,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Sessions         []ReplaySessionResult `json:"sessions"`
	TotalSessions    int                   `json:"total_sessions"`
	AllDeterministic bool                  `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay journaled sessions and verify determinism",
		Long: `Rebuild each journaled session from its header and re-run every
command in seq order against a fresh engine.

Every recomputed invocation id, output case, state hash and completion id
must equal the journaled one. A trailing invocation without a completion
is reported as pending and not re-run.

Exit codes:
  0 - All sessions are deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, unknown session, etc.)

Examples:
  spikeclust replay --db ./curation.db
  spikeclust replay --db ./curation.db --session 0190f1c2-...
  spikeclust replay --db ./curation.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "replay specific session only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := opts.Logger(io.Discard)
	if opts.Verbose {
		logger = opts.Logger(cmd.ErrOrStderr())
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var sessionIDs []string
	if opts.SessionID != "" {
		sessionIDs = []string{opts.SessionID}
	} else {
		sessionIDs, err = st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
	}

	result := ReplayResult{
		Sessions:         make([]ReplaySessionResult, 0, len(sessionIDs)),
		TotalSessions:    len(sessionIDs),
		AllDeterministic: true,
	}
	for _, id := range sessionIDs {
		formatter.VerboseLog("Replaying session %s", id)
		rr, err := engine.Replay(ctx, st, id, engine.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay session %s", id), err)
		}

		sessionResult := toReplaySessionResult(rr)
		result.Sessions = append(result.Sessions, sessionResult)
		if !sessionResult.Deterministic {
			result.AllDeterministic = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter.Writer, result, opts.Verbose)
}

func toReplaySessionResult(rr *engine.ReplayResult) ReplaySessionResult {
	out := ReplaySessionResult{
		SessionID:      rr.SessionID,
		Steps:          rr.Steps,
		Pending:        rr.Pending,
		FinalStateHash: rr.FinalStateHash,
		Deterministic:  rr.OK(),
	}
	for _, m := range rr.Mismatches {
		out.Mismatches = append(out.Mismatches, ReplayMismatch{
			Seq:    m.Seq,
			Action: string(m.Action),
			Field:  m.Field,
			Want:   m.Want,
			Got:    m.Got,
		})
	}
	return out
}

func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	if result.AllDeterministic {
		return formatter.Report(result, nil)
	}
	if err := formatter.Report(result, &CLIError{
		Code:    "E_DETERMINISM",
		Message: "determinism verification failed",
	}); err != nil {
		return err
	}
	return NewExitError(ExitFailure, "determinism verification failed")
}

func outputReplayText(w io.Writer, result ReplayResult, verbose bool) error {
	if result.TotalSessions == 0 {
		fmt.Fprintln(w, "No sessions found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d session(s)\n", result.TotalSessions)
	fmt.Fprintln(w)

	for _, s := range result.Sessions {
		status := "✓"
		if !s.Deterministic {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Session: %s\n", status, s.SessionID)
		fmt.Fprintf(w, "  Commands: %d replayed, %d pending\n", s.Steps, s.Pending)
		if verbose {
			fmt.Fprintf(w, "  Final state: %s\n", s.FinalStateHash)
		}
		for _, m := range s.Mismatches {
			fmt.Fprintf(w, "  [%d] %s: %s want %s, got %s\n", m.Seq, m.Action, m.Field, m.Want, m.Got)
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All sessions verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	return NewExitError(ExitFailure, "determinism verification failed")
}
