package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/spikeclust/internal/engine"
	"github.com/roach88/spikeclust/internal/harness"
	"github.com/roach88/spikeclust/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string

	// SessionGenerator overrides the session id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	SessionGenerator engine.SessionIDGenerator
}

// RunStep is the outcome of one submitted command.
type RunStep struct {
	Action       string `json:"action"`
	Seq          int64  `json:"seq,omitempty"`
	OutputCase   string `json:"output_case,omitempty"`
	CompletionID string `json:"completion_id,omitempty"`
	Rejected     string `json:"rejected,omitempty"`
}

// RunResult summarizes a journaled session.
type RunResult struct {
	SessionID string    `json:"session_id"`
	Steps     []RunStep `json:"steps"`
	Rejected  int       `json:"rejected"`
	StateHash string    `json:"state_hash"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Journal a scenario's commands to SQLite",
		Long: `Open a new session on a scenario's initial assignment and fields, then
submit its setup and flow commands to the single-writer engine loop,
journaling every invocation and completion to the database.

Expectations and assertions are not checked; use "test" for that.
The session gets a fresh UUIDv7 id, printed on completion, for use with
"replay" and "trace".

Exit codes:
  0 - Every command was accepted
  1 - One or more commands were rejected (unknown action, malformed args)
  2 - Command error (scenario invalid, database error, interrupted)

Example:
  spikeclust run --db ./curation.db ./scenarios/merge_undo_redo.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSession(opts *RunOptions, scenarioPath string, cmd *cobra.Command) error {
	logger := opts.Logger(cmd.ErrOrStderr())
	formatter := newFormatter(opts.RootOptions, cmd)

	scenario, err := harness.LoadScenario(scenarioPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	fields, err := harness.LoadFields(scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load fields", err)
	}
	commands, err := scenario.Commands()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to convert commands", err)
	}

	logger.Debug("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen := opts.SessionGenerator
	if gen == nil {
		gen = engine.UUIDv7Generator{}
	}
	eng, err := engine.New(ctx, scenario.InitialAssignment(), fields, gen,
		engine.WithJournal(st),
		engine.WithLogger(logger),
		engine.WithPropagation(scenario.Propagate),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open session", err)
	}

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- eng.Run(ctx)
	}()

	result := RunResult{
		SessionID: eng.Session().ID,
		Steps:     make([]RunStep, 0, len(commands)),
	}
	submitErr := submitAll(ctx, eng, commands, &result)

	eng.Stop()
	if err := <-loopErr; err != nil && submitErr == nil {
		submitErr = err
	}
	if submitErr != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("session %s aborted", result.SessionID), submitErr)
	}

	result.StateHash, err = eng.StateHash()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash final state", err)
	}

	logger.Info("session journaled",
		"session", result.SessionID,
		"commands", len(commands),
		"rejected", result.Rejected,
	)
	return outputRunResult(formatter, result)
}

// submitAll submits commands in order. Rejected commands are recorded and
// skipped; journal failures and cancellation stop the session.
func submitAll(ctx context.Context, eng *engine.Engine, commands []harness.Command, result *RunResult) error {
	for _, c := range commands {
		comp, err := eng.Submit(ctx, c.Action, c.Args)
		if err != nil {
			if engine.IsJournalError(err) || ctx.Err() != nil {
				return err
			}
			result.Rejected++
			result.Steps = append(result.Steps, RunStep{Action: string(c.Action), Rejected: err.Error()})
			continue
		}
		result.Steps = append(result.Steps, RunStep{
			Action:       string(c.Action),
			Seq:          comp.Seq,
			OutputCase:   comp.OutputCase,
			CompletionID: comp.ID,
		})
	}
	return nil
}

func outputRunResult(formatter *OutputFormatter, result RunResult) error {
	var failure *CLIError
	if result.Rejected > 0 {
		failure = &CLIError{Code: "E_REJECTED", Message: fmt.Sprintf("%d command(s) rejected", result.Rejected)}
	}

	if formatter.Format == "json" {
		if err := formatter.ReportSession(result.SessionID, result, failure); err != nil {
			return err
		}
	} else {
		printRunText(formatter.Writer, result)
	}

	if failure != nil {
		return NewExitError(ExitFailure, failure.Message)
	}
	return nil
}

func printRunText(w io.Writer, result RunResult) {
	fmt.Fprintf(w, "Session: %s\n\n", result.SessionID)
	for _, s := range result.Steps {
		if s.Rejected != "" {
			fmt.Fprintf(w, "  ✗ %-16s rejected: %s\n", s.Action, s.Rejected)
			continue
		}
		fmt.Fprintf(w, "  [%d] %-16s -> %s\n", s.Seq, s.Action, s.OutputCase)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "State hash: %s\n", result.StateHash)
	if result.Rejected > 0 {
		fmt.Fprintf(w, "✗ %d command(s) rejected\n", result.Rejected)
		return
	}
	fmt.Fprintf(w, "✓ %d command(s) journaled\n", len(result.Steps))
}
