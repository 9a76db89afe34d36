package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/spikeclust/internal/ir"
	"github.com/roach88/spikeclust/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	SessionID string
	Action    string // optional - filter to specific action
}

// TraceEvent represents a single event in the trace timeline.
type TraceEvent struct {
	Seq        int64          `json:"seq"`
	Type       string         `json:"type"` // "invocation" or "completion"
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Args       map[string]any `json:"args,omitempty"`
	OutputCase string         `json:"output_case,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	StateHash  string         `json:"state_hash,omitempty"`
}

// TraceSession is the journaled header of the traced session.
type TraceSession struct {
	Spikes    int      `json:"spikes"`
	Clusters  int      `json:"clusters"`
	Fields    []string `json:"fields"`
	Propagate bool     `json:"propagate"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	SessionID string       `json:"session_id"`
	Session   TraceSession `json:"session"`
	Timeline  []TraceEvent `json:"timeline"`
	Stats     TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	Invocations int            `json:"invocations"`
	Completions int            `json:"completions"`
	Pending     int            `json:"pending"`
	OutputCases map[string]int `json:"output_cases"`
	IsComplete  bool           `json:"is_complete"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the journaled command log of a session",
		Long: `Print the journaled invocations and completions of one session in
seq order, with the session header and summary statistics.

Every completion carries the action of its invocation, so --action keeps
both halves of the matching commands.

Examples:
  spikeclust trace --db ./curation.db --session 0190f1c2-...
  spikeclust trace --db ./curation.db --session 0190f1c2-... --action cluster.merge
  spikeclust trace --db ./curation.db --session 0190f1c2-... --format json -v`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "session id to trace (required)")
	_ = cmd.MarkFlagRequired("session")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter to specific action (e.g. cluster.merge)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	sess, err := st.ReadSession(ctx, opts.SessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.SessionID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	events, err := st.ReplaySession(ctx, opts.SessionID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session log", err)
	}
	pending, err := st.GetPendingInvocations(ctx, opts.SessionID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read pending invocations", err)
	}

	timeline := buildTimeline(events, opts.Action)
	result := TraceResult{
		SessionID: opts.SessionID,
		Session:   traceSession(sess),
		Timeline:  timeline,
		Stats:     traceStats(timeline, len(pending)),
	}

	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).ReportSession(result.SessionID, result, nil)
	}
	outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

func traceSession(sess ir.Session) TraceSession {
	clusters := make(map[ir.ClusterID]bool)
	for _, id := range sess.Assignment {
		clusters[id] = true
	}
	names := make([]string, len(sess.Fields))
	for i, f := range sess.Fields {
		names[i] = f.Name
	}
	return TraceSession{
		Spikes:    len(sess.Assignment),
		Clusters:  len(clusters),
		Fields:    names,
		Propagate: sess.Propagate,
	}
}

// buildTimeline converts journal events to timeline events.
// When actionFilter is set, only invocations of that action and their
// completions are kept.
func buildTimeline(events []store.SessionEvent, actionFilter string) []TraceEvent {
	timeline := []TraceEvent{}
	actions := make(map[string]ir.ActionRef)

	for _, event := range events {
		var te TraceEvent

		switch event.Type {
		case store.EventInvocation:
			inv := event.Invocation
			if inv == nil {
				continue
			}
			actions[inv.ID] = inv.Action
			te = TraceEvent{
				Seq:    event.Seq,
				Type:   event.Type.String(),
				ID:     inv.ID,
				Action: string(inv.Action),
				Args:   irObjectToMap(inv.Args),
			}

		case store.EventCompletion:
			comp := event.Completion
			if comp == nil {
				continue
			}
			te = TraceEvent{
				Seq:        event.Seq,
				Type:       event.Type.String(),
				ID:         comp.ID,
				Action:     string(actions[comp.InvocationID]),
				OutputCase: comp.OutputCase,
				Result:     irObjectToMap(comp.Result),
				StateHash:  comp.StateHash,
			}
		}

		if actionFilter != "" && te.Action != actionFilter {
			continue
		}
		timeline = append(timeline, te)
	}

	return timeline
}

func traceStats(timeline []TraceEvent, pending int) TraceStats {
	stats := TraceStats{
		TotalEvents: len(timeline),
		Pending:     pending,
		OutputCases: make(map[string]int),
		IsComplete:  pending == 0,
	}
	for _, e := range timeline {
		if e.Type == store.EventInvocation.String() {
			stats.Invocations++
			continue
		}
		stats.Completions++
		stats.OutputCases[e.OutputCase]++
	}
	return stats
}

// irObjectToMap converts an ir.IRObject to a plain map.
func irObjectToMap(obj ir.IRObject) map[string]any {
	if obj == nil {
		return nil
	}
	m, _ := ir.ValueToAny(obj).(map[string]any)
	return m
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Session: %s\n", result.SessionID)
	fmt.Fprintf(w, "Status: %s\n", completeStatus(result.Stats.IsComplete))
	fmt.Fprintf(w, "Initial state: %d spikes in %d clusters, fields %s, propagate %v\n",
		result.Session.Spikes, result.Session.Clusters,
		formatValue(toAnySlice(result.Session.Fields)), result.Session.Propagate)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, event := range result.Timeline {
		formatTimelineEvent(w, event, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Invocations:  %d\n", result.Stats.Invocations)
	fmt.Fprintf(w, "  Completions:  %d\n", result.Stats.Completions)
	fmt.Fprintf(w, "  Pending:      %d\n", result.Stats.Pending)
	cases := make([]string, 0, len(result.Stats.OutputCases))
	for c := range result.Stats.OutputCases {
		cases = append(cases, c)
	}
	sort.Strings(cases)
	for _, c := range cases {
		fmt.Fprintf(w, "  %-13s %d\n", c+":", result.Stats.OutputCases[c])
	}
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	switch event.Type {
	case "invocation":
		fmt.Fprintf(w, "  [%d] INV  %s %s\n", event.Seq, event.Action, formatArgs(event.Args))
		if verbose {
			fmt.Fprintf(w, "       ID: %s\n", truncateID(event.ID))
		}

	case "completion":
		fmt.Fprintf(w, "  [%d] COMP %s\n", event.Seq, event.OutputCase)
		if verbose && len(event.Result) > 0 {
			fmt.Fprintf(w, "       Result: %s\n", formatArgs(event.Result))
		}
		if verbose {
			fmt.Fprintf(w, "       ID: %s\n", truncateID(event.ID))
			fmt.Fprintf(w, "       State: %s\n", truncateID(event.StateHash))
		}
	}
}

// formatArgs formats a map of args for display with sorted keys.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(args[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single value for display, handling nested structures deterministically.
func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return formatArgs(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return val
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, e := range s {
		out[i] = e
	}
	return out
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

// completeStatus returns a human-readable completion status.
func completeStatus(isComplete bool) string {
	if isComplete {
		return "Complete"
	}
	return "Incomplete (pending invocation)"
}
