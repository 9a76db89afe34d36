package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/spikeclust/internal/compiler"
	"github.com/roach88/spikeclust/internal/engine"
	"github.com/roach88/spikeclust/internal/ir"
)

// Journal is where a scenario's session is recorded and read back from.
// Implemented by *engine.MemoryJournal and *store.Store.
type Journal interface {
	engine.Journal
	engine.SessionLog
}

// Harness runs scenarios against the real session engine with a fixed
// session token, so the same scenario always produces the same trace.
type Harness struct {
	journal Journal
	logger  *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithJournal records the scenario session to j instead of a fresh
// in-memory journal.
func WithJournal(j Journal) Option {
	return func(h *Harness) {
		if j != nil {
			h.journal = j
		}
	}
}

// WithLogger sets the logger handed to the engine.
// Default: logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
//  1. Compile CUE field declarations and inline fields
//  2. Open a session on the scenario's assignment
//  3. Execute setup steps (each must succeed)
//  4. Execute flow steps, checking expect clauses
//  5. Read the trace back from the journal
//  6. Replay the journal and compare state hashes
//  7. Evaluate assertions against trace and final state
//
// The returned error is non-nil only when the scenario could not run;
// failed expectations are reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.journal == nil {
		h.journal = engine.NewMemoryJournal()
	}
	return h.run(context.Background(), scenario)
}

func (h *Harness) run(ctx context.Context, scenario *Scenario) (*Result, error) {
	fields, err := LoadFields(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to load fields: %w", err)
	}

	sessionID := scenario.sessionID()
	eng, err := engine.New(ctx,
		scenario.InitialAssignment(),
		fields,
		engine.NewFixedGenerator(sessionID),
		engine.WithJournal(h.journal),
		engine.WithLogger(h.logger),
		engine.WithPropagation(scenario.Propagate),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	result := NewResult()
	result.SessionID = sessionID

	if err := h.executeSetup(ctx, eng, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, eng, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	invs, comps, err := h.journal.ReadSessionLog(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	result.Trace = buildTrace(invs, comps)

	result.StateHash, err = eng.StateHash()
	if err != nil {
		return nil, fmt.Errorf("failed to hash final state: %w", err)
	}
	h.checkReplay(ctx, sessionID, result)

	result.State = stateTables(eng)
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

// LoadFields compiles the scenario's CUE files and inline fields, in that
// order, and validates the combined declarations.
func LoadFields(scenario *Scenario) ([]ir.FieldSpec, error) {
	var fields []ir.FieldSpec
	cctx := cuecontext.New()
	for _, path := range scenario.Specs {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		v := cctx.CompileBytes(data, cue.Filename(path))
		specs, err := compiler.CompileFields(v)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", path, err)
		}
		fields = append(fields, specs...)
	}

	inline, err := scenario.fieldSpecs()
	if err != nil {
		return nil, err
	}
	fields = append(fields, inline...)

	if errs := compiler.Validate(fields); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid fields: %s", strings.Join(msgs, "; "))
	}
	return fields, nil
}

// executeSetup runs all setup steps. Any outcome other than Success aborts
// the scenario.
func (h *Harness) executeSetup(ctx context.Context, eng *engine.Engine, setup []ActionStep) error {
	for i, step := range setup {
		args, err := convertArgs(step.Args)
		if err != nil {
			return fmt.Errorf("setup step %d: failed to convert args: %w", i, err)
		}

		comp, err := eng.Invoke(ctx, ir.ActionRef(step.Action), args)
		if err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Action, err)
		}
		if comp.OutputCase != ir.OutputSuccess {
			return fmt.Errorf("setup step %d (%s): completed with %s: %v",
				i, step.Action, comp.OutputCase, comp.Result["message"])
		}

		h.logger.Info("setup step completed",
			"step", i,
			"action", step.Action,
			"completion_id", comp.ID,
		)
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses.
//
// A command the engine refuses before journaling (unknown action, malformed
// args) is a scenario failure, not a run error. Journal failures abort.
func (h *Harness) executeFlow(ctx context.Context, eng *engine.Engine, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		args, err := convertArgs(step.Args)
		if err != nil {
			return fmt.Errorf("flow step %d: failed to convert args: %w", i, err)
		}

		comp, err := eng.Invoke(ctx, ir.ActionRef(step.Invoke), args)
		if err != nil {
			if engine.IsJournalError(err) {
				return fmt.Errorf("flow step %d (%s): %w", i, step.Invoke, err)
			}
			result.AddError(fmt.Sprintf("flow[%d] %s: rejected: %v", i, step.Invoke, err))
			continue
		}

		if step.Expect != nil {
			for _, msg := range checkExpect(comp, step.Expect) {
				result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Invoke, msg))
			}
		}

		h.logger.Info("flow step completed",
			"step", i,
			"action", step.Invoke,
			"completion_id", comp.ID,
			"output_case", comp.OutputCase,
		)
	}
	return nil
}

// checkExpect compares a completion against an expect clause.
func checkExpect(comp ir.Completion, expect *ExpectClause) []string {
	var msgs []string
	if comp.OutputCase != expect.Case {
		msgs = append(msgs, fmt.Sprintf("expected case %s, got %s (%v)",
			expect.Case, comp.OutputCase, comp.Result["message"]))
	}
	if len(expect.Result) > 0 {
		actual := ir.ValueToAny(comp.Result)
		for _, key := range sortedKeys(expect.Result) {
			got, ok := actual.(map[string]any)[key]
			if !ok {
				msgs = append(msgs, fmt.Sprintf("result field %q missing", key))
				continue
			}
			if !valuesEqual(got, expect.Result[key]) {
				msgs = append(msgs, fmt.Sprintf("result field %q = %v, expected %v", key, got, expect.Result[key]))
			}
		}
	}
	return msgs
}

// checkReplay rebuilds the session from the journal and records any
// divergence as a scenario error.
func (h *Harness) checkReplay(ctx context.Context, sessionID string, result *Result) {
	rr, err := engine.Replay(ctx, h.journal, sessionID, engine.WithLogger(h.logger))
	if err != nil {
		result.AddError(fmt.Sprintf("replay: %v", err))
		return
	}
	for _, m := range rr.Mismatches {
		result.AddError(fmt.Sprintf("replay: seq %d %s: %s want %s, got %s", m.Seq, m.Action, m.Field, m.Want, m.Got))
	}
	if rr.Pending > 0 {
		result.AddError(fmt.Sprintf("replay: %d invocations without completion", rr.Pending))
	}
	if rr.FinalStateHash != result.StateHash {
		result.AddError(fmt.Sprintf("replay: final state hash %s, live session %s", rr.FinalStateHash, result.StateHash))
	}
}

// buildTrace merges invocations and completions in seq order. Completions
// carry the action of their invocation.
func buildTrace(invs []ir.Invocation, comps []ir.Completion) []TraceEvent {
	actions := make(map[string]string, len(invs))
	trace := make([]TraceEvent, 0, len(invs)+len(comps))
	for _, inv := range invs {
		actions[inv.ID] = string(inv.Action)
		trace = append(trace, TraceEvent{
			Type:   EventInvocation,
			Action: string(inv.Action),
			Args:   ir.ValueToAny(inv.Args),
			Seq:    inv.Seq,
		})
	}
	for _, comp := range comps {
		trace = append(trace, TraceEvent{
			Type:       EventCompletion,
			Action:     actions[comp.InvocationID],
			OutputCase: comp.OutputCase,
			Result:     ir.ValueToAny(comp.Result),
			Seq:        comp.Seq,
		})
	}
	sort.SliceStable(trace, func(i, j int) bool {
		return trace[i].Seq < trace[j].Seq
	})
	return trace
}

// convertArgs converts YAML-decoded arguments to an IRObject.
func convertArgs(args map[string]any) (ir.IRObject, error) {
	if args == nil {
		return ir.IRObject{}, nil
	}
	plain, ok := normalizeYAML(args).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("args must be a mapping")
	}
	return ir.ObjectFromMap(plain)
}

// normalizeYAML rewrites mappings with non-string keys, which yaml.v3
// produces for cluster-id keyed objects, to string-keyed maps.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalizeYAML(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[fmt.Sprint(k)] = normalizeYAML(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalizeYAML(e)
		}
		return out
	default:
		return v
	}
}
