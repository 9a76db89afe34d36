package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/spikeclust/internal/clustering"
	"github.com/roach88/spikeclust/internal/ir"
	"github.com/roach88/spikeclust/internal/meta"
)

// SessionIDGenerator generates unique session ids.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type SessionIDGenerator interface {
	Generate() string
}

// Journal receives the session header and every invocation and completion.
// Implemented by *store.Store and *MemoryJournal. Writes must be idempotent.
type Journal interface {
	CreateSession(ctx context.Context, sess ir.Session) error
	WriteInvocation(ctx context.Context, inv ir.Invocation) error
	WriteCompletion(ctx context.Context, comp ir.Completion) error
}

// Engine is the single-writer command dispatcher of one operator session.
//
// Thread-safety model:
//   - Invoke(): must be called from exactly one goroutine at a time
//   - Submit(): safe from any goroutine while Run() is active
//   - Run(): must be called from exactly one goroutine
//
// Do not mix Invoke with a running Run loop; both touch the cores.
//
// INVARIANTS:
//   - Every journaled invocation is followed by exactly one completion,
//     unless the journal write of the completion itself fails
//   - Invocation seq < completion seq, both from the same Clock
//   - Completion.StateHash reflects the cores after the command
type Engine struct {
	session    ir.Session
	clustering *clustering.Clustering
	meta       *meta.ClusterMeta
	clock      *Clock
	journal    Journal
	logger     *slog.Logger
	propagate  bool
	queue      *commandQueue

	invoking bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithJournal records the session and every command to j.
func WithJournal(j Journal) EngineOption {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithLogger sets the logger for the engine and both cores.
// Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPropagation enables carrying metadata to the clusters produced by
// fresh merges, splits and assigns.
func WithPropagation(enabled bool) EngineOption {
	return func(e *Engine) {
		e.propagate = enabled
	}
}

// WithClock sets the clock used to stamp commands.
// Default: NewClock().
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// New starts a session on the given initial assignment with the given
// metadata fields. The session id comes from gen.
func New(
	ctx context.Context,
	assignment []ir.ClusterID,
	fields []ir.FieldSpec,
	gen SessionIDGenerator,
	opts ...EngineOption,
) (*Engine, error) {
	sess := ir.Session{
		ID:         gen.Generate(),
		Assignment: slices.Clone(assignment),
		Fields:     slices.Clone(fields),
	}
	return newEngine(ctx, sess, opts, true)
}

// NewSession rebuilds the initial state of a journaled session.
// The session's Propagate flag is the default; WithPropagation overrides it.
// The header is not written to the journal again.
func NewSession(ctx context.Context, sess ir.Session, opts ...EngineOption) (*Engine, error) {
	return newEngine(ctx, sess, append([]EngineOption{WithPropagation(sess.Propagate)}, opts...), false)
}

func newEngine(ctx context.Context, sess ir.Session, opts []EngineOption, create bool) (*Engine, error) {
	e := &Engine{
		clock:  NewClock(),
		logger: slog.Default(),
		queue:  newCommandQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}

	c, err := clustering.New(sess.Assignment, clustering.WithLogger(e.logger))
	if err != nil {
		return nil, fmt.Errorf("initial assignment: %w", err)
	}
	m := meta.New(meta.WithLogger(e.logger))
	for _, f := range sess.Fields {
		if err := m.AddField(f.Name, f.Default); err != nil {
			return nil, fmt.Errorf("declare field %q: %w", f.Name, err)
		}
	}

	sess.Assignment = slices.Clone(sess.Assignment)
	sess.Fields = slices.Clone(sess.Fields)
	sess.Propagate = e.propagate
	e.session = sess
	e.clustering = c
	e.meta = m

	if create && e.journal != nil {
		if err := e.journal.CreateSession(ctx, sess); err != nil {
			return nil, NewJournalError(sess.ID, "", err)
		}
	}

	e.logger.Info("session opened",
		"session", sess.ID,
		"spikes", c.NSpikes(),
		"clusters", c.NClusters(),
		"fields", len(sess.Fields),
		"propagate", e.propagate,
	)
	return e, nil
}

// Session returns the session header.
func (e *Engine) Session() ir.Session {
	s := e.session
	s.Assignment = slices.Clone(s.Assignment)
	s.Fields = slices.Clone(s.Fields)
	return s
}

// Clustering returns the partition engine for queries and subscriptions.
// Mutate it only through Invoke or Submit so every change is journaled.
func (e *Engine) Clustering() *clustering.Clustering {
	return e.clustering
}

// Meta returns the metadata store for queries and subscriptions.
// Mutate it only through Invoke or Submit so every change is journaled.
func (e *Engine) Meta() *meta.ClusterMeta {
	return e.meta
}

// Seq returns the clock position.
func (e *Engine) Seq() int64 {
	return e.clock.Current()
}

// StateHash fingerprints the current assignment and metadata.
func (e *Engine) StateHash() (string, error) {
	return ir.StateHash(e.clustering.SpikeClusters(), e.meta.Snapshot())
}

// Invoke runs one command synchronously and returns its completion.
//
// Domain failures (InvalidOperation, NothingToUndo, DuplicateField, ...)
// are NOT Go errors: they are reported through Completion.OutputCase and
// Result["message"], exactly as journaled. The returned error is non-nil
// only when the command could not be run at all:
//   - unknown action or malformed args (*ir.Error, nothing journaled)
//   - Invoke called from inside a change notification (*RuntimeError)
//   - journal write failure (*RuntimeError)
//
// The state hash and completion id are computed after the command has run.
// Both only fail on values canonical JSON refuses, which the cores reject
// on input; should they fail anyway, the invocation stays journaled without
// a completion and replay reports it as pending.
func (e *Engine) Invoke(ctx context.Context, action ir.ActionRef, args ir.IRObject) (ir.Completion, error) {
	if e.invoking {
		return ir.Completion{}, NewReentrantInvokeError(e.session.ID, action)
	}
	e.invoking = true
	defer func() { e.invoking = false }()

	if args == nil {
		args = ir.IRObject{}
	}
	run, err := e.parse(action, args)
	if err != nil {
		return ir.Completion{}, err
	}

	seq := e.clock.Next()
	invID, err := ir.InvocationID(e.session.ID, action, args, seq)
	if err != nil {
		return ir.Completion{}, fmt.Errorf("invoke %s: %w", action, err)
	}
	inv := ir.Invocation{
		ID:            invID,
		SessionID:     e.session.ID,
		Action:        action,
		Args:          args,
		Seq:           seq,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}

	e.logger.Debug("processing invocation",
		"id", inv.ID,
		"action", inv.Action,
		"session", inv.SessionID,
		"seq", inv.Seq,
	)

	if e.journal != nil {
		if err := e.journal.WriteInvocation(ctx, inv); err != nil {
			return ir.Completion{}, NewJournalError(e.session.ID, action, fmt.Errorf("write invocation %s: %w", inv.ID, err))
		}
	}

	result, runErr := run()
	outputCase := ir.OutputSuccess
	if runErr != nil {
		code := ir.CodeOf(runErr)
		if code == "" {
			return ir.Completion{}, fmt.Errorf("invoke %s: %w", action, runErr)
		}
		outputCase = string(code)
		result = errorResult(runErr)
	}

	stateHash, err := e.StateHash()
	if err != nil {
		return ir.Completion{}, fmt.Errorf("invoke %s: %w", action, err)
	}
	compSeq := e.clock.Next()
	compID, err := ir.CompletionID(inv.ID, outputCase, result, compSeq)
	if err != nil {
		return ir.Completion{}, fmt.Errorf("invoke %s: %w", action, err)
	}
	comp := ir.Completion{
		ID:           compID,
		InvocationID: inv.ID,
		OutputCase:   outputCase,
		Result:       result,
		Seq:          compSeq,
		StateHash:    stateHash,
	}

	if e.journal != nil {
		if err := e.journal.WriteCompletion(ctx, comp); err != nil {
			return ir.Completion{}, NewJournalError(e.session.ID, action, fmt.Errorf("write completion %s: %w", comp.ID, err))
		}
	}

	e.logger.Info("command completed",
		"action", action,
		"session", e.session.ID,
		"seq", seq,
		"output_case", outputCase,
	)
	return comp, nil
}

// errorResult converts a domain error to the completion result.
func errorResult(err error) ir.IRObject {
	code := ir.CodeOf(err)
	var e *ir.Error
	result := ir.IRObject{"message": ir.IRString(err.Error())}
	if errors.As(err, &e) {
		result["message"] = ir.IRString(e.Message)
		if len(e.Details) > 0 {
			details := make(ir.IRObject, len(e.Details))
			for k, v := range e.Details {
				details[k] = ir.IRString(v)
			}
			result["details"] = details
		}
	}
	result["code"] = ir.IRString(code)
	return result
}

// afterPartition converts a partition record to the completion result and,
// when enabled, propagates metadata across a fresh transition.
func (e *Engine) afterPartition(up *ir.UpdateInfo) ir.IRObject {
	result := up.ToIR()
	if !e.propagate {
		return result
	}

	propagated := ir.IRArray{}
	if up.History == ir.HistoryNone {
		changes, err := e.meta.SetFromDescendants(up.Descendants)
		if err != nil {
			// The partition change already happened; record it as is.
			e.logger.Error("metadata propagation failed",
				"session", e.session.ID,
				"error", err,
			)
		}
		for i := range changes {
			propagated = append(propagated, changes[i].ToIR())
		}
	}
	result["propagated"] = propagated
	return result
}
