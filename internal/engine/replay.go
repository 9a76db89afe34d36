package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/spikeclust/internal/ir"
)

// Mismatch is one difference between a journaled completion and the
// completion produced by re-running its invocation.
type Mismatch struct {
	Seq    int64
	Action ir.ActionRef
	Field  string // "invocation_id", "output_case", "state_hash", "completion_id" or "error"
	Want   string
	Got    string
}

// ReplayResult summarizes a determinism check of one session.
type ReplayResult struct {
	SessionID      string
	Steps          int // commands re-run
	Pending        int // trailing invocations without a completion
	Mismatches     []Mismatch
	FinalStateHash string
}

// OK reports whether every re-run command matched its journaled completion.
func (r *ReplayResult) OK() bool {
	return len(r.Mismatches) == 0
}

// Replay rebuilds a session from its header and re-runs every journaled
// command in seq order against a fresh engine without a journal.
//
// Replay is a determinism check: the cores are pure functions of the
// initial state and the command sequence, so every recomputed invocation
// id, output case, state hash and completion id must equal the journaled
// one. Differences are reported, not returned as errors.
//
// An invocation without a completion means the process stopped mid-command;
// the log is treated as ending before it.
func Replay(ctx context.Context, log SessionLog, sessionID string, opts ...EngineOption) (*ReplayResult, error) {
	sess, err := log.ReadSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", sessionID, err)
	}
	invs, comps, err := log.ReadSessionLog(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", sessionID, err)
	}

	e, err := NewSession(ctx, sess, append(slices.Clone(opts), WithJournal(nil))...)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", sessionID, err)
	}

	byInvocation := make(map[string]ir.Completion, len(comps))
	for _, c := range comps {
		byInvocation[c.InvocationID] = c
	}

	res := &ReplayResult{SessionID: sessionID}
	for i, inv := range invs {
		want, ok := byInvocation[inv.ID]
		if !ok {
			res.Pending = len(invs) - i
			break
		}

		e.clock.reset(inv.Seq - 1)
		got, err := e.Invoke(ctx, inv.Action, inv.Args)
		res.Steps++
		if err != nil {
			res.Mismatches = append(res.Mismatches, Mismatch{
				Seq: inv.Seq, Action: inv.Action, Field: "error",
				Want: want.OutputCase, Got: err.Error(),
			})
			continue
		}

		check := func(field, w, g string) {
			if w != g {
				res.Mismatches = append(res.Mismatches, Mismatch{
					Seq: inv.Seq, Action: inv.Action, Field: field, Want: w, Got: g,
				})
			}
		}
		check("invocation_id", inv.ID, got.InvocationID)
		check("output_case", want.OutputCase, got.OutputCase)
		check("state_hash", want.StateHash, got.StateHash)
		check("completion_id", want.ID, got.ID)
	}

	res.FinalStateHash, err = e.StateHash()
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", sessionID, err)
	}

	e.logger.Info("replay finished",
		"session", sessionID,
		"steps", res.Steps,
		"pending", res.Pending,
		"mismatches", len(res.Mismatches),
	)
	return res, nil
}
