package engine

import (
	"context"

	"github.com/roach88/spikeclust/internal/ir"
)

// Submit queues a command for the Run loop and waits for its completion.
// Thread-safe: may be called from any goroutine.
//
// Returns a stopped RuntimeError if the engine no longer accepts commands,
// or ctx.Err() if ctx ends first. A command whose ctx ended while queued is
// skipped by the Run loop.
func (e *Engine) Submit(ctx context.Context, action ir.ActionRef, args ir.IRObject) (ir.Completion, error) {
	req := request{
		ctx:    ctx,
		action: action,
		args:   args,
		reply:  make(chan response, 1),
	}
	if !e.queue.Enqueue(req) {
		return ir.Completion{}, NewStoppedError(e.session.ID, action)
	}

	select {
	case <-ctx.Done():
		return ir.Completion{}, ctx.Err()
	case resp := <-req.reply:
		return resp.completion, resp.err
	}
}

// QueueLen returns the number of submitted commands not yet run.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run starts the single-writer command loop.
// Blocks until ctx is cancelled or Stop() is called and the queue drained.
//
// CRITICAL: Must be called from exactly ONE goroutine, and Invoke must not
// be called directly while Run is active.
//
// ERROR HANDLING: Commands are independent. A command that fails to run is
// logged, its error is returned to the submitter, and the loop continues.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "session", e.session.ID)

	for {
		if req, ok := e.queue.TryDequeue(); ok {
			e.serve(req)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled", "session", e.session.ID)
			e.queue.Close()
			e.drain()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed, so this
			// case fires immediately from then on.
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed", "session", e.session.ID)
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Commands already submitted still run; Run returns once they are done.
func (e *Engine) Stop() {
	e.queue.Close()
}

// serve runs one request and replies to its submitter.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) serve(req request) {
	if err := req.ctx.Err(); err != nil {
		req.reply <- response{err: err}
		return
	}

	comp, err := e.Invoke(req.ctx, req.action, req.args)
	if err != nil {
		e.logger.Error("command failed",
			"session", e.session.ID,
			"action", req.action,
			"error", err,
		)
	}
	req.reply <- response{completion: comp, err: err}
}

// drain rejects every request still queued after the loop stopped.
func (e *Engine) drain() {
	for {
		req, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		req.reply <- response{err: NewStoppedError(e.session.ID, req.action)}
	}
}
