// Package engine implements the spikeclust session engine.
//
// A session bundles one partition engine (package clustering) and one
// metadata store (package meta) behind a single command API. Every command
// is an action name plus IRObject arguments; the engine stamps it with a
// logical sequence number, dispatches it to the right core, and produces a
// completion describing the outcome.
//
// ARCHITECTURE:
//
// Single-Writer Commands:
// Commands run one at a time. Invoke executes a command synchronously on the
// caller's goroutine. Run/Submit provide the same semantics for callers on
// other goroutines: Submit enqueues the command and Run executes it in FIFO
// order, so the cores are only ever touched by one goroutine.
//
// Command Flow:
//  1. Arguments are parsed; malformed args and unknown actions are returned
//     as Go errors and nothing is journaled
//  2. The invocation is stamped with Clock.Next() and journaled
//  3. The command runs against the cores; a domain error (NothingToUndo,
//     InvalidOperation, ...) becomes the completion's output case
//  4. With propagation enabled, fresh merges/splits/assigns carry metadata
//     to the new clusters via meta.SetFromDescendants
//  5. The completion is stamped with Clock.Next() and the state hash of the
//     assignment and metadata, and journaled
//
// # Logical clock
//
// Invocations and completions carry monotonic seq numbers from Clock.Next().
// NEVER use wall-clock timestamps for ordering.
//
// # Content-addressed identity
//
// Invocation and completion ids hash (session, action, args, seq) and
// (invocation, case, result, seq). Replay recomputes them and compares the
// state hash after every step.
package engine
