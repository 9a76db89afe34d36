// Package clustering implements the undoable spike partition engine.
//
// A Clustering owns the assignment of N spikes to cluster ids together with
// the derived spikes-per-cluster index. Merge, Split, and Assign restructure
// the partition; Undo and Redo walk the engine's own history. Every
// transition is described by an ir.UpdateInfo delivered synchronously to
// subscribers before the mutating call returns.
//
// INVARIANTS:
//   - The cluster id set is exactly the set of ids labelling at least one spike
//   - Ids are never reused: every allocation is strictly greater than every
//     id previously allocated, including ids later removed by undo
//   - The next-id counter advances only on committed allocations and is never
//     decremented
//   - A failed call changes nothing and emits nothing
//   - Mutations from inside a change callback fail with ReentrantMutation
//
// The engine performs no I/O and is not safe for concurrent use.
package clustering
