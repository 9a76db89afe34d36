// Package store provides SQLite-backed durable storage for spikeclust
// command journals.
//
// The store implements an append-only log with:
//   - Sessions: the initial assignment and field declarations of a session
//   - Invocations: operator commands
//   - Completions: command outcomes, each with the resulting state hash
//
// The partition and metadata engines never persist themselves; the session
// engine writes through this package when a journal is configured, and
// replay rebuilds state by re-running the journal.
//
// # Ordering
//
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - All queries MUST include: ORDER BY seq ASC, id ASC COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// All content-addressed IDs are computed via functions in internal/ir/hash.go
// using RFC 8785 canonical JSON and SHA-256 with domain separation.
package store
