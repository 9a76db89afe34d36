// Package ir provides the shared record types for spikeclust.
//
// This package contains type definitions and their pure helpers only. All
// other internal packages import ir; ir imports nothing internal. This keeps
// the change records and value types the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - Change records are immutable once delivered; use Clone before mutating
//   - Cluster id and spike id slices are always sorted ascending
//   - NO float types in metadata values - use int64 for numbers
//   - All JSON tags use snake_case
//   - Logical clocks (seq) only, never wall-clock timestamps
package ir
