package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/spikeclust/internal/engine"
	"github.com/roach88/spikeclust/internal/ir"
)

// State table names for final_state assertions.
//
//   - partition: one row {cluster_ids, n_clusters, n_spikes, assignment,
//     next_cluster_id, can_undo, can_redo}
//   - clusters: one row per cluster {cluster_id, n_spikes, spikes}
//   - metadata: one row per field and existing cluster
//     {field, cluster_id, value, stored}
//   - fields: one row per field {field, default, stored}
const (
	TablePartition = "partition"
	TableClusters  = "clusters"
	TableMetadata  = "metadata"
	TableFields    = "fields"
)

func isStateTable(name string) bool {
	switch name {
	case TablePartition, TableClusters, TableMetadata, TableFields:
		return true
	}
	return false
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			if event.Type == EventInvocation {
				fmt.Fprintf(&buf, "  [%d] %s %v\n", i+1, event.Action, event.Args)
			} else {
				fmt.Fprintf(&buf, "  [%d]   -> %s\n", i+1, event.OutputCase)
			}
		}
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains an invocation matching
// the specified action and args (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type == EventInvocation && event.Action == assertion.Action {
			if matchArgs(event.Args, assertion.Args) {
				return nil
			}
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", assertion.Action, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive, and a repeated action matches its
// next occurrence after the previous match.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for _, action := range assertion.Actions {
		found := false
		for pos < len(trace) {
			event := trace[pos]
			pos++
			if event.Type == EventInvocation && event.Action == action {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual:   fmt.Sprintf("no %s after position %d", action, pos),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the action appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventInvocation && event.Action == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState selects exactly one row of a state table with the
// assertion's where clause and checks the expected values (subset match).
func assertFinalState(state map[string][]map[string]any, assertion Assertion) error {
	rows, ok := state[assertion.Table]
	if !ok {
		return fmt.Errorf("unknown state table %q", assertion.Table)
	}

	var matched []map[string]any
	for _, row := range rows {
		if matchArgs(row, assertion.Where) {
			matched = append(matched, row)
		}
	}

	whereDesc := formatWhereClause(assertion.Where)
	switch len(matched) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   fmt.Sprintf("%d rows matched (assertion is ambiguous)", len(matched)),
		}
	}

	row := matched[0]
	for _, key := range sortedKeys(assertion.Expect) {
		expectedValue := assertion.Expect[key]
		actualValue, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in %s rows: %v", key, assertion.Table, sortedKeys(row)),
			}
		}
		if !valuesEqual(actualValue, expectedValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s where %s: field %q = %v", assertion.Table, whereDesc, key, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v", key, actualValue),
			}
		}
	}

	return nil
}

// formatWhereClause creates a human-readable description of row filters.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// matchArgs checks if actual contains all expected keys with equal values
// (subset match). Extra keys in actual are ignored.
func matchArgs(actual any, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}

	actualMap, ok := actual.(map[string]any)
	if !ok {
		return false
	}

	for key, expectedVal := range expected {
		actualVal, exists := actualMap[key]
		if !exists || !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares a trace or state value with a YAML-decoded
// expectation. Both sides are brought to the IR's plain form first, so an
// int from YAML equals an int64 from the engine.
func valuesEqual(actual, expected any) bool {
	return reflect.DeepEqual(plainValue(actual), plainValue(expected))
}

// plainValue converts v to the plain form of ir.ValueToAny. Values that
// are not valid IR (null, floats) are returned unchanged.
func plainValue(v any) any {
	irVal, err := ir.ValueFromAny(normalizeYAML(v))
	if err != nil {
		return v
	}
	return ir.ValueToAny(irVal)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stateTables captures the final engine state as queryable rows.
func stateTables(eng *engine.Engine) map[string][]map[string]any {
	c := eng.Clustering()
	m := eng.Meta()
	ids := c.ClusterIDs()

	partition := map[string]any{
		"cluster_ids":     ir.ValueToAny(ir.IDsToIR(ids)),
		"n_clusters":      int64(c.NClusters()),
		"n_spikes":        int64(c.NSpikes()),
		"assignment":      ir.ValueToAny(ir.IDsToIR(c.SpikeClusters())),
		"next_cluster_id": int64(c.NewClusterID()),
		"can_undo":        c.CanUndo(),
		"can_redo":        c.CanRedo(),
	}

	clusters := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		spikes := c.SpikesInCluster(id)
		clusters = append(clusters, map[string]any{
			"cluster_id": int64(id),
			"n_spikes":   int64(len(spikes)),
			"spikes":     ir.ValueToAny(ir.IntsToIR(spikes)),
		})
	}

	var metadata, fields []map[string]any
	for _, snap := range m.Snapshot() {
		fields = append(fields, map[string]any{
			"field":   snap.Name,
			"default": ir.ValueToAny(snap.Default),
			"stored":  int64(len(snap.Values)),
		})
		for _, id := range ids {
			v, stored := snap.Values[id]
			if !stored {
				v = snap.Default
			}
			metadata = append(metadata, map[string]any{
				"field":      snap.Name,
				"cluster_id": int64(id),
				"value":      ir.ValueToAny(v),
				"stored":     stored,
			})
		}
	}

	return map[string][]map[string]any{
		TablePartition: {partition},
		TableClusters:  clusters,
		TableMetadata:  metadata,
		TableFields:    fields,
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.State, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
