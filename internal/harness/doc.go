// Package harness runs curation scenarios against the session engine.
//
// A scenario is a YAML file naming an initial spike assignment, the
// metadata fields to declare (CUE files or inline), a flow of operator
// commands with expected outcomes, and assertions on the resulting trace and
// final state. Every scenario runs against a real engine.Engine.
//
// # Determinism
//
// The harness uses:
//   - A fixed session token (scenario.session_id or DefaultSessionID)
//   - The engine's logical clock, starting at zero
//   - A fresh in-memory journal per run, unless WithJournal is given
//
// After the flow, the journal is replayed on a fresh engine and every
// recomputed completion must match the journaled one. Identical scenarios
// therefore produce identical traces, which makes golden comparison
// (RunWithGolden) meaningful.
//
// # State tables
//
// final_state assertions select one row from a table built from the final
// engine state: partition, clusters, metadata, fields. See TablePartition.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/merge_undo.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
