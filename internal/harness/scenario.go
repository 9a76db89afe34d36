package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/spikeclust/internal/ir"
)

// DefaultSessionID is the session token used when a scenario names none.
// Fixed so golden traces are reproducible.
const DefaultSessionID = "test-session-default"

// Scenario defines a curation test scenario: an initial partition, the
// metadata fields to declare, a flow of operator commands, and assertions on
// the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. Also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Assignment is the initial cluster id of every spike.
	Assignment []int64 `yaml:"assignment"`

	// Specs lists CUE field declaration files, relative to the scenario
	// file once loaded.
	Specs []string `yaml:"specs,omitempty"`

	// Fields declares metadata fields inline, after those of Specs.
	Fields []FieldDecl `yaml:"fields,omitempty"`

	// Propagate carries metadata to the clusters produced by fresh merges,
	// splits and assigns.
	Propagate bool `yaml:"propagate,omitempty"`

	// Setup contains commands run before the main flow.
	// Each must complete with Success.
	Setup []ActionStep `yaml:"setup,omitempty"`

	// Flow contains the commands under test with optional expectations.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`

	// SessionID is an optional fixed session token.
	// If empty, DefaultSessionID is used.
	SessionID string `yaml:"session_id,omitempty"`
}

// FieldDecl declares one metadata field inline.
type FieldDecl struct {
	Name    string `yaml:"name"`
	Default any    `yaml:"default"`
}

// ActionStep represents a single command invocation.
// Used in Setup sections to establish initial state.
type ActionStep struct {
	// Action is the command name (e.g., "cluster.merge").
	Action string `yaml:"action"`

	// Args contains the command arguments.
	Args map[string]any `yaml:"args"`
}

// FlowStep represents a step in the main test flow.
type FlowStep struct {
	// Invoke is the command name to invoke.
	Invoke string `yaml:"invoke"`

	// Args contains the command arguments.
	Args map[string]any `yaml:"args"`

	// Expect specifies the expected completion.
	// If nil, the completion is not checked.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected completion behavior.
type ExpectClause struct {
	// Case is the expected output case ("Success", "NothingToUndo", ...).
	Case string `yaml:"case"`

	// Result is a subset match on the completion result.
	// If nil, only the case is validated.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check action appears in trace with args
	// - "trace_order": Check actions appear in order
	// - "trace_count": Check action appears exactly N times
	// - "final_state": Select one row of a state table and check its values
	Type string `yaml:"type"`

	// Action is the command name (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are the expected arguments (trace_contains), subset match.
	Args map[string]any `yaml:"args,omitempty"`

	// Table is the state table name (final_state).
	Table string `yaml:"table,omitempty"`

	// Where selects exactly one row (final_state). All fields must match.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected row values (final_state), subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected action order (trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving field file paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve field file paths before validation
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, id := range s.Assignment {
		if id < 0 {
			return fmt.Errorf("assignment[%d]: negative cluster id %d", i, id)
		}
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("field file not found: %s", specPath)
		}
	}

	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("fields[%d]: name is required", i)
		}
		if f.Default == nil {
			return fmt.Errorf("fields[%d]: default is required", i)
		}
	}

	for i, step := range s.Setup {
		if step.Action == "" {
			return fmt.Errorf("setup[%d]: action is required", i)
		}
		if step.Args == nil {
			return fmt.Errorf("setup[%d]: args is required (use empty map if no args)", i)
		}
	}

	for i, step := range s.Flow {
		if step.Invoke == "" {
			return fmt.Errorf("flow[%d]: invoke is required", i)
		}
		if step.Args == nil {
			return fmt.Errorf("flow[%d]: args is required (use empty map if no args)", i)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if !isStateTable(a.Table) {
			return fmt.Errorf("assertions[%d]: unknown state table %q", index, a.Table)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// fieldSpecs converts the inline declarations to field specs.
func (s *Scenario) fieldSpecs() ([]ir.FieldSpec, error) {
	specs := make([]ir.FieldSpec, 0, len(s.Fields))
	for i, f := range s.Fields {
		def, err := ir.ValueFromAny(f.Default)
		if err != nil {
			return nil, fmt.Errorf("fields[%d] %q: %w", i, f.Name, err)
		}
		specs = append(specs, ir.FieldSpec{Name: f.Name, Default: def})
	}
	return specs, nil
}

// InitialAssignment converts the scenario assignment to cluster ids.
func (s *Scenario) InitialAssignment() []ir.ClusterID {
	ids := make([]ir.ClusterID, len(s.Assignment))
	for i, id := range s.Assignment {
		ids[i] = ir.ClusterID(id)
	}
	return ids
}

// Command is one engine command of a scenario.
type Command struct {
	Action ir.ActionRef
	Args   ir.IRObject
}

// Commands returns the setup steps followed by the flow steps as engine
// commands, with their arguments converted to IR.
func (s *Scenario) Commands() ([]Command, error) {
	cmds := make([]Command, 0, len(s.Setup)+len(s.Flow))
	for i, step := range s.Setup {
		args, err := convertArgs(step.Args)
		if err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
		cmds = append(cmds, Command{Action: ir.ActionRef(step.Action), Args: args})
	}
	for i, step := range s.Flow {
		args, err := convertArgs(step.Args)
		if err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
		cmds = append(cmds, Command{Action: ir.ActionRef(step.Invoke), Args: args})
	}
	return cmds, nil
}

func (s *Scenario) sessionID() string {
	if s.SessionID == "" {
		return DefaultSessionID
	}
	return s.SessionID
}
