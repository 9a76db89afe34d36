package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spikeclust/internal/ir"
)

// writeScenario writes content to dir/test.yaml and returns the path.
func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// createFieldSpec writes a CUE field declaration file under dir/fields.
func createFieldSpec(t *testing.T, dir, name, content string) string {
	t.Helper()
	fieldsDir := filepath.Join(dir, "fields")
	require.NoError(t, os.MkdirAll(fieldsDir, 0755))
	path := filepath.Join(fieldsDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalScenario = `
name: test_scenario
description: "Test scenario for validation"
assignment: [0, 0, 1]
flow:
  - invoke: cluster.merge
    args:
      clusters: [0, 1]
assertions:
  - type: trace_contains
    action: cluster.merge
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), minimalScenario)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, []int64{0, 0, 1}, scenario.Assignment)
	assert.Len(t, scenario.Flow, 1)
	assert.Len(t, scenario.Assertions, 1)
	assert.Equal(t, "cluster.merge", scenario.Flow[0].Invoke)
	assert.Equal(t, []any{0, 1}, scenario.Flow[0].Args["clusters"])
	assert.Equal(t, DefaultSessionID, scenario.sessionID())
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "name: [unclosed")

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: d
flow: [{invoke: cluster.undo, args: {}}]
assertions: [{type: trace_count, action: cluster.undo, count: 1}]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: n
flow: [{invoke: cluster.undo, args: {}}]
assertions: [{type: trace_count, action: cluster.undo, count: 1}]
`,
			wantErr: "description is required",
		},
		{
			name: "missing flow",
			content: `
name: n
description: d
assertions: [{type: trace_count, action: cluster.undo, count: 1}]
`,
			wantErr: "flow list is required",
		},
		{
			name: "missing assertions",
			content: `
name: n
description: d
flow: [{invoke: cluster.undo, args: {}}]
`,
			wantErr: "assertions list is required",
		},
		{
			name: "negative assignment",
			content: `
name: n
description: d
assignment: [0, -1]
flow: [{invoke: cluster.undo, args: {}}]
assertions: [{type: trace_count, action: cluster.undo, count: 1}]
`,
			wantErr: "assignment[1]: negative cluster id -1",
		},
		{
			name: "field file not found",
			content: `
name: n
description: d
specs: [missing.cue]
flow: [{invoke: cluster.undo, args: {}}]
assertions: [{type: trace_count, action: cluster.undo, count: 1}]
`,
			wantErr: "field file not found",
		},
		{
			name: "field without default",
			content: `
name: n
description: d
fields: [{name: good}]
flow: [{invoke: cluster.undo, args: {}}]
assertions: [{type: trace_count, action: cluster.undo, count: 1}]
`,
			wantErr: "fields[0]: default is required",
		},
		{
			name: "flow missing invoke",
			content: `
name: n
description: d
flow: [{args: {}}]
assertions: [{type: trace_count, action: cluster.undo, count: 1}]
`,
			wantErr: "flow[0]: invoke is required",
		},
		{
			name: "flow missing args",
			content: `
name: n
description: d
flow: [{invoke: cluster.undo}]
assertions: [{type: trace_count, action: cluster.undo, count: 1}]
`,
			wantErr: "flow[0]: args is required",
		},
		{
			name: "setup missing action",
			content: `
name: n
description: d
setup: [{args: {}}]
flow: [{invoke: cluster.undo, args: {}}]
assertions: [{type: trace_count, action: cluster.undo, count: 1}]
`,
			wantErr: "setup[0]: action is required",
		},
		{
			name: "expect missing case",
			content: `
name: n
description: d
flow: [{invoke: cluster.undo, args: {}, expect: {result: {history: undo}}}]
assertions: [{type: trace_count, action: cluster.undo, count: 1}]
`,
			wantErr: "flow[0].expect: case is required",
		},
		{
			name: "negative trace count",
			content: `
name: n
description: d
flow: [{invoke: cluster.undo, args: {}}]
assertions: [{type: trace_count, action: cluster.undo, count: -1}]
`,
			wantErr: "count must be non-negative",
		},
		{
			name: "unknown state table",
			content: `
name: n
description: d
flow: [{invoke: cluster.undo, args: {}}]
assertions: [{type: final_state, table: spikes, expect: {n: 1}}]
`,
			wantErr: `unknown state table "spikes"`,
		},
		{
			name: "final state without expect",
			content: `
name: n
description: d
flow: [{invoke: cluster.undo, args: {}}]
assertions: [{type: final_state, table: partition}]
`,
			wantErr: "expect is required for final_state",
		},
		{
			name: "unknown assertion type",
			content: `
name: n
description: d
flow: [{invoke: cluster.undo, args: {}}]
assertions: [{type: trace_exists, action: cluster.undo}]
`,
			wantErr: `unknown assertion type "trace_exists"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), tt.content)

			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_UnknownFieldsRejected(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: n
description: d
flow: [{invoke: cluster.undo, args: {}}]
assertion: [{type: trace_count, action: cluster.undo, count: 1}]
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion")
}

func TestLoadScenario_SpecPathsRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	createFieldSpec(t, dir, "curation.cue", `field: good: default: false`)
	path := writeScenario(t, dir, `
name: n
description: d
specs: [fields/curation.cue]
flow: [{invoke: cluster.undo, args: {}}]
assertions: [{type: trace_count, action: cluster.undo, count: 1}]
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "fields", "curation.cue")}, scenario.Specs)
}

func TestLoadScenarioWithBasePath_AbsoluteSpecPath(t *testing.T) {
	dir := t.TempDir()
	specPath := createFieldSpec(t, dir, "curation.cue", `field: good: default: false`)
	path := writeScenario(t, dir, `
name: n
description: d
specs: [`+specPath+`]
flow: [{invoke: cluster.undo, args: {}}]
assertions: [{type: trace_count, action: cluster.undo, count: 1}]
`)

	scenario, err := LoadScenarioWithBasePath(path, "/somewhere/else")
	require.NoError(t, err)
	assert.Equal(t, []string{specPath}, scenario.Specs)
}

func TestLoadScenario_TraceCountZeroAllowed(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: n
description: d
flow: [{invoke: cluster.undo, args: {}}]
assertions: [{type: trace_count, action: cluster.redo, count: 0}]
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, 0, scenario.Assertions[0].Count)
}

func TestScenarioFieldSpecs(t *testing.T) {
	s := &Scenario{Fields: []FieldDecl{
		{Name: "group", Default: "unsorted"},
		{Name: "quality", Default: 0},
		{Name: "tags", Default: []any{"a"}},
	}}

	specs, err := s.fieldSpecs()
	require.NoError(t, err)
	assert.Equal(t, []ir.FieldSpec{
		{Name: "group", Default: ir.IRString("unsorted")},
		{Name: "quality", Default: ir.IRInt(0)},
		{Name: "tags", Default: ir.IRArray{ir.IRString("a")}},
	}, specs)

	s.Fields = []FieldDecl{{Name: "ratio", Default: 0.5}}
	_, err = s.fieldSpecs()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestLoadExampleScenarios(t *testing.T) {
	paths, err := filepath.Glob("../../testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.NotEmpty(t, scenario.Flow)
			assert.NotEmpty(t, scenario.Assertions)
		})
	}
}

func TestScenarioCommands(t *testing.T) {
	s := mergeScenario()
	s.Setup = []ActionStep{
		{Action: "meta.import", Args: map[string]any{"field": "good", "values": map[any]any{0: true}}},
	}

	cmds, err := s.Commands()
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, ir.ActionImport, cmds[0].Action)
	assert.Equal(t, ir.IRObject{"0": ir.IRBool(true)}, cmds[0].Args["values"])
	assert.Equal(t, ir.ActionMerge, cmds[1].Action)
	assert.Equal(t, ir.IRArray{ir.IRInt(0), ir.IRInt(1)}, cmds[1].Args["clusters"])
	assert.Equal(t, []ir.ClusterID{0, 0, 1, 2}, s.InitialAssignment())

	s.Flow[0].Args = map[string]any{"clusters": []any{0.5}}
	_, err = s.Commands()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow[0]")
}
