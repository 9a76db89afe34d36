package compiler

import (
	"errors"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spikeclust/internal/ir"
)

func compileString(t *testing.T, src string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src, cue.Filename("fields.cue"))
	require.NoError(t, v.Err())
	return v
}

func TestCompileFieldBasic(t *testing.T) {
	v := compileString(t, `field: group: default: "unsorted"`)

	spec, err := CompileField(v.LookupPath(cue.ParsePath("field.group")))
	require.NoError(t, err)

	assert.Equal(t, "group", spec.Name)
	assert.Equal(t, ir.IRString("unsorted"), spec.Default)
}

func TestCompileFieldsDeclarationOrder(t *testing.T) {
	v := compileString(t, `
		field: quality: {
			default: 0
			doc:     "operator rating"
		}
		field: group: default: "unsorted"
		field: good: default: false
		field: tags: default: ["a", "b"]
		field: extra: default: {depth: 3, note: "x"}
	`)

	specs, err := CompileFields(v)
	require.NoError(t, err)

	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"quality", "group", "good", "tags", "extra"}, names)

	assert.Equal(t, ir.IRInt(0), specs[0].Default)
	assert.Equal(t, ir.IRBool(false), specs[2].Default)
	assert.Equal(t, ir.IRArray{ir.IRString("a"), ir.IRString("b")}, specs[3].Default)
	assert.Equal(t, ir.IRObject{"depth": ir.IRInt(3), "note": ir.IRString("x")}, specs[4].Default)
}

func TestCompileFieldsNone(t *testing.T) {
	specs, err := CompileFields(compileString(t, `other: 1`))
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestCompileFieldErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"missing default", `field: group: doc: "no default"`, "default"},
		{"float default", `field: score: default: 1.5`, "default"},
		{"null default", `field: group: default: null`, "default"},
		{"nested float", `field: group: default: [1, 2.5]`, "default[1]"},
		{"incomplete default", `field: group: default: int`, "default"},
		{"unknown attribute", `field: group: {default: 1, kind: "x"}`, "kind"},
		{"doc not string", `field: group: {default: 1, doc: 3}`, "doc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := compileString(t, tt.src)
			_, err := CompileFields(v)
			require.Error(t, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce), "want *CompileError, got %T", err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileErrorPosition(t *testing.T) {
	v := compileString(t, "field: score: {\n\tdefault: 1.5\n}\n")

	_, err := CompileFields(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fields.cue:2:")
}
