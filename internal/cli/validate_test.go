package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spikeclust/internal/compiler"
)

// writeFieldsDir writes a single CUE file into a fresh directory.
func writeFieldsDir(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fields.cue"), []byte(content), 0644))
	return dir
}

func executeValidate(t *testing.T, format string, verbose bool, dir string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format, Verbose: verbose})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{dir})
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestValidateValidFields(t *testing.T) {
	out, _, err := executeValidate(t, "text", false, filepath.Join("..", "..", "testdata", "fields"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All fields valid (2 declared)")
}

func TestValidateValidFieldsJSON(t *testing.T) {
	out, _, err := executeValidate(t, "json", false, filepath.Join("..", "..", "testdata", "fields"))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, []string{"group", "quality"}, resp.Data.Fields)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, _, err := executeValidate(t, "text", false, "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, _, err := executeValidate(t, "text", false, t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
	assert.Contains(t, out, "no CUE files found")
}

func TestValidateInvalidFields(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantCode string
	}{
		{"missing default", `field: group: doc: "classification"`, ErrCodeInvalidDefault},
		{"float default", `field: score: default: 0.5`, ErrCodeInvalidDefault},
		{"nested null", `field: tags: default: ["a", null]`, ErrCodeInvalidDefault},
		{"doc not string", `field: group: {default: "x", doc: 1}`, ErrCodeInvalidDoc},
		{"unknown attribute", `field: group: {default: "x", kind: "enum"}`, ErrCodeUnknownAttribute},
		{"invalid name", `field: Group: default: "x"`, compiler.ErrFieldNameInvalid},
		{"no declarations", `other: 1`, ErrCodeNoFields},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeFieldsDir(t, "package fields\n\n"+tt.src+"\n")

			out, _, err := executeValidate(t, "text", false, dir)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, err.Error(), "validation failed")
			assert.Contains(t, out, "✗ Validation failed")
			assert.Contains(t, out, tt.wantCode)
		})
	}
}

func TestValidateInvalidFieldsJSON(t *testing.T) {
	dir := writeFieldsDir(t, `package fields

field: score: default: 0.5
`)

	out, _, err := executeValidate(t, "json", false, dir)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  CLIError         `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, ErrCodeInvalidDefault, resp.Error.Code)
	assert.Equal(t, 3, resp.Data.Errors[0].Line)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	dir := writeFieldsDir(t, `package fields

field: group: default: "unsorted"
field: score: default: 0.5
field: note: doc: "free text"
field: Bad: default: 1
`)

	errs, err := ValidateFieldsDir(dir)
	require.NoError(t, err)
	require.Len(t, errs, 3)

	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	assert.Equal(t, []string{ErrCodeInvalidDefault, ErrCodeInvalidDefault, compiler.ErrFieldNameInvalid}, codes)
}

func TestValidateVerboseOutput(t *testing.T) {
	out, errOut, err := executeValidate(t, "json", true, filepath.Join("..", "..", "testdata", "fields"))
	require.NoError(t, err)

	assert.Contains(t, errOut, "Found 1 CUE file(s)")
	assert.Contains(t, errOut, "Compiled field: group")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "verbose logs must not corrupt JSON")
}

func TestValidateFieldsDirNonExistent(t *testing.T) {
	_, err := ValidateFieldsDir("/nonexistent")
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := map[string]string{
		"default":           ErrCodeInvalidDefault,
		"default[1]":        ErrCodeInvalidDefault,
		"default.depth":     ErrCodeInvalidDefault,
		"doc":               ErrCodeInvalidDoc,
		"cue":               ErrCodeBuildFailed,
		"kind":              ErrCodeUnknownAttribute,
		"":                  ErrCodeGeneric,
		"defaults_are_here": ErrCodeUnknownAttribute,
	}
	for field, want := range tests {
		assert.Equal(t, want, MapFieldToErrorCode(field), field)
	}
}
