package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/spikeclust/internal/compiler"
	"github.com/roach88/spikeclust/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Fields []string                   `json:"fields,omitempty"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <fields-dir>",
		Short: "Validate metadata field declarations",
		Long: `Validate the CUE metadata field declarations in a directory.

Every entry under the top-level "field" struct must carry a concrete
default (no floats, no null) and an optional string doc. Names must be
lower_snake_case and unique.

Exit codes:
  0 - All declarations valid
  1 - One or more declarations invalid
  2 - Command error (directory not found, no CUE files, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, fieldsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loadResult, loadErrors := LoadFields(fieldsDir, LoadModeCollectAll)
	if loadResult == nil {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, fieldsDir)
	for _, f := range loadResult.Fields {
		formatter.VerboseLog("Compiled field: %s", f.Name)
	}

	validationErrors := loadErrorsToValidation(loadErrors)
	validationErrors = append(validationErrors, compiler.Validate(loadResult.Fields)...)
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	return outputValidateSuccess(formatter, loadResult.Fields)
}

// loadErrorsToValidation reports per-declaration compile errors in the
// same shape as compiler.Validate results.
func loadErrorsToValidation(errs []error) []compiler.ValidationError {
	var out []compiler.ValidationError
	for _, err := range errs {
		var loadErr *LoadError
		if !errors.As(err, &loadErr) {
			out = append(out, compiler.ValidationError{Field: "load", Message: err.Error(), Code: ErrCodeGeneric})
			continue
		}
		out = append(out, compiler.ValidationError{
			Field:   "load",
			Message: loadErr.Message,
			Code:    loadErr.Code,
			Line:    loadErr.Line(),
		})
	}
	return out
}

func outputValidateSuccess(formatter *OutputFormatter, fields []ir.FieldSpec) error {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Fields: names})
	}

	fmt.Fprintf(formatter.Writer, "✓ All fields valid (%d declared)\n", len(fields))
	return nil
}

// outputValidateError reports a command-level error (exit code 2).
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors reports invalid declarations (exit code 1).
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		if err := formatter.Report(ValidationResult{Valid: false, Errors: errs}, &CLIError{
			Code:    errs[0].Code,
			Message: errs[0].Message,
		}); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return failure
}

// ValidateFieldsDir validates all field declarations in a directory.
// The error is non-nil only when the directory could not be loaded.
func ValidateFieldsDir(fieldsDir string) ([]compiler.ValidationError, error) {
	loadResult, loadErrors := LoadFields(fieldsDir, LoadModeCollectAll)
	if loadResult == nil {
		return nil, loadErrors[0]
	}
	errs := loadErrorsToValidation(loadErrors)
	return append(errs, compiler.Validate(loadResult.Fields)...), nil
}
