package compiler

import (
	"fmt"
	"regexp"

	"github.com/roach88/spikeclust/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// FieldSpec errors (E101-E109)
	ErrFieldNameEmpty   = "E101" // name is required
	ErrFieldNameInvalid = "E102" // name is not an identifier
	ErrDuplicateName    = "E103" // duplicate field name
	ErrFieldNoDefault   = "E104" // default is required
	ErrFieldNullDefault = "E105" // default contains null
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled field declarations.
// Returns all errors found (does not fail-fast).
// Supports ir.FieldSpec and []ir.FieldSpec.
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case []ir.FieldSpec:
		return validateFieldSpecs(spec)
	case *ir.FieldSpec:
		return validateFieldSpec(spec, "field")
	case ir.FieldSpec:
		return validateFieldSpec(&spec, "field")
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// validateFieldSpecs validates a set of declarations, including
// cross-declaration rules.
func validateFieldSpecs(specs []ir.FieldSpec) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)

	for i := range specs {
		path := fmt.Sprintf("fields[%d]", i)
		errs = append(errs, validateFieldSpec(&specs[i], path)...)

		// E103: duplicate field name
		name := specs[i].Name
		if name != "" && seen[name] {
			errs = append(errs, ValidationError{
				Field:   path + ".name",
				Message: fmt.Sprintf("duplicate field name: %q", name),
				Code:    ErrDuplicateName,
			})
		}
		seen[name] = true
	}

	return errs
}

// validateFieldSpec validates a single declaration.
func validateFieldSpec(spec *ir.FieldSpec, path string) []ValidationError {
	var errs []ValidationError

	// E101: name is required
	if spec.Name == "" {
		errs = append(errs, ValidationError{
			Field:   path + ".name",
			Message: "name is required and must be non-empty",
			Code:    ErrFieldNameEmpty,
		})
	} else if !isValidFieldName(spec.Name) {
		// E102: name must be an identifier
		errs = append(errs, ValidationError{
			Field:   path + ".name",
			Message: fmt.Sprintf("invalid field name %q (want lower_snake_case identifier)", spec.Name),
			Code:    ErrFieldNameInvalid,
		})
	}

	// E104: default is required
	if spec.Default == nil {
		errs = append(errs, ValidationError{
			Field:   path + ".default",
			Message: fmt.Sprintf("field %q has no default", spec.Name),
			Code:    ErrFieldNoDefault,
		})
	} else if ir.ContainsNull(spec.Default) {
		// E105: null anywhere in the default
		errs = append(errs, ValidationError{
			Field:   path + ".default",
			Message: fmt.Sprintf("default of field %q contains null", spec.Name),
			Code:    ErrFieldNullDefault,
		})
	}

	return errs
}

// fieldNamePattern matches lower_snake_case identifiers.
var fieldNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// isValidFieldName checks if a field name has valid format.
func isValidFieldName(name string) bool {
	return fieldNamePattern.MatchString(name)
}
