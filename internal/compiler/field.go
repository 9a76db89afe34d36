package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/spikeclust/internal/ir"
)

// CompileField parses one field declaration into a FieldSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the declaration struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`field: group: default: "unsorted"`)
//	spec, err := CompileField(v.LookupPath(cue.ParsePath("field.group")))
func CompileField(v cue.Value) (*ir.FieldSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.FieldSpec{}

	// Field name from struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		switch iter.Label() {
		case "default", "doc":
		default:
			return nil, &CompileError{
				Field:   iter.Label(),
				Message: "unknown declaration attribute (want default or doc)",
				Pos:     iter.Value().Pos(),
			}
		}
	}

	docVal := v.LookupPath(cue.ParsePath("doc"))
	if docVal.Exists() {
		if _, err := docVal.String(); err != nil {
			return nil, &CompileError{Field: "doc", Message: "doc must be a string", Pos: docVal.Pos()}
		}
	}

	defVal := v.LookupPath(cue.ParsePath("default"))
	if !defVal.Exists() {
		return nil, &CompileError{
			Field:   "default",
			Message: "default is required",
			Pos:     v.Pos(),
		}
	}
	def, err := decodeValue(defVal, "default")
	if err != nil {
		return nil, err
	}
	spec.Default = def

	return spec, nil
}

// CompileFields compiles every declaration under the top-level "field"
// struct, in declaration order. A value without "field" declares nothing.
func CompileFields(v cue.Value) ([]ir.FieldSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	fieldsVal := v.LookupPath(cue.ParsePath("field"))
	if !fieldsVal.Exists() {
		return nil, nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []ir.FieldSpec
	for iter.Next() {
		spec, err := CompileField(iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, *spec)
	}
	return specs, nil
}

// decodeValue converts a concrete CUE value to an IRValue.
// Floats and null are forbidden in IR.
func decodeValue(v cue.Value, path string) (ir.IRValue, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if !v.IsConcrete() {
		return nil, &CompileError{
			Field:   path,
			Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}

	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil

	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, &CompileError{Field: path, Message: err.Error(), Pos: v.Pos()}
		}
		return ir.IRInt(n), nil

	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil

	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for i := 0; iter.Next(); i++ {
			elem, err := decodeValue(iter.Value(), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil

	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			key := iter.Label()
			elem, err := decodeValue(iter.Value(), path+"."+key)
			if err != nil {
				return nil, err
			}
			obj[key] = elem
		}
		return obj, nil

	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   path,
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}

	case cue.NullKind:
		return nil, &CompileError{
			Field:   path,
			Message: "null is forbidden in IR",
			Pos:     v.Pos(),
		}

	default:
		return nil, &CompileError{
			Field:   path,
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
