package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/spikeclust/internal/ir"
)

// marshalArgs converts IRObject to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalArgs(args ir.IRObject) (string, error) {
	if args == nil {
		args = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

// marshalResult converts IRObject to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalResult(result ir.IRObject) (string, error) {
	if result == nil {
		result = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(result)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}

// unmarshalArgs parses canonical JSON TEXT to IRObject.
// Uses ir.IRObject.UnmarshalJSON which properly handles large integers via json.Number
// to avoid float64 precision loss for values > 2^53.
func unmarshalArgs(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	return obj, nil
}

// unmarshalResult parses canonical JSON TEXT to IRObject.
func unmarshalResult(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return obj, nil
}

// marshalAssignment converts an assignment to a canonical JSON array.
func marshalAssignment(ids []ir.ClusterID) (string, error) {
	data, err := ir.MarshalCanonical(ir.IDsToIR(ids))
	if err != nil {
		return "", fmt.Errorf("marshal assignment: %w", err)
	}
	return string(data), nil
}

// unmarshalAssignment parses a JSON array of cluster ids.
func unmarshalAssignment(data string) ([]ir.ClusterID, error) {
	var ids []ir.ClusterID
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal assignment: %w", err)
	}
	if ids == nil {
		ids = []ir.ClusterID{}
	}
	return ids, nil
}

// marshalFields converts field declarations to a canonical JSON array of
// {"name", "default"} objects, preserving declaration order.
func marshalFields(fields []ir.FieldSpec) (string, error) {
	arr := make(ir.IRArray, len(fields))
	for i, f := range fields {
		arr[i] = ir.IRObject{
			"name":    ir.IRString(f.Name),
			"default": f.Default,
		}
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// unmarshalFields parses the output of marshalFields.
func unmarshalFields(data string) ([]ir.FieldSpec, error) {
	var arr ir.IRArray
	if err := json.Unmarshal([]byte(data), &arr); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}

	fields := make([]ir.FieldSpec, 0, len(arr))
	for i, elem := range arr {
		obj, ok := elem.(ir.IRObject)
		if !ok {
			return nil, fmt.Errorf("unmarshal fields: element %d is %T, want object", i, elem)
		}
		name, ok := obj["name"].(ir.IRString)
		if !ok {
			return nil, fmt.Errorf("unmarshal fields: element %d has no name", i)
		}
		def, ok := obj["default"]
		if !ok {
			return nil, fmt.Errorf("unmarshal fields: field %q has no default", name)
		}
		fields = append(fields, ir.FieldSpec{Name: string(name), Default: def})
	}
	return fields, nil
}
