package engine

import (
	"slices"

	"github.com/roach88/spikeclust/internal/ir"
)

// command runs a parsed command against the cores.
type command func() (ir.IRObject, error)

// parse validates args for action and binds them to a command.
// Args are checked before anything is journaled, so a malformed command
// never reaches the log.
func (e *Engine) parse(action ir.ActionRef, args ir.IRObject) (command, error) {
	switch action {
	case ir.ActionMerge:
		if err := checkKeys(action, args, "clusters"); err != nil {
			return nil, err
		}
		ids, err := idsArg(action, args, "clusters")
		if err != nil {
			return nil, err
		}
		return func() (ir.IRObject, error) {
			up, err := e.clustering.Merge(ids)
			if err != nil {
				return nil, err
			}
			return e.afterPartition(up), nil
		}, nil

	case ir.ActionSplit:
		if err := checkKeys(action, args, "spikes"); err != nil {
			return nil, err
		}
		spikes, err := intsArg(action, args, "spikes")
		if err != nil {
			return nil, err
		}
		return func() (ir.IRObject, error) {
			up, err := e.clustering.Split(spikes)
			if err != nil {
				return nil, err
			}
			return e.afterPartition(up), nil
		}, nil

	case ir.ActionAssign:
		if err := checkKeys(action, args, "spikes", "labels"); err != nil {
			return nil, err
		}
		spikes, err := intsArg(action, args, "spikes")
		if err != nil {
			return nil, err
		}
		labels, err := idsArg(action, args, "labels")
		if err != nil {
			return nil, err
		}
		return func() (ir.IRObject, error) {
			up, err := e.clustering.Assign(spikes, labels)
			if err != nil {
				return nil, err
			}
			return e.afterPartition(up), nil
		}, nil

	case ir.ActionUndo, ir.ActionRedo:
		if err := checkKeys(action, args); err != nil {
			return nil, err
		}
		step := e.clustering.Undo
		if action == ir.ActionRedo {
			step = e.clustering.Redo
		}
		return func() (ir.IRObject, error) {
			up, err := step()
			if err != nil {
				return nil, err
			}
			return e.afterPartition(up), nil
		}, nil

	case ir.ActionAddField:
		if err := checkKeys(action, args, "field", "default"); err != nil {
			return nil, err
		}
		name, err := stringArg(action, args, "field")
		if err != nil {
			return nil, err
		}
		def, err := valueArg(action, args, "default")
		if err != nil {
			return nil, err
		}
		return func() (ir.IRObject, error) {
			if err := e.meta.AddField(name, def); err != nil {
				return nil, err
			}
			return ir.IRObject{"field": ir.IRString(name), "default": def}, nil
		}, nil

	case ir.ActionSet:
		if err := checkKeys(action, args, "field", "clusters", "value"); err != nil {
			return nil, err
		}
		name, err := stringArg(action, args, "field")
		if err != nil {
			return nil, err
		}
		ids, err := idsArg(action, args, "clusters")
		if err != nil {
			return nil, err
		}
		value, err := valueArg(action, args, "value")
		if err != nil {
			return nil, err
		}
		return func() (ir.IRObject, error) {
			change, err := e.meta.Set(name, ids, value)
			if err != nil {
				return nil, err
			}
			return change.ToIR(), nil
		}, nil

	case ir.ActionMetaUndo, ir.ActionMetaRedo:
		if err := checkKeys(action, args); err != nil {
			return nil, err
		}
		step := e.meta.Undo
		if action == ir.ActionMetaRedo {
			step = e.meta.Redo
		}
		return func() (ir.IRObject, error) {
			change, err := step()
			if err != nil {
				return nil, err
			}
			return change.ToIR(), nil
		}, nil

	case ir.ActionImport:
		if err := checkKeys(action, args, "field", "values"); err != nil {
			return nil, err
		}
		name, err := stringArg(action, args, "field")
		if err != nil {
			return nil, err
		}
		values, err := valuesArg(action, args, "values")
		if err != nil {
			return nil, err
		}
		return func() (ir.IRObject, error) {
			change, err := e.meta.FromDict(name, values)
			if err != nil {
				return nil, err
			}
			return change.ToIR(), nil
		}, nil

	default:
		return nil, ir.NewUnknownActionError(string(action))
	}
}

// checkKeys rejects missing and unexpected argument names.
func checkKeys(action ir.ActionRef, args ir.IRObject, keys ...string) error {
	for _, k := range keys {
		if _, ok := args[k]; !ok {
			return ir.NewInvalidOperationError("%s: missing argument %q", action, k)
		}
	}
	for _, k := range args.SortedKeys() {
		if !slices.Contains(keys, k) {
			return ir.NewInvalidOperationError("%s: unexpected argument %q", action, k)
		}
	}
	return nil
}

func intsArg(action ir.ActionRef, args ir.IRObject, key string) ([]int, error) {
	arr, ok := args[key].(ir.IRArray)
	if !ok {
		return nil, ir.NewInvalidOperationError("%s: %q must be an array of integers", action, key)
	}
	out := make([]int, len(arr))
	for i, v := range arr {
		n, ok := v.(ir.IRInt)
		if !ok {
			return nil, ir.NewInvalidOperationError("%s: %q[%d] is not an integer", action, key, i)
		}
		out[i] = int(n)
	}
	return out, nil
}

func idsArg(action ir.ActionRef, args ir.IRObject, key string) ([]ir.ClusterID, error) {
	ints, err := intsArg(action, args, key)
	if err != nil {
		return nil, err
	}
	ids := make([]ir.ClusterID, len(ints))
	for i, n := range ints {
		if n < 0 {
			return nil, ir.NewInvalidOperationError("%s: %q[%d] is negative", action, key, i)
		}
		ids[i] = ir.ClusterID(n)
	}
	return ids, nil
}

func stringArg(action ir.ActionRef, args ir.IRObject, key string) (string, error) {
	s, ok := args[key].(ir.IRString)
	if !ok {
		return "", ir.NewInvalidOperationError("%s: %q must be a string", action, key)
	}
	return string(s), nil
}

func valueArg(action ir.ActionRef, args ir.IRObject, key string) (ir.IRValue, error) {
	v := args[key]
	if _, isNull := v.(ir.IRNull); isNull || v == nil {
		return nil, ir.NewInvalidOperationError("%s: %q must not be null", action, key)
	}
	return v, nil
}

// valuesArg parses an object keyed by decimal cluster id.
// Keys must be in the canonical form of ClusterID.String, so "07" or "+7"
// cannot shadow "7".
func valuesArg(action ir.ActionRef, args ir.IRObject, key string) (map[ir.ClusterID]ir.IRValue, error) {
	obj, ok := args[key].(ir.IRObject)
	if !ok {
		return nil, ir.NewInvalidOperationError("%s: %q must be an object keyed by cluster id", action, key)
	}
	out := make(map[ir.ClusterID]ir.IRValue, len(obj))
	for _, k := range obj.SortedKeys() {
		id, err := ir.ParseClusterID(k)
		if err != nil || id < 0 || id.String() != k {
			return nil, ir.NewInvalidOperationError("%s: %q key %q is not a cluster id", action, key, k)
		}
		if _, isNull := obj[k].(ir.IRNull); isNull {
			return nil, ir.NewInvalidOperationError("%s: %q[%s] must not be null", action, key, k)
		}
		out[id] = obj[k]
	}
	return out, nil
}
