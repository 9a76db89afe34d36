package ir

import "slices"

// MetaDescription names the kind of metadata change.
type MetaDescription string

const (
	// MetaSet is an undoable assignment of one value to one or more clusters.
	MetaSet MetaDescription = "set"
	// MetaImport is a dictionary import that replaces a field's stored values.
	MetaImport MetaDescription = "import"
	// MetaPropagate is a value carried from parent clusters to descendants.
	MetaPropagate MetaDescription = "propagate"
)

// MetaChange is the change record of one metadata transition on one field.
//
// OldValues and NewValues are parallel to ClusterIDs and hold the effective
// value (stored value or field default) before and after the change.
type MetaChange struct {
	Description MetaDescription `json:"description"`
	History     HistoryTag      `json:"history"`
	Field       string          `json:"field"`
	ClusterIDs  []ClusterID     `json:"cluster_ids"`
	OldValues   []IRValue       `json:"old_values"`
	NewValues   []IRValue       `json:"new_values"`
}

// NewValue returns the single value assigned by a set, or nil when the
// change assigned differing values (undo of a bulk set, import).
func (m *MetaChange) NewValue() IRValue {
	if len(m.NewValues) == 0 {
		return nil
	}
	first := m.NewValues[0]
	for _, v := range m.NewValues[1:] {
		if !EqualValues(first, v) {
			return nil
		}
	}
	return first
}

// Clone returns a copy with independent slices. Values are shared; IRValue
// trees are never mutated after construction.
func (m *MetaChange) Clone() *MetaChange {
	if m == nil {
		return nil
	}
	c := *m
	c.ClusterIDs = slices.Clone(m.ClusterIDs)
	c.OldValues = slices.Clone(m.OldValues)
	c.NewValues = slices.Clone(m.NewValues)
	return &c
}

// ToIR converts the record to an IRObject for journaling and golden traces.
func (m *MetaChange) ToIR() IRObject {
	return IRObject{
		"description": IRString(m.Description),
		"history":     IRString(m.History),
		"field":       IRString(m.Field),
		"cluster_ids": IDsToIR(m.ClusterIDs),
		"old_values":  IRArray(slices.Clone(m.OldValues)),
		"new_values":  IRArray(slices.Clone(m.NewValues)),
	}
}
