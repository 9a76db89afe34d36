// Package meta implements the undoable per-cluster metadata store.
//
// A ClusterMeta holds named fields, each with a default value and a mapping
// from cluster id to stored value. Values are keyed by id only: the store
// never checks ids against a partition, and values set on an id survive the
// id being merged or split away.
//
// Set is undoable through the store's own history, independent of any
// partition history. FromDict is a state reset: it bypasses the history and
// clears it. SetFromDescendants derives values for fresh clusters and is not
// recorded either.
package meta

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/spikeclust/internal/history"
	"github.com/roach88/spikeclust/internal/ir"
	"github.com/roach88/spikeclust/internal/notify"
)

type field struct {
	def    ir.IRValue
	values map[ir.ClusterID]ir.IRValue
}

// effective returns the stored value for id, or the default.
func (f *field) effective(id ir.ClusterID) ir.IRValue {
	if v, ok := f.values[id]; ok {
		return v
	}
	return f.def
}

// prior is the stored state of one id before a set: a value or absence.
type prior struct {
	value ir.IRValue
	set   bool
}

// setEntry is one undoable Set. It carries both directions: value for redo,
// prev for undo.
type setEntry struct {
	field string
	ids   []ir.ClusterID
	prev  []prior
	value ir.IRValue
}

// ClusterMeta is the metadata store.
type ClusterMeta struct {
	fields map[string]*field
	order  []string // Declaration order

	history *history.History[*setEntry]
	changes notify.Emitter[ir.MetaChange]
	logger  *slog.Logger
}

// Option configures a ClusterMeta.
type Option func(*ClusterMeta)

// WithLogger sets the logger used for change diagnostics.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *ClusterMeta) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates an empty metadata store.
func New(opts ...Option) *ClusterMeta {
	m := &ClusterMeta{
		fields:  make(map[string]*field),
		history: history.New[*setEntry](),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddField declares a field with its default value.
// Declaring an existing name fails with DuplicateField. Not undoable.
func (m *ClusterMeta) AddField(name string, def ir.IRValue) error {
	if err := m.guard("add_field"); err != nil {
		return err
	}
	if name == "" {
		return ir.NewInvalidOperationError("add_field: empty field name")
	}
	if def == nil {
		return ir.NewInvalidOperationError("add_field: field %q has no default", name)
	}
	if ir.ContainsNull(def) {
		return ir.NewInvalidOperationError("add_field: default of field %q contains null", name)
	}
	if _, ok := m.fields[name]; ok {
		return ir.NewDuplicateFieldError(name)
	}

	m.fields[name] = &field{def: def, values: make(map[ir.ClusterID]ir.IRValue)}
	m.order = append(m.order, name)
	m.logger.Debug("field declared", "field", name)
	return nil
}

// Fields returns the declared field names in declaration order.
func (m *ClusterMeta) Fields() []string {
	return slices.Clone(m.order)
}

// Default returns the declared default of a field.
func (m *ClusterMeta) Default(name string) (ir.IRValue, error) {
	f, err := m.field(name)
	if err != nil {
		return nil, err
	}
	return f.def, nil
}

// Get returns the stored value of a field for one cluster, or the field's
// default when none is stored. Unknown cluster ids are not an error.
func (m *ClusterMeta) Get(name string, id ir.ClusterID) (ir.IRValue, error) {
	f, err := m.field(name)
	if err != nil {
		return nil, err
	}
	return f.effective(id), nil
}

// Set assigns value to every id in ids as one undoable step.
// Duplicate ids are ignored; an empty list fails with InvalidOperation.
func (m *ClusterMeta) Set(name string, ids []ir.ClusterID, value ir.IRValue) (*ir.MetaChange, error) {
	if err := m.guard("set"); err != nil {
		return nil, err
	}
	f, err := m.field(name)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ir.NewInvalidOperationError("set: no cluster ids given for field %q", name)
	}
	if value == nil {
		return nil, ir.NewInvalidOperationError("set: no value given for field %q", name)
	}
	if ir.ContainsNull(value) {
		return nil, ir.NewInvalidOperationError("set: value for field %q contains null", name)
	}

	e := &setEntry{field: name, ids: ir.SortedUniqueIDs(ids), value: value}
	e.prev = make([]prior, len(e.ids))
	for i, id := range e.ids {
		v, ok := f.values[id]
		e.prev[i] = prior{value: v, set: ok}
	}

	change := m.redoEntry(f, e, ir.HistoryNone)
	m.history.Do(e)
	m.emit(change)
	return change.Clone(), nil
}

// Undo reverts the most recent Set, restoring absence where no value was
// stored before.
func (m *ClusterMeta) Undo() (*ir.MetaChange, error) {
	if err := m.guard("undo"); err != nil {
		return nil, err
	}
	e, err := m.history.Undo()
	if err != nil {
		return nil, err
	}

	f := m.fields[e.field]
	change := &ir.MetaChange{
		Description: ir.MetaSet,
		History:     ir.HistoryUndo,
		Field:       e.field,
		ClusterIDs:  slices.Clone(e.ids),
		OldValues:   make([]ir.IRValue, len(e.ids)),
		NewValues:   make([]ir.IRValue, len(e.ids)),
	}
	for i, id := range e.ids {
		change.OldValues[i] = f.effective(id)
		if p := e.prev[i]; p.set {
			f.values[id] = p.value
		} else {
			delete(f.values, id)
		}
		change.NewValues[i] = f.effective(id)
	}
	m.emit(change)
	return change.Clone(), nil
}

// Redo re-applies the most recently undone Set.
func (m *ClusterMeta) Redo() (*ir.MetaChange, error) {
	if err := m.guard("redo"); err != nil {
		return nil, err
	}
	e, err := m.history.Redo()
	if err != nil {
		return nil, err
	}

	change := m.redoEntry(m.fields[e.field], e, ir.HistoryRedo)
	m.emit(change)
	return change.Clone(), nil
}

// redoEntry stores the entry's value on its ids and describes the change.
func (m *ClusterMeta) redoEntry(f *field, e *setEntry, tag ir.HistoryTag) *ir.MetaChange {
	change := &ir.MetaChange{
		Description: ir.MetaSet,
		History:     tag,
		Field:       e.field,
		ClusterIDs:  slices.Clone(e.ids),
		OldValues:   make([]ir.IRValue, len(e.ids)),
		NewValues:   make([]ir.IRValue, len(e.ids)),
	}
	for i, id := range e.ids {
		change.OldValues[i] = f.effective(id)
		f.values[id] = e.value
		change.NewValues[i] = e.value
	}
	return change
}

// CanUndo reports whether a Set can be undone.
func (m *ClusterMeta) CanUndo() bool { return m.history.CanUndo() }

// CanRedo reports whether an undone Set can be redone.
func (m *ClusterMeta) CanRedo() bool { return m.history.CanRedo() }

// HistoryLen returns the number of applied Sets.
func (m *ClusterMeta) HistoryLen() int { return m.history.Position() }

// ToDict returns a copy of the stored values of a field. Ids holding the
// default because nothing was stored are not listed.
func (m *ClusterMeta) ToDict(name string) (map[ir.ClusterID]ir.IRValue, error) {
	f, err := m.field(name)
	if err != nil {
		return nil, err
	}
	return maps.Clone(f.values), nil
}

// FromDict replaces the stored values of a field with mapping.
//
// The import is a state reset: it is not undoable and it clears the
// metadata history, so Undo afterwards fails with NothingToUndo.
func (m *ClusterMeta) FromDict(name string, mapping map[ir.ClusterID]ir.IRValue) (*ir.MetaChange, error) {
	if err := m.guard("from_dict"); err != nil {
		return nil, err
	}
	f, err := m.field(name)
	if err != nil {
		return nil, err
	}
	for id, v := range mapping {
		if v == nil {
			return nil, ir.NewInvalidOperationError("from_dict: no value for cluster %d in field %q", id, name)
		}
		if ir.ContainsNull(v) {
			return nil, ir.NewInvalidOperationError("from_dict: value for cluster %d in field %q contains null", id, name)
		}
	}

	ids := slices.Sorted(maps.Keys(f.values))
	ids = ir.SortedUniqueIDs(append(ids, slices.Collect(maps.Keys(mapping))...))
	change := &ir.MetaChange{
		Description: ir.MetaImport,
		History:     ir.HistoryNone,
		Field:       name,
		ClusterIDs:  ids,
		OldValues:   make([]ir.IRValue, len(ids)),
		NewValues:   make([]ir.IRValue, len(ids)),
	}
	for i, id := range ids {
		change.OldValues[i] = f.effective(id)
	}
	f.values = maps.Clone(mapping)
	if f.values == nil {
		f.values = make(map[ir.ClusterID]ir.IRValue)
	}
	for i, id := range ids {
		change.NewValues[i] = f.effective(id)
	}

	m.history.Clear()
	m.emit(change)
	return change.Clone(), nil
}

// SetFromDescendants carries metadata from old clusters to the clusters
// they produced.
//
// For every field and every new id, if all of its parent ids share one
// effective value and that value differs from the field default, it is
// stored on the new id. One propagate change per affected field is emitted
// and returned. Not recorded in the history.
func (m *ClusterMeta) SetFromDescendants(descendants []ir.Descendant) ([]ir.MetaChange, error) {
	if err := m.guard("set_from_descendants"); err != nil {
		return nil, err
	}

	parents := make(map[ir.ClusterID][]ir.ClusterID)
	for _, d := range descendants {
		parents[d.New] = append(parents[d.New], d.Old)
	}
	newIDs := slices.Sorted(maps.Keys(parents))

	var changes []ir.MetaChange
	for _, name := range m.order {
		f := m.fields[name]
		change := ir.MetaChange{
			Description: ir.MetaPropagate,
			History:     ir.HistoryNone,
			Field:       name,
		}
		for _, id := range newIDs {
			v, ok := commonValue(f, parents[id])
			if !ok || ir.EqualValues(v, f.def) || ir.EqualValues(v, f.effective(id)) {
				continue
			}
			change.ClusterIDs = append(change.ClusterIDs, id)
			change.OldValues = append(change.OldValues, f.effective(id))
			change.NewValues = append(change.NewValues, v)
			f.values[id] = v
		}
		if len(change.ClusterIDs) > 0 {
			m.emit(&change)
			changes = append(changes, change)
		}
	}
	return changes, nil
}

// commonValue returns the effective value shared by every id, if any.
func commonValue(f *field, ids []ir.ClusterID) (ir.IRValue, bool) {
	if len(ids) == 0 {
		return nil, false
	}
	v := f.effective(ids[0])
	for _, id := range ids[1:] {
		if !ir.EqualValues(v, f.effective(id)) {
			return nil, false
		}
	}
	return v, true
}

// Snapshot returns the full state of every field in declaration order.
func (m *ClusterMeta) Snapshot() []ir.FieldSnapshot {
	out := make([]ir.FieldSnapshot, 0, len(m.order))
	for _, name := range m.order {
		f := m.fields[name]
		out = append(out, ir.FieldSnapshot{
			Name:    name,
			Default: f.def,
			Values:  maps.Clone(f.values),
		})
	}
	return out
}

// Connect registers fn to receive every metadata change in order.
func (m *ClusterMeta) Connect(fn func(ir.MetaChange)) notify.Subscription {
	return m.changes.Connect(fn)
}

// Disconnect removes a subscriber registered with Connect.
func (m *ClusterMeta) Disconnect(s notify.Subscription) bool {
	return m.changes.Disconnect(s)
}

func (m *ClusterMeta) field(name string) (*field, error) {
	f, ok := m.fields[name]
	if !ok {
		return nil, ir.NewUnknownFieldError(name)
	}
	return f, nil
}

func (m *ClusterMeta) guard(op string) error {
	if m.changes.Dispatching() {
		return ir.NewReentrantMutationError(op)
	}
	return nil
}

func (m *ClusterMeta) emit(change *ir.MetaChange) {
	m.logger.Debug("metadata changed",
		"description", change.Description,
		"history", change.History,
		"field", change.Field,
		"clusters", change.ClusterIDs,
	)
	m.changes.Emit(*change.Clone())
}
