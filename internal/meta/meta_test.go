package meta

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spikeclust/internal/ir"
)

func newTestMeta(t *testing.T) *ClusterMeta {
	t.Helper()
	m := New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, m.AddField("group", ir.IRString("unsorted")))
	return m
}

func get(t *testing.T, m *ClusterMeta, name string, id ir.ClusterID) ir.IRValue {
	t.Helper()
	v, err := m.Get(name, id)
	require.NoError(t, err)
	return v
}

func TestAddField(t *testing.T) {
	m := newTestMeta(t)
	require.NoError(t, m.AddField("quality", ir.IRInt(0)))

	assert.Equal(t, []string{"group", "quality"}, m.Fields())

	err := m.AddField("group", ir.IRString("x"))
	assert.True(t, ir.IsCode(err, ir.ErrCodeDuplicateField))

	assert.True(t, ir.IsCode(m.AddField("", ir.IRInt(0)), ir.ErrCodeInvalidOperation))
	assert.True(t, ir.IsCode(m.AddField("color", nil), ir.ErrCodeInvalidOperation))
	assert.True(t, ir.IsCode(m.AddField("color", ir.IRNull{}), ir.ErrCodeInvalidOperation))
	assert.True(t, ir.IsCode(m.AddField("color", ir.IRArray{ir.IRString("red"), ir.IRNull{}}), ir.ErrCodeInvalidOperation))

	def, err := m.Default("quality")
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(0), def)
}

func TestGetDefaultsAndUnknownField(t *testing.T) {
	m := newTestMeta(t)

	assert.Equal(t, ir.IRString("unsorted"), get(t, m, "group", 12345))

	_, err := m.Get("nope", 0)
	assert.True(t, ir.IsCode(err, ir.ErrCodeUnknownField))

	_, err = m.Set("nope", []ir.ClusterID{1}, ir.IRInt(1))
	assert.True(t, ir.IsCode(err, ir.ErrCodeUnknownField))

	_, err = m.ToDict("nope")
	assert.True(t, ir.IsCode(err, ir.ErrCodeUnknownField))
}

func TestSetUndoRestoresAbsence(t *testing.T) {
	m := newTestMeta(t)

	change, err := m.Set("group", []ir.ClusterID{3, 1, 3}, ir.IRString("good"))
	require.NoError(t, err)
	assert.Equal(t, ir.MetaSet, change.Description)
	assert.Equal(t, ir.HistoryNone, change.History)
	assert.Equal(t, []ir.ClusterID{1, 3}, change.ClusterIDs)
	assert.Equal(t, []ir.IRValue{ir.IRString("unsorted"), ir.IRString("unsorted")}, change.OldValues)
	assert.Equal(t, ir.IRString("good"), change.NewValue())

	assert.Equal(t, ir.IRString("good"), get(t, m, "group", 1))

	change, err = m.Undo()
	require.NoError(t, err)
	assert.Equal(t, ir.HistoryUndo, change.History)
	assert.Equal(t, []ir.IRValue{ir.IRString("good"), ir.IRString("good")}, change.OldValues)
	assert.Equal(t, ir.IRString("unsorted"), get(t, m, "group", 1))

	dict, err := m.ToDict("group")
	require.NoError(t, err)
	assert.Empty(t, dict, "undo restores absence, not an explicit default")
}

func TestSetUndoRestoresPriorValue(t *testing.T) {
	m := newTestMeta(t)

	_, err := m.Set("group", []ir.ClusterID{1}, ir.IRString("mua"))
	require.NoError(t, err)
	_, err = m.Set("group", []ir.ClusterID{1, 2}, ir.IRString("noise"))
	require.NoError(t, err)

	change, err := m.Undo()
	require.NoError(t, err)
	assert.Equal(t, []ir.IRValue{ir.IRString("mua"), ir.IRString("unsorted")}, change.NewValues)
	assert.Nil(t, change.NewValue(), "mixed values after undo")

	dict, err := m.ToDict("group")
	require.NoError(t, err)
	assert.Equal(t, map[ir.ClusterID]ir.IRValue{1: ir.IRString("mua")}, dict)

	change, err = m.Redo()
	require.NoError(t, err)
	assert.Equal(t, ir.HistoryRedo, change.History)
	assert.Equal(t, ir.IRString("noise"), get(t, m, "group", 2))

	_, err = m.Redo()
	assert.True(t, ir.IsCode(err, ir.ErrCodeNothingToRedo))
}

func TestSetValidation(t *testing.T) {
	m := newTestMeta(t)

	_, err := m.Set("group", nil, ir.IRString("good"))
	assert.True(t, ir.IsCode(err, ir.ErrCodeInvalidOperation))

	_, err = m.Set("group", []ir.ClusterID{1}, nil)
	assert.True(t, ir.IsCode(err, ir.ErrCodeInvalidOperation))

	assert.False(t, m.CanUndo())
	_, err = m.Undo()
	assert.True(t, ir.IsCode(err, ir.ErrCodeNothingToUndo))
}

func TestSetAfterUndoDiscardsRedo(t *testing.T) {
	m := newTestMeta(t)
	_, err := m.Set("group", []ir.ClusterID{1}, ir.IRString("a"))
	require.NoError(t, err)
	_, err = m.Undo()
	require.NoError(t, err)

	_, err = m.Set("group", []ir.ClusterID{2}, ir.IRString("b"))
	require.NoError(t, err)
	assert.False(t, m.CanRedo())
	assert.Equal(t, 1, m.HistoryLen())
}

func TestFromDictClearsHistory(t *testing.T) {
	m := newTestMeta(t)
	_, err := m.Set("group", []ir.ClusterID{1}, ir.IRString("good"))
	require.NoError(t, err)

	mapping := map[ir.ClusterID]ir.IRValue{2: ir.IRString("mua"), 5: ir.IRString("noise")}
	change, err := m.FromDict("group", mapping)
	require.NoError(t, err)
	assert.Equal(t, ir.MetaImport, change.Description)
	assert.Equal(t, []ir.ClusterID{1, 2, 5}, change.ClusterIDs)
	assert.Equal(t, []ir.IRValue{ir.IRString("good"), ir.IRString("unsorted"), ir.IRString("unsorted")}, change.OldValues)
	assert.Equal(t, []ir.IRValue{ir.IRString("unsorted"), ir.IRString("mua"), ir.IRString("noise")}, change.NewValues)

	mapping[2] = ir.IRString("changed")
	dict, err := m.ToDict("group")
	require.NoError(t, err)
	assert.Equal(t, map[ir.ClusterID]ir.IRValue{2: ir.IRString("mua"), 5: ir.IRString("noise")}, dict)

	assert.False(t, m.CanUndo())
	_, err = m.Undo()
	assert.True(t, ir.IsCode(err, ir.ErrCodeNothingToUndo))

	_, err = m.FromDict("group", map[ir.ClusterID]ir.IRValue{1: nil})
	assert.True(t, ir.IsCode(err, ir.ErrCodeInvalidOperation))
}

func TestToDictIsCopy(t *testing.T) {
	m := newTestMeta(t)
	_, err := m.Set("group", []ir.ClusterID{1}, ir.IRString("good"))
	require.NoError(t, err)

	dict, err := m.ToDict("group")
	require.NoError(t, err)
	dict[1] = ir.IRString("bad")
	assert.Equal(t, ir.IRString("good"), get(t, m, "group", 1))
}

func TestSetFromDescendants(t *testing.T) {
	m := newTestMeta(t)
	require.NoError(t, m.AddField("quality", ir.IRInt(0)))
	_, err := m.Set("group", []ir.ClusterID{1, 2}, ir.IRString("good"))
	require.NoError(t, err)
	_, err = m.Set("group", []ir.ClusterID{3}, ir.IRString("mua"))
	require.NoError(t, err)

	changes, err := m.SetFromDescendants([]ir.Descendant{
		{Old: 1, New: 10}, {Old: 2, New: 10}, // agree
		{Old: 1, New: 11}, {Old: 3, New: 11}, // disagree
		{Old: 4, New: 12}, // default, not propagated
	})
	require.NoError(t, err)

	require.Len(t, changes, 1, "quality holds only defaults")
	assert.Equal(t, ir.MetaPropagate, changes[0].Description)
	assert.Equal(t, []ir.ClusterID{10}, changes[0].ClusterIDs)
	assert.Equal(t, ir.IRString("good"), get(t, m, "group", 10))
	assert.Equal(t, ir.IRString("unsorted"), get(t, m, "group", 11))
	assert.Equal(t, 2, m.HistoryLen(), "propagation is not recorded")
}

func TestNotificationsAndReentrancy(t *testing.T) {
	m := newTestMeta(t)
	var got []ir.MetaChange
	var inner error
	m.Connect(func(c ir.MetaChange) {
		got = append(got, c)
		_, inner = m.Set("group", []ir.ClusterID{9}, ir.IRString("x"))
	})

	_, err := m.Set("group", []ir.ClusterID{1}, ir.IRString("good"))
	require.NoError(t, err)
	_, err = m.Undo()
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, ir.HistoryUndo, got[1].History)
	assert.True(t, ir.IsCode(inner, ir.ErrCodeReentrantMutation))
	assert.Equal(t, ir.IRString("unsorted"), get(t, m, "group", 9))
}

func TestSnapshot(t *testing.T) {
	m := newTestMeta(t)
	require.NoError(t, m.AddField("quality", ir.IRInt(0)))
	_, err := m.Set("quality", []ir.ClusterID{4}, ir.IRInt(3))
	require.NoError(t, err)

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "group", snap[0].Name)
	assert.Equal(t, ir.IRString("unsorted"), snap[0].Default)
	assert.Empty(t, snap[0].Values)
	assert.Equal(t, map[ir.ClusterID]ir.IRValue{4: ir.IRInt(3)}, snap[1].Values)
}

func TestNullValuesRejected(t *testing.T) {
	tests := []struct {
		name  string
		value ir.IRValue
	}{
		{"null", ir.IRNull{}},
		{"null in array", ir.IRArray{ir.IRInt(1), ir.IRNull{}}},
		{"null in object", ir.IRObject{"note": ir.IRObject{"by": ir.IRNull{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMeta(t)
			_, err := m.Set("group", []ir.ClusterID{0}, ir.IRString("good"))
			require.NoError(t, err)
			emitted := 0
			m.Connect(func(ir.MetaChange) { emitted++ })

			_, err = m.Set("group", []ir.ClusterID{0}, tt.value)
			assert.True(t, ir.IsCode(err, ir.ErrCodeInvalidOperation))

			_, err = m.FromDict("group", map[ir.ClusterID]ir.IRValue{1: tt.value})
			assert.True(t, ir.IsCode(err, ir.ErrCodeInvalidOperation))

			assert.Equal(t, ir.IRString("good"), get(t, m, "group", 0))
			assert.Equal(t, ir.IRString("unsorted"), get(t, m, "group", 1))
			assert.Equal(t, 1, m.HistoryLen())
			assert.Zero(t, emitted)

			_, err = ir.StateHash([]ir.ClusterID{0, 1}, m.Snapshot())
			assert.NoError(t, err)
		})
	}
}
