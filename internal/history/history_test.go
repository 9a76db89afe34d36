package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spikeclust/internal/ir"
)

func TestHistoryDoUndoRedo(t *testing.T) {
	h := New[string]()
	assert.False(t, h.CanUndo())
	assert.False(t, h.CanRedo())

	h.Do("a")
	h.Do("b")
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 2, h.Position())

	e, err := h.Undo()
	require.NoError(t, err)
	assert.Equal(t, "b", e)
	assert.True(t, h.CanRedo())

	e, err = h.Undo()
	require.NoError(t, err)
	assert.Equal(t, "a", e)
	assert.False(t, h.CanUndo())

	e, err = h.Redo()
	require.NoError(t, err)
	assert.Equal(t, "a", e)
	assert.Equal(t, []string{"a"}, h.Entries())
}

func TestHistoryBoundaries(t *testing.T) {
	var h History[int]

	_, err := h.Undo()
	assert.True(t, ir.IsCode(err, ir.ErrCodeNothingToUndo))

	_, err = h.Redo()
	assert.True(t, ir.IsCode(err, ir.ErrCodeNothingToRedo))

	h.Do(1)
	_, err = h.Redo()
	assert.True(t, ir.IsCode(err, ir.ErrCodeNothingToRedo))
	assert.Equal(t, 1, h.Position(), "failed redo leaves the pointer alone")
}

func TestHistoryDoDiscardsRedoBranch(t *testing.T) {
	h := New[*int]()
	one, two, three := 1, 2, 3
	h.Do(&one)
	h.Do(&two)
	_, err := h.Undo()
	require.NoError(t, err)

	h.Do(&three)
	assert.Equal(t, 2, h.Len())
	assert.False(t, h.CanRedo())
	assert.Equal(t, []*int{&one, &three}, h.Entries())
}

func TestHistoryDoZeroesTruncatedSlots(t *testing.T) {
	h := New[*int]()
	a, b, c := 1, 2, 3
	h.Do(&a)
	h.Do(&b)
	h.Do(&c)
	_, _ = h.Undo()
	_, _ = h.Undo()

	h.Do(&a)
	backing := h.entries[:cap(h.entries)]
	assert.Nil(t, backing[2], "truncated slot must not retain its entry")
}

func TestHistoryClear(t *testing.T) {
	h := New[string]()
	h.Do("a")
	h.Do("b")
	h.Clear()

	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 0, h.Position())
	assert.False(t, h.CanUndo())
	assert.Empty(t, h.Entries())
}
