package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/spikeclust/internal/ir"
)

func testRequest(action ir.ActionRef) request {
	return request{
		ctx:    context.Background(),
		action: action,
		reply:  make(chan response, 1),
	}
}

func TestCommandQueue_EnqueueDequeue(t *testing.T) {
	q := newCommandQueue()

	ok := q.Enqueue(testRequest(ir.ActionMerge))
	require.True(t, ok, "enqueue should succeed")

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	assert.Equal(t, ir.ActionMerge, got.action)
}

func TestCommandQueue_FIFO(t *testing.T) {
	q := newCommandQueue()

	actions := []ir.ActionRef{ir.ActionMerge, ir.ActionUndo, ir.ActionRedo}
	for _, a := range actions {
		q.Enqueue(testRequest(a))
	}

	for _, want := range actions {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.action)
	}
}

func TestCommandQueue_TryDequeue_Empty(t *testing.T) {
	q := newCommandQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestCommandQueue_WaitSignalsEnqueue(t *testing.T) {
	q := newCommandQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(testRequest(ir.ActionSplit))
	}()

	select {
	case <-q.Wait():
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, ir.ActionSplit, got.action)
	case <-time.After(time.Second):
		t.Fatal("wait did not signal")
	}
}

func TestCommandQueue_Close(t *testing.T) {
	q := newCommandQueue()
	assert.False(t, q.Closed())

	q.Close()
	q.Close() // idempotent

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(testRequest(ir.ActionUndo)), "enqueue after close should return false")

	select {
	case <-q.Wait():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("close did not wake waiters")
	}
}

func TestCommandQueue_Len(t *testing.T) {
	q := newCommandQueue()

	assert.Equal(t, 0, q.Len())

	q.Enqueue(testRequest(ir.ActionUndo))
	assert.Equal(t, 1, q.Len())

	q.Enqueue(testRequest(ir.ActionRedo))
	assert.Equal(t, 2, q.Len())

	q.TryDequeue()
	assert.Equal(t, 1, q.Len())

	q.TryDequeue()
	assert.Equal(t, 0, q.Len())
}

func TestCommandQueue_ThreadSafe(t *testing.T) {
	q := newCommandQueue()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(testRequest(ir.ActionUndo))
			}
		}()
	}
	wg.Wait()

	received := 0
	for {
		if _, ok := q.TryDequeue(); !ok {
			break
		}
		received++
	}
	assert.Equal(t, producers*perProducer, received)
}
