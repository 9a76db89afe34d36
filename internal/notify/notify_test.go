package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitterOrder(t *testing.T) {
	var e Emitter[int]
	var got []string
	e.Connect(func(v int) { got = append(got, "first") })
	e.Connect(func(v int) { got = append(got, "second") })

	e.Emit(1)
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestEmitterDisconnect(t *testing.T) {
	var e Emitter[int]
	calls := 0
	s := e.Connect(func(int) { calls++ })

	assert.True(t, e.Disconnect(s))
	assert.False(t, e.Disconnect(s))
	e.Emit(1)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, e.Len())
}

func TestEmitterDispatching(t *testing.T) {
	var e Emitter[int]
	var inside bool
	e.Connect(func(int) { inside = e.Dispatching() })

	assert.False(t, e.Dispatching())
	e.Emit(1)
	assert.True(t, inside)
	assert.False(t, e.Dispatching())
}

func TestEmitterDisconnectDuringEmit(t *testing.T) {
	var e Emitter[int]
	var second Subscription
	calls := 0
	e.Connect(func(int) { e.Disconnect(second) })
	second = e.Connect(func(int) { calls++ })

	e.Emit(1)
	assert.Equal(t, 1, calls, "removal applies from the next emit")
	e.Emit(2)
	assert.Equal(t, 1, calls)
}

func TestEmitterDispatchingResetAfterPanic(t *testing.T) {
	var e Emitter[int]
	e.Connect(func(int) { panic("boom") })

	assert.Panics(t, func() { e.Emit(1) })
	assert.False(t, e.Dispatching())
}
