// Package notify delivers change records to subscribers synchronously.
package notify

// Subscription identifies a connected callback.
type Subscription uint64

type subscriber[T any] struct {
	id Subscription
	fn func(T)
}

// Emitter is an ordered list of callbacks for values of type T.
//
// Emit calls every callback in registration order before returning.
// Callbacks may connect or disconnect subscribers; those changes take effect
// from the next Emit. Emitter is not safe for concurrent use.
type Emitter[T any] struct {
	subs  []subscriber[T]
	next  Subscription
	depth int
}

// Connect registers fn and returns a handle for Disconnect.
func (e *Emitter[T]) Connect(fn func(T)) Subscription {
	e.next++
	e.subs = append(e.subs, subscriber[T]{id: e.next, fn: fn})
	return e.next
}

// Disconnect removes the callback registered under s.
// Reports whether it was connected.
func (e *Emitter[T]) Disconnect(s Subscription) bool {
	for i, sub := range e.subs {
		if sub.id == s {
			subs := make([]subscriber[T], 0, len(e.subs)-1)
			subs = append(subs, e.subs[:i]...)
			e.subs = append(subs, e.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Emit delivers v to every subscriber in registration order.
func (e *Emitter[T]) Emit(v T) {
	subs := e.subs
	e.depth++
	defer func() { e.depth-- }()
	for _, sub := range subs {
		sub.fn(v)
	}
}

// Dispatching reports whether an Emit is in progress.
func (e *Emitter[T]) Dispatching() bool { return e.depth > 0 }

// Len returns the number of connected subscribers.
func (e *Emitter[T]) Len() int { return len(e.subs) }
