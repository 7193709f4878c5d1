// Package window provides a fixed-capacity sliding window that evaluates a
// computation over its contents each time it is full.
package window

// Window is an insertion-ordered FIFO of at most Cap items.
// Once full, every Push evaluates the wrapped computation over the current
// contents and then evicts the oldest item, so consecutive evaluations overlap
// by Cap-1 items.
//
// Window is not safe for concurrent use.
type Window[T, R any] struct {
	items   []T
	cap     int
	compute func([]T) R
	clone   func(T) T
	release func(T)
}

// Option configures a Window.
type Option[T, R any] func(*Window[T, R])

// WithClone makes Push store clone(item) instead of item, so the window holds
// an independent snapshot of caller-owned values.
func WithClone[T, R any](clone func(T) T) Option[T, R] {
	return func(w *Window[T, R]) {
		w.clone = clone
	}
}

// WithRelease registers a function called for every item leaving the window.
func WithRelease[T, R any](release func(T)) Option[T, R] {
	return func(w *Window[T, R]) {
		w.release = release
	}
}

// New creates a Window of the given capacity. Capacities below 1 are treated as 1.
func New[T, R any](capacity int, compute func([]T) R, opts ...Option[T, R]) *Window[T, R] {
	if capacity < 1 {
		capacity = 1
	}

	w := &Window[T, R]{
		items:   make([]T, 0, capacity),
		cap:     capacity,
		compute: compute,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Push appends item. If the window is then full, Push evaluates the
// computation, evicts the oldest item and returns the result with ok set.
func (w *Window[T, R]) Push(item T) (result R, ok bool) {
	if w.clone != nil {
		item = w.clone(item)
	}
	w.items = append(w.items, item)

	if len(w.items) < w.cap {
		return result, false
	}

	result = w.compute(w.items)
	w.evictOldest()
	return result, true
}

func (w *Window[T, R]) evictOldest() {
	oldest := w.items[0]
	copy(w.items, w.items[1:])

	var zero T
	w.items[len(w.items)-1] = zero
	w.items = w.items[:len(w.items)-1]

	if w.release != nil {
		w.release(oldest)
	}
}

// Len returns the number of buffered items.
func (w *Window[T, R]) Len() int {
	return len(w.items)
}

// Cap returns the configured capacity.
func (w *Window[T, R]) Cap() int {
	return w.cap
}

// Items returns a copy of the buffered items, oldest first.
func (w *Window[T, R]) Items() []T {
	out := make([]T, len(w.items))
	copy(out, w.items)
	return out
}

// Reset drops all buffered items.
func (w *Window[T, R]) Reset() {
	for i, item := range w.items {
		if w.release != nil {
			w.release(item)
		}
		var zero T
		w.items[i] = zero
	}
	w.items = w.items[:0]
}
