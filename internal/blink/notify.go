package blink

import (
	"slices"
	"sync"
	"time"
)

// Event describes one detected blink.
type Event struct {
	// Seq is the sequence number of the newest frame in the evaluated window.
	Seq uint64 `json:"seq"`
	// Change is the largest element of the change that crossed the threshold.
	Change    float64   `json:"change"`
	Threshold float64   `json:"threshold"`
	At        time.Time `json:"at"`
}

// Notifier is an observer list of blink subscribers.
// Subscribers run synchronously on the detecting goroutine and must not block.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// Subscribe registers fn and returns a function that removes it.
func (n *Notifier) Subscribe(fn func(Event)) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subs == nil {
		n.subs = make(map[int]func(Event))
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// Subscribers returns the number of registered subscribers.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

func (n *Notifier) notify(ev Event) {
	n.mu.Lock()
	ids := make([]int, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Event), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, n.subs[id])
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
