package app

import (
	"slices"
	"sync"
	"time"

	"github.com/ayusman/neurablink/internal/blink"
)

// EventType names what an Event reports.
type EventType string

const (
	EventStarted EventType = "started"
	EventStopped EventType = "stopped"
	EventBlink   EventType = "blink"
	// EventDim reports a new overlay opacity.
	EventDim EventType = "dim"
	// EventCamera reports the outcome of SwitchCamera.
	EventCamera EventType = "camera"
)

// Event is broadcast to subscribers. Fields not relevant to Type are zero.
type Event struct {
	Type      EventType    `json:"type"`
	SessionID string       `json:"session_id,omitempty"`
	Blink     *blink.Event `json:"blink,omitempty"`
	Opacity   int          `json:"opacity"`
	CameraID  int          `json:"camera_id,omitempty"`
	OK        bool         `json:"ok,omitempty"`
	Error     string       `json:"error,omitempty"`
	At        time.Time    `json:"at"`
}

// listeners is the subscriber list of an App. Callbacks run on the
// emitting goroutine, usually the tick loop, and must not block.
type listeners struct {
	lmu    sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// Subscribe registers fn for every app event and returns a function that removes it.
func (l *listeners) Subscribe(fn func(Event)) (unsubscribe func()) {
	l.lmu.Lock()
	defer l.lmu.Unlock()

	if l.subs == nil {
		l.subs = make(map[int]func(Event))
	}
	id := l.nextID
	l.nextID++
	l.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.lmu.Lock()
			delete(l.subs, id)
			l.lmu.Unlock()
		})
	}
}

func (l *listeners) emit(ev Event) {
	l.lmu.Lock()
	ids := make([]int, 0, len(l.subs))
	for id := range l.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.subs[id])
	}
	l.lmu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
