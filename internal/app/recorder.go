package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/neurablink/internal/blink"
	"github.com/ayusman/neurablink/internal/store"
)

// recorderQueue is the number of blink events that may wait for the store.
const recorderQueue = 64

// recorder writes blink events to the store on its own goroutine so the
// tick never waits on disk. Events arriving while the queue is full are dropped.
type recorder struct {
	events    *store.EventRepository
	sessionID string
	log       logrus.FieldLogger

	queue   chan blink.Event
	dropped atomic.Uint64
	wg      sync.WaitGroup
}

func newRecorder(events *store.EventRepository, sessionID string, size int, log logrus.FieldLogger) *recorder {
	r := &recorder{
		events:    events,
		sessionID: sessionID,
		log:       log,
		queue:     make(chan blink.Event, size),
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

// record queues ev and reports whether it was accepted.
func (r *recorder) record(ev blink.Event) bool {
	select {
	case r.queue <- ev:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

func (r *recorder) drain() {
	defer r.wg.Done()
	for ev := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := r.events.Add(ctx, &store.BlinkEvent{
			SessionID: r.sessionID,
			Seq:       int64(ev.Seq),
			ChangeMax: ev.Change,
			Threshold: ev.Threshold,
			CreatedAt: ev.At,
		})
		cancel()
		if err != nil {
			r.log.WithError(err).WithField("seq", ev.Seq).Warn("recording blink")
		}
	}
}

// close flushes queued events and waits for the writer.
func (r *recorder) close() {
	close(r.queue)
	r.wg.Wait()
}

func (r *recorder) droppedEvents() uint64 {
	return r.dropped.Load()
}
