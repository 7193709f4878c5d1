// Package blink turns a stream of eye frames into blink events by combining
// an extractor's change signal with a calibrated threshold.
package blink

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/neurablink/internal/calibrate"
	"github.com/ayusman/neurablink/internal/extractor"
	"github.com/ayusman/neurablink/internal/logging"
)

// State is the calibration state of a Detector.
type State int

const (
	// Uncalibrated means the threshold is -Inf and no blink can be reported.
	Uncalibrated State = iota
	// Calibrated means the calibrator has produced a finite threshold.
	Calibrated
)

func (s State) String() string {
	if s == Calibrated {
		return "calibrated"
	}
	return "uncalibrated"
}

// Detector applies a calibrator's threshold to an extractor's change.
// It is not safe for concurrent use.
type Detector struct {
	Notifier

	extractor  extractor.Extractor
	calibrator calibrate.Calibrator
	now        func() time.Time
	log        logrus.FieldLogger

	threshold float64
	last      extractor.Change
	state     State
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock sets the time source used for Event.At.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Detector) { d.log = log }
}

// NewDetector creates a Detector from an extractor and a calibrator.
func NewDetector(ex extractor.Extractor, cal calibrate.Calibrator, opts ...Option) *Detector {
	d := &Detector{
		extractor:  ex,
		calibrator: cal,
		now:        time.Now,
		threshold:  calibrate.Uncalibrated,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = logging.OrDiscard(d.log)
	return d
}

// Detect evaluates one window of frames, oldest first. It returns true when
// any element of the change exceeds the threshold, and then notifies
// subscribers exactly once.
func (d *Detector) Detect(frames []extractor.Frame) bool {
	change := d.extractor.Compute(frames)
	threshold := d.calibrator.Observe(change)

	d.last = change
	d.threshold = threshold
	d.transition(threshold)

	if !change.Exceeds(threshold) {
		return false
	}

	var seq uint64
	if len(frames) > 0 {
		seq = frames[len(frames)-1].Seq
	}
	d.notify(Event{
		Seq:       seq,
		Change:    change.Max(),
		Threshold: threshold,
		At:        d.now(),
	})
	return true
}

// transition follows the calibrator. A periodic reset silently returns to Uncalibrated.
func (d *Detector) transition(threshold float64) {
	next := Uncalibrated
	if !math.IsInf(threshold, -1) {
		next = Calibrated
	}
	if next == d.state {
		return
	}
	d.state = next
	d.log.WithFields(logrus.Fields{
		"state":     next,
		"threshold": threshold,
		"extractor": d.extractor.Kind(),
	}).Debug("blink detector state changed")
}

// State returns the current calibration state.
func (d *Detector) State() State { return d.state }

// Threshold returns the threshold used by the last evaluation.
func (d *Detector) Threshold() float64 { return d.threshold }

// LastChange returns the change computed by the last evaluation.
func (d *Detector) LastChange() extractor.Change { return d.last }

// Calibration returns the calibrator's state handle for sensitivity updates.
func (d *Detector) Calibration() *calibrate.State { return d.calibrator.State() }

// Extractor returns the detector's extractor kind.
func (d *Detector) Extractor() extractor.Kind { return d.extractor.Kind() }

// Calibrator returns the detector's calibrator kind.
func (d *Detector) Calibrator() calibrate.Kind { return d.calibrator.Kind() }

// Reset discards the calibration so that detection starts over.
func (d *Detector) Reset() {
	d.calibrator.Reset()
	d.threshold = calibrate.Uncalibrated
	d.last = nil
	d.transition(d.threshold)
}
