// Package calibrate derives a blink threshold from a quantile of recently
// observed change values. Three policies are provided: one-shot, periodic
// reset and continuous rolling recalibration.
package calibrate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ayusman/neurablink/internal/extractor"
)

var (
	// ErrUnknownKind is returned for calibrator names outside the supported set.
	ErrUnknownKind = errors.New("unknown calibrator kind")
	// ErrInvalidOptions is returned when Options cannot describe a working calibrator.
	ErrInvalidOptions = errors.New("invalid calibrator options")
)

// Defaults used when Options leave a field zero.
const (
	DefaultBufferSize    = 500
	DefaultQuantile      = 0.95
	DefaultEveryNthFrame = 1500
)

// Kind names a calibration policy.
type Kind string

const (
	KindOneTime    Kind = "onetime"
	KindPeriodic   Kind = "periodic"
	KindContinuous Kind = "continuous"
)

// Kinds lists every supported policy.
var Kinds = []Kind{KindOneTime, KindPeriodic, KindContinuous}

// ParseKind converts a name to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Uncalibrated is the threshold reported while the buffer is filling.
// No change value compares greater than it.
var Uncalibrated = math.Inf(-1)

// Options configures a calibrator.
type Options struct {
	// BufferSize is the number of observations a threshold is computed from.
	BufferSize int
	// Quantile is in the open interval (0, 1).
	Quantile float64
	// EveryNthFrame is the reset period of KindPeriodic, in observations.
	// It must not be smaller than BufferSize.
	EveryNthFrame int
}

func (o *Options) applyDefaults() {
	if o.BufferSize == 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.Quantile == 0 {
		o.Quantile = DefaultQuantile
	}
	if o.EveryNthFrame == 0 {
		o.EveryNthFrame = max(DefaultEveryNthFrame, o.BufferSize)
	}
}

func (o Options) validate(kind Kind) error {
	if o.BufferSize < 1 {
		return fmt.Errorf("%w: buffer size %d", ErrInvalidOptions, o.BufferSize)
	}
	if err := checkQuantile(o.Quantile); err != nil {
		return err
	}
	if kind == KindPeriodic && o.EveryNthFrame < o.BufferSize {
		return fmt.Errorf("%w: reset period %d is shorter than buffer size %d",
			ErrInvalidOptions, o.EveryNthFrame, o.BufferSize)
	}
	return nil
}

func checkQuantile(q float64) error {
	if !(q > 0 && q < 1) {
		return fmt.Errorf("%w: quantile %v outside (0, 1)", ErrInvalidOptions, q)
	}
	return nil
}

// Calibrator consumes one change per tick and returns the threshold to compare it against.
type Calibrator interface {
	Kind() Kind
	// Observe records change and returns the current threshold, which is
	// Uncalibrated until enough observations have been collected.
	Observe(change extractor.Change) float64
	// State exposes the calibration state for sensitivity updates between ticks.
	State() *State
	// Reset discards all observations and the threshold.
	Reset()
}

// New creates a calibrator of the given kind.
func New(kind Kind, opts Options) (Calibrator, error) {
	opts.applyDefaults()
	if err := opts.validate(kind); err != nil {
		return nil, err
	}

	st := newState(opts.BufferSize, opts.Quantile)
	switch kind {
	case KindOneTime:
		return &oneTime{st: st}, nil
	case KindPeriodic:
		return &periodic{oneTime: oneTime{st: st}, every: opts.EveryNthFrame}, nil
	case KindContinuous:
		return &continuous{st: st}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// oneTime fills the buffer once and freezes the threshold computed on the filling call.
type oneTime struct {
	st *State
}

func (c *oneTime) Kind() Kind    { return KindOneTime }
func (c *oneTime) State() *State { return c.st }
func (c *oneTime) Reset()        { c.st.reset() }

func (c *oneTime) Observe(change extractor.Change) float64 {
	c.st.ticks++
	if c.st.Full() {
		return c.st.threshold
	}
	c.st.push(change)
	if c.st.Full() {
		c.st.recompute()
	}
	return c.st.threshold
}

// periodic behaves like oneTime and starts over every `every` observations.
type periodic struct {
	oneTime
	every int
}

func (c *periodic) Kind() Kind { return KindPeriodic }

func (c *periodic) Observe(change extractor.Change) float64 {
	threshold := c.oneTime.Observe(change)
	if c.st.ticks >= c.every {
		c.st.reset()
	}
	return threshold
}

// continuous recomputes on every observation once full, evicting the oldest.
type continuous struct {
	st *State
}

func (c *continuous) Kind() Kind    { return KindContinuous }
func (c *continuous) State() *State { return c.st }
func (c *continuous) Reset()        { c.st.reset() }

func (c *continuous) Observe(change extractor.Change) float64 {
	c.st.ticks++
	if c.st.Full() {
		c.st.evict()
	}
	c.st.push(change)
	if c.st.Full() {
		c.st.recompute()
	}
	return c.st.threshold
}
