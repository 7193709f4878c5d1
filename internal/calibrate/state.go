package calibrate

import (
	"math"
	"slices"

	"github.com/ayusman/neurablink/internal/extractor"
)

// State is the calibration state shared by a calibrator and whoever adjusts
// its sensitivity. It is not safe for concurrent use: SetQuantile must be
// called between ticks, never during Observe.
type State struct {
	size      int
	buffer    []extractor.Change
	threshold float64
	quantile  float64
	ticks     int
}

func newState(size int, q float64) *State {
	return &State{
		size:      size,
		buffer:    make([]extractor.Change, 0, size),
		threshold: Uncalibrated,
		quantile:  q,
	}
}

// Len returns the number of buffered observations.
func (s *State) Len() int { return len(s.buffer) }

// Cap returns the buffer size.
func (s *State) Cap() int { return s.size }

// Full reports whether a threshold can be computed.
func (s *State) Full() bool { return len(s.buffer) >= s.size }

// Threshold returns the current threshold.
func (s *State) Threshold() float64 { return s.threshold }

// Calibrated reports whether the threshold is finite.
func (s *State) Calibrated() bool { return !math.IsInf(s.threshold, -1) }

// Quantile returns the configured quantile.
func (s *State) Quantile() float64 { return s.quantile }

// Ticks returns the observations since the last reset.
func (s *State) Ticks() int { return s.ticks }

// SetQuantile changes the quantile used by the next threshold computation.
// The buffered observations are kept.
func (s *State) SetQuantile(q float64) error {
	if err := checkQuantile(q); err != nil {
		return err
	}
	s.quantile = q
	return nil
}

func (s *State) push(c extractor.Change) {
	s.buffer = append(s.buffer, slices.Clone(c))
}

func (s *State) evict() {
	if len(s.buffer) == 0 {
		return
	}
	s.buffer[0] = nil
	s.buffer = append(s.buffer[:0], s.buffer[1:]...)
}

func (s *State) recompute() {
	if !s.Full() {
		return
	}
	s.threshold = Quantile(flatten(s.buffer), s.quantile)
}

func (s *State) reset() {
	clear(s.buffer)
	s.buffer = s.buffer[:0]
	s.threshold = Uncalibrated
	s.ticks = 0
}

func flatten(buf []extractor.Change) []float64 {
	n := 0
	for _, c := range buf {
		n += len(c)
	}
	out := make([]float64, 0, n)
	for _, c := range buf {
		out = append(out, c...)
	}
	return out
}

// Quantile returns the q-th quantile of values using linear interpolation
// between closest ranks. It returns Uncalibrated for an empty slice.
// values is reordered.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return Uncalibrated
	}
	slices.Sort(values)

	pos := q * float64(len(values)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return values[lo]
	}
	frac := pos - float64(lo)
	return values[lo] + (values[hi]-values[lo])*frac
}
