// Package extractor turns consecutive eye-region frames into a non-negative
// "change" signal. Six interchangeable strategies share one contract.
package extractor

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ayusman/neurablink/internal/detector"
)

// ErrUnknownKind is returned for extractor names outside the supported set.
var ErrUnknownKind = errors.New("unknown extractor kind")

// DefaultPatchSize is the side length in pixels of the Pixel extractor's patch.
const DefaultPatchSize = 8

// Kind names an extractor strategy.
type Kind string

const (
	// KindIntensity diffs the mean intensity inside both eyes.
	KindIntensity Kind = "intensity"
	// KindSymmetry multiplies the per-eye intensity diffs.
	KindSymmetry Kind = "symmetry"
	// KindSurface sums the per-eye diffs of mask area.
	KindSurface Kind = "surface"
	// KindPixel diffs the mean of a small patch at each eye center.
	KindPixel Kind = "pixel"
	// KindVertical diffs the mean vertical extent of the eye contours.
	KindVertical Kind = "vertical"
	// KindUniformity sums the per-eye diffs of per-channel variance.
	KindUniformity Kind = "uniformity"
)

// Kinds lists every supported strategy.
var Kinds = []Kind{KindIntensity, KindSymmetry, KindSurface, KindPixel, KindVertical, KindUniformity}

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

// Change is the per-tick extractor output, flattened.
// Every element is non-negative.
type Change []float64

// Max returns the largest element, or 0 for an empty change.
func (c Change) Max() float64 {
	m := 0.0
	for _, v := range c {
		m = max(m, v)
	}
	return m
}

// Exceeds reports whether any element is strictly greater than threshold.
// The uncalibrated threshold -Inf never matches.
func (c Change) Exceeds(threshold float64) bool {
	if math.IsInf(threshold, -1) || math.IsNaN(threshold) {
		return false
	}
	for _, v := range c {
		if v > threshold {
			return true
		}
	}
	return false
}

// Frame is one tick of input: an image and the eye landmarks found in it.
type Frame struct {
	Seq   uint64
	Image gocv.Mat
	Eyes  detector.EyeLandmarks
}

// Extractor computes a Change from consecutive frames, oldest first.
// Implementations keep the last valid eye geometry so that a frame with
// missing landmarks reuses it instead of failing.
type Extractor interface {
	Kind() Kind
	Compute(frames []Frame) Change
}

// Options configures extractors.
type Options struct {
	// PatchSize is used by KindPixel. Zero selects DefaultPatchSize.
	PatchSize int
}

// New creates an extractor of the given kind.
func New(kind Kind, opts Options) (Extractor, error) {
	if opts.PatchSize <= 0 {
		opts.PatchSize = DefaultPatchSize
	}

	var s strategy
	switch kind {
	case KindIntensity:
		s = strategy{summarize: intensitySummary, combine: absDiff}
	case KindSymmetry:
		s = strategy{summarize: sideIntensitySummary, combine: productDiff}
	case KindSurface:
		s = strategy{summarize: surfaceSummary, combine: sumDiff}
	case KindPixel:
		size := opts.PatchSize
		s = strategy{
			summarize: func(img gocv.Mat, eyes detector.EyeLandmarks) []float64 {
				return pixelSummary(img, eyes, size)
			},
			combine: absDiff,
		}
	case KindVertical:
		s = strategy{summarize: verticalSummary, combine: absDiff}
	case KindUniformity:
		s = strategy{summarize: uniformitySummary, combine: channelSumDiff}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return &extractor{kind: kind, strategy: s}, nil
}

// strategy pairs a per-frame summary with the rule that turns two summaries into a change.
type strategy struct {
	summarize func(img gocv.Mat, eyes detector.EyeLandmarks) []float64
	combine   func(prev, cur []float64) []float64
}

type extractor struct {
	kind Kind
	strategy
	geometry fallback

	// memo of the newest frame's summary, reused when it becomes the oldest frame next tick
	memoSeq     uint64
	memoSummary []float64
}

func (e *extractor) Kind() Kind { return e.kind }

// Compute returns the concatenated consecutive diffs of the frames' summaries.
// Fewer than two frames yield an empty change.
func (e *extractor) Compute(frames []Frame) Change {
	if len(frames) == 0 {
		return Change{}
	}

	eyes := e.geometry.resolve(frames)

	summaries := make([][]float64, len(frames))
	for i, f := range frames {
		if f.Seq != 0 && f.Seq == e.memoSeq && e.memoSummary != nil {
			summaries[i] = e.memoSummary
			continue
		}
		summaries[i] = e.summarize(f.Image, eyes[i])
	}

	last := frames[len(frames)-1]
	e.memoSeq = last.Seq
	e.memoSummary = summaries[len(summaries)-1]

	change := make(Change, 0, len(frames)-1)
	for i := 1; i < len(summaries); i++ {
		for _, v := range e.combine(summaries[i-1], summaries[i]) {
			if math.IsNaN(v) {
				v = 0
			}
			change = append(change, v)
		}
	}
	return change
}

func absDiff(prev, cur []float64) []float64 {
	out := make([]float64, len(cur))
	for i := range cur {
		out[i] = math.Abs(cur[i] - prev[i])
	}
	return out
}

// productDiff multiplies the left and right diffs, so only a change in both eyes counts.
func productDiff(prev, cur []float64) []float64 {
	d := absDiff(prev, cur)
	return []float64{d[0] * d[1]}
}

func sumDiff(prev, cur []float64) []float64 {
	total := 0.0
	for _, v := range absDiff(prev, cur) {
		total += v
	}
	return []float64{total}
}

// channelSumDiff expects [left channels..., right channels...] and sums matching channels.
func channelSumDiff(prev, cur []float64) []float64 {
	d := absDiff(prev, cur)
	half := len(d) / 2
	out := make([]float64, half)
	for c := 0; c < half; c++ {
		out[c] = d[c] + d[half+c]
	}
	return out
}
