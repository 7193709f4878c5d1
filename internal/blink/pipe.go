package blink

import (
	"gocv.io/x/gocv"

	"github.com/ayusman/neurablink/internal/detector"
	"github.com/ayusman/neurablink/internal/extractor"
	"github.com/ayusman/neurablink/internal/window"
)

// DefaultWindowSize is the number of consecutive frames per evaluation.
const DefaultWindowSize = 2

// Pipe feeds frames through a sliding window into a Detector: every push
// appends a snapshot of the frame, and once the window is full each push
// evaluates the detector exactly once.
//
// Pipe owns the Mats it buffers. It is not safe for concurrent use.
type Pipe struct {
	detector *Detector
	window   *window.Window[extractor.Frame, bool]
}

// NewPipe wraps d behind a window of size frames. Sizes below 2 become DefaultWindowSize.
func NewPipe(d *Detector, size int) *Pipe {
	if size < 2 {
		size = DefaultWindowSize
	}
	return &Pipe{
		detector: d,
		window: window.New(size, d.Detect,
			window.WithClone[extractor.Frame, bool](cloneFrame),
			window.WithRelease[extractor.Frame, bool](releaseFrame),
		),
	}
}

// Push adds frame and returns the detection result. evaluated is false while
// the window is still filling.
func (p *Pipe) Push(frame extractor.Frame) (blink, evaluated bool) {
	return p.window.Push(frame)
}

// Detector returns the wrapped detector.
func (p *Pipe) Detector() *Detector { return p.detector }

// Len returns the number of buffered frames.
func (p *Pipe) Len() int { return p.window.Len() }

// Size returns the window size.
func (p *Pipe) Size() int { return p.window.Cap() }

// Close releases every buffered frame.
func (p *Pipe) Close() {
	p.window.Reset()
}

// cloneFrame deep-copies the image so callers may paint on theirs afterwards.
func cloneFrame(f extractor.Frame) extractor.Frame {
	if f.Image.Ptr() != nil && !f.Image.Empty() {
		f.Image = f.Image.Clone()
	} else {
		f.Image = gocv.Mat{}
	}
	f.Eyes = f.Eyes.With(detector.Left, f.Eyes.Left).With(detector.Right, f.Eyes.Right)
	return f
}

func releaseFrame(f extractor.Frame) {
	if f.Image.Ptr() != nil {
		f.Image.Close()
	}
}
