// Package testdata builds synthetic face frames for tests.
package testdata

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/neurablink/internal/detector"
)

// Frame geometry used by all fixtures.
const (
	Width  = 640
	Height = 480
)

var (
	// Skin is the background color of every fixture frame.
	Skin = color.RGBA{R: 200, G: 170, B: 150}
	// Iris is painted inside open eyes.
	Iris = color.RGBA{R: 40, G: 30, B: 20}
)

// SolidFrame returns a frame filled with c.
// The caller is responsible for closing the returned Mat.
func SolidFrame(c color.RGBA) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0),
		Height, Width, gocv.MatTypeCV8UC3,
	)
}

// OpenEyesFrame returns a skin frame with dark eyes at the mock detector's positions.
func OpenEyesFrame() gocv.Mat {
	frame := SolidFrame(Skin)
	eyes := detector.OpenEyeLandmarks()
	for _, side := range detector.Sides {
		pv := gocv.NewPointsVectorFromPoints([][]image.Point{eyes.Points(side)})
		gocv.FillPoly(&frame, pv, Iris)
		pv.Close()
	}
	return frame
}

// ClosedEyesFrame returns a frame where the eyelids cover the eyes.
func ClosedEyesFrame() gocv.Mat {
	return SolidFrame(Skin)
}

// Blink is one scripted tick: whether the eyes are open and what the landmark provider reports.
type Blink struct {
	Open bool
	Eyes detector.EyeLandmarks
}

// BlinkScript returns n ticks with open eyes except at the given indices, where the eyes close.
// Closed ticks report the flattened contour of ClosedEyeLandmarks.
func BlinkScript(n int, closedAt ...int) []Blink {
	closed := make(map[int]bool, len(closedAt))
	for _, i := range closedAt {
		closed[i] = true
	}

	script := make([]Blink, n)
	for i := range script {
		script[i] = Blink{Open: !closed[i], Eyes: detector.OpenEyeLandmarks()}
		if closed[i] {
			script[i].Eyes = detector.ClosedEyeLandmarks()
		}
	}
	return script
}

// Frames renders a script. The caller must close every returned Mat.
func Frames(script []Blink) []*gocv.Mat {
	frames := make([]*gocv.Mat, len(script))
	for i, b := range script {
		var m gocv.Mat
		if b.Open {
			m = OpenEyesFrame()
		} else {
			m = ClosedEyesFrame()
		}
		frames[i] = &m
	}
	return frames
}

// Landmarks returns the landmark sequence of a script.
func Landmarks(script []Blink) []detector.EyeLandmarks {
	out := make([]detector.EyeLandmarks, len(script))
	for i, b := range script {
		out[i] = b.Eyes
	}
	return out
}

// CloseAll closes every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		if f != nil {
			f.Close()
		}
	}
}
