package detector

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It either returns a fixed result or plays back a scripted sequence, one entry per call.
type MockDetector struct {
	mu       sync.Mutex
	eyes     EyeLandmarks
	sequence []EyeLandmarks
	index    int
	loop     bool
	err      error
}

// NewMockDetector creates a new MockDetector returning open eyes.
func NewMockDetector() *MockDetector {
	return &MockDetector{eyes: OpenEyeLandmarks()}
}

// SetLandmarks sets the landmarks returned by every Detect call.
func (m *MockDetector) SetLandmarks(eyes EyeLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eyes = eyes
	m.sequence = nil
}

// SetSequence makes Detect return the given landmarks in order.
// Once exhausted it restarts if loop is set, otherwise it keeps returning the last entry.
func (m *MockDetector) SetSequence(seq []EyeLandmarks, loop bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = seq
	m.index = 0
	m.loop = loop
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the configured landmarks or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (EyeLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return EyeLandmarks{}, m.err
	}

	if len(m.sequence) == 0 {
		return m.eyes, nil
	}

	if m.index >= len(m.sequence) {
		if !m.loop {
			return m.sequence[len(m.sequence)-1], nil
		}
		m.index = 0
	}
	eyes := m.sequence[m.index]
	m.index++
	return eyes, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// OpenEyeLandmarks returns contours of two open eyes on a 640x480 frame.
// The eyes are about 40 px wide and 16 px tall.
func OpenEyeLandmarks() EyeLandmarks {
	return EyeLandmarks{
		Left:  eyeContour(image.Point{X: 240, Y: 200}, 20, 8),
		Right: eyeContour(image.Point{X: 400, Y: 200}, 20, 8),
	}
}

// ClosedEyeLandmarks returns contours of two closed eyes at the same positions as OpenEyeLandmarks.
func ClosedEyeLandmarks() EyeLandmarks {
	return EyeLandmarks{
		Left:  eyeContour(image.Point{X: 240, Y: 200}, 20, 1),
		Right: eyeContour(image.Point{X: 400, Y: 200}, 20, 1),
	}
}

// eyeContour builds a 6 point contour in face mesh order:
// outer corner, two upper lid points, inner corner, two lower lid points.
func eyeContour(c image.Point, halfWidth, halfHeight int) []image.Point {
	third := halfWidth / 3
	return []image.Point{
		{X: c.X - halfWidth, Y: c.Y},
		{X: c.X - third, Y: c.Y - halfHeight},
		{X: c.X + third, Y: c.Y - halfHeight},
		{X: c.X + halfWidth, Y: c.Y},
		{X: c.X + third, Y: c.Y + halfHeight},
		{X: c.X - third, Y: c.Y + halfHeight},
	}
}
