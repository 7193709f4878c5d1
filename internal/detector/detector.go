package detector

import "gocv.io/x/gocv"

// Detector defines the interface for eye landmark providers.
type Detector interface {
	// Detect analyzes a video frame and returns the eye contours of the first face.
	// A side that was not found is returned as an empty slice, never as an error.
	Detect(frame *gocv.Mat) (EyeLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for face mesh detection.
type Config struct {
	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// RefineLandmarks enables the iris-refined face mesh model.
	RefineLandmarks bool
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		RefineLandmarks: true,
	}
}
