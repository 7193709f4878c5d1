package extractor

import (
	"image"

	"github.com/ayusman/neurablink/internal/detector"
)

// fallback remembers the last valid contour per eye.
type fallback struct {
	last [2][]image.Point
}

// resolve returns the eye geometry to use for each frame. A side missing in a
// frame takes the most recent valid contour seen before it, either earlier in
// the window or in a previous call. A side never seen stays empty.
func (f *fallback) resolve(frames []Frame) []detector.EyeLandmarks {
	out := make([]detector.EyeLandmarks, len(frames))
	for i, fr := range frames {
		eyes := fr.Eyes
		for _, side := range detector.Sides {
			if eyes.Empty(side) {
				if prev := f.last[side]; prev != nil {
					eyes = eyes.With(side, prev)
				}
				continue
			}
			f.last[side] = append([]image.Point(nil), eyes.Points(side)...)
		}
		out[i] = eyes
	}
	return out
}
