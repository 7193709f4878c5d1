package app

import (
	"gocv.io/x/gocv"

	"github.com/ayusman/neurablink/internal/detector"
)

// BGR channel indices painted by the highlighter.
const (
	channelGreen = 1
	channelRed   = 2
)

// highlighter paints the eye regions of the preview: red for a few frames
// after a blink, green otherwise.
type highlighter struct {
	remaining int
}

// persistFrames is how many frames the red highlight lasts at fps.
func persistFrames(fps int, seconds float64) int {
	return max(1, int(float64(fps)*seconds))
}

func (h *highlighter) blink(frames int) {
	h.remaining = frames
}

// paint returns a copy of frame with the eye mask channel set to intensity.
// The caller owns the result. frame itself is not modified.
func (h *highlighter) paint(frame gocv.Mat, eyes detector.EyeLandmarks, intensity int) gocv.Mat {
	channel := channelGreen
	if h.remaining > 0 {
		channel = channelRed
		h.remaining--
	}

	out := frame.Clone()
	if !eyes.Detected() || frame.Channels() < 3 {
		return out
	}

	mask := detector.CombinedMask(frame, eyes)
	defer mask.Close()

	channels := gocv.Split(out)
	defer func() {
		for i := range channels {
			channels[i].Close()
		}
	}()

	fill := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(intensity), 0, 0, 0),
		frame.Rows(), frame.Cols(), gocv.MatTypeCV8U)
	defer fill.Close()

	fill.CopyToWithMask(&channels[channel], mask)
	gocv.Merge(channels, &out)
	return out
}
