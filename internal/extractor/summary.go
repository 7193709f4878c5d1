package extractor

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/neurablink/internal/detector"
)

// channels summarized by the uniformity extractor (BGR)
const colorChannels = 3

// intensitySummary is the mean intensity over all channels inside both eyes.
func intensitySummary(img gocv.Mat, eyes detector.EyeLandmarks) []float64 {
	if isEmpty(img) {
		return []float64{0}
	}

	mask := detector.CombinedMask(img, eyes)
	defer mask.Close()

	return []float64{maskedMean(img, mask)}
}

// sideIntensitySummary is [left mean, right mean].
func sideIntensitySummary(img gocv.Mat, eyes detector.EyeLandmarks) []float64 {
	out := make([]float64, 0, 2)
	for _, side := range detector.Sides {
		if isEmpty(img) {
			out = append(out, 0)
			continue
		}
		mask := detector.EyeMask(img, eyes, side)
		out = append(out, maskedMean(img, mask))
		mask.Close()
	}
	return out
}

// surfaceSummary is [left mask area, right mask area] in pixels.
func surfaceSummary(img gocv.Mat, eyes detector.EyeLandmarks) []float64 {
	out := make([]float64, 0, 2)
	for _, side := range detector.Sides {
		if isEmpty(img) {
			out = append(out, 0)
			continue
		}
		mask := detector.EyeMask(img, eyes, side)
		out = append(out, float64(gocv.CountNonZero(mask)))
		mask.Close()
	}
	return out
}

// pixelSummary is the mean of a size x size patch centered on each eye.
func pixelSummary(img gocv.Mat, eyes detector.EyeLandmarks, size int) []float64 {
	out := make([]float64, 0, 2)
	for _, side := range detector.Sides {
		if isEmpty(img) || eyes.Empty(side) {
			out = append(out, 0)
			continue
		}
		out = append(out, patchMean(img, eyes.Center(side), size))
	}
	return out
}

// verticalSummary is the vertical extent of the contours averaged over the eyes present.
func verticalSummary(_ gocv.Mat, eyes detector.EyeLandmarks) []float64 {
	total, n := 0, 0
	for _, side := range detector.Sides {
		if eyes.Empty(side) {
			continue
		}
		total += eyes.VerticalExtent(side)
		n++
	}
	if n == 0 {
		return []float64{0}
	}
	return []float64{float64(total) / float64(n)}
}

// uniformitySummary is [left B, G, R variance, right B, G, R variance] inside each eye.
func uniformitySummary(img gocv.Mat, eyes detector.EyeLandmarks) []float64 {
	out := make([]float64, 0, 2*colorChannels)
	for _, side := range detector.Sides {
		if isEmpty(img) || eyes.Empty(side) || img.Channels() < colorChannels {
			out = append(out, make([]float64, colorChannels)...)
			continue
		}
		mask := detector.EyeMask(img, eyes, side)
		v := maskedVariance(img, mask, eyes.BoundingBox(side))
		mask.Close()
		out = append(out, v[:]...)
	}
	return out
}

// isEmpty also covers the zero Mat, which has no backing C object.
func isEmpty(img gocv.Mat) bool {
	return img.Ptr() == nil || img.Empty()
}

// maskedMean averages every channel of img over the non-zero pixels of mask.
func maskedMean(img, mask gocv.Mat) float64 {
	if gocv.CountNonZero(mask) == 0 {
		return 0
	}
	return channelMean(img.MeanWithMask(mask), img.Channels())
}

// patchMean averages the patch centered on c, clipped to the image.
func patchMean(img gocv.Mat, c image.Point, size int) float64 {
	half := size / 2
	rect := image.Rect(c.X-half, c.Y-half, c.X-half+size, c.Y-half+size).
		Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if rect.Empty() {
		return 0
	}

	region := img.Region(rect)
	defer region.Close()

	return channelMean(region.Mean(), img.Channels())
}

func channelMean(s gocv.Scalar, channels int) float64 {
	vals := []float64{s.Val1, s.Val2, s.Val3, s.Val4}
	channels = max(1, min(channels, len(vals)))

	total := 0.0
	for _, v := range vals[:channels] {
		total += v
	}
	return total / float64(channels)
}

// maskedVariance returns the population variance of each BGR channel over the
// masked pixels. Only pixels inside box are visited.
func maskedVariance(img, mask gocv.Mat, box image.Rectangle) [colorChannels]float64 {
	var out [colorChannels]float64

	box = box.Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if box.Empty() {
		return out
	}

	var sum, sumSq [colorChannels]float64
	n := 0
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			if mask.GetUCharAt(y, x) == 0 {
				continue
			}
			px := img.GetVecbAt(y, x)
			for c := 0; c < colorChannels; c++ {
				v := float64(px[c])
				sum[c] += v
				sumSq[c] += v * v
			}
			n++
		}
	}
	if n == 0 {
		return out
	}

	for c := 0; c < colorChannels; c++ {
		mean := sum[c] / float64(n)
		out[c] = max(0, sumSq[c]/float64(n)-mean*mean)
	}
	return out
}
