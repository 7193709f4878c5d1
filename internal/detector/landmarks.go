// Package detector provides eye landmark detection and eye-region geometry.
package detector

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Side identifies one eye.
type Side int

const (
	Left Side = iota
	Right
)

// String returns "left" or "right".
func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// Sides lists both eyes in a fixed order.
var Sides = [2]Side{Left, Right}

// PointsPerEye is the number of contour landmarks per eye in the reference model.
const PointsPerEye = 6

// Face mesh landmark indices of the eye contours.
// See: https://github.com/google/mediapipe/blob/master/mediapipe/modules/face_geometry/data/canonical_face_model_uv_visualization.png
var (
	LeftEyeIndices  = [PointsPerEye]int{33, 160, 158, 133, 153, 144}
	RightEyeIndices = [PointsPerEye]int{362, 385, 387, 263, 373, 380}
)

// maskValue is written inside eye polygons.
var maskValue = color.RGBA{R: 255, G: 255, B: 255, A: 0}

// EyeLandmarks holds the pixel contours of both eyes for one frame.
type EyeLandmarks struct {
	Left  []image.Point `json:"left_eye"`
	Right []image.Point `json:"right_eye"`
}

// Points returns the contour of the given side.
func (e EyeLandmarks) Points(side Side) []image.Point {
	if side == Right {
		return e.Right
	}
	return e.Left
}

// Empty reports whether the given side was not detected.
func (e EyeLandmarks) Empty(side Side) bool {
	return len(e.Points(side)) == 0
}

// Detected reports whether both eyes are present.
func (e EyeLandmarks) Detected() bool {
	return !e.Empty(Left) && !e.Empty(Right)
}

// With returns a copy of e whose contour for side is replaced by pts.
func (e EyeLandmarks) With(side Side, pts []image.Point) EyeLandmarks {
	cp := make([]image.Point, len(pts))
	copy(cp, pts)
	if side == Right {
		e.Right = cp
	} else {
		e.Left = cp
	}
	return e
}

// BoundingBox returns the smallest rectangle containing the contour of side.
// It returns the zero rectangle if the side is empty.
func (e EyeLandmarks) BoundingBox(side Side) image.Rectangle {
	pts := e.Points(side)
	if len(pts) == 0 {
		return image.Rectangle{}
	}

	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}

	// Rectangle.Max is exclusive.
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// Center returns the centroid of the contour of side.
func (e EyeLandmarks) Center(side Side) image.Point {
	pts := e.Points(side)
	if len(pts) == 0 {
		return image.Point{}
	}

	var sx, sy int
	for _, p := range pts {
		sx += p.X
		sy += p.Y
	}
	return image.Point{X: sx / len(pts), Y: sy / len(pts)}
}

// VerticalExtent returns max-y minus min-y of the contour of side.
func (e EyeLandmarks) VerticalExtent(side Side) int {
	pts := e.Points(side)
	if len(pts) == 0 {
		return 0
	}

	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts[1:] {
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}
	return maxY - minY
}

// EyeMask returns a single channel mask with the frame's size that is 255
// inside the eye polygon of side and 0 elsewhere.
// The caller is responsible for closing the returned Mat.
func EyeMask(frame gocv.Mat, eyes EyeLandmarks, side Side) gocv.Mat {
	mask := gocv.Zeros(frame.Rows(), frame.Cols(), gocv.MatTypeCV8UC1)
	fillEye(&mask, eyes.Points(side))
	return mask
}

// CombinedMask returns a mask covering both eyes.
// Following the reference detector, the mask stays empty unless both eyes are present.
// The caller is responsible for closing the returned Mat.
func CombinedMask(frame gocv.Mat, eyes EyeLandmarks) gocv.Mat {
	mask := gocv.Zeros(frame.Rows(), frame.Cols(), gocv.MatTypeCV8UC1)
	if eyes.Detected() {
		fillEye(&mask, eyes.Left)
		fillEye(&mask, eyes.Right)
	}
	return mask
}

func fillEye(mask *gocv.Mat, pts []image.Point) {
	if len(pts) < 3 {
		return
	}

	pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pv.Close()
	gocv.FillPoly(mask, pv, maskValue)
}

// fromNormalized converts normalized face mesh points to eye contours in pixels.
// Returns empty contours if the mesh does not contain the eye indices.
func fromNormalized(points []jsonPoint, width, height int) EyeLandmarks {
	pick := func(indices [PointsPerEye]int) []image.Point {
		out := make([]image.Point, 0, PointsPerEye)
		for _, i := range indices {
			if i >= len(points) {
				return nil
			}
			out = append(out, image.Point{
				X: int(points[i].X * float64(width)),
				Y: int(points[i].Y * float64(height)),
			})
		}
		return out
	}

	return EyeLandmarks{
		Left:  pick(LeftEyeIndices),
		Right: pick(RightEyeIndices),
	}
}
