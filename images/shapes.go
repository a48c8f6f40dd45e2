// Package images - Image geometry and preprocessing utilities.
package images

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Rect is a normalized bounding box with a top-left origin.
//
// X and Y locate the top-left corner, Width and Height extend right and down.
// Every coordinate produced by the decoding pipeline lies in [0, 1].
type Rect struct {
	X      float32 `json:"x"      yaml:"x"`
	Y      float32 `json:"y"      yaml:"y"`
	Width  float32 `json:"width"  yaml:"width"`
	Height float32 `json:"height" yaml:"height"`
}

// RectFromCorners builds a Rect from two opposite corners (x1, y1) and (x2, y2).
func RectFromCorners(x1, y1, x2, y2 float32) Rect {
	return Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// RectFromCenter builds a Rect from a center point and a size.
func RectFromCenter(cx, cy, w, h float32) Rect {
	return Rect{X: cx - w/2, Y: cy - h/2, Width: w, Height: h}
}

// MaxX returns the right edge of the rectangle.
func (r Rect) MaxX() float32 { return r.X + r.Width }

// MaxY returns the bottom edge of the rectangle.
func (r Rect) MaxY() float32 { return r.Y + r.Height }

// Area returns Width*Height, or 0 for degenerate rectangles.
func (r Rect) Area() float32 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// HasPositiveSize reports whether both dimensions are finite and strictly positive.
func (r Rect) HasPositiveSize() bool {
	if math32.IsNaN(r.Width) || math32.IsInf(r.Width, 0) {
		return false
	}
	if math32.IsNaN(r.Height) || math32.IsInf(r.Height, 0) {
		return false
	}
	return r.Width > 0 && r.Height > 0
}

// ClampUnit clamps the rectangle into the unit square.
//
// The origin is clamped to [0, 1] first, then the size is clamped to
// [0, 1-origin] so the box never leaves the frame.
//
// Returns:
//   - Rect: The clamped rectangle.
func (r Rect) ClampUnit() Rect {
	x := clamp(r.X, 0, 1)
	y := clamp(r.Y, 0, 1)
	return Rect{
		X:      x,
		Y:      y,
		Width:  clamp(r.Width, 0, 1-x),
		Height: clamp(r.Height, 0, 1-y),
	}
}

// FlipVertical converts between bottom-left and top-left origins in a unit frame.
func (r Rect) FlipVertical() Rect {
	r.Y = 1 - r.Y - r.Height
	return r
}

// Scale maps a normalized rectangle to pixel space of a w x h frame.
func (r Rect) Scale(w, h int) Rect {
	return Rect{
		X:      r.X * float32(w),
		Y:      r.Y * float32(h),
		Width:  r.Width * float32(w),
		Height: r.Height * float32(h),
	}
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f, %.4f)", r.X, r.Y, r.Width, r.Height)
}

// CalculateIoU measures the overlap of two rectangles as
// Area(intersection) / Area(union).
//
// A value of 1.0 means the rectangles are identical, 0.0 means they do not
// overlap at all. Touching edges count as no overlap.
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	a := Rect{X: 0, Y: 0, Width: 0.1, Height: 0.1}
//	b := Rect{X: 0.05, Y: 0.05, Width: 0.1, Height: 0.1}
//	iou := CalculateIoU(a, b) // 0.0025 / (0.01 + 0.01 - 0.0025) = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	// The intersection starts at the larger of the two origins and ends at the
	// smaller of the two far edges.
	ix1 := math32.Max(r.X, o.X)
	iy1 := math32.Max(r.Y, o.Y)
	ix2 := math32.Min(r.MaxX(), o.MaxX())
	iy2 := math32.Min(r.MaxY(), o.MaxY())

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	// Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}
	return interArea / unionArea
}

func clamp(v, lo, hi float32) float32 {
	if math32.IsNaN(v) {
		return lo
	}
	return math32.Max(lo, math32.Min(hi, v))
}
