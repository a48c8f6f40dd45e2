package postprocess

import (
	"math"

	"github.com/nvr-ai/go-yolo/images"
)

// Box format names accepted in model metadata under MetadataBoxFormat.
const (
	FormatCenter         = "xywh"
	FormatCorner         = "xyxy"
	FormatCornerAbsolute = "xyxy_abs"
)

// CoordinateConvention interprets four raw coordinate scalars as a box.
//
// Implementations only build the candidate; plausibility checks and clamping
// belong to the Decoder.
type CoordinateConvention interface {
	// Name is the box format identifier, e.g. "xywh".
	Name() string
	// Candidate builds an unclamped, normalized box from a coordinate row.
	Candidate(a0, a1, a2, a3 float64) Extent
}

// Extent is an unclamped candidate box kept at the coordinate tensor's
// precision. It is narrowed to an images.Rect only after clamping, so
// magnitudes beyond float32 range still clamp to the frame.
type Extent struct {
	X, Y, Width, Height float64
}

// ExtentOf widens r.
func ExtentOf(r images.Rect) Extent {
	return Extent{X: float64(r.X), Y: float64(r.Y), Width: float64(r.Width), Height: float64(r.Height)}
}

// HasPositiveSize reports whether both dimensions are finite and strictly positive.
func (e Extent) HasPositiveSize() bool {
	if math.IsNaN(e.Width) || math.IsInf(e.Width, 0) {
		return false
	}
	if math.IsNaN(e.Height) || math.IsInf(e.Height, 0) {
		return false
	}
	return e.Width > 0 && e.Height > 0
}

// ClampUnit clamps the origin to [0, 1] and the size to [0, 1-origin], then
// narrows the result.
func (e Extent) ClampUnit() images.Rect {
	x := clampUnit(e.X, 1)
	y := clampUnit(e.Y, 1)
	return images.Rect{
		X:      float32(x),
		Y:      float32(y),
		Width:  float32(clampUnit(e.Width, 1-x)),
		Height: float32(clampUnit(e.Height, 1-y)),
	}
}

func clampUnit(v, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(hi, v))
}

// CenterForm reads (cx, cy, w, h) in normalized units.
type CenterForm struct{}

// Name implements CoordinateConvention.
func (CenterForm) Name() string { return FormatCenter }

// Candidate implements CoordinateConvention.
func (CenterForm) Candidate(cx, cy, w, h float64) Extent {
	return Extent{X: cx - w/2, Y: cy - h/2, Width: w, Height: h}
}

// CornerForm reads (x1, y1, x2, y2). Scale divides every value first, so a
// Scale of 1 reads normalized corners and a Scale of 640 reads pixel corners
// of a 640x640 input.
type CornerForm struct {
	Scale float32
}

// Name implements CoordinateConvention.
func (c CornerForm) Name() string {
	if c.Scale == 0 || c.Scale == 1 {
		return FormatCorner
	}
	return FormatCornerAbsolute
}

// Candidate implements CoordinateConvention.
func (c CornerForm) Candidate(x1, y1, x2, y2 float64) Extent {
	s := float64(c.Scale)
	if s == 0 {
		s = 1
	}
	x1, y1, x2, y2 = x1/s, y1/s, x2/s, y2/s
	return Extent{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// DefaultConventions returns the trial order used when a model does not
// declare its box format: center-form, normalized corners, then absolute
// corners against a square reference of referenceSize pixels.
func DefaultConventions(referenceSize float32) []CoordinateConvention {
	return []CoordinateConvention{
		CenterForm{},
		CornerForm{Scale: 1},
		CornerForm{Scale: referenceSize},
	}
}

// Prioritize moves the convention named format to the front of conventions.
//
// The remaining conventions keep their relative order so they still act as a
// fallback. An unknown format returns conventions unchanged and false.
func Prioritize(conventions []CoordinateConvention, format string) ([]CoordinateConvention, bool) {
	for i, c := range conventions {
		if c.Name() != format {
			continue
		}
		out := make([]CoordinateConvention, 0, len(conventions))
		out = append(out, c)
		out = append(out, conventions[:i]...)
		out = append(out, conventions[i+1:]...)
		return out, true
	}
	return conventions, false
}
