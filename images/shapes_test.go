package images

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIoU_Correctness validates the IoU implementation against known test cases
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		r1       Rect
		r2       Rect
		expected float32
	}{
		{"Identical rectangles", Rect{0, 0, 0.5, 0.5}, Rect{0, 0, 0.5, 0.5}, 1.0},
		{"No overlap", Rect{0, 0, 0.1, 0.1}, Rect{0.2, 0.2, 0.1, 0.1}, 0.0},
		{"Touching edges", Rect{0, 0, 0.1, 0.1}, Rect{0.1, 0, 0.1, 0.1}, 0.0},
		// intersection=0.0025, union=0.01+0.01-0.0025=0.0175
		{"Half overlap", Rect{0, 0, 0.1, 0.1}, Rect{0.05, 0.05, 0.1, 0.1}, 0.142857},
		{"One inside other", Rect{0, 0, 0.4, 0.4}, Rect{0.1, 0.1, 0.2, 0.2}, 0.25},
		{"Degenerate", Rect{0, 0, 0, 0}, Rect{0, 0, 0, 0}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateIoU(tt.r1, tt.r2)
			assert.InDelta(t, tt.expected, result, 0.001)

			// IoU(A, B) should equal IoU(B, A)
			reverse := CalculateIoU(tt.r2, tt.r1)
			assert.InDelta(t, result, reverse, 1e-6, "IoU not symmetric")
		})
	}
}

func TestRectClampUnit(t *testing.T) {
	tests := []struct {
		name string
		in   Rect
		want Rect
	}{
		{"inside", Rect{0.1, 0.2, 0.3, 0.4}, Rect{0.1, 0.2, 0.3, 0.4}},
		{"negative origin", Rect{-0.2, -0.1, 0.5, 0.5}, Rect{0, 0, 0.5, 0.5}},
		{"overflowing size", Rect{0.8, 0.9, 0.5, 0.5}, Rect{0.8, 0.9, 0.2, 0.1}},
		{"origin past frame", Rect{1.5, 0.5, 0.2, 0.2}, Rect{1, 0.5, 0, 0.2}},
		{"nan origin", Rect{float32(math.NaN()), 0.5, 0.2, 0.2}, Rect{0, 0.5, 0.2, 0.2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.ClampUnit()
			assert.InDelta(t, tt.want.X, got.X, 1e-6)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-6)
			assert.InDelta(t, tt.want.Width, got.Width, 1e-6)
			assert.InDelta(t, tt.want.Height, got.Height, 1e-6)
			assert.LessOrEqual(t, got.MaxX(), float32(1.0)+1e-6)
			assert.LessOrEqual(t, got.MaxY(), float32(1.0)+1e-6)
		})
	}
}

func TestRectHasPositiveSize(t *testing.T) {
	inf := float32(math.Inf(1))
	assert.True(t, Rect{0, 0, 0.1, 0.1}.HasPositiveSize())
	assert.False(t, Rect{0, 0, 0, 0.1}.HasPositiveSize())
	assert.False(t, Rect{0, 0, -0.1, 0.1}.HasPositiveSize())
	assert.False(t, Rect{0, 0, inf, 0.1}.HasPositiveSize())
	assert.False(t, Rect{0, 0, 0.1, float32(math.NaN())}.HasPositiveSize())
}

func TestRectFlipVertical(t *testing.T) {
	r := Rect{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4}
	flipped := r.FlipVertical()
	assert.InDelta(t, 0.4, flipped.Y, 1e-6)
	assert.Equal(t, r.X, flipped.X)
	assert.InDelta(t, r.Y, flipped.FlipVertical().Y, 1e-6)
}

func TestRectConstructors(t *testing.T) {
	c := RectFromCenter(0.5, 0.5, 0.2, 0.4)
	assert.InDelta(t, 0.4, c.X, 1e-6)
	assert.InDelta(t, 0.3, c.Y, 1e-6)

	k := RectFromCorners(0.1, 0.2, 0.4, 0.8)
	assert.InDelta(t, 0.3, k.Width, 1e-6)
	assert.InDelta(t, 0.6, k.Height, 1e-6)
}
