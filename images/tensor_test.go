package images

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCHW(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 51, A: 255})
	// Fully transparent padding reads as black.
	img.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 0})

	dst := make([]float32, 6)
	require.NoError(t, ToCHW(img, dst))

	assert.InDelta(t, 1.0, dst[0], 1e-6) // R(0,0)
	assert.InDelta(t, 0.0, dst[1], 1e-6) // R(1,0)
	assert.InDelta(t, 0.0, dst[2], 1e-6) // G(0,0)
	assert.InDelta(t, 0.0, dst[3], 1e-6) // G(1,0)
	assert.InDelta(t, 0.2, dst[4], 1e-6) // B(0,0)
	assert.InDelta(t, 0.0, dst[5], 1e-6) // B(1,0)
}

func TestToCHW_GenericImage(t *testing.T) {
	img := solidImage(3, 2, color.RGBA{R: 0, G: 255, B: 0, A: 255})

	dst := make([]float32, 18)
	require.NoError(t, ToCHW(img, dst))
	for i := 0; i < 6; i++ {
		assert.InDelta(t, 0.0, dst[i], 1e-6)
		assert.InDelta(t, 1.0, dst[6+i], 1e-6)
		assert.InDelta(t, 0.0, dst[12+i], 1e-6)
	}
}

func TestToCHW_ShortBuffer(t *testing.T) {
	img := solidImage(4, 4, color.Black)
	assert.Error(t, ToCHW(img, make([]float32, 10)))
}
