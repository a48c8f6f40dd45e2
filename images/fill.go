package images

import (
	"image"

	"github.com/disintegration/imaging"
)

// Fill stretches img to exactly width x height, ignoring its aspect ratio.
//
// Boxes predicted on the result are already normalized to the source image.
func Fill(img image.Image, width, height int) *image.NRGBA {
	return imaging.Resize(img, width, height, imaging.Linear)
}
