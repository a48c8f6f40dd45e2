package images

import (
	"fmt"
	"image"
)

// ToCHW writes img into dst as planar float32 RGB scaled to [0, 1].
//
// dst must hold at least 3*W*H values laid out as [R-plane, G-plane, B-plane],
// matching an NCHW model input with a batch size of one. Transparent padding
// reads as black.
//
// Arguments:
//   - img: The image to convert, typically the output of LetterboxFit.
//   - dst: The destination tensor data.
//
// Returns:
//   - error: An error if dst is too small.
func ToCHW(img image.Image, dst []float32) error {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	channelSize := w * h
	if len(dst) < channelSize*3 {
		return fmt.Errorf("destination tensor only holds %d floats, needs %d", len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	if nrgba, ok := img.(*image.NRGBA); ok {
		i := 0
		for y := 0; y < h; y++ {
			row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
			for x := 0; x < w; x++ {
				a := float32(row[x*4+3]) / 255.0
				red[i] = float32(row[x*4]) / 255.0 * a
				green[i] = float32(row[x*4+1]) / 255.0 * a
				blue[i] = float32(row[x*4+2]) / 255.0 * a
				i++
			}
		}
		return nil
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}
