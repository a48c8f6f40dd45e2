package benchmark

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/nvr-ai/go-yolo/images"
)

// Encode encodes img in the given format.
func Encode(img image.Image, format images.ImageFormat) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case images.FormatJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90))
	case images.FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	case images.FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: 90})
	default:
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// Synthetic draws a gradient frame with a few solid blocks, used when no
// corpus is given.
func Synthetic(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / width), G: uint8(y * 255 / height), B: 96, A: 255})
		}
	}
	block := color.NRGBA{R: 220, G: 40, B: 40, A: 255}
	for i := 1; i <= 3; i++ {
		at := image.Pt(width*i/5, height*i/5)
		img = imaging.Paste(img, imaging.New(max(width/8, 1), max(height/6, 1), block), at)
	}
	return img
}
