package images

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// Letterbox records how a source image was fitted into a fixed model input.
type Letterbox struct {
	// SrcWidth and SrcHeight are the dimensions of the original image.
	SrcWidth, SrcHeight int
	// DstWidth and DstHeight are the dimensions of the model input.
	DstWidth, DstHeight int
	// Content is the region of the model input covered by the scaled image.
	Content image.Rectangle
}

// LetterboxFit scales img to fit inside width x height while preserving its
// aspect ratio and pads the remainder with transparent pixels.
//
// The scaled image is centered along the padded axis.
//
// Arguments:
//   - img: The source image.
//   - width: The model input width.
//   - height: The model input height.
//
// Returns:
//   - *image.NRGBA: The letterboxed image, exactly width x height.
//   - Letterbox: The mapping needed to bring boxes back to source space.
func LetterboxFit(img image.Image, width, height int) (*image.NRGBA, Letterbox) {
	bounds := img.Bounds()
	lb := Letterbox{
		SrcWidth:  bounds.Dx(),
		SrcHeight: bounds.Dy(),
		DstWidth:  width,
		DstHeight: height,
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	if lb.SrcWidth <= 0 || lb.SrcHeight <= 0 || width <= 0 || height <= 0 {
		lb.Content = dst.Bounds()
		return dst, lb
	}

	imageAspect := float64(lb.SrcWidth) / float64(lb.SrcHeight)
	targetAspect := float64(width) / float64(height)

	var content image.Rectangle
	if imageAspect > targetAspect {
		h := int(float64(width)/imageAspect + 0.5)
		h = max(1, min(h, height))
		y := (height - h) / 2
		content = image.Rect(0, y, width, y+h)
	} else {
		w := int(float64(height)*imageAspect + 0.5)
		w = max(1, min(w, width))
		x := (width - w) / 2
		content = image.Rect(x, 0, x+w, height)
	}
	lb.Content = content

	scaled := resize.Resize(uint(content.Dx()), uint(content.Dy()), img, resize.Bilinear)
	draw.Draw(dst, content, scaled, scaled.Bounds().Min, draw.Src)

	return dst, lb
}

// Unmap converts a rectangle normalized to the model input into a rectangle
// normalized to the source image, removing the letterbox padding.
//
// The result is clamped to the unit square.
func (l Letterbox) Unmap(r Rect) Rect {
	if l.DstWidth <= 0 || l.DstHeight <= 0 || l.Content.Dx() <= 0 || l.Content.Dy() <= 0 {
		return r.ClampUnit()
	}
	px := r.Scale(l.DstWidth, l.DstHeight)
	cw := float32(l.Content.Dx())
	ch := float32(l.Content.Dy())
	out := Rect{
		X:      (px.X - float32(l.Content.Min.X)) / cw,
		Y:      (px.Y - float32(l.Content.Min.Y)) / ch,
		Width:  px.Width / cw,
		Height: px.Height / ch,
	}
	// Clip against the content area before clamping so padding never widens a box.
	x2 := clamp(out.MaxX(), 0, 1)
	y2 := clamp(out.MaxY(), 0, 1)
	x1 := clamp(out.X, 0, 1)
	y1 := clamp(out.Y, 0, 1)
	return RectFromCorners(x1, y1, max(x1, x2), max(y1, y2))
}

// IsIdentity reports whether the letterbox introduced no padding.
func (l Letterbox) IsIdentity() bool {
	return l.Content == image.Rect(0, 0, l.DstWidth, l.DstHeight)
}
