package inference

import (
	"context"
	"image"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/models/model"
)

// ScaleMode selects how the fallback detector fits an image to the model input.
type ScaleMode int

const (
	// ScaleFit preserves the aspect ratio and pads the remainder.
	ScaleFit ScaleMode = iota
	// ScaleFill stretches the image to the input size.
	ScaleFill
)

func (m ScaleMode) String() string {
	switch m {
	case ScaleFit:
		return "fit"
	case ScaleFill:
		return "fill"
	default:
		return "unknown"
	}
}

// Observation is one detection reported by a fallback detector.
type Observation struct {
	// Label is the top label, empty when the detector has none.
	Label string
	// Confidence is the detector's score in [0, 1].
	Confidence float32
	// Box is normalized to the source image.
	Box images.Rect
	// BottomLeft is set when Box uses a bottom-left origin.
	BottomLeft bool
}

// Fallback runs a second object-detection path over the same model when the
// direct decode produces nothing.
type Fallback interface {
	Detect(ctx context.Context, m model.Model, img image.Image, mode ScaleMode) ([]Observation, error)
}

// FallbackFunc adapts a function to the Fallback interface.
type FallbackFunc func(ctx context.Context, m model.Model, img image.Image, mode ScaleMode) ([]Observation, error)

// Detect calls f.
func (f FallbackFunc) Detect(ctx context.Context, m model.Model, img image.Image, mode ScaleMode) ([]Observation, error) {
	return f(ctx, m, img, mode)
}
