// Package postprocess - Decodes raw detector outputs into labelled, normalized boxes.
package postprocess

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/nvr-ai/go-yolo/images"
)

// NoClass marks a detection whose confidence tensor carried no per-class scores.
const NoClass = -1

// Detection represents a single detected object.
type Detection struct {
	// The unique identifier of the detection.
	ID uuid.UUID `json:"id" yaml:"id"`
	// The human-readable label of the detection.
	Label string `json:"label" yaml:"label"`
	// The normalized bounding box with a top-left origin.
	Box images.Rect `json:"box" yaml:"box"`
	// The confidence score in [0, 1].
	Confidence float32 `json:"confidence" yaml:"confidence"`
	// The winning class index, or NoClass.
	Class int `json:"class" yaml:"class"`
}

// NewDetection builds a detection with a fresh identifier.
func NewDetection(label string, box images.Rect, confidence float32, class int) Detection {
	return Detection{
		ID:         uuid.New(),
		Label:      label,
		Box:        box,
		Confidence: confidence,
		Class:      class,
	}
}

func (d Detection) String() string {
	return fmt.Sprintf("%s %.2f %s", d.Label, d.Confidence, d.Box)
}
