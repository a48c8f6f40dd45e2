package inference

import (
	"errors"

	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// Failures a detection request can run into. They are logged and never
// surfaced through Detect, which degrades to an empty result instead.
var (
	// ErrModelUnavailable means no candidate model artifact could be loaded.
	ErrModelUnavailable = models.ErrModelUnavailable
	// ErrTensorShapeUnrecognized means no output looked like box coordinates.
	ErrTensorShapeUnrecognized = postprocess.ErrNoCoordinates
	// ErrUnsupportedNumericEncoding means an output used an unreadable element type.
	ErrUnsupportedNumericEncoding = postprocess.ErrUnsupportedEncoding
	// ErrImageConversion means the input image could not be prepared for inference.
	ErrImageConversion = errors.New("image conversion failed")
)
