// Package model - Contracts between the detection pipeline and model backends.
package model

import (
	"context"
	"image"

	"github.com/nvr-ai/go-yolo/inference/tensor"
)

// DefaultInputSize is the square input assumed when a model does not declare one.
const DefaultInputSize = 640

// Scalar input names passed to models that declare them.
const (
	InputConfidenceThreshold = "confidenceThreshold"
	InputIoUThreshold        = "iouThreshold"
)

// Metadata keys read from model creator metadata.
const (
	MetadataNames     = "names"
	MetadataBoxFormat = "box_format"
)

// FeatureKind classifies a model input or output.
type FeatureKind string

const (
	// FeatureImage is a 4-D NCHW image tensor.
	FeatureImage FeatureKind = "image"
	// FeatureScalar is a single number.
	FeatureScalar FeatureKind = "scalar"
	// FeatureTensor is any other multi-dimensional array.
	FeatureTensor FeatureKind = "tensor"
)

// FeatureDescription describes one named model input or output.
type FeatureDescription struct {
	// The feature name.
	Name string `json:"name" yaml:"name"`
	// The feature kind.
	Kind FeatureKind `json:"kind" yaml:"kind"`
	// The declared dimensions. Dynamic dimensions are -1.
	Shape []int64 `json:"shape" yaml:"shape"`
	// The element encoding.
	DataType tensor.DataType `json:"data_type" yaml:"data_type"`
}

// Description is the static interface of a loaded model.
type Description struct {
	// The model inputs in declaration order.
	Inputs []FeatureDescription `json:"inputs" yaml:"inputs"`
	// The model outputs in declaration order.
	Outputs []FeatureDescription `json:"outputs" yaml:"outputs"`
	// The creator defined metadata.
	Metadata map[string]string `json:"metadata" yaml:"metadata"`
}

// ImageInput returns the first image input.
func (d Description) ImageInput() (FeatureDescription, bool) {
	for _, in := range d.Inputs {
		if in.Kind == FeatureImage {
			return in, true
		}
	}
	return FeatureDescription{}, false
}

// InputSize returns the width and height of the image input.
//
// Missing or dynamic dimensions fall back to DefaultInputSize.
func (d Description) InputSize() (width, height int) {
	width, height = DefaultInputSize, DefaultInputSize
	in, ok := d.ImageInput()
	if !ok || len(in.Shape) != 4 {
		return width, height
	}
	if h := in.Shape[2]; h > 0 {
		height = int(h)
	}
	if w := in.Shape[3]; w > 0 {
		width = int(w)
	}
	return width, height
}

// HasInput reports whether the model declares an input called name.
func (d Description) HasInput(name string) bool {
	for _, in := range d.Inputs {
		if in.Name == name {
			return true
		}
	}
	return false
}

// Input is one inference request.
type Input struct {
	// Image is already resized to the model input size.
	Image image.Image
	// Scalars holds the optional scalar inputs by name.
	Scalars map[string]float64
}

// Model is a loaded, ready to run detector.
//
// Implementations must be safe to call from one goroutine at a time; the
// pipeline never runs inference concurrently.
type Model interface {
	// Path is the artifact the model was loaded from.
	Path() string
	// Description returns the model's declared inputs, outputs and metadata.
	Description() Description
	// Predict runs one inference and returns the named outputs in model order.
	Predict(ctx context.Context, in Input) (*tensor.FeatureSet, error)
	// Close releases the backend resources.
	Close() error
}

// Loader turns model artifacts into runnable models.
type Loader interface {
	// Load opens a compiled model artifact.
	Load(ctx context.Context, path string) (Model, error)
	// Compile prepares a raw model artifact and returns the path to load.
	Compile(ctx context.Context, path string) (string, error)
}
