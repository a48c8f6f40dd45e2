package detectors

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-yolo/inference/tensor"
	"github.com/nvr-ai/go-yolo/models/model"
)

// GraphFile is the ONNX graph inside a compiled model directory.
const GraphFile = "model.onnx"

// ResolveGraph returns the ONNX graph for a model artifact, which is either
// the graph itself or a directory holding GraphFile.
func ResolveGraph(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrapf(err, "model artifact %s", path)
	}
	if !info.IsDir() {
		return path, nil
	}
	graph := filepath.Join(path, GraphFile)
	if _, err := os.Stat(graph); err != nil {
		return "", errors.Wrapf(err, "compiled model %s has no %s", path, GraphFile)
	}
	return graph, nil
}

func dataType(t ort.TensorElementDataType) tensor.DataType {
	switch t {
	case ort.TensorElementDataTypeFloat:
		return tensor.Float32
	case ort.TensorElementDataTypeDouble:
		return tensor.Float64
	case ort.TensorElementDataTypeFloat16:
		return tensor.Float16
	default:
		return tensor.Unsupported
	}
}

func featureKind(dims []int64, dtype tensor.DataType) model.FeatureKind {
	if len(dims) == 4 && dtype != tensor.Unsupported {
		return model.FeatureImage
	}
	// A free dimension can hold any number of elements.
	elements := int64(1)
	for _, d := range dims {
		if d <= 0 {
			return model.FeatureTensor
		}
		elements *= d
	}
	if len(dims) <= 1 && elements == 1 {
		return model.FeatureScalar
	}
	return model.FeatureTensor
}

func describeFeatures(infos []ort.InputOutputInfo) []model.FeatureDescription {
	features := make([]model.FeatureDescription, 0, len(infos))
	for _, info := range infos {
		dtype := dataType(info.DataType)
		dims := []int64(info.Dimensions)
		features = append(features, model.FeatureDescription{
			Name:     info.Name,
			Kind:     featureKind(dims, dtype),
			Shape:    append([]int64(nil), dims...),
			DataType: dtype,
		})
	}
	return features
}

// describe assembles a model description from graph info and custom metadata.
func describe(inputs, outputs []ort.InputOutputInfo, metadata map[string]string) model.Description {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return model.Description{
		Inputs:   describeFeatures(inputs),
		Outputs:  describeFeatures(outputs),
		Metadata: metadata,
	}
}

func featureNames(features []model.FeatureDescription) []string {
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = f.Name
	}
	return names
}

// concreteShape replaces dynamic dimensions with 1.
func concreteShape(dims []int64) ort.Shape {
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		shape[i] = d
	}
	return shape
}
