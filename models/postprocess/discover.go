package postprocess

import (
	"github.com/nvr-ai/go-yolo/inference/tensor"
)

// Preferred output names, checked before the shape heuristic.
var (
	CoordinateNames = []string{"coordinates", "boxes"}
	ConfidenceNames = []string{"confidence", "scores"}
)

// Outputs is the pair of tensors selected from one inference call.
type Outputs struct {
	// Coordinates holds one row of four box scalars per candidate.
	Coordinates *tensor.Tensor
	// Confidence holds a score per candidate ([D]) or per candidate and class
	// ([D, C]). It may be nil, in which case every row scores 1.0.
	Confidence *tensor.Tensor
}

// PerClass reports whether the confidence tensor carries per-class scores.
func (o Outputs) PerClass() bool {
	return o.Confidence != nil && o.Confidence.Dims() == 2
}

// Discover identifies the coordinate and confidence tensors of a feature set.
//
// Tensors named in CoordinateNames and ConfidenceNames win. When either role
// is still empty, features are scanned in model order: the first 2-D tensor
// whose trailing dimension is 4 becomes the coordinates, the first 1-D tensor
// or 2-D tensor with a trailing dimension above 4 becomes the confidence. A
// role that is already filled is never replaced. When several tensors share
// a shape the first one in model order wins.
//
// Arguments:
//   - fs: The model outputs.
//
// Returns:
//   - Outputs: The selected tensors.
//   - bool: false when no coordinate tensor could be identified.
func Discover(fs *tensor.FeatureSet) (Outputs, bool) {
	var out Outputs
	out.Coordinates = firstNamed(fs, CoordinateNames)
	out.Confidence = firstNamed(fs, ConfidenceNames)

	if out.Coordinates == nil || out.Confidence == nil {
		for _, t := range fs.Tensors() {
			dims, last := t.Dims(), t.Last()
			if out.Coordinates == nil && dims == 2 && last == 4 {
				out.Coordinates = t
			}
			if out.Confidence == nil && (dims == 1 || (dims == 2 && last > 4)) {
				out.Confidence = t
			}
		}
	}

	return out, out.Coordinates != nil
}

func firstNamed(fs *tensor.FeatureSet, names []string) *tensor.Tensor {
	for _, n := range names {
		if t, ok := fs.Get(n); ok {
			return t
		}
	}
	return nil
}
