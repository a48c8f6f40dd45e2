package detectors

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo/inference/tensor"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// ErrNoHead is returned when no output looks like a raw detection head.
var ErrNoHead = errors.New("no raw detection head in model outputs")

// SplitHead converts a raw YOLO detection head into separate coordinate and
// confidence tensors.
//
// The head holds 4+C values per candidate: a center-form box in input pixels
// followed by C class scores. Both the channel-first [1, 4+C, N] layout and
// the row-major [1, N, 4+C] layout are accepted, with or without the batch
// axis. The layout is chosen by assuming there are more candidates than
// values per candidate.
//
// Arguments:
//   - head: The raw output tensor.
//   - width: The model input width, used to normalize x and w.
//   - height: The model input height, used to normalize y and h.
//
// Returns:
//   - *tensor.Tensor: The normalized [N, 4] coordinates.
//   - *tensor.Tensor: A [N, C] view of the class scores, or [N] when C is 1.
//   - error: An error if the tensor is not a detection head.
func SplitHead(head *tensor.Tensor, width, height int) (*tensor.Tensor, *tensor.Tensor, error) {
	view := head
	if view.Dims() == 3 {
		if view.Shape()[0] != 1 {
			return nil, nil, errors.Wrapf(ErrNoHead, "batch of %d", view.Shape()[0])
		}
		v, err := view.Select(0, 0)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to drop batch axis")
		}
		view = v
	}
	if view.Dims() != 2 {
		return nil, nil, errors.Wrapf(ErrNoHead, "shape %v", head.Shape())
	}

	shape := view.Shape()
	channelFirst := shape[0] < shape[1]
	if channelFirst {
		t, err := view.Transpose()
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to transpose head")
		}
		view = t
	}

	candidates, values := view.Rows(), view.Last()
	if values <= 4 {
		return nil, nil, errors.Wrapf(ErrNoHead, "shape %v has no class scores", head.Shape())
	}

	sx, sy := float64(width), float64(height)
	coords := make([]float32, candidates*4)
	for i := 0; i < candidates; i++ {
		coords[i*4] = float32(view.At(i, 0) / sx)
		coords[i*4+1] = float32(view.At(i, 1) / sy)
		coords[i*4+2] = float32(view.At(i, 2) / sx)
		coords[i*4+3] = float32(view.At(i, 3) / sy)
	}
	boxes, err := tensor.New(postprocess.CoordinateNames[0], coords, []int{candidates, 4})
	if err != nil {
		return nil, nil, err
	}

	var scores *tensor.Tensor
	if values == 5 {
		scores, err = view.Select(1, 4)
	} else {
		scores, err = view.Narrow(1, 4, values-4)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to slice class scores")
	}
	return boxes, scores.Rename(postprocess.ConfidenceNames[0]), nil
}

// adaptOutputs returns fs unchanged when it already exposes a coordinate
// tensor. Otherwise the first output that splits as a raw detection head is
// replaced by coordinate and confidence tensors.
func adaptOutputs(fs *tensor.FeatureSet, width, height int) *tensor.FeatureSet {
	if _, ok := postprocess.Discover(fs); ok {
		return fs
	}
	for _, t := range fs.Tensors() {
		boxes, scores, err := SplitHead(t, width, height)
		if err != nil {
			continue
		}
		return tensor.NewFeatureSet(boxes, scores)
	}
	return fs
}
