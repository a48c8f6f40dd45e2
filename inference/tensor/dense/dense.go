// Package dense adapts gorgonia dense tensors to feature readers.
package dense

import (
	"fmt"

	gtensor "gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/inference/tensor"
)

// FromDense adopts a gorgonia dense tensor without copying its storage.
//
// Views and tensors with a pending transpose are materialized first so the
// reported strides describe the backing slice.
//
// Arguments:
//   - name: The output feature name.
//   - d: The dense tensor to adopt.
//   - opts: Additional reader options.
//
// Returns:
//   - *tensor.Tensor: A reader over d's data.
//   - error: An error if d's element type is neither float32 nor float64.
func FromDense(name string, d *gtensor.Dense, opts ...tensor.Option) (*tensor.Tensor, error) {
	if d == nil {
		return nil, fmt.Errorf("tensor %q: nil dense tensor", name)
	}
	if d.IsMaterializable() {
		m, ok := d.Materialize().(*gtensor.Dense)
		if !ok {
			return nil, fmt.Errorf("tensor %q: materialized view is not dense", name)
		}
		d = m
	}

	switch d.Dtype() {
	case gtensor.Float32, gtensor.Float64:
	default:
		return nil, fmt.Errorf("tensor %q: unsupported dense dtype %v", name, d.Dtype())
	}

	shape := []int(d.Shape())
	if d.IsScalar() || len(shape) == 0 {
		// Scalar Data() is the bare element rather than a slice.
		switch v := d.Data().(type) {
		case float32:
			return tensor.New(name, []float32{v}, nil, opts...)
		case float64:
			return tensor.New(name, []float64{v}, nil, opts...)
		}
	}
	opts = append([]tensor.Option{tensor.WithStrides(d.Strides()...)}, opts...)
	return tensor.New(name, d.Data(), shape, opts...)
}
