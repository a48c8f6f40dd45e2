// Package model - Model options.
package model

import "github.com/nvr-ai/go-yolo/inference/tensor"

// Precision represents the numeric precision a model was exported with.
type Precision string

const (
	// PrecisionFP32 is single precision. Outputs are read natively.
	PrecisionFP32 Precision = "FP32"
	// PrecisionFP16 is half precision. Outputs are decoded as float16.
	PrecisionFP16 Precision = "FP16"
)

// TensorOptions returns the reader options needed for outputs of precision p.
func (p Precision) TensorOptions() []tensor.Option {
	if p == PrecisionFP16 {
		return []tensor.Option{tensor.WithHalfPrecision()}
	}
	return nil
}

// Valid reports whether p is a known precision. The empty value means FP32.
func (p Precision) Valid() bool {
	switch p {
	case "", PrecisionFP32, PrecisionFP16:
		return true
	default:
		return false
	}
}
