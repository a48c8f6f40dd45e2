// Package tensor - Read-only strided views over raw model output buffers.
package tensor

import (
	"fmt"

	"github.com/x448/float16"
)

// DataType is the element encoding of a tensor buffer.
type DataType int

const (
	// Float32 is a 32-bit IEEE 754 element.
	Float32 DataType = iota
	// Float64 is a 64-bit IEEE 754 element.
	Float64
	// Float16 is a 16-bit IEEE 754 element. Reads return 0 unless the tensor
	// was built with WithHalfPrecision.
	Float16
	// Unsupported covers every other element encoding. Reads always return 0.
	Unsupported
)

func (d DataType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Float16:
		return "float16"
	default:
		return "unsupported"
	}
}

// Tensor is a named, typed, strided numeric buffer.
//
// The zero value is an empty unsupported tensor. Tensors are never mutated
// after construction; view operations share the backing storage.
type Tensor struct {
	name    string
	dtype   DataType
	shape   []int
	strides []int
	offset  int
	half    bool

	f32 []float32
	f64 []float64
	f16 []uint16
}

// Option configures a Tensor at construction time.
type Option func(*Tensor)

// WithStrides sets explicit per-dimension strides, counted in elements.
func WithStrides(strides ...int) Option {
	return func(t *Tensor) {
		t.strides = append([]int(nil), strides...)
	}
}

// WithOffset sets the element offset of index (0, 0, ...) in the backing storage.
func WithOffset(offset int) Option {
	return func(t *Tensor) {
		t.offset = offset
	}
}

// WithHalfPrecision decodes Float16 elements instead of reading them as zero.
func WithHalfPrecision() Option {
	return func(t *Tensor) {
		t.half = true
	}
}

// New wraps data as a tensor of the given shape.
//
// Arguments:
//   - name: The output feature name.
//   - data: The backing storage. []float32 and []float64 are read natively,
//     []uint16 and []float16.Float16 are treated as half precision bits. Any
//     other value produces an Unsupported tensor.
//   - shape: The dimensions of the tensor.
//   - opts: Optional strides, offset and half-precision decoding.
//
// Returns:
//   - *Tensor: The tensor view.
//   - error: An error if the shape is invalid or the storage is too small for
//     the requested shape and strides.
func New(name string, data any, shape []int, opts ...Option) (*Tensor, error) {
	t := &Tensor{
		name:  name,
		shape: append([]int(nil), shape...),
	}
	for _, opt := range opts {
		opt(t)
	}

	for i, d := range t.shape {
		if d < 0 {
			return nil, fmt.Errorf("tensor %q: negative dimension %d at axis %d", name, d, i)
		}
	}
	if t.strides == nil {
		t.strides = contiguousStrides(t.shape)
	}
	if len(t.strides) != len(t.shape) {
		return nil, fmt.Errorf("tensor %q: %d strides for %d dimensions", name, len(t.strides), len(t.shape))
	}
	if t.offset < 0 {
		return nil, fmt.Errorf("tensor %q: negative offset %d", name, t.offset)
	}

	var length int
	switch v := data.(type) {
	case []float32:
		t.dtype, t.f32, length = Float32, v, len(v)
	case []float64:
		t.dtype, t.f64, length = Float64, v, len(v)
	case []uint16:
		t.dtype, t.f16, length = Float16, v, len(v)
	case []float16.Float16:
		bits := make([]uint16, len(v))
		for i, h := range v {
			bits[i] = h.Bits()
		}
		t.dtype, t.f16, length = Float16, bits, len(bits)
	default:
		t.dtype = Unsupported
		return t, nil
	}

	if lo, hi := t.extent(); t.Size() > 0 && (lo < 0 || hi >= length) {
		return nil, fmt.Errorf("tensor %q: shape %v with strides %v needs elements [%d, %d], storage holds %d",
			name, t.shape, t.strides, lo, hi, length)
	}
	return t, nil
}

// MustNew is like New but panics on error. It is intended for fixtures.
func MustNew(name string, data any, shape []int, opts ...Option) *Tensor {
	t, err := New(name, data, shape, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the output feature name.
func (t *Tensor) Name() string { return t.name }

// DataType returns the element encoding.
func (t *Tensor) DataType() DataType { return t.dtype }

// Dims returns the number of dimensions.
func (t *Tensor) Dims() int { return len(t.shape) }

// Shape returns a copy of the dimensions.
func (t *Tensor) Shape() []int { return append([]int(nil), t.shape...) }

// Strides returns a copy of the per-dimension strides in elements.
func (t *Tensor) Strides() []int { return append([]int(nil), t.strides...) }

// Rows returns the leading dimension, or 0 for a scalar.
func (t *Tensor) Rows() int {
	if len(t.shape) == 0 {
		return 0
	}
	return t.shape[0]
}

// Last returns the trailing dimension, or 0 for a scalar.
func (t *Tensor) Last() int {
	if len(t.shape) == 0 {
		return 0
	}
	return t.shape[len(t.shape)-1]
}

// Size returns the number of addressable elements.
func (t *Tensor) Size() int {
	n := 1
	for _, d := range t.shape {
		n *= d
	}
	return n
}

// Readable reports whether At returns real values rather than zeros.
func (t *Tensor) Readable() bool {
	switch t.dtype {
	case Float32, Float64:
		return true
	case Float16:
		return t.half
	default:
		return false
	}
}

// At reads the element at the given multi-dimensional index.
//
// The linear offset is offset + sum(index[k] * stride[k]). Indices beyond the
// tensor rank are ignored, missing trailing indices are treated as zero.
// Unsupported encodings and out-of-range indices read as 0.
func (t *Tensor) At(indices ...int) float64 {
	pos := t.offset
	for k, idx := range indices {
		if k >= len(t.shape) {
			break
		}
		if idx < 0 || idx >= t.shape[k] {
			return 0
		}
		pos += idx * t.strides[k]
	}

	switch t.dtype {
	case Float32:
		return float64(t.f32[pos])
	case Float64:
		return t.f64[pos]
	case Float16:
		if !t.half {
			return 0
		}
		return float64(float16.Frombits(t.f16[pos]).Float32())
	default:
		return 0
	}
}

// Row copies the trailing axis of row i of a 2-D tensor into dst.
//
// dst is grown when it is too small and the filled slice is returned.
func (t *Tensor) Row(i int, dst []float64) []float64 {
	n := t.Last()
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]
	for j := range dst {
		dst[j] = t.At(i, j)
	}
	return dst
}

// Select drops axis by fixing it at index, sharing storage with t.
func (t *Tensor) Select(axis, index int) (*Tensor, error) {
	if axis < 0 || axis >= len(t.shape) {
		return nil, fmt.Errorf("tensor %q: axis %d out of range for rank %d", t.name, axis, len(t.shape))
	}
	if index < 0 || index >= t.shape[axis] {
		return nil, fmt.Errorf("tensor %q: index %d out of range for axis %d of size %d",
			t.name, index, axis, t.shape[axis])
	}
	v := t.view()
	v.offset += index * t.strides[axis]
	v.shape = append(v.shape[:axis:axis], t.shape[axis+1:]...)
	v.strides = append(v.strides[:axis:axis], t.strides[axis+1:]...)
	return v, nil
}

// Narrow restricts axis to [start, start+length), sharing storage with t.
func (t *Tensor) Narrow(axis, start, length int) (*Tensor, error) {
	if axis < 0 || axis >= len(t.shape) {
		return nil, fmt.Errorf("tensor %q: axis %d out of range for rank %d", t.name, axis, len(t.shape))
	}
	if start < 0 || length < 0 || start+length > t.shape[axis] {
		return nil, fmt.Errorf("tensor %q: range [%d, %d) out of bounds for axis %d of size %d",
			t.name, start, start+length, axis, t.shape[axis])
	}
	v := t.view()
	v.offset += start * t.strides[axis]
	v.shape[axis] = length
	return v, nil
}

// Transpose swaps the two axes of a 2-D tensor without copying.
func (t *Tensor) Transpose() (*Tensor, error) {
	if len(t.shape) != 2 {
		return nil, fmt.Errorf("tensor %q: transpose needs rank 2, got %d", t.name, len(t.shape))
	}
	v := t.view()
	v.shape[0], v.shape[1] = v.shape[1], v.shape[0]
	v.strides[0], v.strides[1] = v.strides[1], v.strides[0]
	return v, nil
}

// Rename returns a view of t published under a different feature name.
func (t *Tensor) Rename(name string) *Tensor {
	v := t.view()
	v.name = name
	return v
}

func (t *Tensor) String() string {
	return fmt.Sprintf("%s<%s%v>", t.name, t.dtype, t.shape)
}

func (t *Tensor) view() *Tensor {
	v := *t
	v.shape = append([]int(nil), t.shape...)
	v.strides = append([]int(nil), t.strides...)
	return &v
}

// extent returns the lowest and highest linear positions addressable by t.
func (t *Tensor) extent() (lo, hi int) {
	lo, hi = t.offset, t.offset
	for k, d := range t.shape {
		if d == 0 {
			continue
		}
		step := (d - 1) * t.strides[k]
		if step < 0 {
			lo += step
		} else {
			hi += step
		}
	}
	return lo, hi
}

func contiguousStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}
