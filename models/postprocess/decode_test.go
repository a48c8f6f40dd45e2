package postprocess

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference/tensor"
)

// countingConvention records how many rows reached geometric decoding.
type countingConvention struct {
	CoordinateConvention
	calls int
}

func (c *countingConvention) Candidate(a0, a1, a2, a3 float64) Extent {
	c.calls++
	return c.CoordinateConvention.Candidate(a0, a1, a2, a3)
}

func newTestDecoder(opts ...DecoderOption) *Decoder {
	return NewDecoder(DecoderConfig{}, append([]DecoderOption{WithLogger(quietLogger())}, opts...)...)
}

func TestNewDecoder_Defaults(t *testing.T) {
	d := newTestDecoder()
	assert.Equal(t, DefaultDecoderConfig(), d.Config())

	names := make([]string, 0)
	for _, c := range d.Conventions() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{FormatCenter, FormatCorner, FormatCornerAbsolute}, names)
}

func TestDecode_TwoRowScenario(t *testing.T) {
	coords := f32(t, "coordinates", []int{2, 4},
		0.3, 0.3, 0.1, 0.1,
		0.6, 0.6, 0.5, 0.5,
	)
	conf := f32(t, "confidence", []int{2}, 0.5, 0.02)

	got := newTestDecoder().Decode(Outputs{Coordinates: coords, Confidence: conf}, nil)

	want := []Detection{
		det("Object", NoClass, 0.5, 0.25, 0.25, 0.1, 0.1),
		det("Object", NoClass, 0.02, 0.35, 0.35, 0.5, 0.5),
	}
	assert.Empty(t, detectionDiff(want, got))
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

func TestDecode_CenterForm(t *testing.T) {
	coords := f32(t, "coordinates", []int{1, 4}, 0.5, 0.5, 0.2, 0.4)

	got := newTestDecoder().Decode(Outputs{Coordinates: coords}, nil)

	require.Len(t, got, 1)
	assert.InDelta(t, 0.4, got[0].Box.X, 1e-6)
	assert.InDelta(t, 0.3, got[0].Box.Y, 1e-6)
	assert.InDelta(t, 0.2, got[0].Box.Width, 1e-6)
	assert.InDelta(t, 0.4, got[0].Box.Height, 1e-6)
	// Without a confidence tensor every row scores 1.
	assert.Equal(t, float32(1), got[0].Confidence)
	assert.Equal(t, DefaultLabel, got[0].Label)
}

func TestDecode_AbsoluteCornerFallback(t *testing.T) {
	// Center-form puts the origin outside the frame and normalized corners
	// collapse, so only the 640px corner reading is plausible.
	coords := f32(t, "coordinates", []int{1, 4}, 100, 100, 190, 190)

	got := newTestDecoder().Decode(Outputs{Coordinates: coords}, nil)

	want := []Detection{det("Object", NoClass, 1, 0.15625, 0.15625, 0.140625, 0.140625)}
	assert.Empty(t, detectionDiff(want, got))
}

func TestDecode_DeclaredBoxFormat(t *testing.T) {
	coords := f32(t, "coordinates", []int{1, 4}, 0.1, 0.2, 0.5, 0.6)
	out := Outputs{Coordinates: coords}

	defaulted := newTestDecoder().Decode(out, nil)
	require.Len(t, defaulted, 1)
	assert.Empty(t, detectionDiff([]Detection{det("Object", NoClass, 1, 0, 0, 0.5, 0.6)}, defaulted))

	declared := NewDecoder(DecoderConfig{BoxFormat: FormatCorner}, WithLogger(quietLogger())).Decode(out, nil)
	assert.Empty(t, detectionDiff([]Detection{det("Object", NoClass, 1, 0.1, 0.2, 0.4, 0.4)}, declared))

	perCall := newTestDecoder().DecodeWithFormat(out, nil, FormatCorner)
	assert.Empty(t, detectionDiff(declared, perCall))

	unknown := newTestDecoder().DecodeWithFormat(out, nil, "cxcywh_bogus")
	assert.Empty(t, detectionDiff(defaulted, unknown))
}

func TestDecode_PerClassConfidence(t *testing.T) {
	coords := f32(t, "coordinates", []int{2, 4},
		0.5, 0.5, 0.2, 0.2,
		0.5, 0.5, 0.2, 0.2,
	)
	conf := f32(t, "confidence", []int{2, 3},
		0.1, 0.9, 0.05,
		0.3, 0.3, 0.1,
	)

	got := newTestDecoder().Decode(Outputs{Coordinates: coords, Confidence: conf}, ClassNames{"person", "bicycle", "car"})

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Class)
	assert.Equal(t, "bicycle", got[0].Label)
	assert.InDelta(t, 0.9, got[0].Confidence, 1e-6)

	// Ties resolve to the first index.
	assert.Equal(t, 0, got[1].Class)
	assert.Equal(t, "person", got[1].Label)
}

func TestDecode_OutOfRangeClassLabel(t *testing.T) {
	coords := f32(t, "coordinates", []int{1, 4}, 0.5, 0.5, 0.2, 0.2)
	conf := f32(t, "confidence", []int{1, 6}, 0, 0, 0, 0, 0, 0.8)

	got := newTestDecoder().Decode(Outputs{Coordinates: coords, Confidence: conf}, ClassNames{"a", "b", "c"})
	require.Len(t, got, 1)
	assert.Equal(t, "class_5", got[0].Label)
}

func TestArgMax(t *testing.T) {
	idx, score := ArgMax([]float64{0.1, 0.9, 0.05})
	assert.Equal(t, 1, idx)
	assert.Equal(t, 0.9, score)

	idx, _ = ArgMax([]float64{0.4, 0.4})
	assert.Equal(t, 0, idx)

	idx, score = ArgMax(nil)
	assert.Equal(t, NoClass, idx)
	assert.True(t, math.IsNaN(score))
}

func TestDecode_LowScoresSkipGeometry(t *testing.T) {
	coords := f32(t, "coordinates", []int{4, 4},
		0.5, 0.5, 0.2, 0.2,
		0.5, 0.5, 0.2, 0.2,
		0.5, 0.5, 0.2, 0.2,
		0.5, 0.5, 0.2, 0.2,
	)
	conf := f32(t, "confidence", []int{4}, 0.009, 0.01, 0, float32(math.NaN()))

	counter := &countingConvention{CoordinateConvention: CenterForm{}}
	got := newTestDecoder(WithConventions(counter)).Decode(Outputs{Coordinates: coords, Confidence: conf}, nil)

	require.Len(t, got, 1)
	assert.InDelta(t, 0.01, got[0].Confidence, 1e-7)
	assert.Equal(t, 1, counter.calls)
}

func TestDecode_ImplausibleRowsDropped(t *testing.T) {
	inf := float32(math.Inf(1))
	coords := f32(t, "coordinates", []int{4, 4},
		0, 0, 0, 0,
		0.5, 0.5, inf, 0.2,
		0.5, 0.5, 0.004, 0.2,
		-5, -5, -6, -6,
	)
	got := newTestDecoder().Decode(Outputs{Coordinates: coords}, nil)
	assert.Empty(t, got)
}

func TestDecode_WideCoordinatesClampBeforeNarrowing(t *testing.T) {
	coords, err := tensor.New("coordinates", []float64{
		0.5, 0.5, 1e300, 1e300,
		0.5, 0.5, math.Inf(1), 0.2,
	}, []int{2, 4})
	require.NoError(t, err)
	conf, err := tensor.New("confidence", []float64{0.9, 0.9}, []int{2})
	require.NoError(t, err)

	got := newTestDecoder().Decode(Outputs{Coordinates: coords, Confidence: conf}, nil)

	require.Len(t, got, 1)
	assert.Equal(t, images.Rect{X: 0, Y: 0, Width: 1, Height: 1}, got[0].Box)
	assert.InDelta(t, 0.9, got[0].Confidence, 1e-6)
}

func TestExtentClampUnit(t *testing.T) {
	assert.Equal(t, images.Rect{X: 0.25, Y: 0, Width: 0.75, Height: 0.5},
		Extent{X: 0.25, Y: -1e200, Width: 1e200, Height: 0.5}.ClampUnit())
	assert.Equal(t, images.Rect{}, Extent{X: math.NaN(), Y: math.NaN(), Width: math.NaN()}.ClampUnit())
	assert.False(t, Extent{Width: 1e300, Height: math.Inf(1)}.HasPositiveSize())
	assert.True(t, Extent{Width: 1e300, Height: 1e300}.HasPositiveSize())
}

func TestDecode_BoundsProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const rows = 2000

	data := make([]float32, rows*4)
	for i := range data {
		// Mix normalized, pixel and negative values.
		switch rng.Intn(3) {
		case 0:
			data[i] = rng.Float32()
		case 1:
			data[i] = rng.Float32() * 700
		default:
			data[i] = rng.Float32()*4 - 2
		}
	}
	scores := make([]float32, rows)
	for i := range scores {
		scores[i] = rng.Float32() * 0.05
	}

	coords := f32(t, "coordinates", []int{rows, 4}, data...)
	conf := f32(t, "confidence", []int{rows}, scores...)

	got := newTestDecoder().Decode(Outputs{Coordinates: coords, Confidence: conf}, nil)
	require.NotEmpty(t, got)

	const eps = 1e-6
	for _, d := range got {
		assert.GreaterOrEqual(t, d.Confidence, float32(0.01))
		assert.GreaterOrEqual(t, d.Box.X, float32(0))
		assert.LessOrEqual(t, d.Box.X, float32(1))
		assert.GreaterOrEqual(t, d.Box.Y, float32(0))
		assert.LessOrEqual(t, d.Box.Y, float32(1))
		assert.LessOrEqual(t, d.Box.X+d.Box.Width, float32(1+eps))
		assert.LessOrEqual(t, d.Box.Y+d.Box.Height, float32(1+eps))
		assert.Greater(t, d.Box.Width, float32(0.005))
		assert.Greater(t, d.Box.Height, float32(0.005))
	}
}

func TestDecode_UnsupportedShapes(t *testing.T) {
	d := newTestDecoder()

	assert.Empty(t, d.Decode(Outputs{}, nil))

	flat := f32(t, "coordinates", []int{4}, 0.5, 0.5, 0.2, 0.2)
	assert.Empty(t, d.Decode(Outputs{Coordinates: flat}, nil))

	narrow := f32(t, "coordinates", []int{1, 3}, 0.5, 0.5, 0.2)
	assert.Empty(t, d.Decode(Outputs{Coordinates: narrow}, nil))
}

func TestDecode_HalfPrecisionReadsZero(t *testing.T) {
	coords, err := tensor.New("coordinates", []uint16{0x3800, 0x3800, 0x3266, 0x3266}, []int{1, 4})
	require.NoError(t, err)

	// All values read as zero, so no convention is plausible.
	assert.Empty(t, newTestDecoder().Decode(Outputs{Coordinates: coords}, nil))

	decoded, err := tensor.New("coordinates", []uint16{0x3800, 0x3800, 0x3266, 0x3266}, []int{1, 4},
		tensor.WithHalfPrecision())
	require.NoError(t, err)
	got := newTestDecoder().Decode(Outputs{Coordinates: decoded}, nil)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.4, got[0].Box.X, 1e-3)
}

func TestDecode_FromDiscoveredStridedHead(t *testing.T) {
	// A [1, 4+2, 2] head viewed as [2, 4] coordinates and [2, 2] scores.
	head := f32(t, "output0", []int{1, 6, 2},
		0.5, 0.3, // cx
		0.5, 0.3, // cy
		0.2, 0.1, // w
		0.2, 0.1, // h
		0.1, 0.7, // class 0
		0.8, 0.2, // class 1
	)
	plane, err := head.Select(0, 0)
	require.NoError(t, err)
	anchors, err := plane.Transpose()
	require.NoError(t, err)
	boxes, err := anchors.Narrow(1, 0, 4)
	require.NoError(t, err)
	scores, err := anchors.Narrow(1, 4, 2)
	require.NoError(t, err)

	out, ok := Discover(tensor.NewFeatureSet(boxes.Rename("coordinates"), scores.Rename("confidence")))
	require.True(t, ok)

	got := newTestDecoder().Decode(out, ClassNames{"cat", "dog"})
	want := []Detection{
		det("dog", 1, 0.8, 0.4, 0.4, 0.2, 0.2),
		det("cat", 0, 0.7, 0.25, 0.25, 0.1, 0.1),
	}
	assert.Empty(t, detectionDiff(want, got))
}

func TestDecoderAccept(t *testing.T) {
	d := newTestDecoder()

	box, ok := d.Accept(images.Rect{X: 0.9, Y: 0.9, Width: 0.5, Height: 0.5})
	assert.True(t, ok)
	assert.InDelta(t, 0.1, box.Width, 1e-6)

	_, ok = d.Accept(images.Rect{X: 0.998, Y: 0.5, Width: 0.5, Height: 0.5})
	assert.False(t, ok)
}
