package postprocess

import (
	"errors"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/nvr-ai/go-yolo/images"
)

// MetadataBoxFormat is the model metadata key that declares the coordinate
// convention of the coordinate tensor ("xywh", "xyxy" or "xyxy_abs").
const MetadataBoxFormat = "box_format"

var (
	// ErrNoCoordinates is returned when no output can serve as the coordinate tensor.
	ErrNoCoordinates = errors.New("no coordinate tensor found")
	// ErrUnsupportedEncoding is logged when a tensor's element type reads as zero.
	ErrUnsupportedEncoding = errors.New("tensor element type is not decodable")
)

// DecoderConfig holds the thresholds applied while decoding.
type DecoderConfig struct {
	// Rows scoring below MinScore are skipped before any geometry work.
	MinScore float32 `json:"min_score" yaml:"min_score"`
	// Boxes whose clamped width or height is not above MinSize are discarded.
	MinSize float32 `json:"min_size" yaml:"min_size"`
	// ReferenceSize is the square input size assumed for absolute corners.
	ReferenceSize float32 `json:"reference_size" yaml:"reference_size"`
	// BoxFormat, when set, is tried before the other conventions.
	BoxFormat string `json:"box_format" yaml:"box_format"`
}

// DefaultDecoderConfig returns the decoding thresholds used by the detector.
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		MinScore:      0.01,
		MinSize:       0.005,
		ReferenceSize: 640,
	}
}

// Decoder turns coordinate and confidence tensors into detections.
//
// A Decoder is immutable after construction and safe for concurrent use.
type Decoder struct {
	config      DecoderConfig
	conventions []CoordinateConvention
	logger      logrus.FieldLogger
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithConventions replaces the default trial order.
func WithConventions(conventions ...CoordinateConvention) DecoderOption {
	return func(d *Decoder) {
		d.conventions = append([]CoordinateConvention(nil), conventions...)
	}
}

// WithLogger sets the logger used for decoding diagnostics.
func WithLogger(logger logrus.FieldLogger) DecoderOption {
	return func(d *Decoder) {
		d.logger = logger
	}
}

// NewDecoder creates a decoder.
//
// Zero-valued thresholds in config fall back to DefaultDecoderConfig.
//
// Arguments:
//   - config: The decoding thresholds and optional declared box format.
//   - opts: Optional conventions and logger.
//
// Returns:
//   - *Decoder: The decoder.
func NewDecoder(config DecoderConfig, opts ...DecoderOption) *Decoder {
	defaults := DefaultDecoderConfig()
	if config.MinScore == 0 {
		config.MinScore = defaults.MinScore
	}
	if config.MinSize == 0 {
		config.MinSize = defaults.MinSize
	}
	if config.ReferenceSize <= 0 {
		config.ReferenceSize = defaults.ReferenceSize
	}

	d := &Decoder{
		config: config,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if len(d.conventions) == 0 {
		d.conventions = DefaultConventions(config.ReferenceSize)
	}
	if config.BoxFormat != "" {
		d.conventions = d.orderFor(config.BoxFormat)
	}
	return d
}

// Config returns the effective thresholds.
func (d *Decoder) Config() DecoderConfig { return d.config }

// Conventions returns the trial order.
func (d *Decoder) Conventions() []CoordinateConvention {
	return append([]CoordinateConvention(nil), d.conventions...)
}

// orderFor returns the trial order with format moved to the front.
// Unknown formats are logged and leave the order unchanged.
func (d *Decoder) orderFor(format string) []CoordinateConvention {
	conventions, ok := Prioritize(d.conventions, format)
	if !ok {
		d.logger.WithField("box_format", format).Warn("unknown box format, trying all conventions")
	}
	return conventions
}

// Decode produces at most one detection per coordinate row.
//
// Rows scoring below MinScore are skipped first. The remaining rows are
// interpreted with each convention in order and the first plausible box is
// kept. Rows without a plausible interpretation are dropped.
//
// Arguments:
//   - out: The tensors picked by Discover.
//   - names: The class table used to label per-class detections. May be nil.
//
// Returns:
//   - []Detection: The decoded detections in row order.
func (d *Decoder) Decode(out Outputs, names ClassNames) []Detection {
	return d.decode(out, names, d.conventions)
}

// DecodeWithFormat is like Decode but tries format before the other conventions.
func (d *Decoder) DecodeWithFormat(out Outputs, names ClassNames, format string) []Detection {
	if format == "" {
		return d.Decode(out, names)
	}
	return d.decode(out, names, d.orderFor(format))
}

func (d *Decoder) decode(out Outputs, names ClassNames, conventions []CoordinateConvention) []Detection {
	coords := out.Coordinates
	if coords == nil {
		return nil
	}
	if coords.Dims() != 2 || coords.Last() < 4 {
		d.logger.WithError(ErrNoCoordinates).WithField("shape", coords.Shape()).
			Warn("coordinate tensor does not hold rows of four values")
		return nil
	}
	if !coords.Readable() {
		d.logger.WithError(ErrUnsupportedEncoding).WithField("dtype", coords.DataType()).
			Warn("coordinate tensor reads as zero")
	}
	if out.Confidence != nil && !out.Confidence.Readable() {
		d.logger.WithError(ErrUnsupportedEncoding).WithField("dtype", out.Confidence.DataType()).
			Warn("confidence tensor reads as zero")
	}

	rows := coords.Rows()
	if rows > 0 {
		fields := logrus.Fields{
			"coordinates": coords.Shape(),
			"sample":      []float64{coords.At(0, 0), coords.At(0, 1), coords.At(0, 2), coords.At(0, 3)},
		}
		if out.Confidence != nil {
			fields["confidence"] = out.Confidence.Shape()
			fields["per_class"] = out.PerClass()
		}
		d.logger.WithFields(fields).Debug("decoding outputs")
	}

	results := make([]Detection, 0)
	var scratch []float64
	for i := 0; i < rows; i++ {
		var score float64
		var class int
		score, class, scratch = d.score(out, i, scratch)

		// NaN scores fail this comparison as well.
		if !(score >= float64(d.config.MinScore)) {
			continue
		}

		box, ok := d.pick(conventions, coords.At(i, 0), coords.At(i, 1), coords.At(i, 2), coords.At(i, 3))
		if !ok {
			continue
		}
		results = append(results, NewDetection(names.Resolve(class), box, float32(score), class))
	}

	d.logger.WithField("count", len(results)).Debug("direct detections")
	return results
}

// Accept clamps r into the unit square and reports whether the clamped box is
// still larger than MinSize in both dimensions.
func (d *Decoder) Accept(r images.Rect) (images.Rect, bool) {
	return d.AcceptExtent(ExtentOf(r))
}

// AcceptExtent is Accept for a full-precision candidate.
func (d *Decoder) AcceptExtent(e Extent) (images.Rect, bool) {
	if !e.HasPositiveSize() {
		return images.Rect{}, false
	}
	c := e.ClampUnit()
	if c.Width > d.config.MinSize && c.Height > d.config.MinSize {
		return c, true
	}
	return images.Rect{}, false
}

func (d *Decoder) pick(conventions []CoordinateConvention, a0, a1, a2, a3 float64) (images.Rect, bool) {
	for _, c := range conventions {
		if box, ok := d.AcceptExtent(c.Candidate(a0, a1, a2, a3)); ok {
			return box, true
		}
	}
	return images.Rect{}, false
}

func (d *Decoder) score(out Outputs, i int, scratch []float64) (float64, int, []float64) {
	switch {
	case out.Confidence == nil:
		return 1, NoClass, scratch
	case out.PerClass():
		scratch = out.Confidence.Row(i, scratch)
		class, best := ArgMax(scratch)
		return best, class, scratch
	default:
		return out.Confidence.At(i), NoClass, scratch
	}
}

// ArgMax returns the index and value of the highest score. Ties resolve to the
// first index. An empty row returns (NoClass, NaN).
func ArgMax(scores []float64) (int, float64) {
	if len(scores) == 0 {
		return NoClass, math.NaN()
	}
	idx := floats.MaxIdx(scores)
	return idx, scores[idx]
}
