// Package inference - Serial object-detection pipeline over a discovered model.
package inference

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/model"
	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/profiler"
)

// Profiler operation and metric names recorded by a Detector.
const (
	OpDetect    = "detect"
	OpDiscovery = "discovery"
	OpDirect    = "direct"
	OpFallback  = "fallback"

	MetricDetections   = "detections"
	MetricQueueDepth   = "queue_depth"
	CounterRequests    = "requests"
	CounterFallbacks   = "fallbacks"
	CounterFailures    = "failures"
	CounterUnavailable = "model_unavailable"
)

// fallbackModes is the order in which the fallback detector is tried.
var fallbackModes = []ScaleMode{ScaleFit, ScaleFill}

type request struct {
	img   image.Image
	reply chan []postprocess.Detection
}

// Detector runs detection requests one at a time on a single worker.
//
// Every request is answered exactly once with a possibly empty list of
// detections; failures are logged and never returned.
type Detector struct {
	config    Config
	discovery *models.Discovery
	decoder   *postprocess.Decoder
	fallback  Fallback
	profiler  *profiler.RuntimeProfiler
	logger    logrus.FieldLogger

	requests chan request
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// WithFallback sets the detector used when the direct decode is empty.
func WithFallback(f Fallback) Option {
	return func(d *Detector) {
		d.fallback = f
	}
}

// WithProfiler records stage timings and counters on p.
func WithProfiler(p *profiler.RuntimeProfiler) Option {
	return func(d *Detector) {
		d.profiler = p
	}
}

// NewDetector starts a detector over discovery.
//
// Arguments:
//   - discovery: Finds and caches the model and class table.
//   - config: Thresholds and pipeline toggles.
//   - opts: Optional logger, fallback and profiler.
//
// Returns:
//   - *Detector: The running detector. Call Close to stop it.
//   - error: An error if the configuration is invalid.
func NewDetector(discovery *models.Discovery, config Config, opts ...Option) (*Detector, error) {
	if discovery == nil {
		return nil, errors.New("discovery is required")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid detector config")
	}

	d := &Detector{
		config:    config,
		discovery: discovery,
		logger:    logrus.StandardLogger(),
		requests:  make(chan request, config.QueueSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.decoder = postprocess.NewDecoder(config.Decoder, postprocess.WithLogger(d.logger))
	d.profiler.AddMetricsCollector(d)

	go d.run()
	return d, nil
}

// Detect queues img and returns a channel that receives exactly one result
// and is then closed. After Close the result is empty.
func (d *Detector) Detect(img image.Image) <-chan []postprocess.Detection {
	reply := make(chan []postprocess.Detection, 1)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		reply <- []postprocess.Detection{}
		close(reply)
		return reply
	}
	d.requests <- request{img: img, reply: reply}
	return reply
}

// DetectSync runs Detect and waits for the result or ctx.
func (d *Detector) DetectSync(ctx context.Context, img image.Image) ([]postprocess.Detection, error) {
	select {
	case dets := <-d.Detect(img):
		return dets, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AvailableClassNames returns the class table once it is known, or an empty list.
func (d *Detector) AvailableClassNames() []string {
	names := d.discovery.CachedClassNames()
	return append([]string{}, names...)
}

// Ready reports whether the model has been discovered and loaded.
func (d *Detector) Ready() bool {
	return d.discovery.Loaded()
}

// CollectMetrics reports the request queue depth to the profiler.
func (d *Detector) CollectMetrics() map[string]float64 {
	return map[string]float64{MetricQueueDepth: float64(len(d.requests))}
}

// Close stops accepting requests, answers every queued request, stops the
// worker and releases the model.
func (d *Detector) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return nil
	}
	d.closed = true
	close(d.requests)
	d.mu.Unlock()

	<-d.done
	return d.discovery.Close()
}

func (d *Detector) run() {
	defer close(d.done)
	for req := range d.requests {
		req.reply <- d.process(req.img)
		close(req.reply)
	}
}

// process never fails: every error path degrades to an empty result.
func (d *Detector) process(img image.Image) (dets []postprocess.Detection) {
	defer d.profiler.StartOperation(OpDetect)()
	d.profiler.Increment(CounterRequests)

	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("panic", r).Error("detection request panicked")
			d.profiler.Increment(CounterFailures)
			dets = []postprocess.Detection{}
		}
	}()

	if img == nil || img.Bounds().Empty() {
		d.logger.WithError(ErrImageConversion).Warn("image has no pixels")
		d.profiler.Increment(CounterFailures)
		return []postprocess.Detection{}
	}

	ctx := context.Background()
	stop := d.profiler.StartOperation(OpDiscovery)
	m, err := d.discovery.Model(ctx)
	stop()
	if err != nil {
		d.logger.WithError(err).Warn("model unavailable")
		d.profiler.Increment(CounterUnavailable)
		return []postprocess.Detection{}
	}
	names := d.discovery.ClassNames(ctx)

	dets, err = d.direct(ctx, m, img, names)
	if err != nil {
		d.logger.WithError(err).Warn("direct inference failed")
		d.profiler.Increment(CounterFailures)
	}
	if len(dets) == 0 && d.config.Fallback && d.fallback != nil {
		dets = d.runFallback(ctx, m, img, names)
	}
	if dets == nil {
		dets = []postprocess.Detection{}
	}

	dets = postprocess.ApplyNMS(dets, d.config.NMS)
	d.profiler.RecordMetric(MetricDetections, float64(len(dets)))
	return dets
}

// direct letterboxes img to the model input, runs the model and decodes its
// outputs back into source image coordinates.
func (d *Detector) direct(ctx context.Context, m model.Model, img image.Image, names postprocess.ClassNames) ([]postprocess.Detection, error) {
	defer d.profiler.StartOperation(OpDirect)()

	desc := m.Description()
	w, h := desc.InputSize()
	boxed, lb := images.LetterboxFit(img, w, h)

	in := model.Input{Image: boxed, Scalars: map[string]float64{}}
	if desc.HasInput(model.InputConfidenceThreshold) {
		in.Scalars[model.InputConfidenceThreshold] = d.config.ConfidenceThreshold
	}
	if desc.HasInput(model.InputIoUThreshold) {
		in.Scalars[model.InputIoUThreshold] = d.config.IoUThreshold
	}

	fs, err := m.Predict(ctx, in)
	if err != nil {
		return nil, errors.Wrap(err, "prediction failed")
	}
	d.logger.WithField("outputs", fs.Names()).Debug("model outputs")

	out, ok := postprocess.Discover(fs)
	if !ok {
		return nil, errors.Wrapf(ErrTensorShapeUnrecognized, "outputs %v", fs.Names())
	}

	dets := d.decoder.DecodeWithFormat(out, names, desc.Metadata[model.MetadataBoxFormat])
	if lb.IsIdentity() {
		return dets, nil
	}

	kept := dets[:0]
	for _, det := range dets {
		box, ok := d.decoder.Accept(lb.Unmap(det.Box))
		if !ok {
			continue
		}
		det.Box = box
		kept = append(kept, det)
	}
	return kept, nil
}

// runFallback tries each scale mode in order and returns the first non-empty result.
func (d *Detector) runFallback(ctx context.Context, m model.Model, img image.Image, names postprocess.ClassNames) []postprocess.Detection {
	defer d.profiler.StartOperation(OpFallback)()
	d.profiler.Increment(CounterFallbacks)

	for _, mode := range fallbackModes {
		obs, err := d.fallback.Detect(ctx, m, img, mode)
		if err != nil {
			d.logger.WithError(err).WithField("mode", mode).Warn("fallback detection failed")
			continue
		}
		dets := d.fromObservations(obs, names)
		d.logger.WithFields(logrus.Fields{
			"mode":  mode,
			"count": len(dets),
		}).Debug("fallback detections")
		if len(dets) > 0 {
			return dets
		}
	}
	return nil
}

func (d *Detector) fromObservations(obs []Observation, names postprocess.ClassNames) []postprocess.Detection {
	dets := make([]postprocess.Detection, 0, len(obs))
	for _, o := range obs {
		box := o.Box
		if o.BottomLeft {
			box = box.FlipVertical()
		}
		box, ok := d.decoder.Accept(box)
		if !ok {
			continue
		}
		label := o.Label
		if label == "" {
			label = postprocess.DefaultLabel
		}
		dets = append(dets, postprocess.NewDetection(label, box, o.Confidence, names.Index(label)))
	}
	return dets
}
