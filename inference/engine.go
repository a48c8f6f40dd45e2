package inference

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-yolo/inference/detectors"
	"github.com/nvr-ai/go-yolo/inference/providers"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/model"
	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/profiler"
)

// EngineBuilder assembles a Detector with a fluent API.
//
// The first failing step is remembered and returned by Build; later steps
// are skipped.
type EngineBuilder struct {
	config   Config
	logger   logrus.FieldLogger
	loader   model.Loader
	bundle   *models.Bundle
	names    postprocess.ClassNames
	fallback Fallback
	profiler *profiler.RuntimeProfiler
	err      error
}

// NewEngineBuilder creates a new engine builder.
//
// Arguments:
//   - config: The detector configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder(config Config) *EngineBuilder {
	return &EngineBuilder{
		config: config,
		logger: logrus.StandardLogger(),
	}
}

// WithLogger sets the logger shared by every component.
func (b *EngineBuilder) WithLogger(logger logrus.FieldLogger) *EngineBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithProvider loads models through ONNX Runtime on the given provider.
//
// Arguments:
//   - args: The execution provider configuration.
//   - precision: The numeric precision of the model outputs.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithProvider(args providers.Config, precision model.Precision) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if err := args.Validate(); err != nil {
		b.err = err
		return b
	}
	if !precision.Valid() {
		b.err = errors.New("unknown precision " + string(precision))
		return b
	}
	b.loader = detectors.NewLoader(args, precision, b.logger)
	return b
}

// WithLoader sets a custom model loader.
func (b *EngineBuilder) WithLoader(loader model.Loader) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.loader = loader
	return b
}

// WithBundle sets where the model is discovered.
//
// Arguments:
//   - bundle: The bundle root and candidate names.
//   - fallback: The class table used when the model names none. May be nil.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithBundle(bundle models.Bundle, fallback postprocess.ClassNames) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if bundle.Root == "" {
		b.err = errors.New("bundle root is required")
		return b
	}
	b.bundle = &bundle
	b.names = fallback
	return b
}

// WithFallback sets the detector used when the direct decode is empty.
func (b *EngineBuilder) WithFallback(f Fallback) *EngineBuilder {
	b.fallback = f
	return b
}

// WithProfiler records pipeline timings on p.
func (b *EngineBuilder) WithProfiler(p *profiler.RuntimeProfiler) *EngineBuilder {
	b.profiler = p
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// Build builds the detector.
//
// Returns:
//   - *Detector: The running detector.
//   - error: The first configuration error, if any.
func (b *EngineBuilder) Build() (*Detector, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.loader == nil {
		return nil, errors.New("loader not configured")
	}
	if b.bundle == nil {
		return nil, errors.New("bundle not configured")
	}

	discovery := models.NewDiscovery(*b.bundle, b.loader,
		models.WithDiscoveryLogger(b.logger),
		models.WithFallbackClassNames(b.names),
	)
	return NewDetector(discovery, b.config,
		WithLogger(b.logger),
		WithFallback(b.fallback),
		WithProfiler(b.profiler),
	)
}

// MustBuild builds the detector and panics if there is an error.
//
// Returns:
//   - *Detector: The running detector.
func (b *EngineBuilder) MustBuild() *Detector {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}
