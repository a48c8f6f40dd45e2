package server

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-yolo/config"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/inference/vision"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/profiler"
)

// App owns every long-lived component built from a Config.
type App struct {
	Detector *inference.Detector
	Vision   *vision.Detector
	Profiler *profiler.RuntimeProfiler
	Analyzer *Analyzer
}

// Build wires the ONNX Runtime pipeline, the OpenCV fallback, the profiler and
// the class filter from cfg.
//
// Arguments:
//   - cfg: A validated configuration.
//   - logger: The logger shared by every component.
//
// Returns:
//   - *App: The running components. Close releases them.
//   - error: An error if any component cannot be configured.
func Build(cfg config.Config, logger logrus.FieldLogger) (*App, error) {
	names, err := models.BuiltinClassNames(cfg.ClassTable)
	if err != nil {
		return nil, err
	}

	var p *profiler.RuntimeProfiler
	if cfg.Profiler.Enabled {
		p = profiler.NewRuntimeProfiler(cfg.Profiler.Options(logger))
	}

	fallback := vision.New(cfg.Vision, logger)
	detector, err := inference.NewEngineBuilder(cfg.Detector).
		WithLogger(logger).
		WithProvider(cfg.Provider, cfg.Precision).
		WithBundle(cfg.Bundle, names).
		WithFallback(fallback).
		WithProfiler(p).
		Build()
	if err != nil {
		_ = fallback.Close()
		return nil, errors.Wrap(err, "failed to build detector")
	}
	p.Start()

	return &App{
		Detector: detector,
		Vision:   fallback,
		Profiler: p,
		Analyzer: NewAnalyzer(cfg.Filter, cfg.Density),
	}, nil
}

// Close stops the profiler and releases the models.
func (a *App) Close() error {
	a.Profiler.Stop()
	err := a.Detector.Close()
	if verr := a.Vision.Close(); err == nil {
		err = verr
	}
	return err
}
