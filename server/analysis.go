// Package server - HTTP detection service and the result shape shared with the CLI.
package server

import (
	"image"
	"sync"

	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// Result is the reply for one analysed image.
type Result struct {
	Width      int                        `json:"width"`
	Height     int                        `json:"height"`
	Detections []postprocess.Detection    `json:"detections"`
	Counts     []models.LabelCount        `json:"counts"`
	Density    postprocess.DensityMetrics `json:"density"`
	Score      int                        `json:"density_score"`
}

// Analyzer filters raw detections and derives the per-image summary.
//
// The configured preset is applied the first time the model's class table
// is known.
type Analyzer struct {
	filter  *models.ClassFilter
	density *postprocess.DensityEstimator

	mu      sync.Mutex
	preset  models.Preset
	applied bool
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(filter models.FilterConfig, density postprocess.DensityConfig) *Analyzer {
	return &Analyzer{
		filter:  models.NewClassFilter(filter),
		density: postprocess.NewDensityEstimator(density),
		preset:  filter.Preset,
	}
}

// Filter returns the live class filter.
func (a *Analyzer) Filter() *models.ClassFilter { return a.filter }

// Analyze applies the class filter to dets and summarises the survivors.
//
// Arguments:
//   - img: The analysed image, used for its dimensions.
//   - dets: The pipeline output.
//   - available: The model's class table, possibly empty.
//
// Returns:
//   - Result: The filtered detections with counts and density metrics.
func (a *Analyzer) Analyze(img image.Image, dets []postprocess.Detection, available []string) Result {
	a.applyPreset(available)

	kept := a.filter.Apply(dets, available)
	b := img.Bounds()
	return Result{
		Width:      b.Dx(),
		Height:     b.Dy(),
		Detections: kept,
		Counts:     models.GroupCounts(kept),
		Density:    a.density.Metrics(kept),
		Score:      a.density.Score(kept),
	}
}

func (a *Analyzer) applyPreset(available []string) {
	if len(available) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.applied {
		return
	}
	a.applied = true
	if a.preset != "" && a.preset != models.PresetCustom {
		a.filter.ApplyPreset(a.preset, available)
	}
}
