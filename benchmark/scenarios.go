package benchmark

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nvr-ai/go-yolo/images"
)

// Resolution represents image dimensions for benchmarking
type Resolution struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Name   string `json:"name"`
}

// NewResolution names a resolution after its dimensions.
func NewResolution(width, height int) Resolution {
	return Resolution{Width: width, Height: height, Name: fmt.Sprintf("%dx%d", width, height)}
}

// CommonResolutions are typical camera frame sizes, from thumbnail to 4K.
var CommonResolutions = []Resolution{
	NewResolution(320, 240),
	NewResolution(640, 480),
	NewResolution(1280, 720),
	NewResolution(1920, 1080),
	NewResolution(3840, 2160),
}

// Formats are the encodings a scenario can decode.
var Formats = []images.ImageFormat{images.FormatJPEG, images.FormatPNG, images.FormatWebP}

// Scenario defines a specific test configuration
type Scenario struct {
	Name        string             `json:"name"`
	Resolution  Resolution         `json:"resolution"`
	ImageFormat images.ImageFormat `json:"image_format"`
	Iterations  int                `json:"iterations"`
	WarmupRuns  int                `json:"warmup_runs"`
}

// Validate checks that the scenario can run.
func (s Scenario) Validate() error {
	if s.Resolution.Width <= 0 || s.Resolution.Height <= 0 {
		return fmt.Errorf("scenario %s: invalid resolution %dx%d", s.Name, s.Resolution.Width, s.Resolution.Height)
	}
	if s.Iterations <= 0 {
		return fmt.Errorf("scenario %s: iterations must be positive", s.Name)
	}
	for _, f := range Formats {
		if s.ImageFormat == f {
			return nil
		}
	}
	return fmt.Errorf("scenario %s: unsupported image format %q", s.Name, s.ImageFormat)
}

// ScenarioBuilder helps build test scenarios with fluent API
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a new scenario builder
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:        name,
			Resolution:  NewResolution(640, 480),
			ImageFormat: images.FormatJPEG,
			Iterations:  100,
			WarmupRuns:  10,
		},
	}
}

// WithResolution sets the image resolution
func (sb *ScenarioBuilder) WithResolution(width, height int) *ScenarioBuilder {
	sb.scenario.Resolution = NewResolution(width, height)
	return sb
}

// WithImageFormat sets the image format
func (sb *ScenarioBuilder) WithImageFormat(format images.ImageFormat) *ScenarioBuilder {
	sb.scenario.ImageFormat = format
	return sb
}

// WithIterations sets the number of test iterations
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of warmup runs
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// Build returns the configured test scenario
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// ScenarioSet represents a collection of related test scenarios
type ScenarioSet struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Scenarios   []Scenario `json:"scenarios"`
}

// QuickScenarios runs JPEG frames at two common sizes.
func QuickScenarios(iterations int) *ScenarioSet {
	var scenarios []Scenario
	for _, r := range []Resolution{NewResolution(640, 480), NewResolution(1280, 720)} {
		scenarios = append(scenarios, NewScenarioBuilder("quick_"+r.Name).
			WithResolution(r.Width, r.Height).
			WithIterations(iterations).
			WithWarmupRuns(iterations/10).
			Build())
	}
	return &ScenarioSet{
		Name:        "Quick Performance Test",
		Description: "JPEG frames at common camera sizes",
		Scenarios:   scenarios,
	}
}

// ComprehensiveScenarios covers every common resolution in every format.
func ComprehensiveScenarios(iterations int) *ScenarioSet {
	var scenarios []Scenario
	for _, r := range CommonResolutions {
		for _, f := range Formats {
			scenarios = append(scenarios, NewScenarioBuilder(fmt.Sprintf("%s_%s", r.Name, f)).
				WithResolution(r.Width, r.Height).
				WithImageFormat(f).
				WithIterations(iterations).
				WithWarmupRuns(iterations/10).
				Build())
		}
	}
	return &ScenarioSet{
		Name:        "Comprehensive Performance Test",
		Description: "Tests all combinations of resolutions and image formats",
		Scenarios:   scenarios,
	}
}

// SaveScenarioSet saves a scenario set to a JSON file
func SaveScenarioSet(scenarioSet *ScenarioSet, filename string) error {
	data, err := json.MarshalIndent(scenarioSet, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal scenario set: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write scenario file: %w", err)
	}

	return nil
}

// LoadScenarioSet loads a scenario set from a JSON file
func LoadScenarioSet(filename string) (*ScenarioSet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenarioSet ScenarioSet
	if err := json.Unmarshal(data, &scenarioSet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scenario set: %w", err)
	}
	for _, s := range scenarioSet.Scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}

	return &scenarioSet, nil
}
