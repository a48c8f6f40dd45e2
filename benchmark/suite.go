package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/util"
)

// Detector is the pipeline under test.
type Detector interface {
	DetectSync(ctx context.Context, img image.Image) ([]postprocess.Detection, error)
}

// Suite manages and executes benchmark scenarios
type Suite struct {
	detector  Detector
	outputDir string
	logger    logrus.FieldLogger

	mu        sync.RWMutex
	scenarios []Scenario
	corpus    []image.Image
	results   []PerformanceMetrics
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - detector: The pipeline to measure.
//   - outputDir: Where SaveResults writes its reports.
//   - logger: Receives per-scenario progress.
//
// Returns:
//   - *Suite: The benchmark suite.
func NewSuite(detector Detector, outputDir string, logger logrus.FieldLogger) *Suite {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Suite{
		detector:  detector,
		outputDir: outputDir,
		logger:    logger,
	}
}

// AddScenario adds a test scenario to the benchmark suite
func (bs *Suite) AddScenario(scenario Scenario) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, scenario)
}

// AddScenarioSet adds every scenario of set.
func (bs *Suite) AddScenarioSet(set *ScenarioSet) {
	for _, s := range set.Scenarios {
		bs.AddScenario(s)
	}
}

// LoadCorpus decodes the image files used as benchmark frames. Without a
// corpus every scenario uses a synthetic frame.
func (bs *Suite) LoadCorpus(files []util.ImageFile) error {
	corpus := make([]image.Image, 0, len(files))
	for _, f := range files {
		img, err := images.Decode(f.Data)
		if err != nil {
			return fmt.Errorf("corpus image %s: %w", f.Path, err)
		}
		corpus = append(corpus, img)
	}

	bs.mu.Lock()
	bs.corpus = corpus
	bs.mu.Unlock()
	return nil
}

// frames resizes the corpus to the scenario resolution and encodes it.
func (bs *Suite) frames(scenario Scenario) ([][]byte, error) {
	bs.mu.RLock()
	corpus := bs.corpus
	bs.mu.RUnlock()

	w, h := scenario.Resolution.Width, scenario.Resolution.Height
	if len(corpus) == 0 {
		corpus = []image.Image{Synthetic(w, h)}
	}

	frames := make([][]byte, 0, len(corpus))
	for _, img := range corpus {
		if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
			img = imaging.Resize(img, w, h, imaging.Linear)
		}
		data, err := Encode(img, scenario.ImageFormat)
		if err != nil {
			return nil, err
		}
		frames = append(frames, data)
	}
	return frames, nil
}

// RunScenario executes a single benchmark scenario
func (bs *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	frames, err := bs.frames(scenario)
	if err != nil {
		return nil, err
	}

	metrics := &PerformanceMetrics{
		Scenario:     scenario,
		Timestamp:    time.Now(),
		EncodedBytes: len(frames[0]),
		NumCPU:       runtime.NumCPU(),
	}

	for i := 0; i < scenario.WarmupRuns; i++ {
		if _, _, _, err := bs.processFrame(ctx, frames[i%len(frames)]); err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	startTime := time.Now()
	errors := 0
	for i := 0; i < scenario.Iterations; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n, decode, infer, err := bs.processFrame(ctx, frames[i%len(frames)])
		metrics.DecodeDuration += decode
		metrics.InferenceDuration += infer
		if err != nil {
			errors++
			continue
		}
		metrics.DetectionCount += n
	}
	metrics.TotalDuration = time.Since(startTime)

	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	if metrics.TotalDuration > 0 {
		metrics.FramesPerSecond = float64(scenario.Iterations) / metrics.TotalDuration.Seconds()
	}
	metrics.ErrorRate = float64(errors) / float64(scenario.Iterations)
	metrics.MemoryStats = MemoryMetrics{
		AllocBytes:      endMem.Alloc,
		TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
		SysBytes:        endMem.Sys,
		NumGC:           endMem.NumGC - startMem.NumGC,
		HeapAllocBytes:  endMem.HeapAlloc,
		HeapSysBytes:    endMem.HeapSys,
	}
	return metrics, nil
}

func (bs *Suite) processFrame(ctx context.Context, data []byte) (int, time.Duration, time.Duration, error) {
	decodeStart := time.Now()
	img, err := images.Decode(data)
	decode := time.Since(decodeStart)
	if err != nil {
		return 0, decode, 0, err
	}

	inferStart := time.Now()
	dets, err := bs.detector.DetectSync(ctx, img)
	infer := time.Since(inferStart)
	if err != nil {
		return 0, decode, infer, err
	}
	return len(dets), decode, infer, nil
}

// RunAllScenarios executes all configured benchmark scenarios. A failing
// scenario is logged and skipped.
func (bs *Suite) RunAllScenarios(ctx context.Context) error {
	bs.mu.RLock()
	scenarios := append([]Scenario(nil), bs.scenarios...)
	bs.mu.RUnlock()

	for _, scenario := range scenarios {
		metrics, err := bs.RunScenario(ctx, scenario)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			bs.logger.WithError(err).WithField("scenario", scenario.Name).Error("scenario failed")
			continue
		}

		bs.mu.Lock()
		bs.results = append(bs.results, *metrics)
		bs.mu.Unlock()

		bs.logger.WithFields(logrus.Fields{
			"scenario":      scenario.Name,
			"fps":           fmt.Sprintf("%.2f", metrics.FramesPerSecond),
			"avg_inference": metrics.AverageInference(),
			"detections":    metrics.DetectionCount,
		}).Info("scenario completed")
	}
	return nil
}

// GetResults returns all benchmark results
func (bs *Suite) GetResults() []PerformanceMetrics {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return append([]PerformanceMetrics(nil), bs.results...)
}

// SaveResults writes the results as indented JSON and a CSV summary.
//
// Returns:
//   - string: The JSON report path.
//   - error: An error if a report cannot be written.
func (bs *Suite) SaveResults() (string, error) {
	results := bs.GetResults()

	if err := os.MkdirAll(bs.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write results file: %w", err)
	}

	summaryFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))
	if err := saveSummaryCSV(summaryFile, results); err != nil {
		return "", fmt.Errorf("failed to save summary CSV: %w", err)
	}
	return resultsFile, nil
}

func saveSummaryCSV(filename string, results []PerformanceMetrics) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	_ = w.Write([]string{"scenario", "resolution", "format", "fps", "avg_inference_ms", "encoded_bytes", "detections", "error_rate"})
	for _, r := range results {
		_ = w.Write([]string{
			r.Scenario.Name,
			r.Scenario.Resolution.Name,
			string(r.Scenario.ImageFormat),
			strconv.FormatFloat(r.FramesPerSecond, 'f', 2, 64),
			strconv.FormatFloat(float64(r.AverageInference().Microseconds())/1e3, 'f', 3, 64),
			strconv.Itoa(r.EncodedBytes),
			strconv.Itoa(r.DetectionCount),
			strconv.FormatFloat(r.ErrorRate, 'f', 4, 64),
		})
	}
	w.Flush()
	return w.Error()
}
