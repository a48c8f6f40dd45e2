// Package profiler - Runtime and pipeline stage profiling.
package profiler

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MetricsCollector defines the interface for collecting custom metrics.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// RuntimeProfiler tracks custom metrics, counters and operation timings and
// periodically logs a status report.
//
// All methods are safe for concurrent use. A nil *RuntimeProfiler is valid
// and records nothing.
type RuntimeProfiler struct {
	reportInterval time.Duration
	sampleInterval time.Duration
	maxSamples     int
	logger         logrus.FieldLogger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	startTime time.Time
	running   bool

	memStats    runtime.MemStats
	lastGCCount uint32

	customMetrics  map[string]*MetricTracker
	counters       map[string]int64
	collectors     []MetricsCollector
	operationTimes map[string]*TimeTracker
}

// MetricTracker tracks statistics for a custom metric over a sliding window.
type MetricTracker struct {
	values   []float64
	sum      float64
	min      float64
	max      float64
	count    int64
	lastTime time.Time
}

func (t *MetricTracker) add(value float64, window int) {
	if t.count == 0 || value < t.min {
		t.min = value
	}
	if t.count == 0 || value > t.max {
		t.max = value
	}
	t.values = append(t.values, value)
	t.sum += value
	if len(t.values) > window {
		t.sum -= t.values[0]
		t.values = t.values[1:]
	}
	t.count++
	t.lastTime = time.Now()
}

// TimeTracker tracks operation timing statistics over a sliding window.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

func (t *TimeTracker) add(d time.Duration, window int) {
	if t.count == 0 || d < t.minTime {
		t.minTime = d
	}
	if t.count == 0 || d > t.maxTime {
		t.maxTime = d
	}
	t.durations = append(t.durations, d)
	t.totalTime += d
	if len(t.durations) > window {
		t.totalTime -= t.durations[0]
		t.durations = t.durations[1:]
	}
	t.count++
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to log status reports (default: 30s).
	ReportInterval time.Duration `json:"report_interval" yaml:"report_interval"`
	// SampleInterval specifies how often to poll collectors (default: 1s).
	SampleInterval time.Duration `json:"sample_interval" yaml:"sample_interval"`
	// MaxSamples specifies the sliding window of every tracker (default: 600).
	MaxSamples int `json:"max_samples" yaml:"max_samples"`
	// Logger receives the status reports.
	Logger logrus.FieldLogger `json:"-" yaml:"-"`
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
//   - opts: Configuration options for the profiler.
//
// Returns:
//   - *RuntimeProfiler: A profiler that records immediately and reports once started.
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 30 * time.Second
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = time.Second
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		sampleInterval: opts.SampleInterval,
		maxSamples:     opts.MaxSamples,
		logger:         opts.Logger,
		startTime:      time.Now(),
		customMetrics:  make(map[string]*MetricTracker),
		counters:       make(map[string]int64),
		operationTimes: make(map[string]*TimeTracker),
	}
}

// Start begins sampling collectors and logging periodic reports. Calling
// Start on a running profiler does nothing.
func (rp *RuntimeProfiler) Start() {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if rp.running {
		return
	}
	rp.ctx, rp.cancel = context.WithCancel(context.Background())
	rp.running = true

	rp.wg.Add(2)
	go rp.sampleLoop(rp.ctx)
	go rp.reportLoop(rp.ctx)
}

// Stop halts the background loops and logs a final report.
func (rp *RuntimeProfiler) Stop() {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	rp.cancel()
	rp.mu.Unlock()

	rp.wg.Wait()
	rp.emitStatusReport()
}

// AddMetricsCollector registers a collector polled every sample interval.
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// RecordMetric records a custom metric value.
//
// Arguments:
//   - name: The name of the metric.
//   - value: The metric value to record.
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.recordMetricLocked(name, value)
}

func (rp *RuntimeProfiler) recordMetricLocked(name string, value float64) {
	tracker, ok := rp.customMetrics[name]
	if !ok {
		tracker = &MetricTracker{}
		rp.customMetrics[name] = tracker
	}
	tracker.add(value, rp.maxSamples)
}

// Increment adds one to the named counter.
func (rp *RuntimeProfiler) Increment(name string) {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.counters[name]++
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - func(): Call when the operation completes.
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		rp.RecordDuration(name, time.Since(start))
	}
}

// RecordDuration records the completion time of an operation.
func (rp *RuntimeProfiler) RecordDuration(name string, duration time.Duration) {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, ok := rp.operationTimes[name]
	if !ok {
		tracker = &TimeTracker{}
		rp.operationTimes[name] = tracker
	}
	tracker.add(duration, rp.maxSamples)
}

func (rp *RuntimeProfiler) sampleLoop(ctx context.Context) {
	defer rp.wg.Done()

	ticker := time.NewTicker(rp.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rp.sample()
		}
	}
}

func (rp *RuntimeProfiler) sample() {
	rp.mu.RLock()
	collectors := append([]MetricsCollector(nil), rp.collectors...)
	rp.mu.RUnlock()

	// Collectors may take their own locks, so they run unlocked.
	collected := make([]map[string]float64, 0, len(collectors))
	for _, c := range collectors {
		collected = append(collected, c.CollectMetrics())
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()
	runtime.ReadMemStats(&rp.memStats)
	for _, metrics := range collected {
		for name, value := range metrics {
			rp.recordMetricLocked(name, value)
		}
	}
}

func (rp *RuntimeProfiler) reportLoop(ctx context.Context) {
	defer rp.wg.Done()

	ticker := time.NewTicker(rp.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rp.emitStatusReport()
		}
	}
}

// emitStatusReport logs one line for the runtime and one per tracker.
func (rp *RuntimeProfiler) emitStatusReport() {
	s := rp.Snapshot()

	rp.mu.Lock()
	newGC := s.Memory.GCCycles - rp.lastGCCount
	rp.lastGCCount = s.Memory.GCCycles
	rp.mu.Unlock()

	rp.logger.WithFields(logrus.Fields{
		"uptime":     s.Uptime.Truncate(time.Millisecond),
		"goroutines": s.Goroutines,
		"cgo_calls":  s.CgoCalls,
		"heap_alloc": s.Memory.HeapAlloc,
		"sys":        s.Memory.Sys,
		"gc_new":     newGC,
		"counters":   s.Counters,
	}).Info("profiler status")

	for _, name := range sortedKeys(s.Metrics) {
		m := s.Metrics[name]
		rp.logger.WithFields(logrus.Fields{
			"metric":  name,
			"avg":     m.Avg,
			"min":     m.Min,
			"max":     m.Max,
			"samples": m.Samples,
		}).Info("profiler metric")
	}
	for _, name := range sortedKeys(s.Operations) {
		o := s.Operations[name]
		rp.logger.WithFields(logrus.Fields{
			"operation": name,
			"avg":       o.Avg.Truncate(time.Microsecond),
			"min":       o.Min.Truncate(time.Microsecond),
			"max":       o.Max.Truncate(time.Microsecond),
			"count":     o.Count,
		}).Info("profiler operation")
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
