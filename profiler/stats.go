package profiler

import (
	"runtime"
	"time"
)

// Stats is a point-in-time copy of everything the profiler tracks.
type Stats struct {
	Uptime     time.Duration             `json:"uptime"`
	Goroutines int                       `json:"goroutines"`
	CgoCalls   int64                     `json:"cgo_calls"`
	Memory     MemoryStats               `json:"memory"`
	Counters   map[string]int64          `json:"counters"`
	Metrics    map[string]MetricStats    `json:"metrics"`
	Operations map[string]OperationStats `json:"operations"`
}

// MemoryStats is the subset of runtime.MemStats that is reported.
type MemoryStats struct {
	Alloc         uint64  `json:"alloc"`
	TotalAlloc    uint64  `json:"total_alloc"`
	Sys           uint64  `json:"sys"`
	HeapAlloc     uint64  `json:"heap_alloc"`
	HeapObjects   uint64  `json:"heap_objects"`
	GCCycles      uint32  `json:"gc_cycles"`
	GCCPUFraction float64 `json:"gc_cpu_fraction"`
}

// MetricStats summarizes one custom metric window.
type MetricStats struct {
	Avg     float64   `json:"avg"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Samples int       `json:"samples"`
	Count   int64     `json:"count"`
	Last    time.Time `json:"last"`
}

// OperationStats summarizes one operation timing window.
type OperationStats struct {
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Count int64         `json:"count"`
}

// Snapshot returns the current statistics. A nil profiler returns empty maps.
func (rp *RuntimeProfiler) Snapshot() Stats {
	s := Stats{
		Goroutines: runtime.NumGoroutine(),
		CgoCalls:   runtime.NumCgoCall(),
		Counters:   map[string]int64{},
		Metrics:    map[string]MetricStats{},
		Operations: map[string]OperationStats{},
	}
	if rp == nil {
		return s
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()

	s.Uptime = time.Since(rp.startTime)
	runtime.ReadMemStats(&rp.memStats)
	s.Memory = MemoryStats{
		Alloc:         rp.memStats.Alloc,
		TotalAlloc:    rp.memStats.TotalAlloc,
		Sys:           rp.memStats.Sys,
		HeapAlloc:     rp.memStats.HeapAlloc,
		HeapObjects:   rp.memStats.HeapObjects,
		GCCycles:      rp.memStats.NumGC,
		GCCPUFraction: rp.memStats.GCCPUFraction,
	}

	for name, v := range rp.counters {
		s.Counters[name] = v
	}
	for name, t := range rp.customMetrics {
		if len(t.values) == 0 {
			continue
		}
		s.Metrics[name] = MetricStats{
			Avg:     t.sum / float64(len(t.values)),
			Min:     t.min,
			Max:     t.max,
			Samples: len(t.values),
			Count:   t.count,
			Last:    t.lastTime,
		}
	}
	for name, t := range rp.operationTimes {
		if len(t.durations) == 0 {
			continue
		}
		s.Operations[name] = OperationStats{
			Avg:   t.totalTime / time.Duration(len(t.durations)),
			Min:   t.minTime,
			Max:   t.maxTime,
			Count: t.count,
		}
	}
	return s
}
