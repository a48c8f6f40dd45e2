// Package benchmark - Measures detection pipeline throughput across input
// resolutions and encodings.
package benchmark

import "time"

// PerformanceMetrics captures detailed performance data
type PerformanceMetrics struct {
	Scenario          Scenario      `json:"scenario"`
	Timestamp         time.Time     `json:"timestamp"`
	TotalDuration     time.Duration `json:"total_duration"`
	DecodeDuration    time.Duration `json:"decode_duration"`
	InferenceDuration time.Duration `json:"inference_duration"`
	FramesPerSecond   float64       `json:"frames_per_second"`
	EncodedBytes      int           `json:"encoded_bytes"`
	MemoryStats       MemoryMetrics `json:"memory_stats"`
	NumCPU            int           `json:"num_cpu"`
	DetectionCount    int           `json:"detection_count"`
	ErrorRate         float64       `json:"error_rate"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// AverageInference returns the mean detection latency per iteration.
func (m PerformanceMetrics) AverageInference() time.Duration {
	if m.Scenario.Iterations == 0 {
		return 0
	}
	return m.InferenceDuration / time.Duration(m.Scenario.Iterations)
}
