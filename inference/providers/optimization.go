package providers

import (
	"fmt"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

// OptimizationConfig contains ONNX Runtime session tuning.
type OptimizationConfig struct {
	// GraphOptimizationLevel is one of disable_all, basic, extended or all.
	GraphOptimizationLevel string `json:"graph_optimization_level" yaml:"graph_optimization_level"`

	// ExecutionMode is sequential or parallel.
	ExecutionMode string `json:"execution_mode" yaml:"execution_mode"`

	// IntraOpNumThreads sets threads for parallelizing ops. Zero lets ONNX Runtime decide.
	IntraOpNumThreads int `json:"intra_op_num_threads" yaml:"intra_op_num_threads"`

	// InterOpNumThreads sets threads for parallelizing independent ops.
	InterOpNumThreads int `json:"inter_op_num_threads" yaml:"inter_op_num_threads"`

	// EnableCPUMemArena enables the CPU memory arena.
	EnableCPUMemArena bool `json:"enable_cpu_mem_arena" yaml:"enable_cpu_mem_arena"`

	// EnableMemoryPattern enables memory pattern optimization.
	EnableMemoryPattern bool `json:"enable_memory_pattern" yaml:"enable_memory_pattern"`
}

// DefaultOptimizationConfig returns extended graph optimization with threads
// sized to the host.
func DefaultOptimizationConfig() OptimizationConfig {
	numCPU := runtime.NumCPU()
	return OptimizationConfig{
		GraphOptimizationLevel: "extended",
		ExecutionMode:          "sequential",
		IntraOpNumThreads:      max(1, numCPU/2),
		InterOpNumThreads:      1,
		EnableCPUMemArena:      true,
		EnableMemoryPattern:    true,
	}
}

var graphLevels = map[string]ort.GraphOptimizationLevel{
	"":            ort.GraphOptimizationLevelEnableExtended,
	"disable_all": ort.GraphOptimizationLevelDisableAll,
	"basic":       ort.GraphOptimizationLevelEnableBasic,
	"extended":    ort.GraphOptimizationLevelEnableExtended,
	"all":         ort.GraphOptimizationLevelEnableAll,
}

var executionModes = map[string]ort.ExecutionMode{
	"":           ort.ExecutionModeSequential,
	"sequential": ort.ExecutionModeSequential,
	"parallel":   ort.ExecutionModeParallel,
}

// Validate checks the named levels and thread counts.
func (c OptimizationConfig) Validate() error {
	if _, ok := graphLevels[c.GraphOptimizationLevel]; !ok {
		return fmt.Errorf("unknown graph optimization level %q", c.GraphOptimizationLevel)
	}
	if _, ok := executionModes[c.ExecutionMode]; !ok {
		return fmt.Errorf("unknown execution mode %q", c.ExecutionMode)
	}
	if c.IntraOpNumThreads < 0 || c.InterOpNumThreads < 0 {
		return fmt.Errorf("thread counts must not be negative")
	}
	return nil
}

// apply writes the optimization settings onto options.
func (c OptimizationConfig) apply(options *ort.SessionOptions) error {
	if err := options.SetGraphOptimizationLevel(graphLevels[c.GraphOptimizationLevel]); err != nil {
		return fmt.Errorf("failed to set graph optimization level: %w", err)
	}
	if err := options.SetExecutionMode(executionModes[c.ExecutionMode]); err != nil {
		return fmt.Errorf("failed to set execution mode: %w", err)
	}
	if c.IntraOpNumThreads > 0 {
		if err := options.SetIntraOpNumThreads(c.IntraOpNumThreads); err != nil {
			return fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}
	if c.InterOpNumThreads > 0 {
		if err := options.SetInterOpNumThreads(c.InterOpNumThreads); err != nil {
			return fmt.Errorf("failed to set inter-op threads: %w", err)
		}
	}
	if err := options.SetCpuMemArena(c.EnableCPUMemArena); err != nil {
		return fmt.Errorf("failed to set cpu memory arena: %w", err)
	}
	if err := options.SetMemPattern(c.EnableMemoryPattern); err != nil {
		return fmt.Errorf("failed to set memory pattern: %w", err)
	}
	return nil
}
