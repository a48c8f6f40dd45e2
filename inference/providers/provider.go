// Package providers - ONNX Runtime execution providers and session options.
package providers

import (
	"fmt"
	"runtime"
)

// ProviderBackend represents different ONNX Runtime execution providers.
type ProviderBackend string

const (
	// CPUProviderBackend runs on the default CPU execution provider.
	CPUProviderBackend ProviderBackend = "cpu"
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
	// CUDAProviderBackend uses NVIDIA CUDA for GPU acceleration.
	CUDAProviderBackend ProviderBackend = "cuda"
)

// Backends lists every supported backend.
var Backends = []ProviderBackend{CPUProviderBackend, CoreMLProviderBackend, CUDAProviderBackend}

// Config selects and tunes the execution provider of ONNX Runtime sessions.
type Config struct {
	// Backend specifies the backend to use.
	Backend ProviderBackend `json:"backend" yaml:"backend"`

	// SharedLibraryPath overrides the platform default onnxruntime library.
	SharedLibraryPath string `json:"shared_library_path" yaml:"shared_library_path"`

	// Optimization controls threading and graph optimization.
	Optimization OptimizationConfig `json:"optimization" yaml:"optimization"`

	// CoreML options, used when Backend is coreml.
	CoreML CoreMLOptions `json:"coreml" yaml:"coreml"`

	// CUDA options, used when Backend is cuda.
	CUDA CUDAOptions `json:"cuda" yaml:"cuda"`

	// FallbackToCPU keeps the session on the CPU provider when the accelerated
	// provider cannot be appended.
	FallbackToCPU bool `json:"fallback_to_cpu" yaml:"fallback_to_cpu"`
}

// DefaultConfig returns a configuration using the best backend for the
// current platform.
//
// Returns:
//   - Config: CoreML on Apple Silicon, CPU elsewhere, with CPU fallback.
func DefaultConfig() Config {
	backend := CPUProviderBackend
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		backend = CoreMLProviderBackend
	}
	return Config{
		Backend:       backend,
		Optimization:  DefaultOptimizationConfig(),
		FallbackToCPU: true,
	}
}

// Validate checks the backend and optimization settings.
func (c Config) Validate() error {
	switch c.Backend {
	case CPUProviderBackend, CoreMLProviderBackend, CUDAProviderBackend:
	case "":
		return fmt.Errorf("backend is required")
	default:
		return fmt.Errorf("unsupported provider backend: %s", c.Backend)
	}
	return c.Optimization.Validate()
}
