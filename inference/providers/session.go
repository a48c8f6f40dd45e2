package providers

import (
	"fmt"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// NewSessionOptions builds session options for the configured backend.
//
// When the accelerated provider cannot be appended and FallbackToCPU is set,
// the failure is logged and the options are returned for the CPU provider.
//
// Arguments:
//   - cfg: The provider configuration.
//   - logger: Receives provider fallback warnings.
//
// Returns:
//   - *ort.SessionOptions: The options. The caller must Destroy them.
//   - error: An error if the options cannot be created or configured.
func NewSessionOptions(cfg Config, logger logrus.FieldLogger) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}

	if err := cfg.Optimization.apply(options); err != nil {
		options.Destroy()
		return nil, err
	}

	if err := appendProvider(options, cfg); err != nil {
		if !cfg.FallbackToCPU {
			options.Destroy()
			return nil, err
		}
		logger.WithError(err).WithField("backend", cfg.Backend).Warn("execution provider unavailable, using cpu")
	}

	return options, nil
}

func appendProvider(options *ort.SessionOptions, cfg Config) error {
	switch cfg.Backend {
	case CPUProviderBackend, "":
		return nil
	case CoreMLProviderBackend:
		if err := options.AppendExecutionProviderCoreML(cfg.CoreML.Flags()); err != nil {
			return fmt.Errorf("failed to enable CoreML provider: %w", err)
		}
		return nil
	case CUDAProviderBackend:
		cudaOpts, err := cfg.CUDA.ToNativeProviderOptions()
		if err != nil {
			return fmt.Errorf("failed to create CUDA provider options: %w", err)
		}
		defer cudaOpts.Destroy()
		if err := options.AppendExecutionProviderCUDA(cudaOpts); err != nil {
			return fmt.Errorf("failed to enable CUDA provider: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported provider backend: %s", cfg.Backend)
	}
}
