package inference

import (
	"fmt"

	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// Config tunes a Detector.
type Config struct {
	// ConfidenceThreshold is passed to models that declare a confidenceThreshold input.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`

	// IoUThreshold is passed to models that declare an iouThreshold input.
	IoUThreshold float64 `json:"iou_threshold" yaml:"iou_threshold"`

	// Fallback enables the second detection path when the direct decode is empty.
	Fallback bool `json:"fallback" yaml:"fallback"`

	// QueueSize is the number of requests that can wait for the worker.
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// Decoder tunes the box decoder.
	Decoder postprocess.DecoderConfig `json:"decoder" yaml:"decoder"`

	// NMS configures the optional suppression step.
	NMS postprocess.NMSConfig `json:"nms" yaml:"nms"`
}

// DefaultConfig returns the thresholds the models were tuned with.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.05,
		IoUThreshold:        0.45,
		Fallback:            true,
		QueueSize:           16,
		Decoder:             postprocess.DefaultDecoderConfig(),
		NMS:                 postprocess.DefaultNMSConfig(),
	}
}

// Validate checks the thresholds.
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %v out of [0, 1]", c.ConfidenceThreshold)
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("iou threshold %v out of [0, 1]", c.IoUThreshold)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue size must not be negative")
	}
	if c.Decoder.MinScore < 0 || c.Decoder.MinSize < 0 {
		return fmt.Errorf("decoder thresholds must not be negative")
	}
	if c.NMS.Enabled && (c.NMS.IoUThreshold <= 0 || c.NMS.IoUThreshold > 1) {
		return fmt.Errorf("nms iou threshold %v out of (0, 1]", c.NMS.IoUThreshold)
	}
	return nil
}

// FallbackConfig tunes the OpenCV DNN detector used by the fallback pass.
type FallbackConfig struct {
	// ScoreThreshold drops candidates whose best class scores lower.
	ScoreThreshold float32 `json:"score_threshold" yaml:"score_threshold"`
	// NMSThreshold is the IoU above which overlapping candidates are suppressed.
	NMSThreshold float32 `json:"nms_threshold" yaml:"nms_threshold"`
	// Backend is the OpenCV DNN backend, "opencv" or "cuda".
	Backend string `json:"backend" yaml:"backend"`
}

// DefaultFallbackConfig returns the thresholds used for the fallback pass.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		ScoreThreshold: 0.25,
		NMSThreshold:   0.45,
		Backend:        "opencv",
	}
}

// Validate checks the thresholds and backend name.
func (c FallbackConfig) Validate() error {
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("score threshold %v out of [0, 1]", c.ScoreThreshold)
	}
	if c.NMSThreshold < 0 || c.NMSThreshold > 1 {
		return fmt.Errorf("nms threshold %v out of [0, 1]", c.NMSThreshold)
	}
	switch c.Backend {
	case "", "opencv", "cuda":
		return nil
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
}
