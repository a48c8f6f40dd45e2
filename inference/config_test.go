package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultFallbackConfig(t *testing.T) {
	cfg := DefaultFallbackConfig()
	assert.Equal(t, float32(0.25), cfg.ScoreThreshold)
	assert.Equal(t, float32(0.45), cfg.NMSThreshold)
	assert.Equal(t, "opencv", cfg.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestFallbackConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  FallbackConfig
	}{
		{"score above one", FallbackConfig{ScoreThreshold: 1.5}},
		{"negative nms", FallbackConfig{NMSThreshold: -0.1}},
		{"unknown backend", FallbackConfig{Backend: "vulkan"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
	assert.NoError(t, FallbackConfig{Backend: "cuda"}.Validate())
}
