package postprocess

import (
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference/tensor"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func f32(t *testing.T, name string, shape []int, data ...float32) *tensor.Tensor {
	t.Helper()
	tt, err := tensor.New(name, data, shape)
	require.NoError(t, err)
	return tt
}

// detectionDiff compares detections ignoring generated identifiers.
func detectionDiff(want, got []Detection) string {
	return cmp.Diff(want, got,
		cmpopts.IgnoreFields(Detection{}, "ID"),
		cmpopts.EquateApprox(0, 1e-5),
		cmpopts.EquateEmpty(),
	)
}

func det(label string, class int, conf float32, x, y, w, h float32) Detection {
	return Detection{Label: label, Class: class, Confidence: conf, Box: images.Rect{X: x, Y: y, Width: w, Height: h}}
}
