package inference

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference/tensor"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/model"
	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/profiler"
)

// fakeModel returns the same outputs for every prediction.
type fakeModel struct {
	desc    model.Description
	outputs func() *tensor.FeatureSet
	err     error
	block   chan struct{}

	mu     sync.Mutex
	inputs []model.Input
	closed bool
}

func (m *fakeModel) Path() string                   { return "fake" }
func (m *fakeModel) Description() model.Description { return m.desc }

func (m *fakeModel) Predict(_ context.Context, in model.Input) (*tensor.FeatureSet, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	m.inputs = append(m.inputs, in)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.outputs(), nil
}

func (m *fakeModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeModel) predictions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

type fakeLoader struct {
	model *fakeModel
	err   error

	mu    sync.Mutex
	loads int
}

func (l *fakeLoader) Load(context.Context, string) (model.Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	if l.err != nil {
		return nil, l.err
	}
	return l.model, nil
}

func (l *fakeLoader) Compile(_ context.Context, path string) (string, error) { return path, nil }

func (l *fakeLoader) loadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

// fakeFallback answers with a fixed list per scale mode and records the modes.
type fakeFallback struct {
	results map[ScaleMode][]Observation

	mu    sync.Mutex
	modes []ScaleMode
}

func (f *fakeFallback) Detect(_ context.Context, _ model.Model, _ image.Image, mode ScaleMode) ([]Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, mode)
	return f.results[mode], nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func bundle(t *testing.T) models.Bundle {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "yolov11n.mlmodelc"), 0o755))
	return models.Bundle{Root: root}
}

func square(size int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	return img
}

func imageDesc(extraInputs ...model.FeatureDescription) model.Description {
	inputs := append([]model.FeatureDescription{{
		Name:  "image",
		Kind:  model.FeatureImage,
		Shape: []int64{1, 3, 640, 640},
	}}, extraInputs...)
	return model.Description{
		Inputs:   inputs,
		Metadata: map[string]string{model.MetadataNames: "{0: 'person', 1: 'bicycle'}"},
	}
}

func twoRowOutputs() *tensor.FeatureSet {
	return tensor.NewFeatureSet(
		tensor.MustNew("coordinates", []float32{0.3, 0.3, 0.1, 0.1, 0.6, 0.6, 0.5, 0.5}, []int{2, 4}),
		tensor.MustNew("confidence", []float32{0.5, 0.02}, []int{2}),
	)
}

func emptyOutputs() *tensor.FeatureSet {
	return tensor.NewFeatureSet(
		tensor.MustNew("coordinates", []float32{}, []int{0, 4}),
		tensor.MustNew("confidence", []float32{}, []int{0}),
	)
}

func newDetector(t *testing.T, loader model.Loader, cfg Config, opts ...Option) *Detector {
	t.Helper()
	discovery := models.NewDiscovery(bundle(t), loader, models.WithDiscoveryLogger(quietLogger()))
	d, err := NewDetector(discovery, cfg, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func receive(t *testing.T, ch <-chan []postprocess.Detection) []postprocess.Detection {
	t.Helper()
	select {
	case dets, ok := <-ch:
		require.True(t, ok, "channel closed without a result")
		_, open := <-ch
		assert.False(t, open, "channel delivered more than one result")
		return dets
	case <-time.After(5 * time.Second):
		t.Fatal("no result delivered")
		return nil
	}
}

var detectionOpts = cmp.Options{
	cmpopts.IgnoreFields(postprocess.Detection{}, "ID"),
	cmpopts.EquateApprox(0, 1e-5),
	cmpopts.EquateEmpty(),
}

func TestDetect_EndToEnd(t *testing.T) {
	m := &fakeModel{desc: imageDesc(), outputs: twoRowOutputs}
	d := newDetector(t, &fakeLoader{model: m}, DefaultConfig())

	got := receive(t, d.Detect(square(640)))

	want := []postprocess.Detection{
		{Label: postprocess.DefaultLabel, Class: postprocess.NoClass, Confidence: 0.5,
			Box: images.Rect{X: 0.25, Y: 0.25, Width: 0.1, Height: 0.1}},
		{Label: postprocess.DefaultLabel, Class: postprocess.NoClass, Confidence: 0.02,
			Box: images.Rect{X: 0.35, Y: 0.35, Width: 0.5, Height: 0.5}},
	}
	if diff := cmp.Diff(want, got, detectionOpts); diff != "" {
		t.Errorf("detections mismatch (-want +got):\n%s", diff)
	}
	assert.NotEqual(t, got[0].ID, got[1].ID)
	assert.Equal(t, []string{"person", "bicycle"}, d.AvailableClassNames())
}

func TestDetect_ScalarInputsOnlyWhenDeclared(t *testing.T) {
	m := &fakeModel{desc: imageDesc(), outputs: twoRowOutputs}
	d := newDetector(t, &fakeLoader{model: m}, DefaultConfig())
	receive(t, d.Detect(square(64)))
	require.Equal(t, 1, m.predictions())
	assert.Empty(t, m.inputs[0].Scalars)
	assert.Equal(t, image.Rect(0, 0, 640, 640), m.inputs[0].Image.Bounds())

	m2 := &fakeModel{
		desc: imageDesc(
			model.FeatureDescription{Name: model.InputConfidenceThreshold, Kind: model.FeatureScalar},
			model.FeatureDescription{Name: model.InputIoUThreshold, Kind: model.FeatureScalar},
		),
		outputs: twoRowOutputs,
	}
	d2 := newDetector(t, &fakeLoader{model: m2}, DefaultConfig())
	receive(t, d2.Detect(square(64)))
	require.Equal(t, 1, m2.predictions())
	assert.Equal(t, map[string]float64{
		model.InputConfidenceThreshold: 0.05,
		model.InputIoUThreshold:        0.45,
	}, m2.inputs[0].Scalars)
}

func TestDetect_LetterboxUnmapped(t *testing.T) {
	// A 200x100 image occupies rows 160..480 of the 640x640 input.
	m := &fakeModel{
		desc: imageDesc(),
		outputs: func() *tensor.FeatureSet {
			return tensor.NewFeatureSet(
				tensor.MustNew("coordinates", []float32{0.5, 0.5, 0.5, 0.25}, []int{1, 4}),
				tensor.MustNew("confidence", []float32{0.9}, []int{1}),
			)
		},
	}
	d := newDetector(t, &fakeLoader{model: m}, DefaultConfig())

	got := receive(t, d.Detect(image.NewRGBA(image.Rect(0, 0, 200, 100))))
	require.Len(t, got, 1)
	assert.InDelta(t, 0.25, got[0].Box.X, 1e-5)
	assert.InDelta(t, 0.25, got[0].Box.Y, 1e-5)
	assert.InDelta(t, 0.5, got[0].Box.Width, 1e-5)
	assert.InDelta(t, 0.5, got[0].Box.Height, 1e-5)
}

func TestDetect_FallbackFitThenFill(t *testing.T) {
	m := &fakeModel{desc: imageDesc(), outputs: emptyOutputs}
	fb := &fakeFallback{results: map[ScaleMode][]Observation{
		ScaleFill: {
			{Label: "bicycle", Confidence: 0.8, Box: images.Rect{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4}, BottomLeft: true},
			{Label: "", Confidence: 0.6, Box: images.Rect{X: 0.5, Y: 0.5, Width: 0.2, Height: 0.2}},
			{Label: "tiny", Confidence: 0.9, Box: images.Rect{X: 0.5, Y: 0.5, Width: 0.001, Height: 0.2}},
		},
	}}
	rp := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{Logger: quietLogger()})
	d := newDetector(t, &fakeLoader{model: m}, DefaultConfig(), WithFallback(fb), WithProfiler(rp))

	got := receive(t, d.Detect(square(640)))

	assert.Equal(t, []ScaleMode{ScaleFit, ScaleFill}, fb.modes)
	want := []postprocess.Detection{
		{Label: "bicycle", Class: 1, Confidence: 0.8, Box: images.Rect{X: 0.1, Y: 0.4, Width: 0.3, Height: 0.4}},
		{Label: postprocess.DefaultLabel, Class: postprocess.NoClass, Confidence: 0.6,
			Box: images.Rect{X: 0.5, Y: 0.5, Width: 0.2, Height: 0.2}},
	}
	if diff := cmp.Diff(want, got, detectionOpts); diff != "" {
		t.Errorf("detections mismatch (-want +got):\n%s", diff)
	}

	stats := rp.Snapshot()
	assert.Equal(t, int64(1), stats.Counters[CounterFallbacks])
	assert.Equal(t, int64(1), stats.Operations[OpDirect].Count)
	assert.Equal(t, int64(1), stats.Operations[OpFallback].Count)
}

func TestDetect_FallbackStopsAtFirstResult(t *testing.T) {
	m := &fakeModel{desc: imageDesc(), err: errors.New("inference failed")}
	fb := &fakeFallback{results: map[ScaleMode][]Observation{
		ScaleFit: {{Label: "person", Confidence: 0.7, Box: images.Rect{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.2}}},
	}}
	d := newDetector(t, &fakeLoader{model: m}, DefaultConfig(), WithFallback(fb))

	got := receive(t, d.Detect(square(64)))
	require.Len(t, got, 1)
	assert.Equal(t, "person", got[0].Label)
	assert.Equal(t, 0, got[0].Class)
	assert.Equal(t, []ScaleMode{ScaleFit}, fb.modes)
}

func TestDetect_FallbackDisabled(t *testing.T) {
	m := &fakeModel{desc: imageDesc(), outputs: emptyOutputs}
	fb := &fakeFallback{}
	cfg := DefaultConfig()
	cfg.Fallback = false
	d := newDetector(t, &fakeLoader{model: m}, cfg, WithFallback(fb))

	assert.Empty(t, receive(t, d.Detect(square(64))))
	assert.Empty(t, fb.modes)
}

func TestDetect_ModelUnavailable(t *testing.T) {
	loader := &fakeLoader{err: errors.New("corrupt")}
	fb := &fakeFallback{}
	d := newDetector(t, loader, DefaultConfig(), WithFallback(fb))

	got := receive(t, d.Detect(square(64)))
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, fb.modes)
	assert.False(t, d.Ready())

	// Failures are not cached.
	receive(t, d.Detect(square(64)))
	assert.Equal(t, 2, loader.loadCount())
}

func TestDetect_EmptyImage(t *testing.T) {
	m := &fakeModel{desc: imageDesc(), outputs: twoRowOutputs}
	d := newDetector(t, &fakeLoader{model: m}, DefaultConfig())

	assert.Empty(t, receive(t, d.Detect(nil)))
	assert.Empty(t, receive(t, d.Detect(image.NewRGBA(image.Rectangle{}))))
	assert.Zero(t, m.predictions())
}

func TestDetect_UnrecognizedOutputs(t *testing.T) {
	m := &fakeModel{
		desc: imageDesc(),
		outputs: func() *tensor.FeatureSet {
			return tensor.NewFeatureSet(tensor.MustNew("embedding", make([]float32, 8), []int{2, 2, 2}))
		},
	}
	d := newDetector(t, &fakeLoader{model: m}, DefaultConfig())
	assert.Empty(t, receive(t, d.Detect(square(64))))
}

func TestDetect_ModelDiscoveredOnce(t *testing.T) {
	m := &fakeModel{desc: imageDesc(), outputs: twoRowOutputs}
	loader := &fakeLoader{model: m}
	d := newDetector(t, loader, DefaultConfig())

	first := d.Detect(square(64))
	second := d.Detect(square(64))
	receive(t, first)
	receive(t, second)

	assert.Equal(t, 1, loader.loadCount())
	assert.Equal(t, 2, m.predictions())
	assert.True(t, d.Ready())
}

func TestDetect_NMS(t *testing.T) {
	m := &fakeModel{
		desc: imageDesc(),
		outputs: func() *tensor.FeatureSet {
			return tensor.NewFeatureSet(
				tensor.MustNew("coordinates", []float32{
					0.5, 0.5, 0.2, 0.2,
					0.51, 0.5, 0.2, 0.2,
				}, []int{2, 4}),
				tensor.MustNew("confidence", []float32{0.6, 0.9}, []int{2}),
			)
		},
	}
	cfg := DefaultConfig()
	cfg.NMS.Enabled = true
	d := newDetector(t, &fakeLoader{model: m}, cfg)

	got := receive(t, d.Detect(square(640)))
	require.Len(t, got, 1)
	assert.InDelta(t, 0.9, got[0].Confidence, 1e-6)
}

func TestClose_DrainsQueuedRequests(t *testing.T) {
	m := &fakeModel{desc: imageDesc(), outputs: twoRowOutputs, block: make(chan struct{})}
	discovery := models.NewDiscovery(bundle(t), &fakeLoader{model: m}, models.WithDiscoveryLogger(quietLogger()))
	cfg := DefaultConfig()
	cfg.QueueSize = 4
	d, err := NewDetector(discovery, cfg, WithLogger(quietLogger()))
	require.NoError(t, err)

	replies := make([]<-chan []postprocess.Detection, 3)
	for i := range replies {
		replies[i] = d.Detect(square(64))
	}

	closed := make(chan error)
	go func() { closed <- d.Close() }()
	close(m.block)

	for _, r := range replies {
		assert.Len(t, receive(t, r), 2)
	}
	require.NoError(t, <-closed)
	assert.True(t, m.closed)

	assert.Empty(t, receive(t, d.Detect(square(64))))
	assert.NoError(t, d.Close())
}

func TestDetectSync(t *testing.T) {
	m := &fakeModel{desc: imageDesc(), outputs: twoRowOutputs}
	d := newDetector(t, &fakeLoader{model: m}, DefaultConfig())

	got, err := d.DetectSync(context.Background(), square(64))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := &fakeModel{desc: imageDesc(), outputs: twoRowOutputs, block: make(chan struct{})}
	d2 := newDetector(t, &fakeLoader{model: blocked}, DefaultConfig())
	_, err = d2.DetectSync(ctx, square(64))
	assert.ErrorIs(t, err, context.Canceled)
	close(blocked.block)
}

func TestNewDetector_InvalidConfig(t *testing.T) {
	discovery := models.NewDiscovery(bundle(t), &fakeLoader{})
	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 2
	_, err := NewDetector(discovery, cfg)
	assert.Error(t, err)

	_, err = NewDetector(nil, DefaultConfig())
	assert.Error(t, err)
}

func TestScaleModeString(t *testing.T) {
	assert.Equal(t, "fit", ScaleFit.String())
	assert.Equal(t, "fill", ScaleFill.String())
	assert.Equal(t, "unknown", ScaleMode(7).String())
}
