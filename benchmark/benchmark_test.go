package benchmark

import (
	"context"
	"encoding/csv"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/util"
)

type mockDetector struct {
	mu    sync.Mutex
	sizes []image.Point
	fail  func(call int) bool
}

func (m *mockDetector) DetectSync(_ context.Context, img image.Image) ([]postprocess.Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes = append(m.sizes, img.Bounds().Size())
	if m.fail != nil && m.fail(len(m.sizes)) {
		return nil, errors.New("inference failed")
	}
	return []postprocess.Detection{{Label: "person"}, {Label: "car"}}, nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestScenarioBuilder(t *testing.T) {
	scenario := NewScenarioBuilder("test_scenario").
		WithResolution(416, 320).
		WithImageFormat(images.FormatWebP).
		WithIterations(50).
		WithWarmupRuns(5).
		Build()

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, Resolution{Width: 416, Height: 320, Name: "416x320"}, scenario.Resolution)
	assert.Equal(t, images.FormatWebP, scenario.ImageFormat)
	assert.Equal(t, 50, scenario.Iterations)
	assert.Equal(t, 5, scenario.WarmupRuns)
	assert.NoError(t, scenario.Validate())
}

func TestScenarioValidate(t *testing.T) {
	assert.Error(t, NewScenarioBuilder("a").WithResolution(0, 10).Build().Validate())
	assert.Error(t, NewScenarioBuilder("b").WithIterations(0).Build().Validate())
	assert.Error(t, NewScenarioBuilder("c").WithImageFormat("gif").Build().Validate())
}

func TestPredefinedScenarios(t *testing.T) {
	quick := QuickScenarios(20)
	require.Len(t, quick.Scenarios, 2)
	assert.Equal(t, 2, quick.Scenarios[0].WarmupRuns)

	all := ComprehensiveScenarios(10)
	assert.Len(t, all.Scenarios, len(CommonResolutions)*len(Formats))
	for _, s := range all.Scenarios {
		assert.NoError(t, s.Validate())
	}
}

func TestScenarioSetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "set.json")
	set := QuickScenarios(5)
	require.NoError(t, SaveScenarioSet(set, path))

	loaded, err := LoadScenarioSet(path)
	require.NoError(t, err)
	assert.Equal(t, set, loaded)

	require.NoError(t, os.WriteFile(path, []byte(`{"scenarios":[{"name":"bad"}]}`), 0o600))
	_, err = LoadScenarioSet(path)
	assert.Error(t, err)
}

func TestEncode(t *testing.T) {
	img := Synthetic(32, 24)
	for _, f := range Formats {
		t.Run(string(f), func(t *testing.T) {
			data, err := Encode(img, f)
			require.NoError(t, err)
			assert.Equal(t, f, images.SniffFormat(data))

			decoded, err := images.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, image.Pt(32, 24), decoded.Bounds().Size())
		})
	}

	_, err := Encode(img, "gif")
	assert.Error(t, err)
}

func TestRunScenario(t *testing.T) {
	det := &mockDetector{}
	suite := NewSuite(det, t.TempDir(), quietLogger())

	scenario := NewScenarioBuilder("s").WithResolution(64, 48).WithIterations(4).WithWarmupRuns(2).Build()
	metrics, err := suite.RunScenario(context.Background(), scenario)
	require.NoError(t, err)

	assert.Equal(t, 8, metrics.DetectionCount)
	assert.Zero(t, metrics.ErrorRate)
	assert.Positive(t, metrics.EncodedBytes)
	assert.Positive(t, metrics.FramesPerSecond)
	require.Len(t, det.sizes, 6)
	for _, s := range det.sizes {
		assert.Equal(t, image.Pt(64, 48), s)
	}
}

func TestRunScenario_ErrorRate(t *testing.T) {
	// Warmup calls are 1 and 2; iterations 3..6 fail on even calls.
	det := &mockDetector{fail: func(call int) bool { return call > 2 && call%2 == 0 }}
	suite := NewSuite(det, t.TempDir(), quietLogger())

	scenario := NewScenarioBuilder("s").WithResolution(16, 16).WithIterations(4).WithWarmupRuns(2).Build()
	metrics, err := suite.RunScenario(context.Background(), scenario)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, metrics.ErrorRate, 1e-9)
	assert.Equal(t, 4, metrics.DetectionCount)
}

func TestRunScenario_ResizesCorpus(t *testing.T) {
	dir := t.TempDir()
	data, err := Encode(Synthetic(100, 50), images.FormatPNG)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "frame-1.png"), data, 0o600))

	files, err := util.LoadDirectoryImageFiles(dir)
	require.NoError(t, err)

	det := &mockDetector{}
	suite := NewSuite(det, t.TempDir(), quietLogger())
	require.NoError(t, suite.LoadCorpus(files))

	scenario := NewScenarioBuilder("s").WithResolution(40, 30).WithIterations(1).WithWarmupRuns(0).Build()
	_, err = suite.RunScenario(context.Background(), scenario)
	require.NoError(t, err)
	assert.Equal(t, []image.Point{image.Pt(40, 30)}, det.sizes)

	assert.Error(t, suite.LoadCorpus([]util.ImageFile{{Path: "x.png", Data: []byte("nope")}}))
}

func TestRunAllScenariosAndSave(t *testing.T) {
	out := t.TempDir()
	suite := NewSuite(&mockDetector{}, out, quietLogger())
	suite.AddScenarioSet(QuickScenarios(1))
	suite.AddScenario(Scenario{Name: "invalid"})

	require.NoError(t, suite.RunAllScenarios(context.Background()))
	results := suite.GetResults()
	require.Len(t, results, 2)

	path, err := suite.SaveResults()
	require.NoError(t, err)
	assert.FileExists(t, path)

	name := strings.TrimSuffix(filepath.Base(path), ".json") + ".csv"
	summary := filepath.Join(out, strings.Replace(name, "results", "summary", 1))
	f, err := os.Open(summary)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "scenario", rows[0][0])
	assert.Equal(t, "quick_640x480", rows[1][0])
}

func TestRunAllScenarios_Canceled(t *testing.T) {
	suite := NewSuite(&mockDetector{}, t.TempDir(), quietLogger())
	suite.AddScenarioSet(QuickScenarios(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, suite.RunAllScenarios(ctx), context.Canceled)
	assert.Empty(t, suite.GetResults())
}
