// Package detectors - ONNX Runtime model backend.
package detectors

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/x448/float16"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference/providers"
	"github.com/nvr-ai/go-yolo/inference/tensor"
	"github.com/nvr-ai/go-yolo/models/model"
)

// Loader loads ONNX graphs into dynamic ONNX Runtime sessions.
type Loader struct {
	provider  providers.Config
	precision model.Precision
	logger    logrus.FieldLogger
}

// NewLoader creates a loader for the given execution provider.
//
// Arguments:
//   - provider: The execution provider and session tuning.
//   - precision: The numeric precision of the graphs' outputs.
//   - logger: The logger for load diagnostics.
//
// Returns:
//   - *Loader: The loader.
func NewLoader(provider providers.Config, precision model.Precision, logger logrus.FieldLogger) *Loader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Loader{provider: provider, precision: precision, logger: logger}
}

// Compile validates a raw ONNX graph and returns the path to load.
//
// ONNX graphs need no ahead-of-time compilation, so a readable graph is
// loaded from where it is.
func (l *Loader) Compile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := providers.InitEnvironment(l.provider.SharedLibraryPath); err != nil {
		return "", err
	}
	if _, _, err := ort.GetInputOutputInfo(path); err != nil {
		return "", errors.Wrapf(err, "failed to read graph %s", path)
	}
	return path, nil
}

// Load opens the graph at path, or path/model.onnx for a directory.
func (l *Loader) Load(ctx context.Context, path string) (model.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	graph, err := ResolveGraph(path)
	if err != nil {
		return nil, err
	}
	if err := providers.InitEnvironment(l.provider.SharedLibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(graph)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read graph %s", graph)
	}
	desc := describe(inputs, outputs, l.readMetadata(graph))
	if _, ok := desc.ImageInput(); !ok {
		return nil, fmt.Errorf("graph %s has no image input", graph)
	}

	options, err := providers.NewSessionOptions(l.provider, l.logger)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(graph, featureNames(desc.Inputs), featureNames(desc.Outputs), options)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create session for %s", graph)
	}

	l.logger.WithFields(logrus.Fields{
		"path":    graph,
		"backend": l.provider.Backend,
		"inputs":  featureNames(desc.Inputs),
		"outputs": featureNames(desc.Outputs),
	}).Info("model loaded")

	return &Model{
		path:      path,
		session:   session,
		desc:      desc,
		precision: l.precision,
		logger:    l.logger,
	}, nil
}

// readMetadata returns the custom metadata keys the pipeline understands.
// Missing metadata is not an error.
func (l *Loader) readMetadata(graph string) map[string]string {
	metadata := map[string]string{}
	md, err := ort.GetModelMetadata(graph)
	if err != nil {
		l.logger.WithError(err).Debug("model metadata unavailable")
		return metadata
	}
	defer md.Destroy()

	for _, key := range []string{model.MetadataNames, model.MetadataBoxFormat} {
		v, ok, err := md.LookupCustomMetadataMap(key)
		if err != nil {
			l.logger.WithError(err).WithField("key", key).Debug("metadata lookup failed")
			continue
		}
		if ok {
			metadata[key] = v
		}
	}
	return metadata
}

// Model is an ONNX graph bound to a dynamic session.
type Model struct {
	path      string
	session   *ort.DynamicAdvancedSession
	desc      model.Description
	precision model.Precision
	logger    logrus.FieldLogger

	mu sync.Mutex
}

// Path returns the artifact the model was loaded from.
func (m *Model) Path() string { return m.path }

// Description returns the graph's inputs, outputs and metadata.
func (m *Model) Description() model.Description { return m.desc }

// Predict runs the graph on one image.
//
// An image whose size differs from the declared input is stretched to fit.
// Raw detection heads are split into "coordinates" and "confidence" outputs.
//
// Arguments:
//   - ctx: Checked before the session runs.
//   - in: The image and scalar inputs.
//
// Returns:
//   - *tensor.FeatureSet: The outputs in graph order.
//   - error: An error if an input cannot be built or the session fails.
func (m *Model) Predict(ctx context.Context, in model.Input) (*tensor.FeatureSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, fmt.Errorf("model %s is closed", m.path)
	}

	inputs := make([]ort.Value, 0, len(m.desc.Inputs))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, feature := range m.desc.Inputs {
		v, err := m.buildInput(feature, in)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, v)
	}

	outputs := make([]ort.Value, len(m.desc.Outputs))
	if err := m.session.Run(inputs, outputs); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	fs := tensor.NewFeatureSet()
	for i, v := range outputs {
		t, err := m.readOutput(m.desc.Outputs[i], v)
		if err != nil {
			return nil, err
		}
		fs.Add(t)
	}

	w, h := m.desc.InputSize()
	return adaptOutputs(fs, w, h), nil
}

func (m *Model) buildInput(feature model.FeatureDescription, in model.Input) (ort.Value, error) {
	switch feature.Kind {
	case model.FeatureImage:
		return m.imageInput(feature, in.Image)
	case model.FeatureScalar:
		v, ok := in.Scalars[feature.Name]
		if !ok {
			return nil, fmt.Errorf("no value for scalar input %q", feature.Name)
		}
		shape := concreteShape(feature.Shape)
		if feature.DataType == tensor.Float64 {
			return ort.NewTensor(shape, []float64{v})
		}
		return ort.NewTensor(shape, []float32{float32(v)})
	default:
		return nil, fmt.Errorf("unsupported input %q with shape %v", feature.Name, feature.Shape)
	}
}

func (m *Model) imageInput(feature model.FeatureDescription, img image.Image) (ort.Value, error) {
	if img == nil {
		return nil, fmt.Errorf("no image for input %q", feature.Name)
	}
	w, h := m.desc.InputSize()
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		img = images.Fill(img, w, h)
	}

	data := make([]float32, 3*w*h)
	if err := images.ToCHW(img, data); err != nil {
		return nil, err
	}
	shape := ort.NewShape(1, 3, int64(h), int64(w))

	if feature.DataType == tensor.Float16 {
		return ort.NewCustomDataTensor(shape, encodeHalf(data), ort.TensorElementDataTypeFloat16)
	}
	return ort.NewTensor(shape, data)
}

// readOutput copies an output value into a tensor that outlives the session run.
func (m *Model) readOutput(feature model.FeatureDescription, v ort.Value) (*tensor.Tensor, error) {
	if v == nil {
		return nil, fmt.Errorf("output %q was not produced", feature.Name)
	}
	shape := make([]int, 0, len(v.GetShape()))
	for _, d := range v.GetShape() {
		shape = append(shape, int(d))
	}

	var data any
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		data = append([]float32(nil), t.GetData()...)
	case *ort.Tensor[float64]:
		data = append([]float64(nil), t.GetData()...)
	case *ort.CustomDataTensor:
		if feature.DataType == tensor.Float16 {
			data = decodeHalf(t.GetData())
		}
	default:
		m.logger.WithField("output", feature.Name).Debugf("output type %T reads as zero", v)
	}
	return tensor.New(feature.Name, data, shape, m.precision.TensorOptions()...)
}

// Close destroys the session.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}

// encodeHalf converts values to little-endian IEEE 754 half precision bytes.
func encodeHalf(values []float32) []byte {
	buf := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[i*2:], float16.Fromfloat32(v).Bits())
	}
	return buf
}

// decodeHalf reinterprets little-endian bytes as half precision bit patterns.
func decodeHalf(buf []byte) []uint16 {
	bits := make([]uint16, len(buf)/2)
	for i := range bits {
		bits[i] = binary.LittleEndian.Uint16(buf[i*2:])
	}
	return bits
}
