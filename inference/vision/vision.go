// Package vision - OpenCV DNN object detection used as the pipeline fallback.
package vision

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	gtensor "gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/inference/detectors"
	"github.com/nvr-ai/go-yolo/inference/tensor"
	"github.com/nvr-ai/go-yolo/inference/tensor/dense"
	"github.com/nvr-ai/go-yolo/models/model"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// Detector runs a model's ONNX graph through OpenCV DNN.
//
// Networks are read once per graph and kept until Close.
type Detector struct {
	config inference.FallbackConfig
	logger logrus.FieldLogger

	mu   sync.Mutex
	nets map[string]*gocv.Net
}

// New creates an OpenCV detector.
func New(config inference.FallbackConfig, logger logrus.FieldLogger) *Detector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Detector{
		config: config,
		logger: logger,
		nets:   make(map[string]*gocv.Net),
	}
}

// Detect runs the model's graph on img scaled with mode.
//
// Arguments:
//   - ctx: Checked before inference.
//   - m: The model whose graph and class table are used.
//   - img: The source image.
//   - mode: How img is fitted to the model input.
//
// Returns:
//   - []inference.Observation: Boxes normalized to img with a top-left origin.
//   - error: An error if the graph cannot be read or run.
func (d *Detector) Detect(ctx context.Context, m model.Model, img image.Image, mode inference.ScaleMode) ([]inference.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	desc := m.Description()
	w, h := desc.InputSize()

	var prepared *image.NRGBA
	var lb images.Letterbox
	switch mode {
	case inference.ScaleFit:
		prepared, lb = images.LetterboxFit(img, w, h)
	case inference.ScaleFill:
		prepared = images.Fill(img, w, h)
	default:
		return nil, fmt.Errorf("unsupported scale mode %v", mode)
	}

	head, err := d.forward(m.Path(), prepared, w, h)
	if err != nil {
		return nil, err
	}

	boxes, scores, err := detectors.SplitHead(head, w, h)
	if err != nil {
		return nil, err
	}
	names := postprocess.ParseClassNames(desc.Metadata[model.MetadataNames])
	obs := d.observations(boxes, scores, names, w, h)

	if mode == inference.ScaleFit {
		for i := range obs {
			obs[i].Box = lb.Unmap(obs[i].Box)
		}
	}
	return obs, nil
}

// forward runs the graph on a prepared image and returns the raw head.
func (d *Detector) forward(path string, img image.Image, w, h int) (*tensor.Tensor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	net, err := d.net(path)
	if err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, errors.Wrap(inference.ErrImageConversion, err.Error())
	}
	defer mat.Close()

	// ImageToMatRGB produces BGR channel order, so swap back to RGB.
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(w, h), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	net.SetInput(blob, "")
	out := net.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read network output")
	}
	head := gtensor.New(gtensor.WithShape(out.Size()...), gtensor.WithBacking(append([]float32(nil), data...)))
	return dense.FromDense("output0", head)
}

// net returns the cached network for a model artifact. d.mu must be held.
func (d *Detector) net(path string) (*gocv.Net, error) {
	if net, ok := d.nets[path]; ok {
		return net, nil
	}
	graph, err := detectors.ResolveGraph(path)
	if err != nil {
		return nil, err
	}
	net := gocv.ReadNetFromONNX(graph)
	if net.Empty() {
		return nil, fmt.Errorf("failed to read network from %s", graph)
	}
	if d.config.Backend == "cuda" {
		if err := net.SetPreferableBackend(gocv.NetBackendCUDA); err != nil {
			d.logger.WithError(err).Warn("cuda backend unavailable")
		}
		if err := net.SetPreferableTarget(gocv.NetTargetCUDA); err != nil {
			d.logger.WithError(err).Warn("cuda target unavailable")
		}
	} else {
		_ = net.SetPreferableBackend(gocv.NetBackendOpenCV)
		_ = net.SetPreferableTarget(gocv.NetTargetCPU)
	}
	d.logger.WithField("path", graph).Debug("opencv network loaded")
	d.nets[path] = &net
	return &net, nil
}

// observations picks the best class per candidate and suppresses overlaps.
func (d *Detector) observations(boxes, scores *tensor.Tensor, names postprocess.ClassNames, w, h int) []inference.Observation {
	candidates := boxes.Rows()
	rects := make([]image.Rectangle, 0, candidates)
	confidences := make([]float32, 0, candidates)
	kept := make([]inference.Observation, 0, candidates)

	var row []float64
	for i := 0; i < candidates; i++ {
		class, score := postprocess.NoClass, scores.At(i)
		if scores.Dims() == 2 {
			row = scores.Row(i, row)
			class, score = postprocess.ArgMax(row)
		}
		if !(score >= float64(d.config.ScoreThreshold)) {
			continue
		}

		box := images.RectFromCenter(
			float32(boxes.At(i, 0)), float32(boxes.At(i, 1)),
			float32(boxes.At(i, 2)), float32(boxes.At(i, 3)),
		)
		px := box.Scale(w, h)
		rects = append(rects, image.Rect(int(px.X), int(px.Y), int(px.MaxX()), int(px.MaxY())))
		confidences = append(confidences, float32(score))

		label := ""
		if len(names) > 0 {
			label = names.Resolve(class)
		}
		kept = append(kept, inference.Observation{
			Label:      label,
			Confidence: float32(score),
			Box:        box,
		})
	}
	if len(kept) == 0 {
		return kept
	}

	indices := gocv.NMSBoxes(rects, confidences, d.config.ScoreThreshold, d.config.NMSThreshold)
	out := make([]inference.Observation, 0, len(indices))
	for _, idx := range indices {
		out = append(out, kept[idx])
	}
	return out
}

// Close releases every cached network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	for path, net := range d.nets {
		if err := net.Close(); err != nil && first == nil {
			first = errors.Wrap(err, path)
		}
		delete(d.nets, path)
	}
	return first
}
