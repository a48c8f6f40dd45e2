package postprocess

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/nvr-ai/go-yolo/images"
)

// DensityConfig contains parameters for scene density analysis. Areas and
// distances are fractions of the normalized frame.
type DensityConfig struct {
	// SmallArea is the box area below which an object counts as small.
	SmallArea float64 `json:"small_area" yaml:"small_area"`

	// LargeArea is the box area above which an object counts as large.
	LargeArea float64 `json:"large_area" yaml:"large_area"`

	// ClusteringRadius is the center distance under which two objects cluster.
	ClusteringRadius float64 `json:"clustering_radius" yaml:"clustering_radius"`

	// OverlapThreshold is the IoU at or above which two objects overlap.
	OverlapThreshold float64 `json:"overlap_threshold" yaml:"overlap_threshold"`
}

// DefaultDensityConfig returns thresholds tuned for full-frame camera images.
func DefaultDensityConfig() DensityConfig {
	return DensityConfig{
		SmallArea:        0.01,
		LargeArea:        0.1,
		ClusteringRadius: 0.15,
		OverlapThreshold: 0.3,
	}
}

// DensityMetrics summarizes the distribution of detections in one frame.
type DensityMetrics struct {
	// TotalObjects is the total number of detected objects.
	TotalObjects int `json:"total_objects"`

	// SmallObjects is the count of objects below DensityConfig.SmallArea.
	SmallObjects int `json:"small_objects"`

	// LargeObjects is the count of objects above DensityConfig.LargeArea.
	LargeObjects int `json:"large_objects"`

	// AverageObjectSize is the mean normalized box area.
	AverageObjectSize float64 `json:"average_object_size"`

	// ObjectSizeVariance measures the spread in object sizes.
	ObjectSizeVariance float64 `json:"object_size_variance"`

	// Coverage is the summed box area, which exceeds 1 when boxes overlap heavily.
	Coverage float64 `json:"coverage"`

	// ClusteringCoefficient is the fraction of object pairs within ClusteringRadius.
	ClusteringCoefficient float64 `json:"clustering_coefficient"`

	// OverlapRatio is the fraction of objects that overlap a later object.
	OverlapRatio float64 `json:"overlap_ratio"`

	// CenterX and CenterY locate the mean box center.
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`

	// BoundingRegion contains all detections.
	BoundingRegion images.Rect `json:"bounding_region"`

	// Confidence provides statistics on detection confidence.
	Confidence ConfidenceStats `json:"confidence"`
}

// ConfidenceStats provides statistical analysis of detection confidence scores.
type ConfidenceStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
}

// DensityEstimator analyzes the spatial distribution of detections.
type DensityEstimator struct {
	config DensityConfig
}

// NewDensityEstimator creates a density estimator.
//
// Arguments:
//   - config: Configuration parameters for density estimation.
//
// Returns:
//   - *DensityEstimator: The initialized density estimator.
func NewDensityEstimator(config DensityConfig) *DensityEstimator {
	return &DensityEstimator{config: config}
}

// Metrics calculates density metrics for one frame of detections.
func (e *DensityEstimator) Metrics(detections []Detection) DensityMetrics {
	metrics := DensityMetrics{TotalObjects: len(detections)}
	if len(detections) == 0 {
		return metrics
	}

	e.sizeMetrics(detections, &metrics)
	confidenceMetrics(detections, &metrics)
	spatialMetrics(detections, &metrics)
	e.clusteringMetrics(detections, &metrics)
	e.overlapMetrics(detections, &metrics)
	return metrics
}

// Score reduces the metrics to a single scene complexity value.
//
// The score is the confidence-weighted object count, plus a bonus for small
// objects, clustering and overlap.
func (e *DensityEstimator) Score(detections []Detection) int {
	if len(detections) == 0 {
		return 0
	}
	m := e.Metrics(detections)

	var score float64
	for _, d := range detections {
		score += float64(d.Confidence)
	}
	score += float64(m.SmallObjects) * 1.5
	score += m.ClusteringCoefficient * 2.0
	score += m.OverlapRatio * 3.0
	return int(math.Round(score))
}

func (e *DensityEstimator) sizeMetrics(detections []Detection, metrics *DensityMetrics) {
	areas := make([]float64, len(detections))
	for i, d := range detections {
		area := float64(d.Box.Area())
		areas[i] = area
		if area < e.config.SmallArea {
			metrics.SmallObjects++
		}
		if area > e.config.LargeArea {
			metrics.LargeObjects++
		}
	}
	metrics.AverageObjectSize, metrics.ObjectSizeVariance = stat.PopMeanVariance(areas, nil)
	metrics.Coverage = floats.Sum(areas)
}

func confidenceMetrics(detections []Detection, metrics *DensityMetrics) {
	confidences := make([]float64, len(detections))
	for i, d := range detections {
		confidences[i] = float64(d.Confidence)
	}
	sort.Float64s(confidences)

	s := &metrics.Confidence
	var variance float64
	s.Mean, variance = stat.PopMeanVariance(confidences, nil)
	s.StdDev = math.Sqrt(variance)
	s.Min = floats.Min(confidences)
	s.Max = floats.Max(confidences)

	n := len(confidences)
	if n%2 == 0 {
		s.Median = (confidences[n/2-1] + confidences[n/2]) / 2
	} else {
		s.Median = confidences[n/2]
	}
}

func spatialMetrics(detections []Detection, metrics *DensityMetrics) {
	var sumX, sumY float64
	minX, minY := float32(math.MaxFloat32), float32(math.MaxFloat32)
	var maxX, maxY float32

	for _, d := range detections {
		sumX += float64(d.Box.X + d.Box.Width/2)
		sumY += float64(d.Box.Y + d.Box.Height/2)
		minX = min(minX, d.Box.X)
		minY = min(minY, d.Box.Y)
		maxX = max(maxX, d.Box.MaxX())
		maxY = max(maxY, d.Box.MaxY())
	}

	n := float64(len(detections))
	metrics.CenterX = sumX / n
	metrics.CenterY = sumY / n
	metrics.BoundingRegion = images.RectFromCorners(minX, minY, maxX, maxY)
}

func (e *DensityEstimator) clusteringMetrics(detections []Detection, metrics *DensityMetrics) {
	if len(detections) < 2 {
		return
	}

	totalPairs, clusteredPairs := 0, 0
	for i := 0; i < len(detections); i++ {
		a := detections[i].Box
		for j := i + 1; j < len(detections); j++ {
			b := detections[j].Box
			dx := float64((a.X + a.Width/2) - (b.X + b.Width/2))
			dy := float64((a.Y + a.Height/2) - (b.Y + b.Height/2))
			totalPairs++
			if math.Hypot(dx, dy) <= e.config.ClusteringRadius {
				clusteredPairs++
			}
		}
	}
	metrics.ClusteringCoefficient = float64(clusteredPairs) / float64(totalPairs)
}

func (e *DensityEstimator) overlapMetrics(detections []Detection, metrics *DensityMetrics) {
	if len(detections) < 2 {
		return
	}

	overlapping := 0
	for i := 0; i < len(detections); i++ {
		for j := i + 1; j < len(detections); j++ {
			if float64(images.CalculateIoU(detections[i].Box, detections[j].Box)) >= e.config.OverlapThreshold {
				overlapping++
				break
			}
		}
	}
	metrics.OverlapRatio = float64(overlapping) / float64(len(detections))
}
