package postprocess

import (
	"sort"
	"sync"

	"github.com/nvr-ai/go-yolo/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	Enabled      bool    `json:"enabled"       yaml:"enabled"`       // If false, ApplyNMS returns its input.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"` // Overlap threshold for suppression.
	ClassAware   bool    `json:"class_aware"   yaml:"class_aware"`   // If true, suppress only within same class.
	NumWorkers   int     `json:"num_workers"   yaml:"num_workers"`   // Goroutines used for class-aware suppression.
}

// DefaultNMSConfig returns a disabled, class-aware configuration.
func DefaultNMSConfig() NMSConfig {
	return NMSConfig{
		IoUThreshold: 0.45,
		ClassAware:   true,
		NumWorkers:   1,
	}
}

// ApplyNMS filters overlapping detections using Non-Maximum Suppression.
//
// Detections are ranked by descending confidence. When ClassAware is set each
// class is suppressed independently, spread over NumWorkers goroutines.
//
// Arguments:
//   - detections: The detections to filter. The slice is not modified.
//   - config: NMS configuration.
//
// Returns:
//   - []Detection: The kept detections, highest confidence first.
func ApplyNMS(detections []Detection, config NMSConfig) []Detection {
	if !config.Enabled || len(detections) == 0 {
		return detections
	}

	if !config.ClassAware {
		return ApplyGreedyNMS(rank(detections), config.IoUThreshold)
	}

	groups := make(map[int][]Detection)
	order := make([]int, 0)
	for _, d := range detections {
		if _, ok := groups[d.Class]; !ok {
			order = append(order, d.Class)
		}
		groups[d.Class] = append(groups[d.Class], d)
	}

	workers := max(1, config.NumWorkers)
	kept := make([][]Detection, len(order))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				kept[i] = ApplyGreedyNMS(rank(groups[order[i]]), config.IoUThreshold)
			}
		}()
	}
	for i := range order {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	filtered := make([]Detection, 0, len(detections))
	for _, k := range kept {
		filtered = append(filtered, k...)
	}
	return rank(filtered)
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Arguments:
//   - detections: Slice of detections sorted by descending confidence.
//   - iouThreshold: IoU threshold above which overlapping boxes are suppressed.
//
// Returns:
//   - Filtered slice of detections.
func ApplyGreedyNMS(detections []Detection, iouThreshold float32) []Detection {
	n := len(detections)
	if n == 0 {
		return nil
	}

	filtered := make([]Detection, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}

			// Suppress if IoU exceeds threshold
			if images.CalculateIoU(anchor.Box, detections[j].Box) > iouThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}

// rank returns a copy of detections sorted by descending confidence.
func rank(detections []Detection) []Detection {
	out := append([]Detection(nil), detections...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}
