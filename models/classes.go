package models

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// DefaultThreshold is the minimum confidence kept by a ClassFilter.
const DefaultThreshold = 0.5

// Preset is a named group of enabled classes.
type Preset string

const (
	// PresetCustom leaves the per-class flags untouched.
	PresetCustom Preset = "custom"
	// PresetHome enables household objects.
	PresetHome Preset = "home"
	// PresetVehicles enables vehicles.
	PresetVehicles Preset = "vehicles"
	// PresetFoods enables food items.
	PresetFoods Preset = "foods"
	// PresetLiving enables people and animals.
	PresetLiving Preset = "living"
)

// Presets lists every preset in display order.
func Presets() []Preset {
	return []Preset{PresetCustom, PresetHome, PresetVehicles, PresetFoods, PresetLiving}
}

var presetClasses = map[Preset][]string{
	PresetHome: {
		"chair", "couch", "potted plant", "bed", "dining table", "toilet", "laptop", "mouse",
		"keyboard", "remote", "microwave", "oven", "toaster", "refrigerator", "bottle",
		"wine glass", "cup", "fork", "knife", "spoon", "bowl", "book", "clock", "vase",
		"scissors", "teddy bear", "hair drier", "toothbrush", "sink",
	},
	PresetVehicles: {"bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat"},
	PresetFoods: {
		"banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza",
		"donut", "cake",
	},
	PresetLiving: {
		"person", "bird", "cat", "dog", "horse", "sheep", "cow", "elephant", "bear", "zebra",
		"giraffe",
	},
}

// Title returns the short display name of the preset.
func (p Preset) Title() string {
	switch p {
	case PresetHome:
		return "Home"
	case PresetVehicles:
		return "Vehicles"
	case PresetFoods:
		return "Foods"
	case PresetLiving:
		return "Living"
	default:
		return "Custom"
	}
}

// Classes returns the labels a preset enables, or nil for PresetCustom.
func (p Preset) Classes() []string {
	return append([]string(nil), presetClasses[p]...)
}

// ParsePreset validates a preset name. The empty string is PresetCustom.
func ParsePreset(s string) (Preset, error) {
	if s == "" {
		return PresetCustom, nil
	}
	for _, p := range Presets() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown class preset %q", s)
}

// FilterConfig is the persisted state of a ClassFilter.
type FilterConfig struct {
	// Detections below Threshold are dropped. Zero means DefaultThreshold.
	Threshold float32 `json:"threshold" yaml:"threshold"`
	// Preset is applied to the available classes once they are known.
	Preset Preset `json:"preset" yaml:"preset"`
	// Disabled lists labels switched off individually.
	Disabled []string `json:"disabled" yaml:"disabled"`
}

// ClassFilter keeps detections whose class is enabled and whose confidence
// reaches the threshold. Labels are enabled until switched off.
//
// A ClassFilter is safe for concurrent use.
type ClassFilter struct {
	mu        sync.RWMutex
	threshold float32
	preset    Preset
	enabled   map[string]bool
}

// NewClassFilter creates a filter from its persisted state.
func NewClassFilter(config FilterConfig) *ClassFilter {
	f := &ClassFilter{
		threshold: config.Threshold,
		preset:    config.Preset,
		enabled:   make(map[string]bool),
	}
	if f.threshold == 0 {
		f.threshold = DefaultThreshold
	}
	if f.preset == "" {
		f.preset = PresetCustom
	}
	for _, label := range config.Disabled {
		f.enabled[label] = false
	}
	return f
}

// Threshold returns the minimum confidence kept.
func (f *ClassFilter) Threshold() float32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

// SetThreshold changes the minimum confidence kept. Zero restores the default.
func (f *ClassFilter) SetThreshold(v float32) {
	if v == 0 {
		v = DefaultThreshold
	}
	f.mu.Lock()
	f.threshold = v
	f.mu.Unlock()
}

// Preset returns the last applied preset.
func (f *ClassFilter) Preset() Preset {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.preset
}

// IsEnabled reports whether label passes the filter. Unknown labels are enabled.
func (f *ClassFilter) IsEnabled(label string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.isEnabled(label)
}

func (f *ClassFilter) isEnabled(label string) bool {
	on, ok := f.enabled[label]
	return !ok || on
}

// SetEnabled switches one label on or off. Editing a single class moves the
// filter to PresetCustom.
func (f *ClassFilter) SetEnabled(label string, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled[label] = on
	f.preset = PresetCustom
}

// ApplyPreset enables the preset's classes among available and disables the
// rest. PresetCustom changes nothing.
func (f *ClassFilter) ApplyPreset(p Preset, available []string) {
	if p == PresetCustom {
		return
	}
	allowed := make(map[string]bool, len(presetClasses[p]))
	for _, label := range presetClasses[p] {
		allowed[label] = true
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, label := range available {
		f.enabled[label] = allowed[label]
	}
	f.preset = p
}

// Disabled returns the labels currently switched off, sorted.
func (f *ClassFilter) Disabled() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0)
	for label, on := range f.enabled {
		if !on {
			out = append(out, label)
		}
	}
	sort.Strings(out)
	return out
}

// Apply returns the detections that reach the threshold and whose label is
// enabled.
//
// When available is not empty only its enabled labels pass, so synthetic
// labels such as "class_5" are dropped. An empty table means the class table
// is not known yet, for example when no model has loaded and only the OpenCV
// detector produced results. In that case every enabled label passes the
// threshold check instead of the whole batch being dropped.
//
// Arguments:
//   - detections: The detections to filter.
//   - available: The model's class table.
//
// Returns:
//   - []postprocess.Detection: The kept detections in input order.
func (f *ClassFilter) Apply(detections []postprocess.Detection, available postprocess.ClassNames) []postprocess.Detection {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var known map[string]bool
	if len(available) > 0 {
		known = make(map[string]bool, len(available))
		for _, label := range available {
			known[label] = true
		}
	}

	out := make([]postprocess.Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence < f.threshold || !f.isEnabled(d.Label) {
			continue
		}
		if known != nil && !known[d.Label] {
			continue
		}
		out = append(out, d)
	}
	return out
}

// LabelCount is the number of detections sharing a label.
type LabelCount struct {
	Label string `json:"label" yaml:"label"`
	Count int    `json:"count" yaml:"count"`
}

// GroupCounts counts detections per label, sorted by label.
func GroupCounts(detections []postprocess.Detection) []LabelCount {
	counts := make(map[string]int)
	for _, d := range detections {
		counts[d.Label]++
	}
	out := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, LabelCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// COCOClasses is the zero-based 80 class COCO table emitted by YOLO models.
var COCOClasses = postprocess.ClassNames{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier",
	"toothbrush",
}

// BuiltinClassNames returns a named built-in class table. Only "coco" is known.
func BuiltinClassNames(name string) (postprocess.ClassNames, error) {
	switch name {
	case "":
		return nil, nil
	case "coco", "yolo":
		return append(postprocess.ClassNames(nil), COCOClasses...), nil
	default:
		return nil, fmt.Errorf("unknown class table %q", name)
	}
}
