package tensor

// FeatureSet is the ordered collection of named outputs of one inference call.
//
// Names keep the order the model reported them in.
type FeatureSet struct {
	names  []string
	byName map[string]*Tensor
}

// NewFeatureSet builds a feature set from tensors, keyed by their names.
// A later tensor with a duplicate name replaces the earlier one in place.
func NewFeatureSet(tensors ...*Tensor) *FeatureSet {
	fs := &FeatureSet{byName: make(map[string]*Tensor, len(tensors))}
	for _, t := range tensors {
		fs.Add(t)
	}
	return fs
}

// Add appends t to the set.
func (fs *FeatureSet) Add(t *Tensor) {
	if t == nil {
		return
	}
	if fs.byName == nil {
		fs.byName = make(map[string]*Tensor)
	}
	if _, ok := fs.byName[t.Name()]; !ok {
		fs.names = append(fs.names, t.Name())
	}
	fs.byName[t.Name()] = t
}

// Get returns the tensor published under name.
func (fs *FeatureSet) Get(name string) (*Tensor, bool) {
	if fs == nil {
		return nil, false
	}
	t, ok := fs.byName[name]
	return t, ok
}

// Names returns the feature names in model order.
func (fs *FeatureSet) Names() []string {
	if fs == nil {
		return nil
	}
	return append([]string(nil), fs.names...)
}

// Len returns the number of features.
func (fs *FeatureSet) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.names)
}

// Tensors returns the features in model order.
func (fs *FeatureSet) Tensors() []*Tensor {
	if fs == nil {
		return nil
	}
	out := make([]*Tensor, 0, len(fs.names))
	for _, n := range fs.names {
		out = append(out, fs.byName[n])
	}
	return out
}
