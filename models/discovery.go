// Package models - Model artifact discovery and class configuration.
package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-yolo/models/model"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// Artifact extensions and package layout.
const (
	ExtCompiled = ".mlmodelc"
	ExtPackage  = ".mlpackage"
	ExtRaw      = ".mlmodel"

	packageDataDir   = "Data/com.apple.CoreML"
	packageCompiled  = "model.mlmodelc"
	packageRaw       = "model.mlmodel"
	packageMetadata  = "Metadata.json"
	creatorDefinedID = "MLModelCreatorDefinedKey"
)

// DefaultCandidateNames are the artifact base names tried in order.
var DefaultCandidateNames = []string{"yolov11n", "yolo11n"}

// ErrModelUnavailable is returned when no artifact in the bundle could be loaded.
var ErrModelUnavailable = errors.New("no loadable model found")

// Bundle locates model artifacts on disk.
type Bundle struct {
	// Root is the directory searched for artifacts.
	Root string `json:"root" yaml:"root"`
	// CandidateNames are the artifact base names tried in order.
	CandidateNames []string `json:"candidate_names" yaml:"candidate_names"`
}

func (b Bundle) names() []string {
	if len(b.CandidateNames) == 0 {
		return DefaultCandidateNames
	}
	return b.CandidateNames
}

// Candidate is one artifact discovery will try.
type Candidate struct {
	// Path is the artifact location.
	Path string
	// Compile is set for raw models that must be compiled before loading.
	Compile bool
}

// Candidates lists the artifacts that exist in the bundle, in the order they
// are tried: compiled models by name, packaged models by name (compiled then
// raw), then the first raw model anywhere under Root.
func (b Bundle) Candidates() []Candidate {
	var out []Candidate
	for _, name := range b.names() {
		p := filepath.Join(b.Root, name+ExtCompiled)
		if exists(p) {
			out = append(out, Candidate{Path: p})
		}
	}

	for _, name := range b.names() {
		data := filepath.Join(b.Root, name+ExtPackage, packageDataDir)
		if p := filepath.Join(data, packageCompiled); exists(p) {
			out = append(out, Candidate{Path: p})
		}
		if p := filepath.Join(data, packageRaw); exists(p) {
			out = append(out, Candidate{Path: p, Compile: true})
		}
	}

	if p, ok := b.firstRaw(); ok {
		out = append(out, Candidate{Path: p, Compile: true})
	}
	return out
}

// firstRaw returns the lexically first *.mlmodel file directly under Root.
// Subdirectories, including packages, are not searched.
func (b Bundle) firstRaw() (string, bool) {
	entries, err := os.ReadDir(b.Root)
	if err != nil {
		return "", false
	}
	// ReadDir sorts by file name.
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ExtRaw {
			return filepath.Join(b.Root, e.Name()), true
		}
	}
	return "", false
}

// MetadataFiles lists the package Metadata.json files for each candidate name.
func (b Bundle) MetadataFiles() []string {
	var out []string
	for _, name := range b.names() {
		p := filepath.Join(b.Root, name+ExtPackage, packageDataDir, packageMetadata)
		if exists(p) {
			out = append(out, p)
		}
	}
	return out
}

// Discovery finds, loads and caches the model of a bundle.
//
// The first successful load is kept until Close. Failed discoveries are not
// cached, so the next call searches the bundle again.
type Discovery struct {
	bundle   Bundle
	loader   model.Loader
	fallback postprocess.ClassNames
	logger   logrus.FieldLogger

	// loadMu serializes discovery; mu guards the published state only, so
	// readers never wait on a load.
	loadMu sync.Mutex
	mu     sync.RWMutex
	model  model.Model
	names  postprocess.ClassNames
}

// DiscoveryOption configures a Discovery.
type DiscoveryOption func(*Discovery)

// WithDiscoveryLogger sets the logger used for discovery diagnostics.
func WithDiscoveryLogger(logger logrus.FieldLogger) DiscoveryOption {
	return func(d *Discovery) {
		d.logger = logger
	}
}

// WithFallbackClassNames sets the class table used when neither the package
// metadata nor the model metadata names its classes.
func WithFallbackClassNames(names postprocess.ClassNames) DiscoveryOption {
	return func(d *Discovery) {
		d.fallback = names
	}
}

// NewDiscovery creates a discovery service for bundle.
//
// Arguments:
//   - bundle: Where to look for artifacts.
//   - loader: The backend that loads and compiles artifacts.
//   - opts: Optional logger and fallback class table.
//
// Returns:
//   - *Discovery: The discovery service. Nothing is loaded until Model is called.
func NewDiscovery(bundle Bundle, loader model.Loader, opts ...DiscoveryOption) *Discovery {
	d := &Discovery{
		bundle: bundle,
		loader: loader,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Bundle returns the bundle being searched.
func (d *Discovery) Bundle() Bundle { return d.bundle }

// Model returns the cached model, discovering and loading it on first use.
//
// Returns:
//   - model.Model: The same handle on every call after the first success.
//   - error: ErrModelUnavailable when no candidate could be loaded.
func (d *Discovery) Model(ctx context.Context) (model.Model, error) {
	d.mu.RLock()
	m := d.model
	d.mu.RUnlock()
	if m != nil {
		return m, nil
	}

	d.loadMu.Lock()
	defer d.loadMu.Unlock()
	d.mu.RLock()
	m = d.model
	d.mu.RUnlock()
	if m != nil {
		return m, nil
	}

	candidates := d.bundle.Candidates()
	d.logger.WithFields(logrus.Fields{
		"root":       d.bundle.Root,
		"candidates": len(candidates),
	}).Debug("discovering model")

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := d.load(ctx, c)
		if err != nil {
			d.logger.WithError(err).WithField("path", c.Path).Debug("candidate failed to load")
			continue
		}
		d.logger.WithField("path", m.Path()).Info("model loaded")
		d.mu.Lock()
		d.model = m
		d.mu.Unlock()
		return m, nil
	}

	return nil, fmt.Errorf("%w in %s", ErrModelUnavailable, d.bundle.Root)
}

func (d *Discovery) load(ctx context.Context, c Candidate) (model.Model, error) {
	path := c.Path
	if c.Compile {
		compiled, err := d.loader.Compile(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s: %w", path, err)
		}
		path = compiled
	}
	m, err := d.loader.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return m, nil
}

// ClassNames returns the class table, building it on first use.
//
// Package Metadata.json files are read first, then the loaded model's creator
// metadata, then the fallback table. Only a non-empty table is cached.
func (d *Discovery) ClassNames(ctx context.Context) postprocess.ClassNames {
	if names := d.CachedClassNames(); len(names) > 0 {
		return names
	}

	names := d.packageClassNames()
	if len(names) == 0 {
		if m, err := d.Model(ctx); err == nil {
			names = postprocess.ParseClassNames(m.Description().Metadata[model.MetadataNames])
		}
	}
	if len(names) == 0 {
		names = d.fallback
	}
	if len(names) == 0 {
		return nil
	}

	d.mu.Lock()
	d.names = names
	d.mu.Unlock()
	return names
}

// CachedClassNames returns the class table if it has been built, without
// triggering discovery.
func (d *Discovery) CachedClassNames() postprocess.ClassNames {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.names
}

func (d *Discovery) packageClassNames() postprocess.ClassNames {
	for _, p := range d.bundle.MetadataFiles() {
		raw, err := readCreatorNames(p)
		if err != nil {
			d.logger.WithError(err).WithField("path", p).Debug("package metadata unreadable")
			continue
		}
		if names := postprocess.ParseClassNames(raw); len(names) > 0 {
			return names
		}
	}
	return nil
}

// readCreatorNames extracts MLModelCreatorDefinedKey.names from a package
// Metadata.json, which is either an object or a list of objects.
func readCreatorNames(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	type entry struct {
		Creator map[string]any `json:"MLModelCreatorDefinedKey"`
	}
	var entries []entry
	var single entry
	if err := json.Unmarshal(data, &single); err == nil {
		entries = append(entries, single)
	} else if err := json.Unmarshal(data, &entries); err != nil {
		return "", fmt.Errorf("failed to parse metadata: %w", err)
	}

	for _, e := range entries {
		if s, ok := e.Creator[model.MetadataNames].(string); ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("metadata has no %s.%s", creatorDefinedID, model.MetadataNames)
}

// Loaded reports whether a model is cached.
func (d *Discovery) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.model != nil
}

// Close releases the cached model. A later Model call discovers again.
func (d *Discovery) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.model == nil {
		return nil
	}
	err := d.model.Close()
	d.model = nil
	return err
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
