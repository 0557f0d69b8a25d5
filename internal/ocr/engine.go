/**
 * OCR engine capability interface and registry.
 *
 * Engines are pluggable backends registered by name; the pipeline selects
 * among them through a configuration-driven preference order. The package
 * never implements recognition itself.
 */

package ocr

import (
	"context"
	"image"
	"sort"
	"sync"
)

// Token is a single recognized unit of text with an engine-reported (or
// estimated) confidence in [0,1].
type Token struct {
	Text       string
	Confidence float64
	Bounds     image.Rectangle
	RegionID   int
}

// Input is one region image submitted for recognition.
type Input struct {
	// RegionID links tokens back to the detected region.
	RegionID int
	// Image is the PNG-encoded region crop.
	Image []byte
	// Width and Height are the crop dimensions in pixels.
	Width  int
	Height int
	// Languages carries engine language hints (e.g. "eng").
	Languages []string
}

// Engine is the OCR capability contract: one region image in, tokens out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) ([]Token, error)
}

// Registry holds the engines available to a worker, keyed by name.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry creates an empty engine registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// Register adds or replaces an engine under its own name.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Name()] = e
}

// Get looks up an engine by name.
func (r *Registry) Get(name string) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[name]
	return e, ok
}

// Names returns the registered engine names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClampConfidence bounds a confidence value to [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// MeanConfidence returns the average token confidence, 0 for no tokens.
func MeanConfidence(tokens []Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tokens {
		sum += t.Confidence
	}
	return sum / float64(len(tokens))
}
