package pipeline

import (
	"time"

	"github.com/docuflow/docproc-worker/internal/detect"
	"github.com/docuflow/docproc-worker/internal/imaging"
)

// Config is the full pipeline configuration, threaded explicitly into every
// component call. One value per document run; nothing is process-global.
type Config struct {
	// EnginePreferenceOrder is the OCR fallback chain, most preferred first.
	EnginePreferenceOrder []string
	// MinFieldConfidence is the floor below which candidate fields are
	// suppressed with a warning.
	MinFieldConfidence float64
	// MinEngineConfidence is the mean token confidence an engine result
	// must reach before the chain stops falling through.
	MinEngineConfidence float64
	// MaxRegionParallelism bounds the per-document region worker pool.
	MaxRegionParallelism int
	// DocumentTimeout forces aggregation of whatever has completed.
	// Zero disables the timeout.
	DocumentTimeout time.Duration
	// Languages are OCR language hints.
	Languages []string

	Preprocess imaging.Options
	Detect     detect.Options
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		EnginePreferenceOrder: []string{"tesseract"},
		MinFieldConfidence:    0.40,
		MinEngineConfidence:   0.50,
		MaxRegionParallelism:  4,
		DocumentTimeout:       5 * time.Minute,
		Languages:             []string{"eng"},
		Preprocess:            imaging.DefaultOptions(),
		Detect:                detect.DefaultOptions(),
	}
}

// normalized fills unusable values with defaults without mutating the
// caller's config.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if len(c.EnginePreferenceOrder) == 0 {
		c.EnginePreferenceOrder = d.EnginePreferenceOrder
	}
	if c.MaxRegionParallelism < 1 {
		c.MaxRegionParallelism = d.MaxRegionParallelism
	}
	if c.MinFieldConfidence < 0 {
		c.MinFieldConfidence = 0
	}
	if c.MinFieldConfidence > 1 {
		c.MinFieldConfidence = 1
	}
	if c.MinEngineConfidence < 0 {
		c.MinEngineConfidence = 0
	}
	if c.MinEngineConfidence > 1 {
		c.MinEngineConfidence = 1
	}
	return c
}
