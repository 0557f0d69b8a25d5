/**
 * Pipeline orchestrator.
 *
 * Sequences preprocessing, region detection, per-region OCR and field
 * extraction for one document, then aggregates everything into a single
 * ProcessingResult. Every invocation returns a result; structural failures
 * surface as a Failed result, never as a bare error.
 */

package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"image"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docuflow/docproc-worker/internal/detect"
	perrors "github.com/docuflow/docproc-worker/internal/errors"
	"github.com/docuflow/docproc-worker/internal/fields"
	"github.com/docuflow/docproc-worker/internal/imaging"
	"github.com/docuflow/docproc-worker/internal/logging"
	"github.com/docuflow/docproc-worker/internal/ocr"
)

// Document is one pipeline input: a decoded image plus its identity.
type Document struct {
	ID    string
	Image image.Image
}

// Pipeline runs documents through the processing stages. It holds no
// per-document state; concurrent Process calls are independent.
type Pipeline struct {
	engines *ocr.Registry
	logger  *logging.Logger
}

// New creates a pipeline over the given engine registry.
func New(engines *ocr.Registry, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pipeline{engines: engines, logger: logger}
}

// ProcessBytes decodes raw image bytes and processes the document. An
// undecodable payload yields a Failed result.
func (p *Pipeline) ProcessBytes(ctx context.Context, documentID string, data []byte, cfg Config) *ProcessingResult {
	img, err := imaging.Decode(data)
	if err != nil {
		return p.failedResult(documentID, err, time.Now())
	}
	return p.Process(ctx, Document{ID: documentID, Image: img}, cfg)
}

// regionOutcome is the fan-in record for one region's OCR + extraction.
type regionOutcome struct {
	fields      []fields.Field
	warnings    []string
	engineUsed  string
	unavailable bool
	skipped     bool // figure/decorative region, legitimately field-free
}

// Process runs the full pipeline for one document.
func (p *Pipeline) Process(ctx context.Context, doc Document, cfg Config) *ProcessingResult {
	started := time.Now()
	cfg = cfg.normalized()
	logger := p.logger.With("document", doc.ID)

	stage := StagePending
	advance := func(next Stage) {
		logger.Debug("stage transition", "from", string(stage), "to", string(next))
		stage = next
	}

	// Preprocessing.
	advance(StagePreprocessing)
	canonical, err := imaging.Preprocess(doc.Image, cfg.Preprocess)
	if err != nil {
		// Nothing downstream can compensate for no image.
		return p.failedResult(doc.ID, err, started)
	}

	// Region detection.
	advance(StageDetectingRegions)
	detector := detect.New(cfg.Detect, logger)
	regions := detector.Detect(canonical)
	for i := range regions {
		regions[i].SourceImageID = doc.ID
	}
	logger.Info("regions detected", "count", len(regions))

	result := &ProcessingResult{
		DocumentID:  doc.ID,
		Regions:     regions,
		EngineUsage: make(map[int]string),
	}

	if len(regions) == 0 {
		result.Status = StatusPartialSuccess
		result.Warnings = append(result.Warnings, "no regions detected on document image")
		result.Duration = time.Since(started)
		return result
	}

	// Per-region OCR and field extraction fan out over a bounded pool;
	// aggregation below is the single synchronization point.
	advance(StageExtractingText)
	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if cfg.DocumentTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.DocumentTimeout)
	}
	defer cancel()

	chain := ocr.NewChain(p.engines, cfg.EnginePreferenceOrder, cfg.MinEngineConfidence, logger)
	extractor := fields.New(cfg.MinFieldConfidence, logger)

	outcomes := make([]regionOutcome, len(regions))
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(cfg.MaxRegionParallelism)

	advance(StageExtractingFields)
	for i := range regions {
		region := regions[i]
		if region.Kind == detect.KindFigure {
			outcomes[i] = regionOutcome{skipped: true}
			continue
		}
		out := &outcomes[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return nil
			}
			*out = p.processRegion(gctx, canonical, region, chain, extractor, cfg)
			return nil
		})
	}
	// Worker errors are folded into outcomes; Wait only serves as the
	// aggregation barrier.
	_ = g.Wait()
	timedOut := stderrors.Is(runCtx.Err(), context.DeadlineExceeded)

	// Aggregation: fields land in region reading order regardless of the
	// order region tasks finished in.
	advance(StageAggregating)
	unavailableRegions, producedRegions, eligibleRegions := 0, 0, 0
	for i := range outcomes {
		out := &outcomes[i]
		result.Fields = append(result.Fields, out.fields...)
		result.Warnings = append(result.Warnings, out.warnings...)
		if out.engineUsed != "" {
			result.EngineUsage[regions[i].ID] = out.engineUsed
		}
		if out.skipped {
			continue
		}
		eligibleRegions++
		if out.unavailable {
			unavailableRegions++
		}
		if len(out.fields) > 0 {
			producedRegions++
		}
	}

	switch {
	case eligibleRegions > 0 && unavailableRegions == eligibleRegions:
		// Structural: no engine could be invoked for any region.
		result.Status = StatusFailed
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"%s: no OCR engine could be invoked for any region", perrors.ErrorEngineUnavailable))
	case timedOut:
		result.Status = StatusPartialSuccess
		result.Warnings = append(result.Warnings,
			perrors.NewTimeoutExceededError(doc.ID, cfg.DocumentTimeout).Error())
	case producedRegions == eligibleRegions:
		// Every region yielded fields or was legitimately decorative.
		result.Status = StatusSuccess
	default:
		result.Status = StatusPartialSuccess
	}

	result.Duration = time.Since(started)
	logger.Info("pipeline complete",
		"status", string(result.Status),
		"regions", len(result.Regions),
		"fields", len(result.Fields),
		"warnings", len(result.Warnings),
		"duration_ms", result.Duration.Milliseconds())
	return result
}

// processRegion runs the OCR chain and field extraction for one region.
func (p *Pipeline) processRegion(ctx context.Context, canonical *imaging.Canonical,
	region detect.Region, chain *ocr.Chain, extractor *fields.Extractor, cfg Config) regionOutcome {

	out := regionOutcome{}

	crop := imaging.Crop(canonical.Gray, region.Bounds)
	encoded, err := imaging.EncodePNG(crop)
	if err != nil {
		out.warnings = append(out.warnings,
			fmt.Sprintf("region %d: encode failed: %v", region.ID, err))
		return out
	}

	chainRes := chain.Recognize(ctx, ocr.Input{
		RegionID:  region.ID,
		Image:     encoded,
		Width:     crop.Bounds().Dx(),
		Height:    crop.Bounds().Dy(),
		Languages: cfg.Languages,
	})
	out.warnings = append(out.warnings, chainRes.Warnings...)
	out.engineUsed = chainRes.EngineUsed
	out.unavailable = chainRes.Unavailable

	if len(chainRes.Tokens) > 0 {
		fs, warns := extractor.Extract(region.ID, region.Kind, chainRes.Tokens)
		out.fields = fs
		out.warnings = append(out.warnings, warns...)
	}
	return out
}

// failedResult builds the Failed result for a structural error.
func (p *Pipeline) failedResult(documentID string, err error, started time.Time) *ProcessingResult {
	var pe *perrors.ProcessingError
	warning := err.Error()
	if stderrors.As(err, &pe) {
		pe.DocumentID = documentID
		warning = pe.Error()
	}
	p.logger.Error("document failed structurally", "document", documentID, "error", err)
	return &ProcessingResult{
		DocumentID: documentID,
		Status:     StatusFailed,
		Warnings:   []string{warning},
		Duration:   time.Since(started),
	}
}
