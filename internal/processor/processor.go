/**
 * Document processor for the docproc worker.
 *
 * Bridges queue consumers to the processing pipeline: decodes the job
 * payload, runs the pipeline, persists the result and mirrors the job
 * status into the store. Consumers only see ProcessRequest/ProcessResult.
 */

package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	perrors "github.com/docuflow/docproc-worker/internal/errors"
	"github.com/docuflow/docproc-worker/internal/logging"
	"github.com/docuflow/docproc-worker/internal/ocr"
	"github.com/docuflow/docproc-worker/internal/pipeline"
	"github.com/docuflow/docproc-worker/internal/storage"
)

// ProcessRequest represents a document processing request
type ProcessRequest struct {
	JobID      string
	DocumentID string
	Filename   string
	MimeType   string
	FileBuffer []byte
	Metadata   map[string]interface{}
}

// ProcessResult represents the outcome of processing a document
type ProcessResult struct {
	JobID            string          `json:"jobId"`
	DocumentID       string          `json:"documentId"`
	Status           string          `json:"status"`
	RegionCount      int             `json:"regionCount"`
	FieldCount       int             `json:"fieldCount"`
	WarningCount     int             `json:"warningCount"`
	EngineUsed       string          `json:"engineUsed,omitempty"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
	Report           json.RawMessage `json:"report"`
}

// DocumentProcessorInterface is what queue consumers program against.
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, jobID, status string, metadata map[string]interface{}) error
}

// DocumentProcessor runs documents through the pipeline and persists outcomes.
type DocumentProcessor struct {
	pipeline    *pipeline.Pipeline
	pipelineCfg pipeline.Config
	store       storage.Store
	logger      *logging.Logger
}

var _ DocumentProcessorInterface = (*DocumentProcessor)(nil)

// NewDocumentProcessor creates a processor over the given engine registry
// and store. A nil store disables persistence.
func NewDocumentProcessor(engines *ocr.Registry, cfg pipeline.Config, store storage.Store, logger *logging.Logger) *DocumentProcessor {
	if logger == nil {
		logger = logging.Nop()
	}
	if store == nil {
		store = storage.NopStore{}
	}
	return &DocumentProcessor{
		pipeline:    pipeline.New(engines, logger),
		pipelineCfg: cfg,
		store:       store,
		logger:      logger,
	}
}

// ProcessDocument runs one job end to end. Pipeline failures are reported
// through the result status; a non-nil error means the job itself could not
// be handled (bad request, storage failure).
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if len(req.FileBuffer) == 0 {
		return nil, fmt.Errorf("job %s carries no file payload", req.JobID)
	}

	documentID := req.DocumentID
	if documentID == "" {
		documentID = uuid.New().String()
	}

	started := time.Now()
	p.logger.Info("processing document",
		"job", req.JobID, "document", documentID, "filename", req.Filename,
		"bytes", len(req.FileBuffer))

	result := p.pipeline.ProcessBytes(ctx, documentID, req.FileBuffer, p.pipelineCfg)

	report, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report for job %s: %w", req.JobID, err)
	}

	out := &ProcessResult{
		JobID:            req.JobID,
		DocumentID:       documentID,
		Status:           string(result.Status),
		RegionCount:      len(result.Regions),
		FieldCount:       len(result.Fields),
		WarningCount:     len(result.Warnings),
		EngineUsed:       dominantEngine(result.EngineUsage),
		ProcessingTimeMs: time.Since(started).Milliseconds(),
		Report:           report,
	}

	if err := p.store.SaveResult(ctx, req.JobID, result); err != nil {
		return nil, perrors.NewStorageFailedError(req.JobID, err)
	}

	update := &storage.JobUpdate{
		JobID:            req.JobID,
		DocumentID:       documentID,
		Status:           jobStatus(result.Status),
		ProcessingTimeMs: out.ProcessingTimeMs,
		EngineUsed:       out.EngineUsed,
		Metadata:         req.Metadata,
	}
	if result.Status == pipeline.StatusFailed && len(result.Warnings) > 0 {
		update.ErrorMessage = result.Warnings[0]
	}
	if err := p.store.UpdateJobStatus(ctx, update); err != nil {
		return nil, perrors.NewStorageFailedError(req.JobID, err)
	}

	p.logger.Info("document processed",
		"job", req.JobID, "document", documentID, "status", out.Status,
		"regions", out.RegionCount, "fields", out.FieldCount,
		"duration_ms", out.ProcessingTimeMs)
	return out, nil
}

// UpdateJobStatus mirrors a consumer-side status transition into the store.
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, jobID, status string, metadata map[string]interface{}) error {
	return p.store.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	})
}

// jobStatus maps the pipeline status onto the job lifecycle vocabulary.
func jobStatus(s pipeline.Status) string {
	switch s {
	case pipeline.StatusSuccess:
		return "completed"
	case pipeline.StatusPartialSuccess:
		return "completed_partial"
	default:
		return "failed"
	}
}

// dominantEngine picks the engine that served the most regions, ties broken
// alphabetically so repeated runs report the same name.
func dominantEngine(usage map[int]string) string {
	if len(usage) == 0 {
		return ""
	}
	counts := make(map[string]int)
	for _, name := range usage {
		counts[name]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	best := names[0]
	for _, name := range names[1:] {
		if counts[name] > counts[best] {
			best = name
		}
	}
	return best
}
