/**
 * ProcessingResult: the aggregate handed to report assemblers.
 *
 * Immutable once Process returns. Field order is region reading order, then
 * extraction order within a region, so every serialization downstream is
 * deterministic.
 */

package pipeline

import (
	"encoding/json"
	"time"

	"github.com/docuflow/docproc-worker/internal/detect"
	"github.com/docuflow/docproc-worker/internal/fields"
)

// Status is the overall outcome of one document run.
type Status string

const (
	StatusSuccess        Status = "Success"
	StatusPartialSuccess Status = "PartialSuccess"
	StatusFailed         Status = "Failed"
)

// Stage names the orchestrator states. Transitions are strictly forward.
type Stage string

const (
	StagePending          Stage = "Pending"
	StagePreprocessing    Stage = "Preprocessing"
	StageDetectingRegions Stage = "DetectingRegions"
	StageExtractingText   Stage = "ExtractingText"
	StageExtractingFields Stage = "ExtractingFields"
	StageAggregating      Stage = "Aggregating"
)

// ProcessingResult is the one entity crossing the pipeline boundary.
type ProcessingResult struct {
	DocumentID string
	Status     Status
	Regions    []detect.Region
	Fields     []fields.Field
	Warnings   []string
	Duration   time.Duration
	// EngineUsage maps region id to the engine that produced its tokens.
	EngineUsage map[int]string
}

// Serialized report shapes (consumed by the JSON report and, through it,
// the CSV/DOCX/visualization generators).

type boundingBoxJSON struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type regionJSON struct {
	ID          int             `json:"id"`
	Kind        string          `json:"kind"`
	BoundingBox boundingBoxJSON `json:"boundingBox"`
}

type fieldJSON struct {
	Name           string       `json:"name"`
	Value          fields.Value `json:"value"`
	Confidence     float64      `json:"confidence"`
	SourceRegionID int          `json:"sourceRegionId"`
}

type resultJSON struct {
	DocumentID string       `json:"documentId"`
	Status     string       `json:"status"`
	Regions    []regionJSON `json:"regions"`
	Fields     []fieldJSON  `json:"fields"`
	Warnings   []string     `json:"warnings"`
}

// MarshalJSON renders the stable serialized form of the result.
func (r *ProcessingResult) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		DocumentID: r.DocumentID,
		Status:     string(r.Status),
		Regions:    make([]regionJSON, 0, len(r.Regions)),
		Fields:     make([]fieldJSON, 0, len(r.Fields)),
		Warnings:   r.Warnings,
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	for _, reg := range r.Regions {
		out.Regions = append(out.Regions, regionJSON{
			ID:   reg.ID,
			Kind: string(reg.Kind),
			BoundingBox: boundingBoxJSON{
				X:      reg.Bounds.Min.X,
				Y:      reg.Bounds.Min.Y,
				Width:  reg.Bounds.Dx(),
				Height: reg.Bounds.Dy(),
			},
		})
	}
	for _, f := range r.Fields {
		out.Fields = append(out.Fields, fieldJSON{
			Name:           f.Name,
			Value:          f.Value,
			Confidence:     f.Confidence,
			SourceRegionID: f.SourceRegionID,
		})
	}
	return json.Marshal(out)
}
