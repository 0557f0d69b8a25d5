package report

import (
	"encoding/csv"
	"encoding/json"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docproc-worker/internal/detect"
	"github.com/docuflow/docproc-worker/internal/fields"
	"github.com/docuflow/docproc-worker/internal/pipeline"
)

func sampleResult() *pipeline.ProcessingResult {
	return &pipeline.ProcessingResult{
		DocumentID: "doc-42",
		Status:     pipeline.StatusSuccess,
		Regions: []detect.Region{
			{ID: 1, Bounds: image.Rect(10, 20, 110, 70), Kind: detect.KindText, SourceImageID: "doc-42"},
			{ID: 2, Bounds: image.Rect(10, 100, 210, 200), Kind: detect.KindTable, SourceImageID: "doc-42"},
		},
		Fields: []fields.Field{
			{Name: "serial_id", RawText: "Serial: AB-1029", Value: fields.StringValue("AB-1029"), Confidence: 0.91, SourceRegionID: 1},
			{Name: "document_date", RawText: "12/03/2024", Value: fields.DateValue(time.Date(2024, 12, 3, 0, 0, 0, 0, time.UTC)), Confidence: 0.88, SourceRegionID: 1},
			{Name: "table_row", RawText: "bolt 4", Value: fields.TableRowValue([]string{"bolt", "4"}), Confidence: 0.75, SourceRegionID: 2},
		},
	}
}

func TestJSONReportShape(t *testing.T) {
	data, err := JSON(sampleResult())
	require.NoError(t, err)

	var decoded struct {
		DocumentID string `json:"documentId"`
		Status     string `json:"status"`
		Regions    []struct {
			ID          int    `json:"id"`
			Kind        string `json:"kind"`
			BoundingBox struct {
				X, Y, Width, Height int
			} `json:"boundingBox"`
		} `json:"regions"`
		Fields []struct {
			Name           string      `json:"name"`
			Value          interface{} `json:"value"`
			Confidence     float64     `json:"confidence"`
			SourceRegionID int         `json:"sourceRegionId"`
		} `json:"fields"`
		Warnings []string `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "doc-42", decoded.DocumentID)
	assert.Equal(t, "Success", decoded.Status)
	require.Len(t, decoded.Regions, 2)
	assert.Equal(t, 100, decoded.Regions[0].BoundingBox.Width)
	require.Len(t, decoded.Fields, 3)
	assert.Equal(t, "AB-1029", decoded.Fields[0].Value)
	assert.Equal(t, "2024-12-03", decoded.Fields[1].Value)
	assert.NotNil(t, decoded.Warnings, "warnings serializes as [] when empty")
}

func TestCSVReport(t *testing.T) {
	data, err := CSV(sampleResult())
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, []string{"document_id", "field_name", "value", "confidence", "source_region_id"}, records[0])
	assert.Equal(t, []string{"doc-42", "serial_id", "AB-1029", "0.91", "1"}, records[1])
	assert.Equal(t, []string{"doc-42", "document_date", "2024-12-03", "0.88", "1"}, records[2])
	assert.Equal(t, []string{"doc-42", "table_row", "bolt | 4", "0.75", "2"}, records[3])
}

func TestCSVReportNoFields(t *testing.T) {
	result := &pipeline.ProcessingResult{DocumentID: "empty", Status: pipeline.StatusPartialSuccess}
	data, err := CSV(result)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
