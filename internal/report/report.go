/**
 * Report assembly from a finished ProcessingResult.
 *
 * The JSON report is the canonical serialized form; the CSV report flattens
 * the extracted fields for spreadsheet consumers. Both render from the same
 * result, so they never disagree about content.
 */

package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/docuflow/docproc-worker/internal/pipeline"
)

// WriteJSON renders the indented JSON report for one result.
func WriteJSON(w io.Writer, result *pipeline.ProcessingResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// JSON returns the JSON report as bytes.
func JSON(result *pipeline.ProcessingResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, result); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV renders one row per extracted field, preceded by a header row.
// Table rows serialize their cells pipe-joined in the value column.
func WriteCSV(w io.Writer, result *pipeline.ProcessingResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"document_id", "field_name", "value", "confidence", "source_region_id"}); err != nil {
		return err
	}
	for _, f := range result.Fields {
		record := []string{
			result.DocumentID,
			f.Name,
			f.Value.String(),
			fmt.Sprintf("%.2f", f.Confidence),
			fmt.Sprintf("%d", f.SourceRegionID),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSV returns the CSV report as bytes.
func CSV(result *pipeline.ProcessingResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, result); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
