package fields

import (
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docproc-worker/internal/detect"
	"github.com/docuflow/docproc-worker/internal/ocr"
)

// gridTokens builds rows x cols word tokens on a regular grid.
func gridTokens(rows, cols int, conf float64, cell func(r, c int) string) []ocr.Token {
	var out []ocr.Token
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			y := r * 30
			x := c * 80
			out = append(out, ocr.Token{
				Text:       cell(r, c),
				Confidence: conf,
				Bounds:     image.Rect(x, y, x+60, y+14),
			})
		}
	}
	return out
}

func TestExtractTableThreeRowsTwoColumns(t *testing.T) {
	tokens := gridTokens(3, 2, 0.9, func(r, c int) string {
		return []string{"part", "qty", "bolt", "4", "nut", "9"}[r*2+c]
	})

	fields, warnings := New(0.40, nil).Extract(5, detect.KindTable, tokens)
	assert.Empty(t, warnings)
	require.Len(t, fields, 3)

	for _, f := range fields {
		assert.Equal(t, NameTableRow, f.Name)
		assert.Equal(t, KindTableRow, f.Value.Kind)
		assert.Equal(t, 5, f.SourceRegionID)
	}
	assert.Equal(t, []string{"part", "qty"}, fields[0].Value.Row)
	assert.Equal(t, []string{"bolt", "4"}, fields[1].Value.Row)
	assert.Equal(t, []string{"nut", "9"}, fields[2].Value.Row)
}

func TestExtractTableCellsOrderedByX(t *testing.T) {
	// Tokens arrive shuffled; column order comes from geometry.
	tokens := []ocr.Token{
		{Text: "right", Confidence: 0.9, Bounds: image.Rect(200, 0, 260, 14)},
		{Text: "left", Confidence: 0.9, Bounds: image.Rect(0, 2, 60, 16)},
		{Text: "mid", Confidence: 0.9, Bounds: image.Rect(100, 1, 160, 15)},
	}
	fields, _ := New(0.40, nil).Extract(1, detect.KindTable, tokens)
	require.Len(t, fields, 1)
	assert.Equal(t, []string{"left", "mid", "right"}, fields[0].Value.Row)
}

func TestExtractTableRowConfidenceIsMinimum(t *testing.T) {
	tokens := []ocr.Token{
		{Text: "a", Confidence: 0.95, Bounds: image.Rect(0, 0, 20, 14)},
		{Text: "b", Confidence: 0.61, Bounds: image.Rect(40, 0, 60, 14)},
	}
	fields, _ := New(0.40, nil).Extract(1, detect.KindTable, tokens)
	require.Len(t, fields, 1)
	assert.InDelta(t, 0.61, fields[0].Confidence, 1e-9)
}

func TestExtractTableLowConfidenceRowSuppressed(t *testing.T) {
	tokens := gridTokens(2, 2, 0.9, func(r, c int) string { return "ok" })
	// Poison one token of the second row.
	tokens[3].Confidence = 0.1

	fields, warnings := New(0.40, nil).Extract(2, detect.KindTable, tokens)
	require.Len(t, fields, 1)
	require.Len(t, warnings, 1)
	assert.True(t, strings.HasPrefix(warnings[0], "LOW_CONFIDENCE_DROP"))
}

func TestExtractTableEmptyTokens(t *testing.T) {
	fields, warnings := New(0.40, nil).Extract(1, detect.KindTable, nil)
	assert.Empty(t, fields)
	assert.Empty(t, warnings)
}

func TestClusterRowsToleratesJitter(t *testing.T) {
	// Second token sits 4px lower than the first; both share a row because
	// the tolerance is half the median token height.
	tokens := []ocr.Token{
		{Text: "a", Bounds: image.Rect(0, 10, 20, 30)},
		{Text: "b", Bounds: image.Rect(40, 14, 60, 34)},
		{Text: "c", Bounds: image.Rect(0, 60, 20, 80)},
	}
	rows := clusterRows(tokens)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 2)
	assert.Len(t, rows[1], 1)
}
