package fields

import (
	"fmt"
	"sort"

	perrors "github.com/docuflow/docproc-worker/internal/errors"
	"github.com/docuflow/docproc-worker/internal/ocr"
)

// extractTable splits a table region into rows from token geometry rather
// than free text: tokens are clustered into rows by vertical center, cells
// within a row are ordered left-to-right, and the slice index becomes the
// column index. One table_row field is produced per row.
func (e *Extractor) extractTable(regionID int, tokens []ocr.Token) ([]Field, []string) {
	if len(tokens) == 0 {
		return nil, nil
	}

	rows := clusterRows(tokens)

	var out []Field
	var warnings []string
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool {
			if row[i].Bounds.Min.X != row[j].Bounds.Min.X {
				return row[i].Bounds.Min.X < row[j].Bounds.Min.X
			}
			return row[i].Text < row[j].Text
		})

		cells := make([]string, 0, len(row))
		conf := 1.0
		raw := ""
		for i, t := range row {
			cells = append(cells, t.Text)
			if t.Confidence < conf {
				conf = t.Confidence
			}
			if i > 0 {
				raw += " "
			}
			raw += t.Text
		}

		if conf < e.minFieldConfidence {
			warnings = append(warnings, fmt.Sprintf(
				"%s: region %d: table row %q suppressed (confidence %.2f below floor %.2f)",
				perrors.ErrorLowConfidenceDrop, regionID, raw, conf, e.minFieldConfidence))
			continue
		}

		out = append(out, Field{
			Name:           NameTableRow,
			RawText:        raw,
			Value:          TableRowValue(cells),
			Confidence:     conf,
			SourceRegionID: regionID,
		})
	}
	return out, warnings
}

// clusterRows groups tokens whose vertical centers fall within half the
// median token height of the running row center.
func clusterRows(tokens []ocr.Token) [][]ocr.Token {
	sorted := append([]ocr.Token(nil), tokens...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci := sorted[i].Bounds.Min.Y + sorted[i].Bounds.Max.Y
		cj := sorted[j].Bounds.Min.Y + sorted[j].Bounds.Max.Y
		if ci != cj {
			return ci < cj
		}
		return sorted[i].Bounds.Min.X < sorted[j].Bounds.Min.X
	})

	tolerance := medianHeight(sorted) / 2
	if tolerance < 1 {
		tolerance = 1
	}

	var rows [][]ocr.Token
	var rowCenter int
	for _, t := range sorted {
		center := (t.Bounds.Min.Y + t.Bounds.Max.Y) / 2
		if len(rows) == 0 || abs(center-rowCenter) > tolerance {
			rows = append(rows, []ocr.Token{t})
			rowCenter = center
			continue
		}
		last := rows[len(rows)-1]
		rows[len(rows)-1] = append(last, t)
		// Keep the row center anchored on the first token; drifting with
		// every append would let a sloped scan chain distinct rows.
	}
	return rows
}

func medianHeight(tokens []ocr.Token) int {
	heights := make([]int, 0, len(tokens))
	for _, t := range tokens {
		heights = append(heights, t.Bounds.Dy())
	}
	sort.Ints(heights)
	if len(heights) == 0 {
		return 0
	}
	return heights[len(heights)/2]
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
