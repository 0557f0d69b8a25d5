/**
 * Structured field extraction from per-region OCR output.
 *
 * Text regions run a fixed set of named pattern rules; accepted fields must
 * be non-overlapping within a region, longest match first, and must clear
 * the configured confidence floor. Table regions are split by token
 * geometry instead of free text.
 */

package fields

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docuflow/docproc-worker/internal/detect"
	perrors "github.com/docuflow/docproc-worker/internal/errors"
	"github.com/docuflow/docproc-worker/internal/logging"
	"github.com/docuflow/docproc-worker/internal/ocr"
)

// Field name vocabulary. Closed but extensible: new rules register a name
// here, free-form names never appear in results.
const (
	NameDocumentDate = "document_date"
	NameSerialID     = "serial_id"
	NameDocumentID   = "document_id"
	NameMeasurement  = "measurement"
	NameEmail        = "email"
	NamePhoneNumber  = "phone_number"
	NameAmount       = "amount"
	NameTableRow     = "table_row"
)

// rule is one named pattern matcher. build turns a submatch into a typed
// value; returning false rejects the candidate (e.g. an impossible date).
type rule struct {
	name  string
	re    *regexp.Regexp
	build func(groups []string) (Value, bool)
}

var textRules = []rule{
	{
		name: NameDocumentDate,
		re:   regexp.MustCompile(`\b(\d{1,2})[-/](\d{1,2})[-/](\d{2,4})\b`),
		build: func(g []string) (Value, bool) {
			t, ok := parseDate(g[1], g[2], g[3])
			if !ok {
				return Value{}, false
			}
			return DateValue(t), true
		},
	},
	{
		name: NameSerialID,
		re:   regexp.MustCompile(`(?i)\bserial\s*(?:no\.?|number)?\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9-]+)`),
		build: func(g []string) (Value, bool) {
			return StringValue(g[1]), true
		},
	},
	{
		name: NameDocumentID,
		re:   regexp.MustCompile(`(?i)\b(?:doc(?:ument)?|id)\s*#?\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9-]+)`),
		build: func(g []string) (Value, bool) {
			return StringValue(g[1]), true
		},
	},
	{
		name: NameMeasurement,
		re:   regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(mm|cm|ml|kg|g|l|m)\b`),
		build: func(g []string) (Value, bool) {
			v, err := strconv.ParseFloat(g[1], 64)
			if err != nil {
				return Value{}, false
			}
			return MeasurementValue(v, g[2]), true
		},
	},
	{
		name: NameEmail,
		re:   regexp.MustCompile(`[\w.+-]+@[\w-]+(?:\.[\w-]+)+`),
		build: func(g []string) (Value, bool) {
			return StringValue(g[0]), true
		},
	},
	{
		name: NamePhoneNumber,
		re:   regexp.MustCompile(`\+?\d{1,3}[-.]\d{3}[-.]\d{3,4}(?:[-.]\d{4})?`),
		build: func(g []string) (Value, bool) {
			return StringValue(g[0]), true
		},
	},
	{
		name: NameAmount,
		re:   regexp.MustCompile(`\$\d+(?:,\d{3})*(?:\.\d{2})?`),
		build: func(g []string) (Value, bool) {
			raw := strings.NewReplacer("$", "", ",", "").Replace(g[0])
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return Value{}, false
			}
			return NumberValue(v), true
		},
	},
}

// Extractor turns raw per-region tokens into typed, named fields.
type Extractor struct {
	minFieldConfidence float64
	logger             *logging.Logger
}

// New creates an extractor enforcing the given confidence floor.
func New(minFieldConfidence float64, logger *logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Extractor{minFieldConfidence: minFieldConfidence, logger: logger}
}

// Extract dispatches on the region kind. Figure and unknown regions carry no
// extractable fields.
func (e *Extractor) Extract(regionID int, kind detect.Kind, tokens []ocr.Token) ([]Field, []string) {
	switch kind {
	case detect.KindText:
		return e.extractText(regionID, tokens)
	case detect.KindTable:
		return e.extractTable(regionID, tokens)
	default:
		return nil, nil
	}
}

// candidate is a rule match pending overlap resolution.
type candidate struct {
	start, end int
	name       string
	raw        string
	value      Value
}

func (e *Extractor) extractText(regionID int, tokens []ocr.Token) ([]Field, []string) {
	text, spans := buildText(tokens)
	if text == "" {
		return nil, nil
	}

	var candidates []candidate
	for _, r := range textRules {
		for _, m := range r.re.FindAllStringSubmatchIndex(text, -1) {
			groups := make([]string, 0, len(m)/2)
			for i := 0; i < len(m); i += 2 {
				if m[i] < 0 {
					groups = append(groups, "")
					continue
				}
				groups = append(groups, text[m[i]:m[i+1]])
			}
			value, ok := r.build(groups)
			if !ok {
				continue
			}
			candidates = append(candidates, candidate{
				start: m[0],
				end:   m[1],
				name:  r.name,
				raw:   text[m[0]:m[1]],
				value: value,
			})
		}
	}

	// Longest match wins; ties break on position then name so repeated runs
	// stay deterministic. Overlapping losers are discarded, never merged.
	sort.SliceStable(candidates, func(i, j int) bool {
		li, lj := candidates[i].end-candidates[i].start, candidates[j].end-candidates[j].start
		if li != lj {
			return li > lj
		}
		if candidates[i].start != candidates[j].start {
			return candidates[i].start < candidates[j].start
		}
		return candidates[i].name < candidates[j].name
	})

	var accepted []candidate
	for _, c := range candidates {
		overlaps := false
		for _, a := range accepted {
			if c.start < a.end && a.start < c.end {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, c)
		}
	}

	// Emit in text order for reproducible field sequences.
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].start < accepted[j].start })

	var out []Field
	var warnings []string
	for _, c := range accepted {
		conf := spanConfidence(spans, c.start, c.end)
		if conf < e.minFieldConfidence {
			warnings = append(warnings, fmt.Sprintf(
				"%s: region %d: %s %q suppressed (confidence %.2f below floor %.2f)",
				perrors.ErrorLowConfidenceDrop, regionID, c.name, c.raw, conf, e.minFieldConfidence))
			continue
		}
		out = append(out, Field{
			Name:           c.name,
			RawText:        c.raw,
			Value:          c.value,
			Confidence:     conf,
			SourceRegionID: regionID,
		})
	}
	return out, warnings
}

// tokenSpan maps a token's slice of the joined region text back to its
// confidence.
type tokenSpan struct {
	start, end int
	confidence float64
}

// buildText joins token texts with single spaces and records each token's
// character span for confidence attribution.
func buildText(tokens []ocr.Token) (string, []tokenSpan) {
	var b strings.Builder
	spans := make([]tokenSpan, 0, len(tokens))
	for _, t := range tokens {
		if t.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		start := b.Len()
		b.WriteString(t.Text)
		spans = append(spans, tokenSpan{start: start, end: b.Len(), confidence: t.Confidence})
	}
	return b.String(), spans
}

// spanConfidence is the minimum confidence among tokens overlapping
// [start, end): a field is only as trustworthy as its shakiest source token.
func spanConfidence(spans []tokenSpan, start, end int) float64 {
	conf := -1.0
	for _, s := range spans {
		if start < s.end && s.start < end {
			if conf < 0 || s.confidence < conf {
				conf = s.confidence
			}
		}
	}
	if conf < 0 {
		return 0
	}
	return conf
}

func parseDate(ms, ds, ys string) (time.Time, bool) {
	month, _ := strconv.Atoi(ms)
	day, _ := strconv.Atoi(ds)
	year, _ := strconv.Atoi(ys)
	if year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// Reject dates that normalized (e.g. Feb 30 rolling into March).
	if int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
