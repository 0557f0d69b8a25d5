/**
 * Typed field values.
 *
 * A field value is exactly one of: string, date, number, measurement, or
 * table row. The JSON form collapses scalars and keeps structure only where
 * the type demands it, matching the serialized result contract.
 */

package fields

import (
	"encoding/json"
	"fmt"
	"time"
)

// ValueKind discriminates the typed value variants.
type ValueKind string

const (
	KindString      ValueKind = "string"
	KindDate        ValueKind = "date"
	KindNumber      ValueKind = "number"
	KindMeasurement ValueKind = "measurement"
	KindTableRow    ValueKind = "tableRow"
)

// Measurement is a numeric value with its unit token.
type Measurement struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Value is the typed payload of an extracted field.
type Value struct {
	Kind        ValueKind
	Str         string
	Date        time.Time
	Number      float64
	Measurement Measurement
	// Row holds table cell values in column order; the slice index is the
	// inferred column index.
	Row []string
}

// StringValue builds a string-typed value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// DateValue builds a date-typed value.
func DateValue(t time.Time) Value { return Value{Kind: KindDate, Date: t} }

// NumberValue builds a number-typed value.
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Number: n} }

// MeasurementValue builds a measurement-typed value.
func MeasurementValue(v float64, unit string) Value {
	return Value{Kind: KindMeasurement, Measurement: Measurement{Value: v, Unit: unit}}
}

// TableRowValue builds a table-row-typed value from cells in column order.
func TableRowValue(cells []string) Value {
	return Value{Kind: KindTableRow, Row: append([]string(nil), cells...)}
}

// MarshalJSON renders the value in its serialized report form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindDate:
		return json.Marshal(v.Date.Format("2006-01-02"))
	case KindNumber:
		return json.Marshal(v.Number)
	case KindMeasurement:
		return json.Marshal(v.Measurement)
	case KindTableRow:
		return json.Marshal(struct {
			Cells []string `json:"cells"`
		}{Cells: v.Row})
	default:
		return nil, fmt.Errorf("unknown value kind %q", v.Kind)
	}
}

// String renders the value for CSV/log output.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindDate:
		return v.Date.Format("2006-01-02")
	case KindNumber:
		return fmt.Sprintf("%g", v.Number)
	case KindMeasurement:
		return fmt.Sprintf("%g %s", v.Measurement.Value, v.Measurement.Unit)
	case KindTableRow:
		out := ""
		for i, c := range v.Row {
			if i > 0 {
				out += " | "
			}
			out += c
		}
		return out
	default:
		return ""
	}
}

// Field is a named, typed value derived from a region's tokens.
type Field struct {
	Name           string
	RawText        string
	Value          Value
	Confidence     float64
	SourceRegionID int
}
