// Package metrics computes descriptive statistics over a parsed dataset.
package metrics

import (
	"encoding/json"

	"github.com/reportflow/reportflow/pkg/dataset"
)

// Column datatype classifications.
const (
	TypeInteger = "integer"
	TypeFloat   = "float"
	TypeText    = "text"
)

// Report is the computed artifact for one input file. Field names and
// shapes match the serialized output object exactly.
type Report struct {
	RowCount        int               `json:"row_count"`
	ColumnCount     int               `json:"column_count"`
	Columns         []string          `json:"columns"`
	NullCounts      map[string]int    `json:"null_counts"`
	DatatypeSummary map[string]string `json:"datatype_summary"`
}

// Compute derives a Report from a dataset. Pure: no I/O, no side effects.
// Zero-row and zero-column inputs are valid and produce empty collections.
//
// Per-column classification over non-missing cells: all integers ->
// integer; all numeric -> float; otherwise text. A column with no
// non-missing cells classifies as text.
func Compute(ds *dataset.Dataset) *Report {
	report := &Report{
		RowCount:        len(ds.Rows),
		ColumnCount:     len(ds.Columns),
		Columns:         make([]string, len(ds.Columns)),
		NullCounts:      make(map[string]int, len(ds.Columns)),
		DatatypeSummary: make(map[string]string, len(ds.Columns)),
	}
	copy(report.Columns, ds.Columns)

	for i, col := range ds.Columns {
		nulls := 0
		sawValue := false
		allInt := true
		allNumeric := true

		for _, row := range ds.Rows {
			cell := row[i]
			switch cell.Kind {
			case dataset.KindMissing:
				nulls++
			case dataset.KindInt:
				sawValue = true
			case dataset.KindFloat:
				sawValue = true
				allInt = false
			case dataset.KindText:
				sawValue = true
				allInt = false
				allNumeric = false
			}
		}

		report.NullCounts[col] = nulls

		switch {
		case !sawValue:
			report.DatatypeSummary[col] = TypeText
		case allInt:
			report.DatatypeSummary[col] = TypeInteger
		case allNumeric:
			report.DatatypeSummary[col] = TypeFloat
		default:
			report.DatatypeSummary[col] = TypeText
		}
	}

	return report
}

// Marshal serializes the report in the fixed output format.
func (r *Report) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
