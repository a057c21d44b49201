package dataset

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"hybridfit/internal/hferr"
	"hybridfit/internal/model"
)

type ColumnStats struct {
	Column string  `json:"column"`
	Min    float64 `json:"min"`
	Avg    float64 `json:"avg"`
	Max    float64 `json:"max"`
}

// Describe summarizes every feature column of ds. An empty dataset has no
// summary.
func Describe(ds model.Dataset) ([]ColumnStats, error) {
	if ds.Len() == 0 {
		return nil, nil
	}
	width := ds.Width()
	if width == 0 {
		return nil, hferr.Schema("dataset has no feature columns")
	}

	column := make([]float64, ds.Len())
	out := make([]ColumnStats, width)
	for j := 0; j < width; j++ {
		for i, v := range ds.Variants {
			if len(v.Features) != width {
				return nil, &hferr.SchemaError{Row: i + 1, Reason: "inconsistent feature width"}
			}
			column[i] = v.Features[j]
		}
		name := ""
		if j < len(ds.Columns) {
			name = ds.Columns[j]
		}
		out[j] = ColumnStats{
			Column: name,
			Min:    floats.Min(column),
			Avg:    stat.Mean(column, nil),
			Max:    floats.Max(column),
		}
	}
	return out, nil
}
