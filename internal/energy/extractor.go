// Package energy isolates the statistical-energy term of an encoded variant.
//
// The energy of a row is the sum of the coupling dimensions selected by a
// mask, minus the same sum over the wild-type encoding, so the wild type
// always scores exactly zero.
package energy

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"

	"hybridfit/internal/hferr"
)

// DefaultPrefixes name the field (h) and coupling (J) columns produced by the
// encoding pipeline.
var DefaultPrefixes = []string{"h_", "j_", "dca_"}

type Extractor struct {
	width     int
	mask      []int
	reference float64
}

// NewExtractor builds an extractor over wt. An empty mask selects every
// dimension.
func NewExtractor(wt []float64, mask []int) (Extractor, error) {
	if len(wt) == 0 {
		return Extractor{}, hferr.Schema("wild-type encoding is empty")
	}
	seen := make(map[int]struct{}, len(mask))
	cleaned := make([]int, 0, len(mask))
	for _, idx := range mask {
		if idx < 0 || idx >= len(wt) {
			return Extractor{}, hferr.Schema("energy mask index %d outside encoding of width %d", idx, len(wt))
		}
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		cleaned = append(cleaned, idx)
	}
	e := Extractor{width: len(wt), mask: cleaned}
	e.reference = e.raw(wt)
	return e, nil
}

// FromReference rebuilds an extractor from stored parameters.
func FromReference(width int, mask []int, reference float64) Extractor {
	return Extractor{width: width, mask: append([]int(nil), mask...), reference: reference}
}

// MaskFromColumns returns the indices of columns whose name starts with one
// of prefixes, compared case-insensitively.
func MaskFromColumns(columns []string, prefixes []string) []int {
	var mask []int
	for i, name := range columns {
		lower := strings.ToLower(strings.TrimSpace(name))
		for _, prefix := range prefixes {
			if prefix != "" && strings.HasPrefix(lower, strings.ToLower(prefix)) {
				mask = append(mask, i)
				break
			}
		}
	}
	return mask
}

func (e Extractor) Width() int         { return e.width }
func (e Extractor) Reference() float64 { return e.reference }

func (e Extractor) Mask() []int {
	return append([]int(nil), e.mask...)
}

func (e Extractor) Score(row []float64) (float64, error) {
	if len(row) != e.width {
		return 0, hferr.Schema("feature vector has %d values, wild-type encoding has %d", len(row), e.width)
	}
	return e.raw(row) - e.reference, nil
}

func (e Extractor) ScoreAll(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		s, err := e.Score(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

func (e Extractor) raw(row []float64) float64 {
	if len(e.mask) == 0 {
		return floats.Sum(row)
	}
	sum := 0.0
	for _, idx := range e.mask {
		sum += row[idx]
	}
	return sum
}
