package evaluate

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"hybridfit/internal/hferr"
	"hybridfit/internal/model"
)

// Spearman returns the rank correlation of x and y, ties receiving their
// average rank. Fewer than two pairs or a constant side leave the
// correlation undefined and yield a DegenerateFoldError.
func Spearman(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, hferr.Schema("spearman: %d predictions for %d measurements", len(x), len(y))
	}
	if len(x) < 2 {
		return 0, &hferr.DegenerateFoldError{Rows: len(x), Reason: "fewer than 2 rows in test fold"}
	}
	rx, ry := Ranks(x), Ranks(y)
	if constant(rx) {
		return 0, &hferr.DegenerateFoldError{Rows: len(x), Reason: "predicted values have zero variance"}
	}
	if constant(ry) {
		return 0, &hferr.DegenerateFoldError{Rows: len(x), Reason: "measured values have zero variance"}
	}
	return stat.Correlation(rx, ry, nil), nil
}

// Ranks returns 1-based ranks with ties averaged.
func Ranks(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks := make([]float64, len(values))
	for i := 0; i < len(idx); {
		j := i + 1
		for j < len(idx) && values[idx[j]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}
	return ranks
}

func constant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

// Aggregate returns the mean and sample standard deviation of the succeeded
// repeats. Std is zero when fewer than two repeats succeeded.
func Aggregate(scores []model.RepeatScore) (mean, std float64, ok int) {
	values := make([]float64, 0, len(scores))
	for _, s := range scores {
		if s.OK() {
			values = append(values, s.Spearman)
		}
	}
	switch len(values) {
	case 0:
		return 0, 0, 0
	case 1:
		return values[0], 0, 1
	}
	mean, std = stat.MeanStdDev(values, nil)
	return mean, std, len(values)
}
