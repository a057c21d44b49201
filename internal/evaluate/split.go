package evaluate

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"hybridfit/internal/hferr"
	"hybridfit/internal/model"
	"hybridfit/internal/ridge"
)

const DefaultTrainRatio = 0.8

// SplitIndices draws a reproducible train/test partition of n rows. The
// training side receives round(n*trainRatio) rows, clamped so both sides are
// non-empty.
func SplitIndices(n int, trainRatio float64, seed int64) (model.Split, error) {
	if trainRatio <= 0 || trainRatio >= 1 || math.IsNaN(trainRatio) {
		return model.Split{}, fmt.Errorf("train ratio must be in (0, 1), got %v", trainRatio)
	}
	if n < 2 {
		return model.Split{}, &hferr.InsufficientDataError{Op: "split", Rows: n, Min: 2}
	}
	nTrain := int(math.Round(float64(n) * trainRatio))
	if nTrain < 1 {
		nTrain = 1
	}
	if nTrain > n-1 {
		nTrain = n - 1
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	train := append([]int(nil), perm[:nTrain]...)
	test := append([]int(nil), perm[nTrain:]...)
	sort.Ints(train)
	sort.Ints(test)
	return model.Split{Seed: seed, Train: train, Test: test}, nil
}

// SplitDataset draws a split of ds whose membership depends on the row
// contents and seed only. The same rows in any order split the same way.
func SplitDataset(ds model.Dataset, trainRatio float64, seed int64) (model.Split, error) {
	split, err := SplitIndices(ds.Len(), trainRatio, seed)
	if err != nil {
		return model.Split{}, err
	}
	order := ridge.KeyOrder(ridge.RowKeys(ds.Features(), ds.Labels(), seed))
	remap := func(positions []int) []int {
		out := make([]int, len(positions))
		for i, pos := range positions {
			out[i] = order[pos]
		}
		sort.Ints(out)
		return out
	}
	split.Train = remap(split.Train)
	split.Test = remap(split.Test)
	return split, nil
}
