package evaluate

import (
	"context"
	"errors"
	"io"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridfit/internal/energy"
	"hybridfit/internal/hferr"
	"hybridfit/internal/hybrid"
	"hybridfit/internal/model"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// energyDataset builds rows whose fitness is exactly their statistical energy.
func energyDataset(t *testing.T, n int, seed int64) (model.Dataset, energy.Extractor) {
	t.Helper()
	wt := []float64{0.5, -0.2, 1, 0.3}
	ext, err := energy.NewExtractor(wt, nil)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(seed))
	ds := model.Dataset{WildType: model.WildType{Encoding: wt}, Columns: []string{"a", "b", "c", "d"}}
	for i := 0; i < n; i++ {
		row := make([]float64, len(wt))
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		s, err := ext.Score(row)
		require.NoError(t, err)
		ds.Variants = append(ds.Variants, model.Variant{ID: "v", Features: row, Fitness: s})
	}
	return ds, ext
}

func noisyDataset(t *testing.T, n int, seed int64) (model.Dataset, energy.Extractor) {
	t.Helper()
	wt := []float64{0, 0, 0, 0, 0}
	ext, err := energy.NewExtractor(wt, []int{0, 1})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(seed))
	ds := model.Dataset{WildType: model.WildType{Encoding: wt}}
	for i := 0; i < n; i++ {
		row := make([]float64, len(wt))
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		y := 0.5*(row[0]+row[1]) - row[3] + 0.5*rng.NormFloat64()
		ds.Variants = append(ds.Variants, model.Variant{Features: row, Fitness: y})
	}
	return ds, ext
}

func TestSplitIndicesIsReproducibleAndDisjoint(t *testing.T) {
	a, err := SplitIndices(10, 0.8, 42)
	require.NoError(t, err)
	b, err := SplitIndices(10, 0.8, 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a.Train, 8)
	assert.Len(t, a.Test, 2)

	seen := make(map[int]bool)
	for _, idx := range append(append([]int(nil), a.Train...), a.Test...) {
		assert.False(t, seen[idx], "index %d assigned twice", idx)
		seen[idx] = true
	}
	assert.Len(t, seen, 10)

	differs := false
	for seed := int64(1); seed <= 5; seed++ {
		other, err := SplitIndices(10, 0.8, seed)
		require.NoError(t, err)
		if !assert.ObjectsAreEqual(a.Test, other.Test) {
			differs = true
		}
	}
	assert.True(t, differs, "different seeds should produce different splits")
}

func TestSplitIndicesClampsBothSides(t *testing.T) {
	s, err := SplitIndices(5, 0.8, 1)
	require.NoError(t, err)
	assert.Len(t, s.Train, 4)
	assert.Len(t, s.Test, 1)

	s, err = SplitIndices(3, 0.99, 1)
	require.NoError(t, err)
	assert.Len(t, s.Test, 1)

	s, err = SplitIndices(3, 0.01, 1)
	require.NoError(t, err)
	assert.Len(t, s.Train, 1)
}

func TestSplitIndicesRejectsBadInput(t *testing.T) {
	_, err := SplitIndices(10, 1, 1)
	assert.Error(t, err)
	_, err = SplitIndices(10, 0, 1)
	assert.Error(t, err)
	_, err = SplitIndices(1, 0.5, 1)
	assert.ErrorIs(t, err, hferr.ErrInsufficientData)
}

func TestSpearman(t *testing.T) {
	rho, err := Spearman([]float64{1, 2, 3, 4}, []float64{10, 20, 30, 400})
	require.NoError(t, err)
	assert.InDelta(t, 1, rho, 1e-12)

	rho, err = Spearman([]float64{1, 2, 3}, []float64{3, 2, 1})
	require.NoError(t, err)
	assert.InDelta(t, -1, rho, 1e-12)

	rho, err = Spearman([]float64{1, 2, 3, 4, 5}, []float64{5, 6, 7, 8, 7})
	require.NoError(t, err)
	assert.InDelta(t, 0.8207826816681233, rho, 1e-12)
}

func TestSpearmanDegenerateFolds(t *testing.T) {
	_, err := Spearman([]float64{1}, []float64{2})
	var fold *hferr.DegenerateFoldError
	require.ErrorAs(t, err, &fold)
	assert.Equal(t, 1, fold.Rows)

	_, err = Spearman([]float64{1, 1, 1}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, hferr.ErrDegenerateFold)

	_, err = Spearman([]float64{1, 2, 3}, []float64{4, 4, 4})
	assert.ErrorIs(t, err, hferr.ErrDegenerateFold)

	_, err = Spearman([]float64{1, 2}, []float64{1})
	assert.ErrorIs(t, err, hferr.ErrSchema)
}

func TestRanksAverageTies(t *testing.T) {
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, Ranks([]float64{-1, 3, 3, 9}))
	assert.Equal(t, []float64{3, 1, 2}, Ranks([]float64{0.3, 0.1, 0.2}))
}

func TestAggregateUsesSampleStd(t *testing.T) {
	scores := []model.RepeatScore{
		{Spearman: 0.5},
		{Spearman: 0.7},
		{Spearman: 0.9},
		{Spearman: 0.1, Err: errors.New("boom"), Error: "boom"},
	}
	mean, std, ok := Aggregate(scores)
	assert.Equal(t, 3, ok)
	assert.InDelta(t, 0.7, mean, 1e-12)
	assert.InDelta(t, 0.2, std, 1e-12)

	mean, std, ok = Aggregate(scores[:1])
	assert.Equal(t, 1, ok)
	assert.Equal(t, 0.5, mean)
	assert.Zero(t, std)
}

func TestRunRecoversPureEnergySignal(t *testing.T) {
	ds, ext := energyDataset(t, 10, 3)
	perf, err := Run(context.Background(), ds, ext, Config{Repeats: 5, Seed: 100, Logger: quiet})
	require.NoError(t, err)
	require.NoError(t, perf.Err())
	assert.Equal(t, 5, perf.Succeeded)
	assert.Zero(t, perf.Failed)
	assert.Equal(t, DefaultTrainRatio, perf.TrainRatio)
	for _, s := range perf.Scores {
		assert.Equal(t, 8, s.TrainRows)
		assert.Equal(t, 2, s.TestRows)
		assert.InDelta(t, 1, s.Spearman, 1e-9)
		assert.InDelta(t, 1, s.Beta1, 1e-6)
		assert.InDelta(t, 0, s.Beta2, 1e-6)
	}
	assert.InDelta(t, 1, perf.Mean, 1e-9)
	assert.InDelta(t, 0, perf.Std, 1e-9)
}

func TestRunIsReproducibleAcrossWorkerCounts(t *testing.T) {
	ds, ext := noisyDataset(t, 40, 8)
	a, err := Run(context.Background(), ds, ext, Config{Repeats: 6, Seed: 7, Workers: 1, Logger: quiet})
	require.NoError(t, err)
	b, err := Run(context.Background(), ds, ext, Config{Repeats: 6, Seed: 7, Workers: 4, Logger: quiet})
	require.NoError(t, err)
	assert.Equal(t, a.Scores, b.Scores)
	assert.Equal(t, a.Mean, b.Mean)
	assert.NotEqual(t, a.ID, b.ID)

	for i, s := range a.Scores {
		assert.Equal(t, i, s.Repeat)
		assert.Equal(t, int64(7+i), s.Seed)
	}
}

func TestRunUsesExplicitSeeds(t *testing.T) {
	ds, ext := noisyDataset(t, 30, 2)
	perf, err := Run(context.Background(), ds, ext, Config{Seeds: []int64{9, 4}, Logger: quiet})
	require.NoError(t, err)
	require.Len(t, perf.Scores, 2)
	assert.Equal(t, int64(9), perf.Scores[0].Seed)
	assert.Equal(t, int64(4), perf.Scores[1].Seed)

	_, err = Run(context.Background(), ds, ext, Config{Repeats: 3, Seeds: []int64{1}, Logger: quiet})
	assert.Error(t, err)
	_, err = Run(context.Background(), ds, ext, Config{TrainRatio: 1.5, Logger: quiet})
	assert.Error(t, err)
}

func TestRunRejectsNaNTrainRatio(t *testing.T) {
	ds, ext := noisyDataset(t, 20, 3)
	_, err := Run(context.Background(), ds, ext, Config{TrainRatio: math.NaN(), Repeats: 2, Logger: quiet})
	assert.Error(t, err)
}

// labelSorted names every row and returns a copy with the rows ordered by
// fitness.
func labelSorted(ds model.Dataset) (model.Dataset, model.Dataset) {
	for i := range ds.Variants {
		ds.Variants[i].ID = fmt.Sprintf("v%d", i)
	}
	order := make([]int, ds.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return ds.Variants[order[a]].Fitness < ds.Variants[order[b]].Fitness
	})
	return ds, ds.Subset(order)
}

func splitIDs(ds model.Dataset, idx []int) []string {
	ids := ds.Subset(idx).IDs()
	sort.Strings(ids)
	return ids
}

func TestSplitDatasetIgnoresRowOrder(t *testing.T) {
	base, _ := noisyDataset(t, 40, 21)
	ds, sorted := labelSorted(base)

	a, err := SplitDataset(ds, DefaultTrainRatio, 5)
	require.NoError(t, err)
	b, err := SplitDataset(sorted, DefaultTrainRatio, 5)
	require.NoError(t, err)

	assert.Len(t, a.Train, 32)
	assert.Equal(t, splitIDs(ds, a.Train), splitIDs(sorted, b.Train))
	assert.Equal(t, splitIDs(ds, a.Test), splitIDs(sorted, b.Test))
}

func TestRepeatIgnoresRowOrder(t *testing.T) {
	base, ext := noisyDataset(t, 50, 22)
	ds, sorted := labelSorted(base)
	cfg := hybrid.Config{Logger: quiet}

	for _, seed := range []int64{1, 2, 3} {
		a := Repeat(context.Background(), ds, ext, 0, seed, DefaultTrainRatio, cfg)
		b := Repeat(context.Background(), sorted, ext, 0, seed, DefaultTrainRatio, cfg)
		require.True(t, a.OK(), a.Error)
		require.True(t, b.OK(), b.Error)
		assert.Equal(t, a.Alpha, b.Alpha, "seed %d", seed)
		assert.InDelta(t, a.Spearman, b.Spearman, 1e-9, "seed %d", seed)
		assert.InDelta(t, a.Beta1, b.Beta1, 1e-6, "seed %d", seed)
	}
}

func TestRunSurfacesSingleRowTestFold(t *testing.T) {
	ds, ext := noisyDataset(t, 5, 4)
	perf, err := Run(context.Background(), ds, ext, Config{Repeats: 2, Seed: 1, Logger: quiet})
	require.NoError(t, err)
	assert.Equal(t, 2, perf.Failed)
	assert.Zero(t, perf.Succeeded)

	var fold *hferr.DegenerateFoldError
	require.ErrorAs(t, perf.Err(), &fold)
	assert.Equal(t, 1, fold.Rows)
	for _, s := range perf.Scores {
		assert.False(t, s.OK())
		assert.Equal(t, 1, s.TestRows)
	}
}

func TestRunDoesNotMutateDataset(t *testing.T) {
	ds, ext := noisyDataset(t, 20, 5)
	before := ds.Features()
	labels := ds.Labels()
	_, err := Run(context.Background(), ds, ext, Config{Repeats: 3, Logger: quiet})
	require.NoError(t, err)
	assert.Equal(t, before, ds.Features())
	assert.Equal(t, labels, ds.Labels())
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ds, ext := noisyDataset(t, 20, 6)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, ds, ext, Config{Repeats: 3, Logger: quiet})
	assert.ErrorIs(t, err, context.Canceled)
}

// Fitting on single mutants and predicting recombinants scores a different
// population than the same-population holdout.
func TestSingleToRecombinantGeneralization(t *testing.T) {
	weights := []float64{1.0, -0.5, 2.0, 0.3, -1.2, 0.8}
	d := len(weights)
	wt := make([]float64, d)
	ext, err := energy.NewExtractor(wt, nil)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(17))

	fitness := func(row []float64) float64 {
		y := 0.0
		for j, v := range row {
			y += weights[j] * v
		}
		return y + 0.1*rng.NormFloat64()
	}

	singles := model.Dataset{WildType: model.WildType{Encoding: wt}}
	for j := 0; j < d; j++ {
		for k := 0; k < 4; k++ {
			row := make([]float64, d)
			row[j] = 0.5 + rng.Float64()
			singles.Variants = append(singles.Variants, model.Variant{Features: row, Fitness: fitness(row)})
		}
	}
	var doubles [][]float64
	var doublesY []float64
	for j := 0; j < d; j++ {
		for k := j + 1; k < d; k++ {
			row := make([]float64, d)
			row[j] = 0.5 + rng.Float64()
			row[k] = 0.5 + rng.Float64()
			doubles = append(doubles, row)
			doublesY = append(doublesY, fitness(row))
		}
	}

	holdout := Repeat(context.Background(), singles, ext, 0, 3, DefaultTrainRatio, hybrid.Config{Logger: quiet})
	require.True(t, holdout.OK(), holdout.Error)

	fit, err := hybrid.FitWeights(context.Background(), singles.Features(), singles.Labels(), ext, hybrid.Config{Logger: quiet})
	require.NoError(t, err)
	pred, err := hybrid.Predict(fit, doubles)
	require.NoError(t, err)
	recombinant, err := Spearman(pred, doublesY)
	require.NoError(t, err)

	assert.Greater(t, recombinant, 0.5)
	assert.NotEqual(t, holdout.Spearman, recombinant)
}
