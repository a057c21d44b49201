package hybrid

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridfit/internal/energy"
	"hybridfit/internal/hferr"
	"hybridfit/internal/model"
)

func quietConfig() Config {
	return Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func randomRows(rng *rand.Rand, n, d int) [][]float64 {
	X := make([][]float64, n)
	for i := range X {
		X[i] = make([]float64, d)
		for j := range X[i] {
			X[i][j] = rng.NormFloat64()
		}
	}
	return X
}

func mse(pred, y []float64) float64 {
	sum := 0.0
	for i := range y {
		d := pred[i] - y[i]
		sum += d * d
	}
	return sum / float64(len(y))
}

func TestFitRecoversPureEnergySignal(t *testing.T) {
	wt := []float64{0.5, -0.2, 1, 0.3}
	ext, err := energy.NewExtractor(wt, nil)
	require.NoError(t, err)

	X := randomRows(rand.New(rand.NewSource(11)), 10, len(wt))
	y, err := ext.ScoreAll(X)
	require.NoError(t, err)

	fit, err := FitWeights(context.Background(), X, y, ext, quietConfig())
	require.NoError(t, err)
	assert.InDelta(t, 1, fit.Beta1, 1e-6)
	assert.InDelta(t, 0, fit.Beta2, 1e-6)
	assert.Equal(t, 10, fit.TrainRows)
	assert.Equal(t, 5, fit.CVFolds)
	assert.NotEmpty(t, fit.ID)

	pred, err := Predict(fit, X)
	require.NoError(t, err)
	for i := range y {
		assert.InDelta(t, y[i], pred[i], 1e-6)
	}
}

func TestBlendNeverWorseThanEnergyAlone(t *testing.T) {
	for seed := int64(1); seed <= 8; seed++ {
		rng := rand.New(rand.NewSource(seed))
		wt := []float64{0.1, 0.2, -0.3, 0.4, 0, 1}
		ext, err := energy.NewExtractor(wt, []int{0, 1, 2})
		require.NoError(t, err)

		X := randomRows(rng, 12+int(seed), len(wt))
		s, err := ext.ScoreAll(X)
		require.NoError(t, err)
		y := make([]float64, len(X))
		for i, row := range X {
			y[i] = 0.4*s[i] + math.Sin(row[4]) + 0.7*row[5] + 0.2*rng.NormFloat64()
		}

		fit, err := FitWeights(context.Background(), X, y, ext, quietConfig())
		require.NoError(t, err)
		require.False(t, math.IsNaN(fit.Beta1) || math.IsInf(fit.Beta1, 0))
		require.False(t, math.IsNaN(fit.Beta2) || math.IsInf(fit.Beta2, 0))

		pred, err := Predict(fit, X)
		require.NoError(t, err)
		assert.LessOrEqual(t, mse(pred, y), mse(s, y)+1e-9, "seed %d", seed)
	}
}

func TestPredictIsIdempotentAndDoesNotMutateInput(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	wt := []float64{1, 2, 3}
	ext, err := energy.NewExtractor(wt, nil)
	require.NoError(t, err)
	X := randomRows(rng, 15, 3)
	y := make([]float64, len(X))
	for i, row := range X {
		y[i] = row[0] - 2*row[1] + 0.1*rng.NormFloat64()
	}
	snapshot := make([][]float64, len(X))
	for i := range X {
		snapshot[i] = append([]float64(nil), X[i]...)
	}
	ySnapshot := append([]float64(nil), y...)

	fit, err := FitWeights(context.Background(), X, y, ext, quietConfig())
	require.NoError(t, err)
	first, err := Predict(fit, X)
	require.NoError(t, err)
	second, err := Predict(fit, X)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, X)
	assert.Equal(t, ySnapshot, y)

	row, err := PredictRow(fit, X[3])
	require.NoError(t, err)
	assert.Equal(t, first[3], row)
}

func TestWildTypeEnergyTermIsZero(t *testing.T) {
	wt := []float64{0.3, -1, 2}
	ext, err := energy.NewExtractor(wt, nil)
	require.NoError(t, err)
	X := randomRows(rand.New(rand.NewSource(9)), 8, 3)
	y := []float64{1, 2, 3, 4, 5, 6, 7, 8}

	fit, err := FitWeights(context.Background(), X, y, ext, quietConfig())
	require.NoError(t, err)

	s, err := Extractor(fit).Score(wt)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s)

	pred, err := PredictRow(fit, wt)
	require.NoError(t, err)
	r, err := RidgeModel(fit).PredictRow(wt)
	require.NoError(t, err)
	assert.InDelta(t, fit.Beta2*r, pred, 1e-12)
}

func TestFitRejectsTooFewRows(t *testing.T) {
	ext, err := energy.NewExtractor([]float64{0, 0}, nil)
	require.NoError(t, err)
	_, err = FitWeights(context.Background(), [][]float64{{1, 2}}, []float64{1}, ext, quietConfig())
	var insufficient *hferr.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Min)
}

func TestFitRejectsWidthMismatch(t *testing.T) {
	ext, err := energy.NewExtractor([]float64{0, 0, 0}, nil)
	require.NoError(t, err)
	_, err = FitWeights(context.Background(), [][]float64{{1, 2}, {3, 4}}, []float64{1, 2}, ext, quietConfig())
	assert.ErrorIs(t, err, hferr.ErrSchema)
}

func TestPredictRejectsWidthMismatch(t *testing.T) {
	fit := model.Fit{Width: 2, Beta1: 1, Ridge: model.RidgeParams{Coefficients: []float64{0, 0}}}
	_, err := Predict(fit, [][]float64{{1, 2}, {1, 2, 3}})
	var schemaErr *hferr.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, 2, schemaErr.Row)
}

func TestBlendDegenerateTerms(t *testing.T) {
	y := []float64{1, 2, 3}

	b1, b2, deg := Blend([]float64{0, 0, 0}, []float64{1, 2, 3}, y)
	require.NotNil(t, deg)
	assert.Equal(t, TermEnergy, deg.Term)
	assert.Equal(t, 0.0, b1)
	assert.InDelta(t, 1, b2, 1e-12)

	b1, b2, deg = Blend([]float64{2, 4, 6}, []float64{0, 0, 0}, y)
	require.NotNil(t, deg)
	assert.Equal(t, TermRidge, deg.Term)
	assert.InDelta(t, 0.5, b1, 1e-12)
	assert.Equal(t, 0.0, b2)

	b1, b2, deg = Blend([]float64{1, 2, 3}, []float64{2, 4, 6}, y)
	require.NotNil(t, deg)
	assert.Equal(t, TermRidge, deg.Term)
	assert.ErrorIs(t, deg, hferr.ErrFit)
	assert.InDelta(t, 1, b1, 1e-12)
	assert.Equal(t, 0.0, b2)
}

func TestBlendSolvesTwoPredictorLeastSquares(t *testing.T) {
	s := []float64{1, 0, 2, -1, 3}
	r := []float64{0, 1, 1, 2, -1}
	y := make([]float64, len(s))
	for i := range s {
		y[i] = 1.5*s[i] - 0.25*r[i]
	}
	b1, b2, deg := Blend(s, r, y)
	assert.Nil(t, deg)
	assert.InDelta(t, 1.5, b1, 1e-10)
	assert.InDelta(t, -0.25, b2, 1e-10)
}

func TestFitRecordsDegenerateEnergyTerm(t *testing.T) {
	wt := []float64{0, 0, 0}
	ext, err := energy.NewExtractor(wt, []int{2})
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(21))
	X := randomRows(rng, 10, 3)
	y := make([]float64, len(X))
	for i := range X {
		X[i][2] = 0
		y[i] = X[i][0] + 0.1*rng.NormFloat64()
	}

	fit, err := FitWeights(context.Background(), X, y, ext, quietConfig())
	require.NoError(t, err)
	assert.Equal(t, TermEnergy, fit.Degenerate)
	assert.Equal(t, 0.0, fit.Beta1)
}
