package energy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridfit/internal/hferr"
)

func TestWildTypeScoresZero(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		wt := make([]float64, 1+rng.Intn(12))
		for i := range wt {
			wt[i] = rng.NormFloat64() * 5
		}
		var mask []int
		if trial%2 == 1 {
			mask = []int{0}
		}
		e, err := NewExtractor(wt, mask)
		require.NoError(t, err)
		s, err := e.Score(append([]float64(nil), wt...))
		require.NoError(t, err)
		assert.Equal(t, 0.0, s)
	}
}

func TestScoreSumsMaskedDimensions(t *testing.T) {
	e, err := NewExtractor([]float64{1, 2, 3, 4}, []int{0, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, 4.0, e.Reference())
	assert.Equal(t, []int{0, 2}, e.Mask())

	s, err := e.Score([]float64{2, 100, 5, 100})
	require.NoError(t, err)
	assert.Equal(t, 3.0, s)
}

func TestScoreAllDimensionsWhenMaskEmpty(t *testing.T) {
	e, err := NewExtractor([]float64{1, 1}, nil)
	require.NoError(t, err)
	scores, err := e.ScoreAll([][]float64{{1, 1}, {2, 3}, {0, 0}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 3, -2}, scores)
}

func TestScoreRejectsWidthMismatch(t *testing.T) {
	e, err := NewExtractor([]float64{1, 1}, nil)
	require.NoError(t, err)
	_, err = e.Score([]float64{1})
	assert.ErrorIs(t, err, hferr.ErrSchema)

	_, err = NewExtractor([]float64{1, 1}, []int{2})
	assert.ErrorIs(t, err, hferr.ErrSchema)
}

func TestMaskFromColumns(t *testing.T) {
	cols := []string{"H_1", "pos_2", "J_1_3", "other"}
	assert.Equal(t, []int{0, 2}, MaskFromColumns(cols, DefaultPrefixes))
	assert.Empty(t, MaskFromColumns(cols, []string{"zz"}))
}

func TestFromReferenceMatchesOriginal(t *testing.T) {
	e, err := NewExtractor([]float64{0.5, 1.5, -2}, []int{1, 2})
	require.NoError(t, err)
	rebuilt := FromReference(e.Width(), e.Mask(), e.Reference())
	row := []float64{3, 4, 5}
	a, err := e.Score(row)
	require.NoError(t, err)
	b, err := rebuilt.Score(row)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
