package ridge

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"

	"hybridfit/internal/hferr"
)

const (
	DefaultFolds    = 5
	DefaultGridSize = 25
	DefaultAlphaMin = 1e-6
	DefaultAlphaMax = 1e6
)

// Config controls the cross-validated alpha search. Zero values select the
// defaults: DefaultGridSize log-spaced alphas over [DefaultAlphaMin,
// DefaultAlphaMax] and DefaultFolds folds. Seed varies the fold assignment;
// rows are assigned by content, so the same rows in any order land in the
// same folds.
type Config struct {
	Alphas []float64
	Folds  int
	Seed   int64
}

func (c Config) withDefaults() Config {
	if len(c.Alphas) == 0 {
		c.Alphas = DefaultAlphas()
	}
	if c.Folds <= 0 {
		c.Folds = DefaultFolds
	}
	return c
}

func (c Config) Validate() error {
	if c.Folds == 1 {
		return fmt.Errorf("ridge search needs at least 2 folds, got %d", c.Folds)
	}
	for _, a := range c.Alphas {
		if a < 0 || math.IsNaN(a) || math.IsInf(a, 0) {
			return fmt.Errorf("ridge alpha must be finite and non-negative, got %v", a)
		}
	}
	return nil
}

// AlphaScore is the mean held-out squared error of one grid point.
type AlphaScore struct {
	Alpha float64 `json:"alpha"`
	MSE   float64 `json:"mse"`
	Err   string  `json:"error,omitempty"`
}

type SearchResult struct {
	Alpha  float64      `json:"alpha"`
	MSE    float64      `json:"mse"`
	Folds  int          `json:"folds"`
	Scores []AlphaScore `json:"scores"`
}

func DefaultAlphas() []float64 {
	return LogSpace(math.Log10(DefaultAlphaMin), math.Log10(DefaultAlphaMax), DefaultGridSize)
}

// LogSpace returns n values spaced evenly on a log10 scale from 10^lo to 10^hi.
func LogSpace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{math.Pow(10, lo)}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = math.Pow(10, lo+step*float64(i))
	}
	return out
}

// Folds partitions n rows into k contiguous folds. When n < k every row is
// its own fold.
func Folds(n, k int) [][]int {
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}
	folds := make([][]int, k)
	for f := 0; f < k; f++ {
		start, end := f*n/k, (f+1)*n/k
		for i := start; i < end; i++ {
			folds[f] = append(folds[f], i)
		}
	}
	return folds
}

// RowKeys returns a seeded hash of each row's features and label. Equal rows
// get equal keys wherever they sit in the input.
func RowKeys(X [][]float64, y []float64, seed int64) []uint64 {
	keys := make([]uint64, len(X))
	var buf []byte
	for i, row := range X {
		buf = binary.LittleEndian.AppendUint64(buf[:0], uint64(seed))
		for _, v := range row {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(y[i]))
		keys[i] = xxhash.Sum64(buf)
	}
	return keys
}

// KeyOrder returns row indices sorted by key, ties kept in input order.
func KeyOrder(keys []uint64) []int {
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return keys[order[a]] < keys[order[b]] })
	return order
}

// ShuffledFolds partitions the rows of X and y into k folds. Rows are ordered
// by RowKeys and then cut into contiguous blocks, so fold membership does not
// depend on the order rows arrive in.
func ShuffledFolds(X [][]float64, y []float64, k int, seed int64) [][]int {
	order := KeyOrder(RowKeys(X, y, seed))
	folds := Folds(len(X), k)
	for _, fold := range folds {
		for j, pos := range fold {
			fold[j] = order[pos]
		}
		sort.Ints(fold)
	}
	return folds
}

// Search picks the alpha with the lowest mean held-out squared error, ties
// going to the stronger penalty, and refits it on all rows.
func Search(X [][]float64, y []float64, cfg Config) (Model, SearchResult, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Model{}, SearchResult{}, err
	}
	n := len(X)
	if n < 2 {
		return Model{}, SearchResult{}, &hferr.InsufficientDataError{Op: "ridge search", Rows: n, Min: 2}
	}
	if len(y) != n {
		return Model{}, SearchResult{}, hferr.Schema("have %d rows but %d labels", n, len(y))
	}

	folds := ShuffledFolds(X, y, cfg.Folds, cfg.Seed)
	result := SearchResult{
		Alpha:  math.NaN(),
		MSE:    math.Inf(1),
		Folds:  len(folds),
		Scores: make([]AlphaScore, 0, len(cfg.Alphas)),
	}
	for _, alpha := range cfg.Alphas {
		mse, err := crossValidate(X, y, folds, alpha)
		score := AlphaScore{Alpha: alpha, MSE: mse}
		if err != nil {
			score.Err = err.Error()
			score.MSE = math.Inf(1)
		}
		result.Scores = append(result.Scores, score)
		if err != nil {
			continue
		}
		if mse < result.MSE || (mse == result.MSE && alpha > result.Alpha) {
			result.MSE = mse
			result.Alpha = alpha
		}
	}
	if math.IsNaN(result.Alpha) {
		return Model{}, result, &hferr.FitError{Term: "ridge", Reason: "no alpha in the grid produced a finite cross-validation error"}
	}

	m, err := Fit(X, y, result.Alpha)
	if err != nil {
		return Model{}, result, err
	}
	return m, result, nil
}

func crossValidate(X [][]float64, y []float64, folds [][]int, alpha float64) (float64, error) {
	n := len(X)
	held := make([]bool, n)
	sum := 0.0
	for _, fold := range folds {
		for i := range held {
			held[i] = false
		}
		for _, idx := range fold {
			held[idx] = true
		}
		trainX := make([][]float64, 0, n-len(fold))
		trainY := make([]float64, 0, n-len(fold))
		for i := range X {
			if !held[i] {
				trainX = append(trainX, X[i])
				trainY = append(trainY, y[i])
			}
		}
		m, err := Fit(trainX, trainY, alpha)
		if err != nil {
			return 0, err
		}
		for _, idx := range fold {
			pred, err := m.PredictRow(X[idx])
			if err != nil {
				return 0, err
			}
			d := pred - y[idx]
			sum += d * d
		}
	}
	mse := sum / float64(n)
	if math.IsNaN(mse) || math.IsInf(mse, 0) {
		return 0, &hferr.FitError{Term: "ridge", Reason: fmt.Sprintf("non-finite cross-validation error at alpha=%g", alpha)}
	}
	return mse, nil
}
