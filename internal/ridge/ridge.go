// Package ridge fits L2-penalised linear regression with an unpenalised
// intercept and selects the penalty by k-fold cross-validation.
package ridge

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"hybridfit/internal/hferr"
)

// Model is an immutable fitted ridge regression.
type Model struct {
	coef      []float64
	intercept float64
	alpha     float64
}

// FromParams rebuilds a model from stored coefficients.
func FromParams(coef []float64, intercept, alpha float64) Model {
	return Model{coef: append([]float64(nil), coef...), intercept: intercept, alpha: alpha}
}

func (m Model) Coefficients() []float64 { return append([]float64(nil), m.coef...) }
func (m Model) Intercept() float64      { return m.intercept }
func (m Model) Alpha() float64          { return m.alpha }
func (m Model) Width() int              { return len(m.coef) }

func (m Model) PredictRow(row []float64) (float64, error) {
	if len(row) != len(m.coef) {
		return 0, hferr.Schema("feature vector has %d values, model expects %d", len(row), len(m.coef))
	}
	return m.intercept + floats.Dot(m.coef, row), nil
}

func (m Model) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		v, err := m.PredictRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Fit solves (XcᵀXc + αI)w = Xcᵀyc on column-centred data and recovers the
// intercept from the column means.
func Fit(X [][]float64, y []float64, alpha float64) (Model, error) {
	n := len(X)
	if n == 0 {
		return Model{}, &hferr.InsufficientDataError{Op: "ridge fit", Rows: 0, Min: 1}
	}
	if len(y) != n {
		return Model{}, hferr.Schema("have %d rows but %d labels", n, len(y))
	}
	if alpha < 0 || math.IsNaN(alpha) || math.IsInf(alpha, 0) {
		return Model{}, fmt.Errorf("ridge alpha must be finite and non-negative, got %v", alpha)
	}
	d := len(X[0])
	if d == 0 {
		return Model{}, hferr.Schema("feature rows are empty")
	}

	xMean := make([]float64, d)
	for i, row := range X {
		if len(row) != d {
			return Model{}, hferr.Schema("row %d has %d values, expected %d", i, len(row), d)
		}
		floats.Add(xMean, row)
	}
	floats.Scale(1/float64(n), xMean)
	yMean := floats.Sum(y) / float64(n)

	xc := mat.NewDense(n, d, nil)
	yc := mat.NewVecDense(n, nil)
	for i, row := range X {
		for j, v := range row {
			xc.Set(i, j, v-xMean[j])
		}
		yc.SetVec(i, y[i]-yMean)
	}

	var gram mat.SymDense
	gram.SymOuterK(1, xc.T())
	for j := 0; j < d; j++ {
		gram.SetSym(j, j, gram.At(j, j)+alpha)
	}
	var rhs mat.VecDense
	rhs.MulVec(xc.T(), yc)

	w := make([]float64, d)
	if floats.Norm(rhs.RawVector().Data, 2) > 0 {
		var chol mat.Cholesky
		if ok := chol.Factorize(&gram); !ok {
			return Model{}, &hferr.FitError{Term: "ridge", Reason: fmt.Sprintf("normal equations are singular at alpha=%g", alpha)}
		}
		sol := mat.NewVecDense(d, nil)
		if err := chol.SolveVecTo(sol, &rhs); err != nil {
			// An ill-conditioned system still yields a usable solution.
			var cond mat.Condition
			if !errors.As(err, &cond) {
				return Model{}, &hferr.FitError{Term: "ridge", Reason: err.Error()}
			}
		}
		copy(w, sol.RawVector().Data)
	}
	for _, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Model{}, &hferr.FitError{Term: "ridge", Reason: "non-finite coefficients"}
		}
	}

	return Model{
		coef:      w,
		intercept: yMean - floats.Dot(w, xMean),
		alpha:     alpha,
	}, nil
}
