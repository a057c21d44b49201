// Package hybrid fits and applies the blended fitness predictor
//
//	fitness ≈ Beta1*energy(x) + Beta2*ridge(x)
//
// where energy is the wild-type-centred statistical energy and ridge is a
// cross-validated ridge regression on the full feature vector. The ridge
// model is fitted on the measured fitness first; the two weights are then
// the least-squares solution of the two-predictor regression without
// intercept.
package hybrid

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"hybridfit/internal/energy"
	"hybridfit/internal/hferr"
	"hybridfit/internal/model"
	"hybridfit/internal/ridge"
)

const (
	TermEnergy = "energy"
	TermRidge  = "ridge"

	// collinearTolerance bounds 1-cos² between the energy and ridge
	// predictions below which the pair is treated as rank deficient.
	collinearTolerance = 1e-10
)

type Config struct {
	Ridge  ridge.Config
	Logger *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// FitWeights determines Beta1, Beta2 and the ridge model from a training
// fold. Rank deficiency in the blend does not fail the fit: the affected
// weight is fixed at zero and recorded in Fit.Degenerate.
func FitWeights(ctx context.Context, X [][]float64, y []float64, ext energy.Extractor, cfg Config) (model.Fit, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(X) < 2 {
		return model.Fit{}, &hferr.InsufficientDataError{Op: "hybrid fit", Rows: len(X), Min: 2}
	}
	if len(y) != len(X) {
		return model.Fit{}, hferr.Schema("have %d rows but %d labels", len(X), len(y))
	}

	s, err := ext.ScoreAll(X)
	if err != nil {
		return model.Fit{}, fmt.Errorf("score statistical energy: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return model.Fit{}, err
	}

	rm, search, err := ridge.Search(X, y, cfg.Ridge)
	if err != nil {
		return model.Fit{}, fmt.Errorf("fit ridge model: %w", err)
	}
	r, err := rm.Predict(X)
	if err != nil {
		return model.Fit{}, fmt.Errorf("ridge predictions: %w", err)
	}

	beta1, beta2, degenerate := Blend(s, r, y)
	if !finite(beta1) || !finite(beta2) {
		return model.Fit{}, &hferr.FitError{Reason: fmt.Sprintf("non-finite blend weights beta1=%v beta2=%v", beta1, beta2)}
	}

	fit := model.Fit{
		VersionedRecord: model.VersionedRecord{SchemaVersion: model.CurrentSchemaVersion, CodecVersion: model.CurrentCodecVersion},
		ID:              uuid.NewString(),
		Beta1:           beta1,
		Beta2:           beta2,
		Ridge: model.RidgeParams{
			Coefficients: rm.Coefficients(),
			Intercept:    rm.Intercept(),
			Alpha:        rm.Alpha(),
		},
		EnergyMask:     ext.Mask(),
		WildTypeEnergy: ext.Reference(),
		Width:          ext.Width(),
		TrainRows:      len(X),
		CVFolds:        search.Folds,
		CreatedAtUTC:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if degenerate != nil {
		fit.Degenerate = degenerate.Term
		cfg.logger().Warn("hybrid blend is rank deficient",
			"term", degenerate.Term,
			"reason", degenerate.Reason,
			"rows", len(X))
	}
	cfg.logger().Debug("hybrid model fitted",
		"fit_id", fit.ID,
		"beta1", beta1,
		"beta2", beta2,
		"alpha", rm.Alpha(),
		"cv_mse", search.MSE,
		"rows", len(X))
	return fit, nil
}

// Blend solves y ≈ b1*s + b2*r by least squares. When s or r is identically
// zero, or the two are collinear, the degenerate term's weight is zero and
// the returned FitError names it.
func Blend(s, r, y []float64) (b1, b2 float64, degenerate *hferr.FitError) {
	ss := floats.Dot(s, s)
	rr := floats.Dot(r, r)
	sy := floats.Dot(s, y)
	ry := floats.Dot(r, y)

	switch {
	case ss == 0 && rr == 0:
		return 0, 0, &hferr.FitError{Term: TermEnergy + "+" + TermRidge, Reason: "both predictors are identically zero"}
	case ss == 0:
		return 0, ry / rr, &hferr.FitError{Term: TermEnergy, Reason: "statistical energy is identically zero"}
	case rr == 0:
		return sy / ss, 0, &hferr.FitError{Term: TermRidge, Reason: "ridge prediction is identically zero"}
	}

	sr := floats.Dot(s, r)
	if 1-(sr*sr)/(ss*rr) < collinearTolerance {
		return sy / ss, 0, &hferr.FitError{Term: TermRidge, Reason: "ridge prediction is collinear with statistical energy"}
	}

	n := len(y)
	a := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		a.Set(i, 0, s[i])
		a.Set(i, 1, r[i])
	}
	var beta mat.Dense
	if err := beta.Solve(a, mat.NewDense(n, 1, append([]float64(nil), y...))); err != nil {
		// The collinearity guard above keeps the QR solve well conditioned;
		// fall back to the energy term alone if it still refuses.
		if _, ok := err.(mat.Condition); !ok {
			return sy / ss, 0, &hferr.FitError{Term: TermRidge, Reason: err.Error()}
		}
	}
	return beta.At(0, 0), beta.At(1, 0), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
