package hybrid

import (
	"fmt"

	"hybridfit/internal/energy"
	"hybridfit/internal/hferr"
	"hybridfit/internal/model"
	"hybridfit/internal/ridge"
)

// Extractor rebuilds the statistical-energy extractor stored in fit.
func Extractor(fit model.Fit) energy.Extractor {
	return energy.FromReference(fit.Width, fit.EnergyMask, fit.WildTypeEnergy)
}

// RidgeModel rebuilds the ridge regression stored in fit.
func RidgeModel(fit model.Fit) ridge.Model {
	return ridge.FromParams(fit.Ridge.Coefficients, fit.Ridge.Intercept, fit.Ridge.Alpha)
}

func PredictRow(fit model.Fit, row []float64) (float64, error) {
	if len(row) != fit.Width {
		return 0, hferr.Schema("feature vector has %d values, model was fitted on %d", len(row), fit.Width)
	}
	s, err := Extractor(fit).Score(row)
	if err != nil {
		return 0, err
	}
	r, err := RidgeModel(fit).PredictRow(row)
	if err != nil {
		return 0, err
	}
	return fit.Beta1*s + fit.Beta2*r, nil
}

// Predict scores every row of X with fit. Rows need not come from the
// population the model was fitted on, only share its encoding.
func Predict(fit model.Fit, X [][]float64) ([]float64, error) {
	ext := Extractor(fit)
	rm := RidgeModel(fit)
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != fit.Width {
			return nil, &hferr.SchemaError{Row: i + 1, Reason: fmt.Sprintf("feature vector has %d values, model was fitted on %d", len(row), fit.Width)}
		}
		s, err := ext.Score(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		r, err := rm.PredictRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = fit.Beta1*s + fit.Beta2*r
	}
	return out, nil
}
