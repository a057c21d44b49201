package hybridfit

import (
	"hybridfit/internal/hferr"
	"hybridfit/internal/model"
)

type (
	SchemaError           = hferr.SchemaError
	InsufficientDataError = hferr.InsufficientDataError
	FitError              = hferr.FitError
	DegenerateFoldError   = hferr.DegenerateFoldError
)

var (
	ErrSchema           = hferr.ErrSchema
	ErrInsufficientData = hferr.ErrInsufficientData
	ErrFit              = hferr.ErrFit
	ErrDegenerateFold   = hferr.ErrDegenerateFold
	ErrInvalidRequest   = hferr.ErrInvalidRequest
)

type (
	Fit               = model.Fit
	Dataset           = model.Dataset
	Performance       = model.Performance
	RepeatScore       = model.RepeatScore
	EvaluationSummary = model.EvaluationSummary
)
