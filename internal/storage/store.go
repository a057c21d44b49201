package storage

import (
	"context"

	"hybridfit/internal/model"
)

// Store persists fitted hybrid models and evaluation results.
type Store interface {
	Init(ctx context.Context) error
	SaveFit(ctx context.Context, fit model.Fit) error
	GetFit(ctx context.Context, id string) (model.Fit, bool, error)
	SaveEvaluation(ctx context.Context, perf model.Performance) error
	GetEvaluation(ctx context.Context, id string) (model.Performance, bool, error)
	// ListEvaluations returns summaries newest first; limit <= 0 means all.
	ListEvaluations(ctx context.Context, limit int) ([]model.EvaluationSummary, error)
}
