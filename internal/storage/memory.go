package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"hybridfit/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

// MemoryStore keeps encoded records so callers never share slices with the
// stored values.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	fits        map[string][]byte
	evaluations map[string][]byte
	summaries   map[string]model.EvaluationSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.fits = make(map[string][]byte)
	s.evaluations = make(map[string][]byte)
	s.summaries = make(map[string]model.EvaluationSummary)
	return nil
}

func (s *MemoryStore) SaveFit(_ context.Context, fit model.Fit) error {
	payload, err := EncodeFit(fit)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	s.fits[fit.ID] = payload
	return nil
}

func (s *MemoryStore) GetFit(_ context.Context, id string) (model.Fit, bool, error) {
	s.mu.RLock()
	payload, ok := s.fits[id]
	s.mu.RUnlock()
	if !ok {
		return model.Fit{}, false, nil
	}
	fit, err := DecodeFit(payload)
	if err != nil {
		return model.Fit{}, false, err
	}
	return fit, true, nil
}

func (s *MemoryStore) SaveEvaluation(_ context.Context, perf model.Performance) error {
	payload, err := EncodePerformance(perf)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errNotInitialized
	}
	s.evaluations[perf.ID] = payload
	s.summaries[perf.ID] = summarize(perf)
	return nil
}

func (s *MemoryStore) GetEvaluation(_ context.Context, id string) (model.Performance, bool, error) {
	s.mu.RLock()
	payload, ok := s.evaluations[id]
	s.mu.RUnlock()
	if !ok {
		return model.Performance{}, false, nil
	}
	perf, err := DecodePerformance(payload)
	if err != nil {
		return model.Performance{}, false, err
	}
	return perf, true, nil
}

func (s *MemoryStore) ListEvaluations(_ context.Context, limit int) ([]model.EvaluationSummary, error) {
	s.mu.RLock()
	out := make([]model.EvaluationSummary, 0, len(s.summaries))
	for _, summary := range s.summaries {
		out = append(out, summary)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtUTC != out[j].CreatedAtUTC {
			return out[i].CreatedAtUTC > out[j].CreatedAtUTC
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
