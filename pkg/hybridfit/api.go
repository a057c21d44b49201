// Package hybridfit is the programmatic surface for fitting, evaluating and
// applying hybrid statistical-energy / ridge fitness models.
package hybridfit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"

	"hybridfit/internal/dataset"
	"hybridfit/internal/energy"
	"hybridfit/internal/evaluate"
	"hybridfit/internal/hferr"
	"hybridfit/internal/hybrid"
	"hybridfit/internal/model"
	"hybridfit/internal/report"
	"hybridfit/internal/ridge"
	"hybridfit/internal/storage"
)

const (
	defaultReportsDir = "reports"
	defaultDBPath     = "hybridfit.db"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Options struct {
	StoreKind  string
	DBPath     string
	ReportsDir string
	Logger     *slog.Logger
}

type Client struct {
	store      storage.Store
	reportsDir string
	logger     *slog.Logger

	mu          sync.Mutex
	initialized bool
}

type LoadRequest struct {
	WildTypePath   string `validate:"required"`
	DatasetPath    string `validate:"required"`
	LabelColumn    string
	IDColumn       string
	EnergyPrefixes []string
}

// HybridModel is a loaded dataset together with its energy extractor. It is
// never mutated; fits and evaluations produce new values.
type HybridModel struct {
	client  *Client
	dataset model.Dataset
	energy  energy.Extractor
}

type EvaluateRequest struct {
	TrainRatio  float64   `validate:"gte=0,lt=1"`
	Repeats     int       `validate:"gte=0"`
	Seed        int64
	Seeds       []int64
	Workers     int       `validate:"gte=0"`
	Alphas      []float64 `validate:"omitempty,dive,gte=0"`
	Folds       int       `validate:"gte=0,ne=1"`
	Persist     bool
	WriteReport bool
}

type EvaluateSummary struct {
	EvaluationID string
	Mean         float64
	Std          float64
	Scores       []float64
	Succeeded    int
	Failed       int
	ReportDir    string
	Performance  model.Performance
}

// Err joins the errors of the failed repeats.
func (s EvaluateSummary) Err() error {
	return s.Performance.Err()
}

type FitRequest struct {
	Features [][]float64
	Labels   []float64
	Alphas   []float64 `validate:"omitempty,dive,gte=0"`
	Folds    int       `validate:"gte=0,ne=1"`
	Seed     int64
}

type FitResult struct {
	Fit model.Fit
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	reportsDir := opts.ReportsDir
	if reportsDir == "" {
		reportsDir = defaultReportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		reportsDir: reportsDir,
		logger:     logger,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureStore(ctx)
	return err
}

// Load reads the wild-type and dataset artifacts. Any schema problem fails
// the whole load; no partial model is returned.
func (c *Client) Load(ctx context.Context, req LoadRequest) (*HybridModel, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ds, err := dataset.Load(req.WildTypePath, req.DatasetPath, dataset.Options{
		LabelColumn: req.LabelColumn,
		IDColumn:    req.IDColumn,
	})
	if err != nil {
		return nil, err
	}

	prefixes := req.EnergyPrefixes
	if len(prefixes) == 0 {
		prefixes = energy.DefaultPrefixes
	}
	mask := energy.MaskFromColumns(ds.Columns, prefixes)
	ext, err := energy.NewExtractor(ds.WildType.Encoding, mask)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("dataset loaded",
		"dataset", req.DatasetPath,
		"rows", ds.Len(),
		"width", ds.Width(),
		"energy_columns", len(mask))
	return &HybridModel{client: c, dataset: ds, energy: ext}, nil
}

func (c *Client) SaveFit(ctx context.Context, fit model.Fit) error {
	store, err := c.ensureStore(ctx)
	if err != nil {
		return err
	}
	return store.SaveFit(ctx, fit)
}

func (c *Client) GetFit(ctx context.Context, id string) (model.Fit, bool, error) {
	store, err := c.ensureStore(ctx)
	if err != nil {
		return model.Fit{}, false, err
	}
	return store.GetFit(ctx, id)
}

func (c *Client) Evaluations(ctx context.Context, limit int) ([]model.EvaluationSummary, error) {
	store, err := c.ensureStore(ctx)
	if err != nil {
		return nil, err
	}
	return store.ListEvaluations(ctx, limit)
}

func (c *Client) GetEvaluation(ctx context.Context, id string) (model.Performance, bool, error) {
	store, err := c.ensureStore(ctx)
	if err != nil {
		return model.Performance{}, false, err
	}
	return store.GetEvaluation(ctx, id)
}

// Reports lists the evaluation reports written under the reports directory,
// newest first.
func (c *Client) Reports() ([]model.EvaluationSummary, error) {
	return report.ListIndex(c.reportsDir)
}

func (c *Client) ReadReport(id string) (model.Performance, bool, error) {
	return report.ReadEvaluation(c.reportsDir, id)
}

func (c *Client) ensureStore(ctx context.Context) (storage.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return c.store, nil
	}
	if err := c.store.Init(ctx); err != nil {
		return nil, err
	}
	c.initialized = true
	return c.store, nil
}

// Dataset returns a copy of the loaded dataset.
func (m *HybridModel) Dataset() model.Dataset {
	return m.dataset.Subset(allRows(m.dataset.Len()))
}

// Describe summarizes the loaded feature columns.
func (m *HybridModel) Describe() ([]dataset.ColumnStats, error) {
	return dataset.Describe(m.dataset)
}

// Evaluate runs repeated seeded train/test splits over the loaded dataset.
// Failed repeats are reported in the summary rather than as an error.
func (m *HybridModel) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateSummary, error) {
	if err := validateRequest(req); err != nil {
		return EvaluateSummary{}, err
	}

	perf, err := evaluate.Run(ctx, m.dataset, m.energy, evaluate.Config{
		TrainRatio: req.TrainRatio,
		Repeats:    req.Repeats,
		Seed:       req.Seed,
		Seeds:      req.Seeds,
		Workers:    req.Workers,
		Fit:        m.fitConfig(req.Alphas, req.Folds, req.Seed),
		Logger:     m.client.logger,
	})
	if err != nil {
		return EvaluateSummary{}, err
	}

	summary := EvaluateSummary{
		EvaluationID: perf.ID,
		Mean:         perf.Mean,
		Std:          perf.Std,
		Succeeded:    perf.Succeeded,
		Failed:       perf.Failed,
		Performance:  perf,
	}
	for _, s := range perf.Scores {
		if s.OK() {
			summary.Scores = append(summary.Scores, s.Spearman)
		}
	}

	if req.Persist {
		store, err := m.client.ensureStore(ctx)
		if err != nil {
			return EvaluateSummary{}, err
		}
		if err := store.SaveEvaluation(ctx, perf); err != nil {
			return EvaluateSummary{}, fmt.Errorf("persist evaluation %s: %w", perf.ID, err)
		}
	}
	if req.WriteReport {
		dir, err := report.WriteEvaluation(m.client.reportsDir, perf)
		if err != nil {
			return EvaluateSummary{}, fmt.Errorf("write evaluation report %s: %w", perf.ID, err)
		}
		summary.ReportDir = dir
	}
	return summary, nil
}

// Fit fits blending weights and the ridge model on an arbitrary
// features/labels pair scored against the loaded wild type.
func (m *HybridModel) Fit(ctx context.Context, req FitRequest) (FitResult, error) {
	if err := validateRequest(req); err != nil {
		return FitResult{}, err
	}
	fit, err := hybrid.FitWeights(ctx, req.Features, req.Labels, m.energy, m.fitConfig(req.Alphas, req.Folds, req.Seed))
	if err != nil {
		return FitResult{}, err
	}
	return FitResult{Fit: fit}, nil
}

// FitAll fits on every loaded row.
func (m *HybridModel) FitAll(ctx context.Context, alphas []float64, folds int) (FitResult, error) {
	return m.Fit(ctx, FitRequest{
		Features: m.dataset.Features(),
		Labels:   m.dataset.Labels(),
		Alphas:   alphas,
		Folds:    folds,
	})
}

// Predict applies fit to features. Rows from another population are fine as
// long as they share the wild-type width.
func (m *HybridModel) Predict(fit model.Fit, features [][]float64) ([]float64, error) {
	return hybrid.Predict(fit, features)
}

// ExportPredictions predicts every loaded row and writes predicted against
// measured fitness to path as CSV.
func (m *HybridModel) ExportPredictions(fit model.Fit, path string) error {
	predicted, err := hybrid.Predict(fit, m.dataset.Features())
	if err != nil {
		return err
	}
	return report.WritePredictions(path, m.dataset.IDs(), predicted, m.dataset.Labels())
}

// ExportTable writes the loaded rows as a JSON table that Load accepts as a
// dataset.
func (m *HybridModel) ExportTable(path string) error {
	return dataset.WriteTableFile(path, m.dataset)
}

func (m *HybridModel) fitConfig(alphas []float64, folds int, seed int64) hybrid.Config {
	return hybrid.Config{
		Ridge:  ridge.Config{Alphas: alphas, Folds: folds, Seed: seed},
		Logger: m.client.logger,
	}
}

func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", hferr.ErrInvalidRequest, err)
	}
	return nil
}

func allRows(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
