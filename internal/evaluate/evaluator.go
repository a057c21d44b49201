// Package evaluate estimates hybrid-model performance over repeated seeded
// train/test splits scored by Spearman rank correlation.
package evaluate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"hybridfit/internal/energy"
	"hybridfit/internal/hybrid"
	"hybridfit/internal/model"
)

// Config controls a repeated evaluation. Repeat i uses Seeds[i] when Seeds
// is set and Seed+i otherwise.
type Config struct {
	TrainRatio float64
	Repeats    int
	Seed       int64
	Seeds      []int64
	Workers    int
	Fit        hybrid.Config
	Logger     *slog.Logger
}

func (c Config) normalize() (Config, error) {
	if c.TrainRatio == 0 {
		c.TrainRatio = DefaultTrainRatio
	}
	if c.TrainRatio <= 0 || c.TrainRatio >= 1 || math.IsNaN(c.TrainRatio) {
		return Config{}, fmt.Errorf("train ratio must be in (0, 1), got %v", c.TrainRatio)
	}
	if len(c.Seeds) > 0 {
		if c.Repeats > 0 && c.Repeats != len(c.Seeds) {
			return Config{}, fmt.Errorf("repeats (%d) does not match number of seeds (%d)", c.Repeats, len(c.Seeds))
		}
		c.Repeats = len(c.Seeds)
	}
	if c.Repeats < 0 {
		return Config{}, fmt.Errorf("repeats must be non-negative, got %d", c.Repeats)
	}
	if c.Repeats == 0 {
		c.Repeats = 1
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Workers > c.Repeats {
		c.Workers = c.Repeats
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Fit.Logger == nil {
		c.Fit.Logger = c.Logger
	}
	return c, nil
}

func (c Config) seed(repeat int) int64 {
	if len(c.Seeds) > 0 {
		return c.Seeds[repeat]
	}
	return c.Seed + int64(repeat)
}

// Run evaluates ds over cfg.Repeats independent splits. A failing repeat is
// recorded in its RepeatScore and counted in Performance.Failed; Run itself
// only fails on invalid configuration or cancellation.
func Run(ctx context.Context, ds model.Dataset, ext energy.Extractor, cfg Config) (model.Performance, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := cfg.normalize()
	if err != nil {
		return model.Performance{}, err
	}

	type job struct {
		repeat int
		seed   int64
	}
	jobs := make(chan job)
	results := make(chan model.RepeatScore, cfg.Repeats)

	var wg sync.WaitGroup
	wg.Add(cfg.Workers)
	for w := 0; w < cfg.Workers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- model.RepeatScore{Repeat: j.repeat, Seed: j.seed, Err: err, Error: err.Error()}
					continue
				}
				results <- Repeat(ctx, ds, ext, j.repeat, j.seed, cfg.TrainRatio, cfg.Fit)
			}
		}()
	}
	for i := 0; i < cfg.Repeats; i++ {
		jobs <- job{repeat: i, seed: cfg.seed(i)}
	}
	close(jobs)

	wg.Wait()
	close(results)

	scores := make([]model.RepeatScore, cfg.Repeats)
	for res := range results {
		scores[res.Repeat] = res
	}
	if err := ctx.Err(); err != nil {
		return model.Performance{}, err
	}

	perf := model.Performance{
		VersionedRecord: model.VersionedRecord{SchemaVersion: model.CurrentSchemaVersion, CodecVersion: model.CurrentCodecVersion},
		ID:              uuid.NewString(),
		CreatedAtUTC:    time.Now().UTC().Format(time.RFC3339Nano),
		TrainRatio:      cfg.TrainRatio,
		Repeats:         cfg.Repeats,
		Rows:            ds.Len(),
		Scores:          scores,
	}
	perf.Mean, perf.Std, perf.Succeeded = Aggregate(scores)
	perf.Failed = cfg.Repeats - perf.Succeeded

	for _, s := range scores {
		if !s.OK() {
			cfg.Logger.Warn("evaluation repeat failed", "repeat", s.Repeat, "seed", s.Seed, "error", s.Error)
		}
	}
	cfg.Logger.Info("evaluation complete",
		"evaluation_id", perf.ID,
		"rows", perf.Rows,
		"repeats", perf.Repeats,
		"failed", perf.Failed,
		"spearman_mean", perf.Mean,
		"spearman_std", perf.Std)
	return perf, nil
}

// Repeat runs one split-fit-predict-score cycle.
func Repeat(ctx context.Context, ds model.Dataset, ext energy.Extractor, repeat int, seed int64, trainRatio float64, fitCfg hybrid.Config) model.RepeatScore {
	score := model.RepeatScore{Repeat: repeat, Seed: seed}
	fail := func(err error) model.RepeatScore {
		score.Err = err
		score.Error = err.Error()
		return score
	}

	split, err := SplitDataset(ds, trainRatio, seed)
	if err != nil {
		return fail(err)
	}
	train, test := ds.Subset(split.Train), ds.Subset(split.Test)
	score.TrainRows, score.TestRows = train.Len(), test.Len()

	fitCfg.Ridge.Seed = seed
	fit, err := hybrid.FitWeights(ctx, train.Features(), train.Labels(), ext, fitCfg)
	if err != nil {
		return fail(fmt.Errorf("repeat %d: %w", repeat, err))
	}
	score.Beta1, score.Beta2, score.Alpha = fit.Beta1, fit.Beta2, fit.Alpha()

	pred, err := hybrid.Predict(fit, test.Features())
	if err != nil {
		return fail(fmt.Errorf("repeat %d: %w", repeat, err))
	}
	rho, err := Spearman(pred, test.Labels())
	if err != nil {
		return fail(fmt.Errorf("repeat %d: %w", repeat, err))
	}
	score.Spearman = rho
	return score
}
