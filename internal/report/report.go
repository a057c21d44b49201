package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"hybridfit/internal/model"
	"hybridfit/internal/storage"
)

const (
	evaluationFile = "evaluation.json"
	scoresFile     = "scores.csv"
	indexFile      = "evaluation_index.json"
)

// WriteEvaluation writes <dir>/<id>/evaluation.json and scores.csv and
// records the evaluation in the directory index. It returns the run folder.
func WriteEvaluation(dir string, perf model.Performance) (string, error) {
	if perf.ID == "" {
		return "", fmt.Errorf("evaluation id is required")
	}

	runDir := filepath.Join(dir, perf.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	scores := make([]model.RepeatScore, len(perf.Scores))
	for i, s := range perf.Scores {
		if s.Err != nil && s.Error == "" {
			s.Error = s.Err.Error()
		}
		scores[i] = s
	}
	perf.Scores = scores

	if err := writeJSON(filepath.Join(runDir, evaluationFile), perf); err != nil {
		return "", err
	}
	if err := writeScores(filepath.Join(runDir, scoresFile), scores); err != nil {
		return "", err
	}
	if err := appendIndex(dir, model.EvaluationSummary{
		ID:           perf.ID,
		CreatedAtUTC: perf.CreatedAtUTC,
		Repeats:      perf.Repeats,
		Mean:         perf.Mean,
		Std:          perf.Std,
		Failed:       perf.Failed,
	}); err != nil {
		return "", err
	}
	return runDir, nil
}

// ReadEvaluation loads a report written by WriteEvaluation. Reports from
// another schema or codec version are rejected.
func ReadEvaluation(dir, id string) (model.Performance, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, id, evaluationFile))
	if err != nil {
		if os.IsNotExist(err) {
			return model.Performance{}, false, nil
		}
		return model.Performance{}, false, err
	}
	perf, err := storage.DecodePerformance(data)
	if err != nil {
		return model.Performance{}, false, fmt.Errorf("decode evaluation %s: %w", id, err)
	}
	return perf, true, nil
}

// ListIndex returns the indexed evaluations newest first. Equal timestamps
// prefer the later append.
func ListIndex(dir string) ([]model.EvaluationSummary, error) {
	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []model.EvaluationSummary{}, nil
		}
		return nil, err
	}

	var entries []model.EvaluationSummary
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := entries[order[i]], entries[order[j]]
		if a.CreatedAtUTC == b.CreatedAtUTC {
			return order[i] > order[j]
		}
		return a.CreatedAtUTC > b.CreatedAtUTC
	})

	sorted := make([]model.EvaluationSummary, 0, len(entries))
	for _, idx := range order {
		sorted = append(sorted, entries[idx])
	}
	return sorted, nil
}

// WritePredictions writes one row per variant. measured may be nil when the
// true fitness is unknown; the column is then omitted.
func WritePredictions(path string, ids []string, predicted, measured []float64) error {
	if len(ids) != len(predicted) {
		return fmt.Errorf("predictions: %d ids for %d values", len(ids), len(predicted))
	}
	if measured != nil && len(measured) != len(predicted) {
		return fmt.Errorf("predictions: %d measured values for %d predictions", len(measured), len(predicted))
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	header := []string{"variant", "predicted"}
	if measured != nil {
		header = append(header, "measured")
	}
	return writeCSV(file, header, len(ids), func(i int) []string {
		row := []string{ids[i], formatFloat(predicted[i])}
		if measured != nil {
			row = append(row, formatFloat(measured[i]))
		}
		return row
	})
}

func writeScores(path string, scores []model.RepeatScore) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	header := []string{"repeat", "seed", "train_rows", "test_rows", "spearman", "beta1", "beta2", "alpha", "error"}
	return writeCSV(file, header, len(scores), func(i int) []string {
		s := scores[i]
		return []string{
			strconv.Itoa(s.Repeat),
			strconv.FormatInt(s.Seed, 10),
			strconv.Itoa(s.TrainRows),
			strconv.Itoa(s.TestRows),
			formatFloat(s.Spearman),
			formatFloat(s.Beta1),
			formatFloat(s.Beta2),
			formatFloat(s.Alpha),
			s.Error,
		}
	})
}

func writeCSV(w io.Writer, header []string, n int, row func(int) []string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := writer.Write(row(i)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func appendIndex(dir string, entry model.EvaluationSummary) error {
	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	var index []model.EvaluationSummary
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &index); err != nil {
			return err
		}
	case !os.IsNotExist(err):
		return err
	}

	for i := range index {
		if index[i].ID == entry.ID {
			index[i] = entry
			return writeJSON(filepath.Join(dir, indexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(dir, indexFile), index)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
