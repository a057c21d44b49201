package hybridfit

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadEvaluateRequest reads an EvaluateRequest from a JSON file. Unknown keys
// are ignored; missing keys keep their zero value and thus the defaults.
func LoadEvaluateRequest(path string) (EvaluateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EvaluateRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return EvaluateRequest{}, fmt.Errorf("decode %s: %w", path, err)
	}

	var req EvaluateRequest
	if v, ok := asFloat64(raw["train_ratio"]); ok {
		req.TrainRatio = v
	}
	if v, ok := asInt(raw["repeats"]); ok {
		req.Repeats = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := raw["seeds"]; ok {
		seeds, err := asInt64Slice(v)
		if err != nil {
			return EvaluateRequest{}, fmt.Errorf("seeds: %w", err)
		}
		req.Seeds = seeds
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if v, ok := raw["alphas"]; ok {
		alphas, err := asFloat64Slice(v)
		if err != nil {
			return EvaluateRequest{}, fmt.Errorf("alphas: %w", err)
		}
		req.Alphas = alphas
	}
	if v, ok := asInt(raw["folds"]); ok {
		req.Folds = v
	}
	if v, ok := asBool(raw["persist"]); ok {
		req.Persist = v
	}
	if v, ok := asBool(raw["write_report"]); ok {
		req.WriteReport = v
	}

	if err := validateRequest(req); err != nil {
		return EvaluateRequest{}, err
	}
	return req, nil
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func asInt64Slice(v any) ([]int64, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	out := make([]int64, 0, len(items))
	for i, item := range items {
		n, ok := asInt64(item)
		if !ok {
			return nil, fmt.Errorf("item %d: expected number, got %T", i, item)
		}
		out = append(out, n)
	}
	return out, nil
}

func asFloat64Slice(v any) ([]float64, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	out := make([]float64, 0, len(items))
	for i, item := range items {
		f, ok := asFloat64(item)
		if !ok {
			return nil, fmt.Errorf("item %d: expected number, got %T", i, item)
		}
		out = append(out, f)
	}
	return out, nil
}
