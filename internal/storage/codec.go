package storage

import (
	"encoding/json"
	"errors"

	"hybridfit/internal/model"
)

const (
	CurrentSchemaVersion = model.CurrentSchemaVersion
	CurrentCodecVersion  = model.CurrentCodecVersion
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeFit(f model.Fit) ([]byte, error) {
	return json.Marshal(f)
}

func DecodeFit(data []byte) (model.Fit, error) {
	var fit model.Fit
	if err := json.Unmarshal(data, &fit); err != nil {
		return model.Fit{}, err
	}
	if err := checkVersion(fit.VersionedRecord); err != nil {
		return model.Fit{}, err
	}
	return fit, nil
}

func EncodePerformance(p model.Performance) ([]byte, error) {
	scores := make([]model.RepeatScore, len(p.Scores))
	for i, s := range p.Scores {
		if s.Err != nil && s.Error == "" {
			s.Error = s.Err.Error()
		}
		scores[i] = s
	}
	p.Scores = scores
	return json.Marshal(p)
}

func DecodePerformance(data []byte) (model.Performance, error) {
	var perf model.Performance
	if err := json.Unmarshal(data, &perf); err != nil {
		return model.Performance{}, err
	}
	if err := checkVersion(perf.VersionedRecord); err != nil {
		return model.Performance{}, err
	}
	return perf, nil
}

func summarize(p model.Performance) model.EvaluationSummary {
	return model.EvaluationSummary{
		ID:           p.ID,
		CreatedAtUTC: p.CreatedAtUTC,
		Repeats:      p.Repeats,
		Mean:         p.Mean,
		Std:          p.Std,
		Failed:       p.Failed,
	}
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
