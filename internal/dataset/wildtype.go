package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hybridfit/internal/hferr"
	"hybridfit/internal/model"
)

// LoadWildType reads the wild-type encoding artifact. Delimited text files
// hold an optional header row followed by one numeric row, or one value per
// line. JSON files hold {"names": [...], "encoding": [...]}.
func LoadWildType(path string) (model.WildType, error) {
	if strings.TrimSpace(path) == "" {
		return model.WildType{}, fmt.Errorf("wild-type encoding path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.WildType{}, err
	}
	var wt model.WildType
	if strings.EqualFold(filepath.Ext(path), ".json") {
		wt, err = parseWildTypeJSON(data)
	} else {
		wt, err = parseWildTypeText(data)
	}
	if err != nil {
		return model.WildType{}, withPath(err, path)
	}
	return wt, nil
}

func parseWildTypeJSON(data []byte) (model.WildType, error) {
	var wt model.WildType
	if err := json.Unmarshal(data, &wt); err != nil {
		return model.WildType{}, &hferr.SchemaError{Reason: fmt.Sprintf("decode wild-type json: %v", err)}
	}
	return validateWildType(wt)
}

func parseWildTypeText(data []byte) (model.WildType, error) {
	var records [][]string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		records = append(records, splitFields(line))
	}
	if err := scanner.Err(); err != nil {
		return model.WildType{}, err
	}
	if len(records) == 0 {
		return model.WildType{}, hferr.Schema("wild-type encoding is empty")
	}

	var names []string
	if _, err := parseFloats(records[0]); err != nil {
		names = trimAll(records[0])
		records = records[1:]
	}

	var encoding []float64
	switch {
	case len(records) == 1:
		values, err := parseFloats(records[0])
		if err != nil {
			return model.WildType{}, hferr.Schema("wild-type encoding: %v", err)
		}
		encoding = values
	case len(records) > 1:
		encoding = make([]float64, 0, len(records))
		for i, record := range records {
			if len(record) != 1 {
				return model.WildType{}, hferr.Schema("wild-type encoding must be a single row, found %d rows", len(records))
			}
			values, err := parseFloats(record)
			if err != nil {
				return model.WildType{}, hferr.Schema("wild-type encoding line %d: %v", i+1, err)
			}
			encoding = append(encoding, values[0])
		}
	}
	return validateWildType(model.WildType{Names: names, Encoding: encoding})
}

func validateWildType(wt model.WildType) (model.WildType, error) {
	if len(wt.Encoding) == 0 {
		return model.WildType{}, hferr.Schema("wild-type encoding has no values")
	}
	if len(wt.Names) > 0 && len(wt.Names) != len(wt.Encoding) {
		return model.WildType{}, hferr.Schema("wild-type header has %d names for %d values", len(wt.Names), len(wt.Encoding))
	}
	for i, v := range wt.Encoding {
		if !finite(v) {
			return model.WildType{}, hferr.Schema("wild-type value %d is not finite", i)
		}
	}
	return wt, nil
}

func splitFields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';' || r == '\t' || r == ' '
	})
}
