package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"hybridfit/internal/hferr"
	"hybridfit/internal/model"
)

const (
	DefaultLabelColumn = "fitness"
	DefaultIDColumn    = "variant"
)

// Options selects the label and id columns of the variant table. A zero
// Comma is sniffed from the header line.
type Options struct {
	LabelColumn string
	IDColumn    string
	Comma       rune
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.LabelColumn) == "" {
		o.LabelColumn = DefaultLabelColumn
	}
	if strings.TrimSpace(o.IDColumn) == "" {
		o.IDColumn = DefaultIDColumn
	}
	return o
}

// TableFile is the JSON form of an encoded variant table.
type TableFile struct {
	Info TableInfo  `json:"info"`
	Rows []TableRow `json:"rows"`
}

type TableInfo struct {
	Name    string   `json:"name,omitempty"`
	Columns []string `json:"columns,omitempty"`
}

type TableRow struct {
	ID      string    `json:"id,omitempty"`
	Inputs  []float64 `json:"inputs"`
	Targets []float64 `json:"targets"`
}

// Load reads both artifacts and returns the dataset with its wild type attached.
func Load(wildTypePath, datasetPath string, opts Options) (model.Dataset, error) {
	wt, err := LoadWildType(wildTypePath)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("load wild type: %w", err)
	}
	ds, err := LoadDataset(datasetPath, wt, opts)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("load dataset: %w", err)
	}
	return ds, nil
}

// LoadDataset reads the variant table and checks it against wt.
func LoadDataset(path string, wt model.WildType, opts Options) (model.Dataset, error) {
	if strings.TrimSpace(path) == "" {
		return model.Dataset{}, fmt.Errorf("dataset path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Dataset{}, err
	}
	var ds model.Dataset
	if strings.EqualFold(filepath.Ext(path), ".json") {
		ds, err = parseTableJSON(data, wt)
	} else {
		ds, err = ParseDelimited(bytes.NewReader(data), wt, opts)
	}
	if err != nil {
		return model.Dataset{}, withPath(err, path)
	}
	return ds, nil
}

// ParseDelimited reads a header plus one row per variant. The label column
// and the optional id column are removed; every other column is a feature and
// must line up with the wild-type encoding.
func ParseDelimited(in io.Reader, wt model.WildType, opts Options) (model.Dataset, error) {
	opts = opts.withDefaults()
	data, err := io.ReadAll(in)
	if err != nil {
		return model.Dataset{}, err
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.Comma = opts.Comma
	if reader.Comma == 0 {
		reader.Comma = sniffComma(data)
	}

	header, err := reader.Read()
	if err == io.EOF {
		return model.Dataset{}, hferr.Schema("dataset has no header")
	}
	if err != nil {
		return model.Dataset{}, fmt.Errorf("read dataset header: %w", err)
	}
	header = trimAll(header)

	labelIdx, idIdx := -1, -1
	for i, name := range header {
		switch {
		case strings.EqualFold(name, opts.LabelColumn):
			labelIdx = i
		case strings.EqualFold(name, opts.IDColumn):
			idIdx = i
		}
	}
	if labelIdx < 0 {
		return model.Dataset{}, &hferr.SchemaError{Column: opts.LabelColumn, Reason: "label column missing"}
	}

	featureIdx := make([]int, 0, len(header))
	columns := make([]string, 0, len(header))
	for i, name := range header {
		if i == labelIdx || i == idIdx {
			continue
		}
		featureIdx = append(featureIdx, i)
		columns = append(columns, name)
	}
	if err := checkColumns(columns, wt); err != nil {
		return model.Dataset{}, err
	}

	variants := make([]model.Variant, 0, 256)
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return model.Dataset{}, fmt.Errorf("read dataset row %d: %w", row, err)
		}
		if blankRecord(record) {
			continue
		}
		if len(record) != len(header) {
			return model.Dataset{}, &hferr.SchemaError{Row: row, Reason: fmt.Sprintf("expected %d fields, found %d", len(header), len(record))}
		}

		fitness, err := parseFinite(record[labelIdx])
		if err != nil {
			return model.Dataset{}, &hferr.SchemaError{Row: row, Column: header[labelIdx], Reason: "label is not numeric: " + err.Error()}
		}
		features := make([]float64, len(featureIdx))
		for j, idx := range featureIdx {
			v, err := parseFinite(record[idx])
			if err != nil {
				return model.Dataset{}, &hferr.SchemaError{Row: row, Column: header[idx], Reason: err.Error()}
			}
			features[j] = v
		}
		id := fmt.Sprintf("row-%d", len(variants)+1)
		if idIdx >= 0 && strings.TrimSpace(record[idIdx]) != "" {
			id = strings.TrimSpace(record[idIdx])
		}
		variants = append(variants, model.Variant{ID: id, Features: features, Fitness: fitness})
	}

	return model.Dataset{WildType: wt, Columns: columns, Variants: variants}, nil
}

func parseTableJSON(data []byte, wt model.WildType) (model.Dataset, error) {
	var table TableFile
	if err := json.Unmarshal(data, &table); err != nil {
		return model.Dataset{}, &hferr.SchemaError{Reason: fmt.Sprintf("decode table json: %v", err)}
	}
	columns := table.Info.Columns
	if len(columns) > 0 {
		if err := checkColumns(columns, wt); err != nil {
			return model.Dataset{}, err
		}
	} else {
		columns = defaultColumns(wt)
	}

	variants := make([]model.Variant, 0, len(table.Rows))
	for i, row := range table.Rows {
		if len(row.Inputs) != wt.Len() {
			return model.Dataset{}, &hferr.SchemaError{Row: i + 1, Reason: fmt.Sprintf("row has %d features, wild type has %d", len(row.Inputs), wt.Len())}
		}
		if len(row.Targets) != 1 {
			return model.Dataset{}, &hferr.SchemaError{Row: i + 1, Column: DefaultLabelColumn, Reason: fmt.Sprintf("expected one target, found %d", len(row.Targets))}
		}
		if !finite(row.Targets[0]) {
			return model.Dataset{}, &hferr.SchemaError{Row: i + 1, Column: DefaultLabelColumn, Reason: "label is not finite"}
		}
		for j, v := range row.Inputs {
			if !finite(v) {
				return model.Dataset{}, &hferr.SchemaError{Row: i + 1, Column: columns[j], Reason: "value is not finite"}
			}
		}
		id := row.ID
		if id == "" {
			id = fmt.Sprintf("row-%d", i+1)
		}
		variants = append(variants, model.Variant{
			ID:       id,
			Features: append([]float64(nil), row.Inputs...),
			Fitness:  row.Targets[0],
		})
	}
	return model.Dataset{WildType: wt, Columns: columns, Variants: variants}, nil
}

// WriteTableFile stores ds in the JSON table form read by LoadDataset.
func WriteTableFile(path string, ds model.Dataset) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("table file path is required")
	}
	table := TableFile{
		Info: TableInfo{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), Columns: ds.Columns},
		Rows: make([]TableRow, 0, len(ds.Variants)),
	}
	for _, v := range ds.Variants {
		table.Rows = append(table.Rows, TableRow{ID: v.ID, Inputs: v.Features, Targets: []float64{v.Fitness}})
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func checkColumns(columns []string, wt model.WildType) error {
	if len(columns) != wt.Len() {
		return hferr.Schema("dataset has %d feature columns, wild-type encoding has %d", len(columns), wt.Len())
	}
	for i, name := range wt.Names {
		if !strings.EqualFold(name, columns[i]) {
			return &hferr.SchemaError{Column: columns[i], Reason: fmt.Sprintf("feature column %d does not match wild-type dimension %q", i, name)}
		}
	}
	return nil
}

func defaultColumns(wt model.WildType) []string {
	if len(wt.Names) > 0 {
		return append([]string(nil), wt.Names...)
	}
	out := make([]string, wt.Len())
	for i := range out {
		out[i] = fmt.Sprintf("x%d", i)
	}
	return out
}

func sniffComma(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	switch {
	case bytes.ContainsRune(line, '\t'):
		return '\t'
	case bytes.ContainsRune(line, ';') && !bytes.ContainsRune(line, ','):
		return ';'
	default:
		return ','
	}
}

func withPath(err error, path string) error {
	var schemaErr *hferr.SchemaError
	if errors.As(err, &schemaErr) && schemaErr.Path == "" {
		schemaErr.Path = path
	}
	return err
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, raw := range fields {
		v, err := parseFinite(raw)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseFinite(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if !finite(v) {
		return 0, fmt.Errorf("value %q is not finite", raw)
	}
	return v, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func trimAll(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
