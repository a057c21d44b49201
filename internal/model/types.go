package model

import "errors"

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// WildType is the feature encoding of the unmutated sequence. Names is empty
// when the artifact carried no header.
type WildType struct {
	Names    []string  `json:"names,omitempty"`
	Encoding []float64 `json:"encoding"`
}

func (w WildType) Len() int {
	return len(w.Encoding)
}

func (w WildType) Vector() []float64 {
	return append([]float64(nil), w.Encoding...)
}

type Variant struct {
	ID       string    `json:"id"`
	Features []float64 `json:"features"`
	Fitness  float64   `json:"fitness"`
}

// Dataset is the loaded, read-only variant table. Accessors hand out copies
// so fits and predictions can never write through to the loaded rows.
type Dataset struct {
	WildType WildType  `json:"wild_type"`
	Columns  []string  `json:"columns"`
	Variants []Variant `json:"variants"`
}

func (d Dataset) Len() int {
	return len(d.Variants)
}

func (d Dataset) Width() int {
	return d.WildType.Len()
}

func (d Dataset) Features() [][]float64 {
	out := make([][]float64, len(d.Variants))
	for i, v := range d.Variants {
		out[i] = append([]float64(nil), v.Features...)
	}
	return out
}

func (d Dataset) Labels() []float64 {
	out := make([]float64, len(d.Variants))
	for i, v := range d.Variants {
		out[i] = v.Fitness
	}
	return out
}

func (d Dataset) IDs() []string {
	out := make([]string, len(d.Variants))
	for i, v := range d.Variants {
		out[i] = v.ID
	}
	return out
}

// Subset returns the rows at indices, in the given order.
func (d Dataset) Subset(indices []int) Dataset {
	rows := make([]Variant, 0, len(indices))
	for _, idx := range indices {
		v := d.Variants[idx]
		rows = append(rows, Variant{
			ID:       v.ID,
			Features: append([]float64(nil), v.Features...),
			Fitness:  v.Fitness,
		})
	}
	return Dataset{
		WildType: WildType{
			Names:    append([]string(nil), d.WildType.Names...),
			Encoding: d.WildType.Vector(),
		},
		Columns:  append([]string(nil), d.Columns...),
		Variants: rows,
	}
}

// Split holds row indices of one train/test partition.
type Split struct {
	Seed  int64 `json:"seed"`
	Train []int `json:"train"`
	Test  []int `json:"test"`
}

type RidgeParams struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	Alpha        float64   `json:"alpha"`
}

// Fit is one fitted hybrid model: fitness = Beta1*energy + Beta2*ridge.
// EnergyMask and WildTypeEnergy pin down the statistical score so that
// predictions score rows exactly as the training rows were scored.
type Fit struct {
	VersionedRecord
	ID             string      `json:"id"`
	Beta1          float64     `json:"beta1"`
	Beta2          float64     `json:"beta2"`
	Ridge          RidgeParams `json:"ridge"`
	EnergyMask     []int       `json:"energy_mask,omitempty"`
	WildTypeEnergy float64     `json:"wild_type_energy"`
	Width          int         `json:"width"`
	TrainRows      int         `json:"train_rows"`
	CVFolds        int         `json:"cv_folds"`
	Degenerate     string      `json:"degenerate,omitempty"`
	CreatedAtUTC   string      `json:"created_at_utc,omitempty"`
}

func (f Fit) Alpha() float64 {
	return f.Ridge.Alpha
}

type RepeatScore struct {
	Repeat    int     `json:"repeat"`
	Seed      int64   `json:"seed"`
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
	Spearman  float64 `json:"spearman"`
	Beta1     float64 `json:"beta1"`
	Beta2     float64 `json:"beta2"`
	Alpha     float64 `json:"alpha"`
	Error     string  `json:"error,omitempty"`
	Err       error   `json:"-"`
}

func (r RepeatScore) OK() bool {
	return r.Err == nil && r.Error == ""
}

// Performance aggregates per-repeat Spearman scores. Mean and Std cover the
// succeeded repeats only; Std is the sample standard deviation.
type Performance struct {
	VersionedRecord
	ID           string        `json:"id"`
	CreatedAtUTC string        `json:"created_at_utc"`
	TrainRatio   float64       `json:"train_ratio"`
	Repeats      int           `json:"repeats"`
	Rows         int           `json:"rows"`
	Scores       []RepeatScore `json:"scores"`
	Mean         float64       `json:"mean"`
	Std          float64       `json:"std"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
}

// Err joins the errors of failed repeats, or returns nil when all succeeded.
func (p Performance) Err() error {
	var errs []error
	for _, s := range p.Scores {
		switch {
		case s.Err != nil:
			errs = append(errs, s.Err)
		case s.Error != "":
			errs = append(errs, errors.New(s.Error))
		}
	}
	return errors.Join(errs...)
}

// EvaluationSummary is the listing row kept by stores.
type EvaluationSummary struct {
	ID           string  `json:"id"`
	CreatedAtUTC string  `json:"created_at_utc"`
	Repeats      int     `json:"repeats"`
	Mean         float64 `json:"mean"`
	Std          float64 `json:"std"`
	Failed       int     `json:"failed"`
}
