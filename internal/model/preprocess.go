package model

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/kiranshivaraju/attrition/pkg/models"
)

// Encoder one-hot encodes categorical features. Binary features keep only
// the column of their second level when DropBinary is set. Values outside the
// trained categories encode as all zeros.
type Encoder struct {
	Categories map[string][]string `json:"categories"`
	DropBinary bool                `json:"drop_binary"`
}

// columns returns the encoded column names for the categorical features in
// the given order.
func (e *Encoder) columns(order []string) []string {
	var out []string
	for _, feature := range order {
		for _, level := range e.levels(feature) {
			out = append(out, feature+"_"+level)
		}
	}
	return out
}

func (e *Encoder) levels(feature string) []string {
	cats := e.Categories[feature]
	if e.DropBinary && len(cats) == 2 {
		return cats[1:]
	}
	return cats
}

func (e *Encoder) encode(order []string, rec *models.EmployeeRecord, dst []float64) (int, error) {
	i := 0
	for _, feature := range order {
		value, ok := rec.Categorical(feature)
		if !ok {
			return 0, fmt.Errorf("encode %s: unknown categorical feature", feature)
		}
		for _, level := range e.levels(feature) {
			dst[i] = 0
			if level == value {
				dst[i] = 1
			}
			i++
		}
	}
	return i, nil
}

// Scaler standardizes numeric features with statistics fixed at training time.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *Scaler) validate(n int) error {
	if len(s.Mean) != n || len(s.Scale) != n {
		return fmt.Errorf("%w: scaler has %d means and %d scales for %d numeric features",
			ErrFeatureMismatch, len(s.Mean), len(s.Scale), n)
	}
	// Constant columns were left unscaled at training time.
	for i, v := range s.Scale {
		if v == 0 {
			s.Scale[i] = 1
		}
	}
	return nil
}

func (s *Scaler) transform(order []string, rec *models.EmployeeRecord, dst []float64) error {
	for i, feature := range order {
		v, ok := rec.Numeric(feature)
		if !ok {
			return fmt.Errorf("scale %s: unknown numeric feature", feature)
		}
		dst[i] = v
	}
	floats.Sub(dst, s.Mean)
	floats.Div(dst, s.Scale)
	return nil
}
