// Package explain computes per-feature SHAP attributions for the loaded tree
// ensemble and ranks them for display.
package explain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kiranshivaraju/attrition/internal/model"
	"github.com/kiranshivaraju/attrition/pkg/models"
)

// TopN is the number of attributions returned by Explain.
const TopN = 5

// coverTolerance bounds the relative gap between a node's cover and the sum
// of its children's covers.
const coverTolerance = 1e-6

// ErrExplainerUnavailable means no explainer could be built for the loaded
// pipeline. It is distinct from an explanation in which no feature matters.
var ErrExplainerUnavailable = errors.New("explainer unavailable")

// Explainer computes exact TreeSHAP values in margin (log-odds) space.
type Explainer struct {
	model    *model.Model
	booster  *model.Booster
	features []string
	expected float64
}

// NewExplainer binds an explainer to a loaded model. It fails with
// ErrExplainerUnavailable when the trees lack usable cover statistics.
func NewExplainer(m *model.Model) (*Explainer, error) {
	b := m.Booster()
	expected := b.BaseScore
	for i := range b.Trees {
		if err := checkCovers(&b.Trees[i]); err != nil {
			return nil, fmt.Errorf("%w: tree %d: %v", ErrExplainerUnavailable, i, err)
		}
		expected += expectedValue(&b.Trees[i], 0)
	}
	return &Explainer{
		model:    m,
		booster:  b,
		features: m.EncodedFeatures(),
		expected: expected,
	}, nil
}

func checkCovers(t *model.Tree) error {
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if !(n.Cover > 0) {
			return fmt.Errorf("node %d has cover %v", i, n.Cover)
		}
		if n.IsLeaf() {
			continue
		}
		sum := t.Nodes[n.Left].Cover + t.Nodes[n.Right].Cover
		if math.Abs(sum-n.Cover) > coverTolerance*n.Cover {
			return fmt.Errorf("node %d cover %v, children sum to %v", i, n.Cover, sum)
		}
	}
	return nil
}

// ExpectedValue is the model's mean margin over the training data. SHAP
// values of any row sum to that row's margin minus ExpectedValue.
func (e *Explainer) ExpectedValue() float64 { return e.expected }

// Features returns the encoded feature names that ShapValues indexes.
func (e *Explainer) Features() []string { return e.features }

// ShapValues returns one attribution per encoded feature for the encoded row x.
func (e *Explainer) ShapValues(x []float64) []float64 {
	phi := make([]float64, len(e.features))
	for i := range e.booster.Trees {
		treeShap(&e.booster.Trees[i], x, phi)
	}
	return phi
}

// Explain encodes rec and returns its TopN attributions.
func (e *Explainer) Explain(rec *models.EmployeeRecord) ([]models.FeatureAttribution, error) {
	x, err := e.model.Encode(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return Rank(e.features, e.ShapValues(x), TopN), nil
}

// Rank orders attributions by absolute value, largest first, keeping encoding
// order among ties, and truncates to n. Zero attributions are dropped.
func Rank(features []string, values []float64, n int) []models.FeatureAttribution {
	out := make([]models.FeatureAttribution, 0, len(values))
	for i, v := range values {
		if v == 0 || math.IsNaN(v) {
			continue
		}
		impact := models.ImpactIncreases
		if v < 0 {
			impact = models.ImpactDecreases
		}
		out = append(out, models.FeatureAttribution{Feature: features[i], Value: v, Impact: impact})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Value) > math.Abs(out[j].Value)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Engine builds its Explainer lazily on first use. Concurrent first callers
// share a single construction.
type Engine struct {
	model *model.Model
	build func(*model.Model) (*Explainer, error)

	once      sync.Once
	explainer *Explainer
	err       error
}

func NewEngine(m *model.Model) *Engine {
	return &Engine{model: m, build: NewExplainer}
}

// Explainer returns the shared explainer, building it if needed.
func (g *Engine) Explainer() (*Explainer, error) {
	g.once.Do(func() {
		g.explainer, g.err = g.build(g.model)
	})
	return g.explainer, g.err
}

func (g *Engine) Explain(rec *models.EmployeeRecord) ([]models.FeatureAttribution, error) {
	ex, err := g.Explainer()
	if err != nil {
		return nil, err
	}
	return ex.Explain(rec)
}
