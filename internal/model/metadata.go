package model

import (
	"encoding/json"
	"math"
	"slices"
)

// FeatureOrder lists the raw input features in training order.
type FeatureOrder struct {
	Numeric     []string `json:"numeric"`
	Categorical []string `json:"categorical"`
}

func (f FeatureOrder) equal(o FeatureOrder) bool {
	return slices.Equal(f.Numeric, o.Numeric) && slices.Equal(f.Categorical, o.Categorical)
}

// Metadata is the companion document written next to the pipeline blob by
// the training job.
type Metadata struct {
	ModelVersion    string             `json:"model_version"`
	TrainingDate    string             `json:"training_date"`
	Features        FeatureOrder       `json:"features"`
	Dataset         json.RawMessage    `json:"dataset,omitempty"`
	Hyperparameters map[string]any     `json:"hyperparameters,omitempty"`
	PerformanceCV   map[string]float64 `json:"performance_cv"`
}

// performanceKeys maps reported metric names to their cross-validation keys.
var performanceKeys = []struct{ name, key string }{
	{"accuracy", "accuracy_mean"},
	{"precision", "precision_mean"},
	{"recall", "recall_mean"},
	{"f1_score", "f1_mean"},
	{"roc_auc", "roc_auc_mean"},
}

// PerformanceMetrics returns the mean cross-validation metrics rounded to
// three decimals. Metrics absent from the document are omitted.
func (m *Metadata) PerformanceMetrics() map[string]float64 {
	out := make(map[string]float64, len(performanceKeys))
	for _, pk := range performanceKeys {
		if v, ok := m.PerformanceCV[pk.key]; ok {
			out[pk.name] = math.Round(v*1000) / 1000
		}
	}
	return out
}
