package models

import "strings"

// RiskLevel is the discretized leave-probability tier.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Storage returns the upper-case form persisted in the predictions table.
func (l RiskLevel) Storage() string {
	return strings.ToUpper(string(l))
}

// PredictionResult is derived entirely from the pipeline's output probability.
type PredictionResult struct {
	WillLeave        bool      `json:"will_leave"`
	ProbabilityLeave float64   `json:"probability_leave"`
	ProbabilityStay  float64   `json:"probability_stay"`
	RiskLevel        RiskLevel `json:"risk_level"`
}

const (
	ImpactIncreases = "increases risk"
	ImpactDecreases = "decreases risk"
)

// FeatureAttribution is one ranked entry of an explanation.
// Value is a signed contribution to the leave log-odds.
type FeatureAttribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"shap_value"`
	Impact  string  `json:"impact"`
}
