package model

import (
	"math"

	"github.com/kiranshivaraju/attrition/pkg/models"
)

// Tier cut points. Documented, not learned.
const (
	MediumRiskThreshold = 0.4
	HighRiskThreshold   = 0.6
)

// Tier maps a leave probability to a risk level. NaN maps to high.
func Tier(p float64) models.RiskLevel {
	switch {
	case math.IsNaN(p):
		return models.RiskHigh
	case p < MediumRiskThreshold:
		return models.RiskLow
	case p < HighRiskThreshold:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}
