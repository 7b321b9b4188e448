package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditRequest is one logged API call. It owns zero or more AuditPredictions
// and is immutable once written.
type AuditRequest struct {
	ID             uuid.UUID       `db:"id"               json:"id"`
	CreatedAt      time.Time       `db:"created_at"       json:"created_at"`
	Endpoint       string          `db:"endpoint"         json:"endpoint"`
	RequestData    json.RawMessage `db:"request_data"     json:"request_data"`
	ClientIP       *string         `db:"client_ip"        json:"client_ip,omitempty"`
	UserAgent      *string         `db:"user_agent"       json:"user_agent,omitempty"`
	HTTPStatus     int             `db:"http_status"      json:"http_status"`
	ResponseTimeMs int             `db:"response_time_ms" json:"response_time_ms"`
}

// AuditPrediction is one logged prediction belonging to an AuditRequest.
type AuditPrediction struct {
	ID               uuid.UUID      `db:"id"                json:"id"`
	RequestID        uuid.UUID      `db:"request_id"        json:"request_id"`
	PredictionDate   time.Time      `db:"prediction_date"   json:"prediction_date"`
	EmployeeID       *string        `db:"employee_id"       json:"employee_id,omitempty"`
	AttritionProb    float64        `db:"attrition_prob"    json:"attrition_prob"`
	RiskLevel        string         `db:"risk_level"        json:"risk_level"`
	ModelVersion     string         `db:"model_version"     json:"model_version"`
	FeaturesSnapshot map[string]any `db:"features_snapshot" json:"features_snapshot,omitempty"`
}
