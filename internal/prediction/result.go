package prediction

import (
	"errors"
	"time"

	"github.com/kiranshivaraju/attrition/internal/model"
	"github.com/kiranshivaraju/attrition/internal/validation"
	"github.com/kiranshivaraju/attrition/pkg/models"
)

// RequestMeta carries the transport details recorded in the audit log.
type RequestMeta struct {
	Endpoint  string
	ClientIP  string
	UserAgent string
	// Start is when the transport received the request. Zero means the
	// service call start is used.
	Start time.Time
}

func (m RequestMeta) startOr(t time.Time) time.Time {
	if m.Start.IsZero() {
		return t
	}
	return m.Start
}

type Metadata struct {
	ModelVersion     string    `json:"model_version"`
	PredictionTimeMs int64     `json:"prediction_time_ms"`
	Timestamp        time.Time `json:"timestamp"`
}

type SingleResult struct {
	Prediction models.PredictionResult `json:"prediction"`
	Metadata   Metadata                `json:"metadata"`
}

// ItemError is the per-record failure inside a batch response.
type ItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// BatchItem holds exactly one of Prediction or Error.
type BatchItem struct {
	Index      int                      `json:"index"`
	EmployeeID *string                  `json:"employee_id"`
	Prediction *models.PredictionResult `json:"prediction,omitempty"`
	Error      *ItemError               `json:"error,omitempty"`
}

type BatchMetadata struct {
	TotalPredictions int       `json:"total_predictions"`
	Successful       int       `json:"successful"`
	Failed           int       `json:"failed"`
	ModelVersion     string    `json:"model_version"`
	PredictionTimeMs int64     `json:"prediction_time_ms"`
	Timestamp        time.Time `json:"timestamp"`
}

type BatchResult struct {
	Predictions []BatchItem   `json:"predictions"`
	Metadata    BatchMetadata `json:"metadata"`
}

type ExplainMetadata struct {
	ModelVersion      string    `json:"model_version"`
	ExplanationTimeMs int64     `json:"explanation_time_ms"`
	Timestamp         time.Time `json:"timestamp"`
}

type ExplainResult struct {
	TopFeatures []models.FeatureAttribution `json:"top_features"`
	Metadata    ExplainMetadata             `json:"metadata"`
}

type ModelInfo struct {
	ModelVersion       string             `json:"model_version"`
	TrainingDate       string             `json:"training_date"`
	PerformanceMetrics map[string]float64 `json:"performance_metrics"`
	FeaturesRequired   model.FeatureOrder `json:"features_required"`
}

func itemError(err error) *ItemError {
	ie := &ItemError{Code: ErrorCode(err), Message: err.Error()}
	var verr *validation.ValidationError
	if errors.As(err, &verr) {
		ie.Message = "record failed validation"
		ie.Details = verr.Fields
	}
	return ie
}
