package prediction

import (
	"errors"
	"net/http"

	"github.com/kiranshivaraju/attrition/internal/explain"
	"github.com/kiranshivaraju/attrition/internal/validation"
)

var (
	ErrModelNotLoaded       = errors.New("model not loaded")
	ErrInference            = errors.New("inference failed")
	ErrBatchLimitExceeded   = errors.New("batch limit exceeded")
	ErrExplainerUnavailable = explain.ErrExplainerUnavailable
)

// Error codes shared by HTTP responses, metrics and audit rows.
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeModelNotLoaded         = "MODEL_NOT_LOADED"
	CodeInference              = "INFERENCE_ERROR"
	CodeBatchLimitExceeded     = "BATCH_LIMIT_EXCEEDED"
	CodeExplanationUnavailable = "EXPLANATION_UNAVAILABLE"
	CodeInternal               = "INTERNAL_ERROR"
)

// StatusCode maps a service error to its HTTP status. nil maps to 200.
func StatusCode(err error) int {
	var verr *validation.ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrModelNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrBatchLimitExceeded):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode maps a service error to its stable code string.
func ErrorCode(err error) string {
	var verr *validation.ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return CodeValidation
	case errors.Is(err, ErrModelNotLoaded):
		return CodeModelNotLoaded
	case errors.Is(err, ErrBatchLimitExceeded):
		return CodeBatchLimitExceeded
	case errors.Is(err, ErrExplainerUnavailable):
		return CodeExplanationUnavailable
	case errors.Is(err, ErrInference):
		return CodeInference
	default:
		return CodeInternal
	}
}
