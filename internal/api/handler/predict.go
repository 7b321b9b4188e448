package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	mw "github.com/kiranshivaraju/attrition/internal/api/middleware"
	"github.com/kiranshivaraju/attrition/internal/api/response"
	"github.com/kiranshivaraju/attrition/internal/prediction"
	"github.com/kiranshivaraju/attrition/internal/validation"
)

// Predictor defines the prediction service the handlers depend on.
type Predictor interface {
	Predict(ctx context.Context, raw json.RawMessage, meta prediction.RequestMeta) (*prediction.SingleResult, error)
	PredictBatch(ctx context.Context, raws []json.RawMessage, meta prediction.RequestMeta) (*prediction.BatchResult, error)
	Explain(ctx context.Context, raw json.RawMessage, meta prediction.RequestMeta) (*prediction.ExplainResult, error)
	Info() (*prediction.ModelInfo, error)
}

// NewPredictHandler returns an http.HandlerFunc for POST /api/v1/predict.
func NewPredictHandler(svc Predictor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta := requestMeta(r)
		body, ok := readBody(w, r)
		if !ok {
			return
		}

		result, err := svc.Predict(r.Context(), body, meta)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, result)
	}
}

// NewBatchHandler returns an http.HandlerFunc for POST /api/v1/predict/batch.
func NewBatchHandler(svc Predictor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta := requestMeta(r)
		body, ok := readBody(w, r)
		if !ok {
			return
		}

		var req struct {
			Employees []json.RawMessage `json:"employees"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Employees == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "employees is required", nil)
			return
		}

		result, err := svc.PredictBatch(r.Context(), req.Employees, meta)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, result)
	}
}

// NewExplainHandler returns an http.HandlerFunc for POST /api/v1/explain.
func NewExplainHandler(svc Predictor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta := requestMeta(r)
		body, ok := readBody(w, r)
		if !ok {
			return
		}

		result, err := svc.Explain(r.Context(), body, meta)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, result)
	}
}

// NewModelInfoHandler returns an http.HandlerFunc for GET /api/v1/model/info.
func NewModelInfoHandler(svc Predictor) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		info, err := svc.Info()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, info)
	}
}

func requestMeta(r *http.Request) prediction.RequestMeta {
	return prediction.RequestMeta{
		Endpoint:  r.URL.Path,
		ClientIP:  mw.ClientIP(r),
		UserAgent: r.UserAgent(),
		Start:     time.Now(),
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err == nil {
		return body, true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.Error(w, http.StatusRequestEntityTooLarge, "INVALID_REQUEST", "Request body too large", nil)
		return nil, false
	}
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read request body", nil)
	return nil, false
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := prediction.StatusCode(err)
	code := prediction.ErrorCode(err)

	var verr *validation.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Error(w, status, code, "Invalid employee record", verr.Fields)
	case errors.Is(err, prediction.ErrModelNotLoaded):
		response.Error(w, status, code, "Model not loaded", nil)
	case errors.Is(err, prediction.ErrBatchLimitExceeded):
		response.Error(w, status, code, err.Error(), nil)
	case errors.Is(err, prediction.ErrExplainerUnavailable):
		response.Error(w, status, code, "Explanations are not available for the loaded model", nil)
	case errors.Is(err, prediction.ErrInference):
		response.Error(w, status, code, "Prediction failed", nil)
	default:
		response.Error(w, status, code, "An unexpected error occurred", nil)
	}
}
