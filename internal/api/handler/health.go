package handler

import (
	"net/http"
	"time"

	"github.com/kiranshivaraju/attrition/internal/api/response"
)

// Readiness reports whether a model is loaded.
type Readiness interface {
	Ready() bool
	Version() string
}

type healthResponse struct {
	Status       string    `json:"status"`
	ModelLoaded  bool      `json:"model_loaded"`
	ModelVersion *string   `json:"model_version"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewHealthHandler returns an http.HandlerFunc for GET /health. It answers
// 503 until a model is loaded.
func NewHealthHandler(svc Readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC(),
		}
		if svc.Ready() {
			version := svc.Version()
			resp.Status = "healthy"
			resp.ModelLoaded = true
			resp.ModelVersion = &version
			response.JSON(w, resp)
			return
		}
		response.Status(w, http.StatusServiceUnavailable, resp)
	}
}
