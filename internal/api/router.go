package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/attrition/internal/api/middleware"
	"github.com/kiranshivaraju/attrition/internal/api/response"
)

// MaxBodyBytes caps every request body.
const MaxBodyBytes = 1 << 20

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler    http.HandlerFunc
	MetricsHandler   http.Handler
	ModelInfoHandler http.HandlerFunc
	PredictHandler   http.HandlerFunc
	BatchHandler     http.HandlerFunc
	ExplainHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(chimw.RequestSize(MaxBodyBytes))

	// Public
	r.Get("/health", orNotImplemented(deps.HealthHandler))
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(deps.Auth.Authenticate)
		}
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Get("/api/v1/model/info", orNotImplemented(deps.ModelInfoHandler))
		r.Post("/api/v1/predict", orNotImplemented(deps.PredictHandler))
		r.Post("/api/v1/predict/batch", orNotImplemented(deps.BatchHandler))
		r.Post("/api/v1/explain", orNotImplemented(deps.ExplainHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
