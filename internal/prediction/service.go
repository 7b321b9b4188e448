// Package prediction orchestrates validation, inference, explanation and
// auditing for single and batch requests.
package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kiranshivaraju/attrition/internal/audit"
	"github.com/kiranshivaraju/attrition/internal/cache"
	"github.com/kiranshivaraju/attrition/internal/explain"
	"github.com/kiranshivaraju/attrition/internal/metrics"
	"github.com/kiranshivaraju/attrition/internal/model"
	"github.com/kiranshivaraju/attrition/internal/validation"
	"github.com/kiranshivaraju/attrition/pkg/models"
)

// DefaultBatchMax is the largest batch accepted when none is configured.
const DefaultBatchMax = 100

// Model is the loaded pipeline as seen by the service.
type Model interface {
	model.Pipeline
	Version() string
	WillLeave(p float64) bool
	Metadata() *model.Metadata
}

// Explainer produces ranked attributions for a normalized record.
type Explainer interface {
	Explain(rec *models.EmployeeRecord) ([]models.FeatureAttribution, error)
}

// loaded is published once per successful Load and never mutated.
type loaded struct {
	model     Model
	explainer Explainer
}

// Service is safe for concurrent use. It is NOT_READY until a Load succeeds
// and stays READY afterwards, even if a later Load fails.
type Service struct {
	validator *validation.Validator
	current   atomic.Pointer[loaded]
	audit     *audit.Logger
	cache     cache.Cache
	cacheTTL  time.Duration
	flight    singleflight.Group
	batchMax  int
	log       *slog.Logger
}

type Option func(*Service)

func WithAuditLogger(l *audit.Logger) Option {
	return func(s *Service) { s.audit = l }
}

// WithCache enables the explanation cache. Cache failures never fail a call.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func WithBatchMax(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchMax = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func New(opts ...Option) *Service {
	s := &Service{
		validator: validation.New(),
		audit:     audit.Disabled(),
		batchMax:  DefaultBatchMax,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the pipeline artifact and its metadata and publishes them.
// On failure the previously loaded model, if any, stays in service.
func (s *Service) Load(pipelinePath, metadataPath string) error {
	m, err := model.Load(pipelinePath, metadataPath)
	if err != nil {
		if s.Ready() {
			s.log.Warn("model reload failed, keeping current model",
				"model_version", s.current.Load().model.Version(), "error", err)
		}
		return err
	}
	s.publish(m, explain.NewEngine(m))
	s.log.Info("model loaded", "model_version", m.Version(), "path", pipelinePath)
	return nil
}

func (s *Service) publish(m Model, ex Explainer) {
	s.current.Store(&loaded{model: m, explainer: ex})
}

func (s *Service) Ready() bool { return s.current.Load() != nil }

// Version returns the loaded model version, or "" when not ready.
func (s *Service) Version() string {
	if cur := s.current.Load(); cur != nil {
		return cur.model.Version()
	}
	return ""
}

func (s *Service) BatchMax() int { return s.batchMax }

// Info describes the loaded model.
func (s *Service) Info() (*ModelInfo, error) {
	cur := s.current.Load()
	if cur == nil {
		return nil, ErrModelNotLoaded
	}
	meta := cur.model.Metadata()
	return &ModelInfo{
		ModelVersion:       cur.model.Version(),
		TrainingDate:       meta.TrainingDate,
		PerformanceMetrics: meta.PerformanceMetrics(),
		FeaturesRequired:   meta.Features,
	}, nil
}

// Predict validates raw and scores it.
func (s *Service) Predict(ctx context.Context, raw json.RawMessage, meta RequestMeta) (*SingleResult, error) {
	start := time.Now()
	cur := s.current.Load()
	if cur == nil {
		return nil, s.fail(ErrModelNotLoaded)
	}

	rec, err := s.validator.Validate(raw)
	if err != nil {
		s.record(meta, raw, start, err, nil)
		return nil, s.fail(err)
	}

	pred, err := s.infer(cur, rec)
	if err != nil {
		s.log.Error("inference failed", "endpoint", meta.Endpoint, "employee_id", rec.EmployeeID, "error", err)
		s.record(meta, raw, start, err, nil)
		return nil, s.fail(err)
	}

	elapsed := time.Since(start)
	metrics.InferenceDuration.WithLabelValues(meta.Endpoint).Observe(elapsed.Seconds())
	s.record(meta, raw, start, nil, []models.AuditPrediction{auditPrediction(cur, rec, pred)})

	return &SingleResult{
		Prediction: pred,
		Metadata: Metadata{
			ModelVersion:     cur.model.Version(),
			PredictionTimeMs: elapsed.Milliseconds(),
			Timestamp:        time.Now().UTC(),
		},
	}, nil
}

// PredictBatch scores each record independently. The size limit is checked
// before any record is validated.
func (s *Service) PredictBatch(ctx context.Context, raws []json.RawMessage, meta RequestMeta) (*BatchResult, error) {
	start := time.Now()
	cur := s.current.Load()
	if cur == nil {
		return nil, s.fail(ErrModelNotLoaded)
	}

	payload := batchPayload(raws)
	if len(raws) > s.batchMax {
		err := fmt.Errorf("%w: %d records, limit is %d", ErrBatchLimitExceeded, len(raws), s.batchMax)
		s.record(meta, payload, start, err, nil)
		return nil, s.fail(err)
	}
	metrics.BatchSize.Observe(float64(len(raws)))

	items := make([]BatchItem, len(raws))
	var rows []models.AuditPrediction
	failed := 0
	for i, outcome := range s.validator.ValidateBatch(raws) {
		items[i].Index = i
		if outcome.Err != nil {
			items[i].EmployeeID = peekEmployeeID(raws[i])
			items[i].Error = itemError(outcome.Err)
			failed++
			continue
		}
		rec := outcome.Record
		items[i].EmployeeID = optional(rec.EmployeeID)

		pred, err := s.infer(cur, rec)
		if err != nil {
			s.log.Error("batch item inference failed", "index", i, "employee_id", rec.EmployeeID, "error", err)
			items[i].Error = itemError(err)
			failed++
			continue
		}
		items[i].Prediction = &pred
		rows = append(rows, auditPrediction(cur, rec, pred))
	}

	elapsed := time.Since(start)
	metrics.InferenceDuration.WithLabelValues(meta.Endpoint).Observe(elapsed.Seconds())
	s.record(meta, payload, start, nil, rows)

	return &BatchResult{
		Predictions: items,
		Metadata: BatchMetadata{
			TotalPredictions: len(items),
			Successful:       len(items) - failed,
			Failed:           failed,
			ModelVersion:     cur.model.Version(),
			PredictionTimeMs: elapsed.Milliseconds(),
			Timestamp:        time.Now().UTC(),
		},
	}, nil
}

// Explain validates raw and returns its top attributions. Identical
// concurrent requests share one computation; results are cached per model
// version when a cache is configured.
func (s *Service) Explain(ctx context.Context, raw json.RawMessage, meta RequestMeta) (*ExplainResult, error) {
	start := time.Now()
	cur := s.current.Load()
	if cur == nil {
		return nil, s.fail(ErrModelNotLoaded)
	}

	rec, err := s.validator.Validate(raw)
	if err != nil {
		s.record(meta, raw, start, err, nil)
		return nil, s.fail(err)
	}

	key := explanationKey(cur.model.Version(), rec)
	top, err := s.cachedExplanation(ctx, key, func() ([]models.FeatureAttribution, error) {
		return s.explain(cur, rec)
	})
	if err != nil {
		s.log.Error("explanation failed", "employee_id", rec.EmployeeID, "error", err)
		s.record(meta, raw, start, err, nil)
		return nil, s.fail(err)
	}

	elapsed := time.Since(start)
	metrics.InferenceDuration.WithLabelValues(meta.Endpoint).Observe(elapsed.Seconds())
	s.record(meta, raw, start, nil, nil)

	return &ExplainResult{
		TopFeatures: top,
		Metadata: ExplainMetadata{
			ModelVersion:      cur.model.Version(),
			ExplanationTimeMs: elapsed.Milliseconds(),
			Timestamp:         time.Now().UTC(),
		},
	}, nil
}

func (s *Service) cachedExplanation(ctx context.Context, key string,
	compute func() ([]models.FeatureAttribution, error)) ([]models.FeatureAttribution, error) {
	if s.cache != nil {
		var top []models.FeatureAttribution
		found, err := cache.GetJSON(ctx, s.cache, key, &top)
		switch {
		case err != nil:
			metrics.ExplanationCache.WithLabelValues("error").Inc()
			s.log.Warn("explanation cache read failed", "error", err)
		case found:
			metrics.ExplanationCache.WithLabelValues("hit").Inc()
			return top, nil
		default:
			metrics.ExplanationCache.WithLabelValues("miss").Inc()
		}
	}

	v, err, _ := s.flight.Do(key, func() (any, error) {
		top, err := compute()
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := cache.SetJSON(ctx, s.cache, key, top, s.cacheTTL); err != nil {
				metrics.ExplanationCache.WithLabelValues("error").Inc()
				s.log.Warn("explanation cache write failed", "error", err)
			}
		}
		return top, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.FeatureAttribution), nil
}

func (s *Service) explain(cur *loaded, rec *models.EmployeeRecord) (top []models.FeatureAttribution, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrInference, r)
		}
	}()
	top, err = cur.explainer.Explain(rec)
	if err != nil && !errors.Is(err, ErrExplainerUnavailable) {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	return top, err
}

// infer runs the pipeline for one record. Panics inside the pipeline are
// converted to ErrInference.
func (s *Service) infer(cur *loaded, rec *models.EmployeeRecord) (res models.PredictionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrInference, r)
		}
	}()

	p, err := cur.model.PredictProba(rec)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return res, fmt.Errorf("%w: probability %v out of range", ErrInference, p)
	}

	res = models.PredictionResult{
		WillLeave:        cur.model.WillLeave(p),
		ProbabilityLeave: p,
		ProbabilityStay:  1 - p,
		RiskLevel:        model.Tier(p),
	}
	metrics.Predictions.WithLabelValues(string(res.RiskLevel)).Inc()
	return res, nil
}

func (s *Service) fail(err error) error {
	metrics.PredictionErrors.WithLabelValues(ErrorCode(err)).Inc()
	return err
}

// record hands one entry to the audit logger. It never blocks.
func (s *Service) record(meta RequestMeta, body json.RawMessage, start time.Time, err error, preds []models.AuditPrediction) {
	if !s.audit.Enabled() {
		return
	}
	s.audit.Record(audit.Entry{
		Request: models.AuditRequest{
			Endpoint:       meta.Endpoint,
			RequestData:    auditBody(body),
			ClientIP:       optional(meta.ClientIP),
			UserAgent:      optional(meta.UserAgent),
			HTTPStatus:     StatusCode(err),
			ResponseTimeMs: int(time.Since(meta.startOr(start)).Milliseconds()),
		},
		Predictions: preds,
	})
}

func auditPrediction(cur *loaded, rec *models.EmployeeRecord, pred models.PredictionResult) models.AuditPrediction {
	return models.AuditPrediction{
		EmployeeID:       optional(rec.EmployeeID),
		AttritionProb:    pred.ProbabilityLeave,
		RiskLevel:        pred.RiskLevel.Storage(),
		ModelVersion:     cur.model.Version(),
		FeaturesSnapshot: rec.Snapshot(),
	}
}

// auditBody keeps request_data valid JSON even when the caller sent garbage.
func auditBody(body json.RawMessage) json.RawMessage {
	if json.Valid(body) {
		return body
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": string(body)})
	return wrapped
}

func batchPayload(raws []json.RawMessage) json.RawMessage {
	if raws == nil {
		raws = []json.RawMessage{}
	}
	items := make([]json.RawMessage, len(raws))
	for i, r := range raws {
		items[i] = auditBody(r)
	}
	data, _ := json.Marshal(map[string][]json.RawMessage{"employees": items})
	return data
}

func explanationKey(version string, rec *models.EmployeeRecord) string {
	features := *rec
	features.EmployeeID = ""
	data, _ := json.Marshal(&features)
	return cache.ExplanationKey(version, cache.Fingerprint(data))
}

// peekEmployeeID extracts employee_id from a record that failed validation.
func peekEmployeeID(raw json.RawMessage) *string {
	var probe struct {
		EmployeeID any `json:"employee_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil
	}
	switch v := probe.EmployeeID.(type) {
	case string:
		return optional(v)
	case float64:
		return optional(strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return nil
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
