package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/attrition/internal/audit"
	"github.com/kiranshivaraju/attrition/internal/model"
	"github.com/kiranshivaraju/attrition/pkg/models"
)

const (
	testPipeline = "../model/testdata/pipeline.json"
	testMetadata = "../model/testdata/feature_metadata.json"
)

var meta = RequestMeta{Endpoint: "/api/v1/predict", ClientIP: "10.0.0.1", UserAgent: "test"}

func fixture(t *testing.T) map[string]any {
	t.Helper()
	data, err := os.ReadFile("../model/testdata/employee.json")
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func highRisk(t *testing.T) map[string]any {
	rec := fixture(t)
	rec["employee_id"] = "EMP002"
	rec["heure_supplementaires"] = "Yes"
	rec["age"] = 25
	rec["satisfaction_employee_environnement"] = 1
	rec["revenu_mensuel"] = 2000
	return rec
}

func loadedService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	s := New(opts...)
	require.NoError(t, s.Load(testPipeline, testMetadata))
	return s
}

// stubModel scores every record with p and counts calls. A p below -1 panics.
type stubModel struct {
	p     float64
	calls atomic.Int32
}

func (m *stubModel) PredictProba(*models.EmployeeRecord) (float64, error) {
	m.calls.Add(1)
	if m.p < -1 {
		panic("boom")
	}
	return m.p, nil
}

func (m *stubModel) Version() string           { return "stub_v1" }
func (m *stubModel) WillLeave(p float64) bool  { return p >= 0.5 }
func (m *stubModel) Metadata() *model.Metadata { return &model.Metadata{ModelVersion: "stub_v1"} }

type stubExplainer struct{ err error }

func (e stubExplainer) Explain(*models.EmployeeRecord) ([]models.FeatureAttribution, error) {
	return nil, e.err
}

// recordingWriter captures audit entries and can be told to fail.
type recordingWriter struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (w *recordingWriter) CreateAuditRecord(_ context.Context, req *models.AuditRequest, preds []models.AuditPrediction) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.entries = append(w.entries, audit.Entry{Request: *req, Predictions: preds})
	return nil
}

func (w *recordingWriter) all() []audit.Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]audit.Entry(nil), w.entries...)
}

func drain(t *testing.T, l *audit.Logger) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Close(ctx))
}

// memCache is an in-memory cache.Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Ping(context.Context) error { return c.err }

func (c *memCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("not supported")
}

func TestService_NotLoaded(t *testing.T) {
	s := New()
	assert.False(t, s.Ready())
	assert.Empty(t, s.Version())

	_, err := s.Predict(context.Background(), raw(t, fixture(t)), meta)
	assert.ErrorIs(t, err, ErrModelNotLoaded)
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))

	_, err = s.PredictBatch(context.Background(), nil, meta)
	assert.ErrorIs(t, err, ErrModelNotLoaded)

	_, err = s.Explain(context.Background(), raw(t, fixture(t)), meta)
	assert.ErrorIs(t, err, ErrModelNotLoaded)

	_, err = s.Info()
	assert.ErrorIs(t, err, ErrModelNotLoaded)
}

func TestService_Load(t *testing.T) {
	s := New()
	err := s.Load("missing.json", testMetadata)
	assert.ErrorIs(t, err, model.ErrArtifactNotFound)
	assert.False(t, s.Ready())

	require.NoError(t, s.Load(testPipeline, testMetadata))
	assert.True(t, s.Ready())
	assert.Equal(t, "xgb_test_v1", s.Version())
}

func TestService_FailedReloadKeepsModel(t *testing.T) {
	s := loadedService(t)

	err := s.Load("missing.json", testMetadata)
	require.Error(t, err)
	assert.True(t, s.Ready())
	assert.Equal(t, "xgb_test_v1", s.Version())

	res, err := s.Predict(context.Background(), raw(t, fixture(t)), meta)
	require.NoError(t, err)
	assert.Equal(t, "xgb_test_v1", res.Metadata.ModelVersion)
}

func TestService_Info(t *testing.T) {
	s := loadedService(t)

	info, err := s.Info()
	require.NoError(t, err)
	assert.Equal(t, "xgb_test_v1", info.ModelVersion)
	assert.Equal(t, "2025-11-13T23:27:36", info.TrainingDate)
	assert.Len(t, info.FeaturesRequired.Numeric, 20)
	assert.Len(t, info.FeaturesRequired.Categorical, 6)
	assert.Equal(t, 0.834, info.PerformanceMetrics["roc_auc"])
}

func TestService_PredictFixture(t *testing.T) {
	s := loadedService(t)

	res, err := s.Predict(context.Background(), raw(t, fixture(t)), meta)
	require.NoError(t, err)

	p := res.Prediction
	assert.InDelta(t, model.Sigmoid(-1.4), p.ProbabilityLeave, 1e-12)
	assert.InDelta(t, 1.0, p.ProbabilityLeave+p.ProbabilityStay, 1e-12)
	assert.False(t, p.WillLeave)
	assert.Equal(t, models.RiskLow, p.RiskLevel)
	assert.Equal(t, "xgb_test_v1", res.Metadata.ModelVersion)
	assert.Equal(t, time.UTC, res.Metadata.Timestamp.Location())
	assert.GreaterOrEqual(t, res.Metadata.PredictionTimeMs, int64(0))
}

func TestService_PredictHighRisk(t *testing.T) {
	s := loadedService(t)

	res, err := s.Predict(context.Background(), raw(t, highRisk(t)), meta)
	require.NoError(t, err)
	assert.True(t, res.Prediction.WillLeave)
	assert.Equal(t, models.RiskHigh, res.Prediction.RiskLevel)
}

func TestService_PredictValidationError(t *testing.T) {
	s := loadedService(t)

	_, err := s.Predict(context.Background(), raw(t, map[string]any{"age": 17}), meta)
	require.Error(t, err)
	assert.Equal(t, CodeValidation, ErrorCode(err))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusCode(err))
}

func TestService_InferencePanic(t *testing.T) {
	s := New()
	s.publish(&stubModel{p: -2}, stubExplainer{})

	_, err := s.Predict(context.Background(), raw(t, fixture(t)), meta)
	assert.ErrorIs(t, err, ErrInference)
	assert.Equal(t, CodeInference, ErrorCode(err))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestService_ProbabilityOutOfRange(t *testing.T) {
	s := New()
	s.publish(&stubModel{p: 1.5}, stubExplainer{})

	_, err := s.Predict(context.Background(), raw(t, fixture(t)), meta)
	assert.ErrorIs(t, err, ErrInference)
}

func TestService_PredictBatch(t *testing.T) {
	s := loadedService(t)

	invalid := fixture(t)
	invalid["employee_id"] = "EMP003"
	invalid["age"] = 17

	res, err := s.PredictBatch(context.Background(), []json.RawMessage{
		raw(t, fixture(t)),
		raw(t, highRisk(t)),
		raw(t, invalid),
	}, meta)
	require.NoError(t, err)

	require.Len(t, res.Predictions, 3)
	assert.Equal(t, 3, res.Metadata.TotalPredictions)
	assert.Equal(t, 2, res.Metadata.Successful)
	assert.Equal(t, 1, res.Metadata.Failed)

	for i, item := range res.Predictions {
		assert.Equal(t, i, item.Index)
	}
	assert.Equal(t, "EMP001", *res.Predictions[0].EmployeeID)
	assert.Equal(t, models.RiskLow, res.Predictions[0].Prediction.RiskLevel)
	assert.Equal(t, "EMP002", *res.Predictions[1].EmployeeID)
	assert.Equal(t, models.RiskHigh, res.Predictions[1].Prediction.RiskLevel)

	failed := res.Predictions[2]
	assert.Nil(t, failed.Prediction)
	require.NotNil(t, failed.Error)
	assert.Equal(t, CodeValidation, failed.Error.Code)
	assert.Equal(t, "EMP003", *failed.EmployeeID)
}

func TestService_PredictBatchMatchesSingle(t *testing.T) {
	s := loadedService(t)
	records := []json.RawMessage{raw(t, fixture(t)), raw(t, highRisk(t))}

	batch, err := s.PredictBatch(context.Background(), records, meta)
	require.NoError(t, err)
	for i, r := range records {
		single, err := s.Predict(context.Background(), r, meta)
		require.NoError(t, err)
		assert.Equal(t, single.Prediction, *batch.Predictions[i].Prediction)
	}
}

func TestService_BatchLimit(t *testing.T) {
	stub := &stubModel{p: 0.2}
	s := New(WithBatchMax(3))
	s.publish(stub, stubExplainer{})

	records := func(n int) []json.RawMessage {
		out := make([]json.RawMessage, n)
		for i := range out {
			out[i] = raw(t, fixture(t))
		}
		return out
	}

	res, err := s.PredictBatch(context.Background(), records(0), meta)
	require.NoError(t, err)
	assert.Empty(t, res.Predictions)

	res, err = s.PredictBatch(context.Background(), records(3), meta)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Metadata.Successful)
	assert.Equal(t, int32(3), stub.calls.Load())

	_, err = s.PredictBatch(context.Background(), records(4), meta)
	assert.ErrorIs(t, err, ErrBatchLimitExceeded)
	assert.Equal(t, http.StatusRequestEntityTooLarge, StatusCode(err))
	assert.Equal(t, int32(3), stub.calls.Load(), "no record of an oversized batch is scored")
}

func TestService_DefaultBatchLimit(t *testing.T) {
	s := New()
	s.publish(&stubModel{p: 0.2}, stubExplainer{})
	assert.Equal(t, DefaultBatchMax, s.BatchMax())

	records := make([]json.RawMessage, DefaultBatchMax+1)
	for i := range records {
		records[i] = raw(t, fixture(t))
	}
	_, err := s.PredictBatch(context.Background(), records, meta)
	assert.ErrorIs(t, err, ErrBatchLimitExceeded)

	res, err := s.PredictBatch(context.Background(), records[:DefaultBatchMax], meta)
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchMax, res.Metadata.Successful)
}

func TestService_AuditDoesNotChangeResults(t *testing.T) {
	plain := loadedService(t)

	w := &recordingWriter{}
	logged := audit.New(w)
	withAudit := loadedService(t, WithAuditLogger(logged))

	failing := audit.New(&recordingWriter{err: errors.New("db down")})
	withBrokenAudit := loadedService(t, WithAuditLogger(failing))

	body := raw(t, highRisk(t))
	want, err := plain.Predict(context.Background(), body, meta)
	require.NoError(t, err)

	for _, s := range []*Service{withAudit, withBrokenAudit} {
		got, err := s.Predict(context.Background(), body, meta)
		require.NoError(t, err)
		assert.Equal(t, want.Prediction, got.Prediction)
	}

	drain(t, logged)
	drain(t, failing)
	assert.Len(t, w.all(), 1)
}

func TestService_AuditRows(t *testing.T) {
	w := &recordingWriter{}
	logger := audit.New(w, audit.WithWorkers(1))
	s := loadedService(t, WithAuditLogger(logger))
	ctx := context.Background()

	_, err := s.Predict(ctx, raw(t, fixture(t)), meta)
	require.NoError(t, err)
	_, err = s.Predict(ctx, raw(t, map[string]any{"age": 17}), meta)
	require.Error(t, err)

	invalid := fixture(t)
	invalid["age"] = 99
	batchMeta := RequestMeta{Endpoint: "/api/v1/predict/batch"}
	_, err = s.PredictBatch(ctx, []json.RawMessage{raw(t, fixture(t)), raw(t, invalid)}, batchMeta)
	require.NoError(t, err)

	drain(t, logger)
	entries := w.all()
	require.Len(t, entries, 3)

	byStatus := map[int][]audit.Entry{}
	for _, e := range entries {
		byStatus[e.Request.HTTPStatus] = append(byStatus[e.Request.HTTPStatus], e)
	}

	require.Len(t, byStatus[http.StatusUnprocessableEntity], 1)
	assert.Empty(t, byStatus[http.StatusUnprocessableEntity][0].Predictions)

	require.Len(t, byStatus[http.StatusOK], 2)
	for _, e := range byStatus[http.StatusOK] {
		require.Len(t, e.Predictions, 1)
		p := e.Predictions[0]
		assert.Equal(t, "LOW", p.RiskLevel)
		assert.Equal(t, "xgb_test_v1", p.ModelVersion)
		assert.Equal(t, "EMP001", *p.EmployeeID)
		assert.Equal(t, "No", p.FeaturesSnapshot["heure_supplementaires"])
		assert.NotContains(t, p.FeaturesSnapshot, "employee_id")
		assert.True(t, json.Valid(e.Request.RequestData))
	}
}

func TestService_AuditKeepsInvalidBodyAsJSON(t *testing.T) {
	w := &recordingWriter{}
	logger := audit.New(w)
	s := loadedService(t, WithAuditLogger(logger))

	_, err := s.Predict(context.Background(), json.RawMessage(`{"age":`), meta)
	require.Error(t, err)

	drain(t, logger)
	entries := w.all()
	require.Len(t, entries, 1)
	assert.True(t, json.Valid(entries[0].Request.RequestData))
	assert.Equal(t, http.StatusUnprocessableEntity, entries[0].Request.HTTPStatus)
}

func TestService_OversizedBatchIsAudited(t *testing.T) {
	w := &recordingWriter{}
	logger := audit.New(w)
	s := New(WithAuditLogger(logger), WithBatchMax(1))
	s.publish(&stubModel{p: 0.2}, stubExplainer{})

	_, err := s.PredictBatch(context.Background(),
		[]json.RawMessage{raw(t, fixture(t)), raw(t, fixture(t))}, meta)
	require.ErrorIs(t, err, ErrBatchLimitExceeded)

	drain(t, logger)
	entries := w.all()
	require.Len(t, entries, 1)
	assert.Equal(t, http.StatusRequestEntityTooLarge, entries[0].Request.HTTPStatus)
	assert.Empty(t, entries[0].Predictions)
}

func TestService_Explain(t *testing.T) {
	s := loadedService(t)

	res, err := s.Explain(context.Background(), raw(t, fixture(t)), meta)
	require.NoError(t, err)
	require.Len(t, res.TopFeatures, 4)
	assert.Equal(t, "heure_supplementaires_Yes", res.TopFeatures[0].Feature)
	assert.InDelta(t, -0.42, res.TopFeatures[0].Value, 1e-9)
	assert.Equal(t, "xgb_test_v1", res.Metadata.ModelVersion)
}

func TestService_ExplainCache(t *testing.T) {
	c := newMemCache()
	s := loadedService(t, WithCache(c, time.Minute))
	ctx := context.Background()

	first, err := s.Explain(ctx, raw(t, fixture(t)), meta)
	require.NoError(t, err)
	require.Len(t, c.data, 1)

	other := fixture(t)
	other["employee_id"] = "EMP999"
	second, err := s.Explain(ctx, raw(t, other), meta)
	require.NoError(t, err)
	assert.Len(t, c.data, 1, "employee_id is not part of the cache key")
	assert.Equal(t, first.TopFeatures, second.TopFeatures)

	_, err = s.Explain(ctx, raw(t, highRisk(t)), meta)
	require.NoError(t, err)
	assert.Len(t, c.data, 2)
}

func TestService_ExplainCacheFailureIsIgnored(t *testing.T) {
	c := newMemCache()
	c.err = errors.New("redis down")
	s := loadedService(t, WithCache(c, time.Minute))

	res, err := s.Explain(context.Background(), raw(t, fixture(t)), meta)
	require.NoError(t, err)
	assert.Len(t, res.TopFeatures, 4)
}

func TestService_ExplainerUnavailable(t *testing.T) {
	s := New()
	s.publish(&stubModel{p: 0.2}, stubExplainer{err: ErrExplainerUnavailable})

	_, err := s.Explain(context.Background(), raw(t, fixture(t)), meta)
	assert.ErrorIs(t, err, ErrExplainerUnavailable)
	assert.Equal(t, CodeExplanationUnavailable, ErrorCode(err))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestService_ExplainAuditsRequestOnly(t *testing.T) {
	w := &recordingWriter{}
	logger := audit.New(w)
	s := loadedService(t, WithAuditLogger(logger))

	_, err := s.Explain(context.Background(), raw(t, fixture(t)), RequestMeta{Endpoint: "/api/v1/explain"})
	require.NoError(t, err)

	drain(t, logger)
	entries := w.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "/api/v1/explain", entries[0].Request.Endpoint)
	assert.Empty(t, entries[0].Predictions)
}

func TestService_ConcurrentPredict(t *testing.T) {
	s := loadedService(t)
	body := raw(t, fixture(t))
	want, err := s.Predict(context.Background(), body, meta)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.Predict(context.Background(), body, meta)
			assert.NoError(t, err)
			assert.Equal(t, want.Prediction, got.Prediction)
		}()
	}
	wg.Wait()
}
