package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiranshivaraju/attrition/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Audit records ---

func (s *PostgresStore) CreateAuditRecord(ctx context.Context, req *models.AuditRequest, preds []models.AuditPrediction) error {
	requestData := req.RequestData
	if len(requestData) == 0 {
		requestData = json.RawMessage("{}")
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(
			`INSERT INTO api_requests (id, created_at, endpoint, request_data, client_ip, user_agent, http_status, response_time_ms)
			 VALUES ($1, COALESCE($2::timestamptz, now()), $3, $4, $5, $6, $7, $8)
			 RETURNING created_at`,
			req.ID, nullTime(req.CreatedAt), req.Endpoint, requestData, req.ClientIP, req.UserAgent, req.HTTPStatus, req.ResponseTimeMs)

		for _, p := range preds {
			var snapshot []byte
			if p.FeaturesSnapshot != nil {
				b, err := json.Marshal(p.FeaturesSnapshot)
				if err != nil {
					return fmt.Errorf("marshal features snapshot: %w", err)
				}
				snapshot = b
			}
			batch.Queue(
				`INSERT INTO predictions (id, request_id, prediction_date, employee_id, attrition_prob, risk_level, model_version, features_snapshot)
				 VALUES ($1, $2, COALESCE($3::timestamptz, now()), $4, $5, $6, $7, $8)`,
				p.ID, req.ID, nullTime(p.PredictionDate), p.EmployeeID, p.AttritionProb, p.RiskLevel, p.ModelVersion, snapshot)
		}

		br := tx.SendBatch(ctx, batch)
		if err := br.QueryRow().Scan(&req.CreatedAt); err != nil {
			br.Close()
			return err
		}
		return br.Close()
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create audit record: %w", err)
	}
	return nil
}

// nullTime maps the zero time to NULL so the database clock fills it in.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// --- Retention ---

func (s *PostgresStore) DeleteRequestsOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM api_requests WHERE created_at < NOW() - make_interval(days => $1)`, days)
	if err != nil {
		return 0, fmt.Errorf("delete old requests: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Stats ---

func (s *PostgresStore) Stats(ctx context.Context) (*AuditStats, error) {
	var st AuditStats
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM api_requests),
		        (SELECT COUNT(*) FROM predictions),
		        (SELECT MIN(created_at) FROM api_requests),
		        (SELECT MAX(created_at) FROM api_requests)`,
	).Scan(&st.Requests, &st.Predictions, &st.OldestRequest, &st.NewestRequest)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	return &st, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
