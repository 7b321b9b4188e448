package store

import (
	"context"
	"errors"
	"time"

	"github.com/kiranshivaraju/attrition/pkg/models"
)

var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// CreateAuditRecord writes a request row and its prediction rows in one
	// transaction. Either all rows are visible afterwards or none are.
	CreateAuditRecord(ctx context.Context, req *models.AuditRequest, preds []models.AuditPrediction) error

	// DeleteRequestsOlderThan removes request rows created more than days
	// days ago, measured by the database clock. Prediction rows go with
	// them through the cascading foreign key.
	DeleteRequestsOlderThan(ctx context.Context, days int) (int64, error)

	Stats(ctx context.Context) (*AuditStats, error)
}

// AuditStats summarizes the audit tables.
type AuditStats struct {
	Requests      int64      `json:"requests"`
	Predictions   int64      `json:"predictions"`
	OldestRequest *time.Time `json:"oldest_request,omitempty"`
	NewestRequest *time.Time `json:"newest_request,omitempty"`
}
