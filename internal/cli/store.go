package cli

import (
	"context"

	"github.com/kiranshivaraju/attrition/internal/config"
	"github.com/kiranshivaraju/attrition/internal/retention"
	"github.com/kiranshivaraju/attrition/internal/store"
)

// auditStore is the part of the audit store the CLI uses.
type auditStore interface {
	retention.Deleter
	Stats(ctx context.Context) (*store.AuditStats, error)
}

// openStore connects to the audit database. Tests replace it.
var openStore = func(ctx context.Context, cfg config.DatabaseConfig) (auditStore, func(), error) {
	pool, err := store.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}

// Migration hooks. Tests replace them.
var (
	runMigrations    = store.RunMigrations
	migrationVersion = store.MigrationVersion
)
