// Package storage implements the task and article collections on MongoDB,
// DynamoDB, PostgreSQL and SQLite.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/config"
	"github.com/pishnahadebehtar/hodhodesaba.ir/internal/ports"
)

// New connects to the backend selected by cfg.Type.
func New(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (ports.Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting store", "type", cfg.Type)

	switch cfg.Type {
	case config.StoreMongo:
		return NewMongo(ctx, cfg)
	case config.StoreDynamo:
		return NewDynamo(ctx, cfg)
	case config.StorePostgres, config.StoreSQLite:
		return NewSQL(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
