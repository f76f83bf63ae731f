package archive

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"aquawatch/internal/config"
	"aquawatch/internal/model"
)

// Store persists received predictions and alerts locally for offline review.
// Save-only; the dashboard never reads the archive back and retention is an
// external concern.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SavePrediction(ctx context.Context, p model.Prediction) error
	SaveAlert(ctx context.Context, a model.Alert) error
}

// NewStore builds the configured driver, or nil when archiving is disabled.
func NewStore(cfg config.ArchiveConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported archive driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
