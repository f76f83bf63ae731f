package archive

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"aquawatch/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/aquawatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS predictions (
			id BIGSERIAL PRIMARY KEY,
			backend_id BIGINT,
			ts TIMESTAMPTZ NOT NULL,
			site_id TEXT NOT NULL,
			status TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			turbidity DOUBLE PRECISION NOT NULL,
			ph DOUBLE PRECISION NOT NULL,
			compliance_score DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_site_ts ON predictions(site_id, ts)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGINT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			site_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			acknowledged BOOLEAN NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_site_ts ON alerts(site_id, ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SavePrediction(ctx context.Context, p model.Prediction) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO predictions (backend_id, ts, site_id, status, confidence, turbidity, ph, compliance_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID,
		p.Timestamp.UTC(),
		p.SiteID,
		string(p.Status),
		p.Confidence,
		p.Turbidity,
		p.PH,
		p.ComplianceScore,
	)
	return err
}

func (s *postgresStore) SaveAlert(ctx context.Context, a model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, ts, site_id, severity, message, acknowledged)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		a.ID,
		a.Timestamp.UTC(),
		a.SiteID,
		string(a.Severity),
		a.Message,
		a.Acknowledged,
	)
	return err
}
