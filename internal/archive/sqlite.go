package archive

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"aquawatch/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:aquawatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS predictions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			backend_id INTEGER,
			ts TEXT NOT NULL,
			site_id TEXT NOT NULL,
			status TEXT NOT NULL,
			confidence REAL NOT NULL,
			turbidity REAL NOT NULL,
			ph REAL NOT NULL,
			compliance_score REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_site_ts ON predictions(site_id, ts)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY,
			ts TEXT NOT NULL,
			site_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			acknowledged INTEGER NOT NULL
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

func (s *sqliteStore) SavePrediction(ctx context.Context, p model.Prediction) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO predictions (backend_id, ts, site_id, status, confidence, turbidity, ph, compliance_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
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

func (s *sqliteStore) SaveAlert(ctx context.Context, a model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO alerts (id, ts, site_id, severity, message, acknowledged)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Timestamp.UTC(),
		a.SiteID,
		string(a.Severity),
		a.Message,
		boolToInt(a.Acknowledged),
	)
	return err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
