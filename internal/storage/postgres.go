package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"wellwatch/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/wellwatch?sslmode=disable"
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
		`CREATE TABLE IF NOT EXISTS alerts (
			id UUID PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			device_id TEXT NOT NULL,
			alert_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			reasons_json TEXT NOT NULL,
			payload_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_device ON alerts(device_id)`,
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			device_id TEXT NOT NULL,
			ts DOUBLE PRECISION NOT NULL,
			temperature DOUBLE PRECISION NOT NULL,
			pressure DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_device_ts ON events(device_id, ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SaveAlert(ctx context.Context, alert model.Alert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, ts, device_id, alert_type, severity, score, reasons_json, payload_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		alert.ID,
		alert.Timestamp.UTC(),
		alert.DeviceID,
		alert.AlertType,
		string(alert.Severity),
		alert.Score,
		encodeJSON(alert.Reasons),
		encodeJSON(alert.Payload),
	)
	return err
}

func (s *postgresStore) SaveEvent(ctx context.Context, ev model.TelemetryEvent) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (device_id, ts, temperature, pressure, status)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.DeviceID,
		ev.Timestamp,
		ev.Temperature,
		ev.Pressure,
		ev.Status,
	)
	return err
}
