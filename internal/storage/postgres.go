package storage

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/loginguard?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db, dialect: dialect{
		numbered: true,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS login_events (
				id BIGSERIAL PRIMARY KEY,
				ts TIMESTAMPTZ NOT NULL,
				ts_offset INTEGER NOT NULL DEFAULT 0,
				user_id TEXT NOT NULL,
				username TEXT NOT NULL,
				ip_address TEXT NOT NULL,
				latitude DOUBLE PRECISION NOT NULL,
				longitude DOUBLE PRECISION NOT NULL,
				city TEXT NOT NULL DEFAULT '',
				country TEXT NOT NULL DEFAULT '',
				browser TEXT NOT NULL,
				os TEXT NOT NULL,
				device_type TEXT NOT NULL,
				success BOOLEAN NOT NULL,
				label_anomaly BOOLEAN NOT NULL DEFAULT FALSE,
				anomaly_type TEXT NOT NULL DEFAULT '',
				risk_score DOUBLE PRECISION,
				is_anomaly BOOLEAN,
				reasons_json JSONB
			)`,
			`CREATE INDEX IF NOT EXISTS idx_login_events_ts ON login_events(ts)`,
			`CREATE INDEX IF NOT EXISTS idx_login_events_user ON login_events(user_id, ts)`,
			eventKey,
		},
		insertEvent: "INSERT INTO " + eventColumns + " ON CONFLICT DO NOTHING",
		encodeTime: func(t time.Time) any {
			return t.UTC()
		},
	}}}, nil
}
