package storage

import (
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:loginguard.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer at a time; concurrent writers only produce SQLITE_BUSY
	db.SetMaxOpenConns(1)
	return &sqliteStore{baseStore{db: db, dialect: dialect{
		schema: []string{
			`CREATE TABLE IF NOT EXISTS login_events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				ts TEXT NOT NULL,
				ts_offset INTEGER NOT NULL DEFAULT 0,
				user_id TEXT NOT NULL,
				username TEXT NOT NULL,
				ip_address TEXT NOT NULL,
				latitude REAL NOT NULL,
				longitude REAL NOT NULL,
				city TEXT NOT NULL DEFAULT '',
				country TEXT NOT NULL DEFAULT '',
				browser TEXT NOT NULL,
				os TEXT NOT NULL,
				device_type TEXT NOT NULL,
				success INTEGER NOT NULL,
				label_anomaly INTEGER NOT NULL DEFAULT 0,
				anomaly_type TEXT NOT NULL DEFAULT '',
				risk_score REAL,
				is_anomaly INTEGER,
				reasons_json TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_login_events_ts ON login_events(ts)`,
			`CREATE INDEX IF NOT EXISTS idx_login_events_user ON login_events(user_id, ts)`,
			eventKey,
		},
		insertEvent: "INSERT OR IGNORE INTO " + eventColumns,
		encodeTime: func(t time.Time) any {
			return t.UTC().Format(sortableTime)
		},
	}}}, nil
}
