package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"loginguard/internal/config"
	"loginguard/internal/model"
)

// Store keeps the login history that training reads as real data and that
// the scoring service appends to.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveEvents(ctx context.Context, events []model.LabeledEvent) error
	SaveScored(ctx context.Context, ev model.LoginEvent) error
	LoadEvents(ctx context.Context, since time.Time) ([]model.LabeledEvent, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql", "pgx":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type dialect struct {
	schema []string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered   bool
	encodeTime func(time.Time) any
	// insertEvent skips rows that collide on the natural key
	insertEvent string
}

type baseStore struct {
	db      *sql.DB
	dialect dialect
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) Init(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	for _, stmt := range b.dialect.schema {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (b *baseStore) rebind(query string) string {
	if !b.dialect.numbered {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(ch)
	}
	return sb.String()
}

const eventColumns = `login_events (
	ts, ts_offset, user_id, username, ip_address, latitude, longitude, city, country,
	browser, os, device_type, success, label_anomaly, anomaly_type, risk_score, is_anomaly, reasons_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// eventKey is the natural key of a login: the same user, instant, address,
// device and outcome is the same attempt no matter how often it is written.
const eventKey = `CREATE UNIQUE INDEX IF NOT EXISTS idx_login_events_key
	ON login_events(user_id, ts, ip_address, browser, os, device_type, success)`

// SaveEvents inserts events in one transaction. Events already stored under
// the same natural key are skipped, so replaying a batch is a no-op.
func (b *baseStore) SaveEvents(ctx context.Context, events []model.LabeledEvent) error {
	if b.db == nil || len(events) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, b.rebind(b.dialect.insertEvent))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, ev := range events {
		_, offset := ev.Timestamp.Zone()
		var risk, anomaly, reasons any
		if ev.RiskScore != nil {
			risk = *ev.RiskScore
		}
		if ev.IsAnomaly != nil {
			anomaly = *ev.IsAnomaly
		}
		if ev.Reasons != nil {
			reasons = encodeJSON(ev.Reasons)
		}
		if _, err := stmt.ExecContext(ctx,
			b.dialect.encodeTime(ev.Timestamp),
			offset,
			ev.UserID,
			ev.Username,
			ev.IPAddress,
			ev.Location.Latitude,
			ev.Location.Longitude,
			ev.Location.City,
			ev.Location.Country,
			ev.DeviceInfo.Browser,
			ev.DeviceInfo.OS,
			ev.DeviceInfo.DeviceType,
			ev.Success,
			ev.IsAnomalyLabel,
			string(ev.AnomalyType),
			risk,
			anomaly,
			reasons,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert login event %s: %w", ev.UserID, err)
		}
	}
	return tx.Commit()
}

func (b *baseStore) SaveScored(ctx context.Context, ev model.LoginEvent) error {
	return b.SaveEvents(ctx, []model.LabeledEvent{{LoginEvent: ev}})
}

const selectEvents = `SELECT ts, ts_offset, user_id, username, ip_address, latitude, longitude, city, country,
	browser, os, device_type, success, label_anomaly, anomaly_type, risk_score, is_anomaly, reasons_json
FROM login_events WHERE ts >= ? ORDER BY ts, id`

// LoadEvents returns events at or after since in time order. Each timestamp
// is restored in the zone offset it was recorded with.
func (b *baseStore) LoadEvents(ctx context.Context, since time.Time) ([]model.LabeledEvent, error) {
	if b.db == nil {
		return nil, nil
	}
	rows, err := b.db.QueryContext(ctx, b.rebind(selectEvents), b.dialect.encodeTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LabeledEvent
	for rows.Next() {
		var (
			ev          model.LabeledEvent
			ts          scanTime
			offset      int
			anomalyType string
			risk        sql.NullFloat64
			anomaly     sql.NullBool
			reasons     sql.NullString
		)
		if err := rows.Scan(
			&ts,
			&offset,
			&ev.UserID,
			&ev.Username,
			&ev.IPAddress,
			&ev.Location.Latitude,
			&ev.Location.Longitude,
			&ev.Location.City,
			&ev.Location.Country,
			&ev.DeviceInfo.Browser,
			&ev.DeviceInfo.OS,
			&ev.DeviceInfo.DeviceType,
			&ev.Success,
			&ev.IsAnomalyLabel,
			&anomalyType,
			&risk,
			&anomaly,
			&reasons,
		); err != nil {
			return nil, err
		}
		ev.Timestamp = ts.t.In(zoneFor(offset))
		ev.AnomalyType = model.AnomalyType(anomalyType)
		if risk.Valid {
			v := risk.Float64
			ev.RiskScore = &v
		}
		if anomaly.Valid {
			v := anomaly.Bool
			ev.IsAnomaly = &v
		}
		if reasons.Valid && reasons.String != "" {
			if err := json.Unmarshal([]byte(reasons.String), &ev.Reasons); err != nil {
				return nil, fmt.Errorf("decode reasons: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func zoneFor(offset int) *time.Location {
	if offset == 0 {
		return time.UTC
	}
	return time.FixedZone("", offset)
}

// sortableTime is fixed width so that text comparison orders like time.
const sortableTime = "2006-01-02T15:04:05.000000000Z07:00"

type scanTime struct {
	t time.Time
}

func (s *scanTime) Scan(v any) error {
	switch x := v.(type) {
	case time.Time:
		s.t = x
		return nil
	case string:
		return s.parse(x)
	case []byte:
		return s.parse(string(x))
	}
	return fmt.Errorf("unsupported timestamp column type %T", v)
}

func (s *scanTime) parse(v string) error {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return err
	}
	s.t = t
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}
