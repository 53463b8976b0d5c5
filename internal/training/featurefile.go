package training

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"loginguard/internal/features"
	"loginguard/internal/model"
)

// FeatureRecord is one line of the features dump.
type FeatureRecord struct {
	UserID      string             `json:"user_id"`
	Timestamp   time.Time          `json:"timestamp"`
	Features    map[string]float64 `json:"features"`
	IsAnomaly   bool               `json:"is_anomaly"`
	AnomalyType model.AnomalyType  `json:"anomaly_type,omitempty"`
}

// WriteFeaturesFile writes one FeatureRecord per row as JSON Lines. rows and
// events must be index-aligned.
func WriteFeaturesFile(path string, rows []features.Row, events []model.LabeledEvent) error {
	if len(rows) != len(events) {
		return fmt.Errorf("%d rows for %d events", len(rows), len(events))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	for i, r := range rows {
		rec := FeatureRecord{
			UserID:      r.UserID,
			Timestamp:   r.Timestamp,
			Features:    r.Vector.Map(),
			IsAnomaly:   events[i].IsAnomalyLabel,
			AnomalyType: events[i].AnomalyType,
		}
		if err := enc.Encode(&rec); err != nil {
			f.Close()
			return fmt.Errorf("write features line %d: %w", i+1, err)
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
