package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./ml_models", cfg.Model.Dir)
	assert.Equal(t, "login_anomaly_detector", cfg.Model.Name)
	assert.Equal(t, 50, cfg.Training.NumUsers)
	assert.Equal(t, 30, cfg.Training.Days)
	assert.Equal(t, 0.10, cfg.Training.AnomalyPercentage)
	assert.Equal(t, 0.10, cfg.Training.Contamination)
	assert.Equal(t, 100, cfg.Training.TreeCount)
	assert.Equal(t, int64(42), cfg.Training.RandomSeed)
	assert.Equal(t, ThresholdsConfig{Low: 0.3, Medium: 0.6, High: 0.8}, cfg.Thresholds)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "loginguard.yaml", `
log_level: debug
model:
  name: nightly
training:
  tree_count: 150
  contamination: 0.05
  lookback: 720h
ingest:
  timezone: America/New_York
  dedupe_window: 5s
  kafka:
    enabled: true
    brokers: ["localhost:9092"]
    topic: logins
    group_id: loginguard
    output_topic: login-scores
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "nightly", cfg.Model.Name)
	assert.Equal(t, "./ml_models", cfg.Model.Dir)
	assert.Equal(t, 150, cfg.Training.TreeCount)
	assert.Equal(t, 0.05, cfg.Training.Contamination)
	assert.Equal(t, 720*time.Hour, cfg.Training.Lookback.Std())
	assert.Equal(t, 5*time.Second, cfg.Ingest.DedupeWindow.Std())
	assert.Equal(t, "login-scores", cfg.Ingest.Kafka.OutputTopic)
	assert.Equal(t, "America/New_York", cfg.Location().String())
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "loginguard.json", `{"model":{"dir":"/var/lib/loginguard"},"api":{"enabled":true,"addr":":9090"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/loginguard", cfg.Model.Dir)
	assert.Equal(t, ":9090", cfg.API.Addr)
}

func TestLoadJSONDurations(t *testing.T) {
	path := writeFile(t, "loginguard.json", `{
		"training": {"lookback": "720h"},
		"ingest": {"dedupe_window": 1500000000}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 720*time.Hour, cfg.Training.Lookback.Std())
	assert.Equal(t, 1500*time.Millisecond, cfg.Ingest.DedupeWindow.Std())

	_, err = Load(writeFile(t, "bad.json", `{"training": {"lookback": "a month"}}`))
	assert.Error(t, err)
}

func TestDurationMarshalsAsString(t *testing.T) {
	b, err := json.Marshal(struct {
		D Duration `json:"d"`
	}{Duration(90 * time.Second)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"1m30s"}`, string(b))

	var back struct {
		D Duration `json:"d"`
	}
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, 90*time.Second, back.D.Std())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOGINGUARD_MODEL_NAME", "from-env")
	t.Setenv("LOGINGUARD_STORAGE_DSN", "postgres://localhost/loginguard")
	t.Setenv("LOGINGUARD_STORAGE_DRIVER", "postgres")
	t.Setenv("LOGINGUARD_KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("LOGINGUARD_RANDOM_SEED", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Model.Name)
	assert.True(t, cfg.Storage.Enabled)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Ingest.Kafka.Brokers)
	assert.Equal(t, int64(7), cfg.Training.RandomSeed)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"contamination zero":  func(c *Config) { c.Training.Contamination = 0 },
		"contamination high":  func(c *Config) { c.Training.Contamination = 0.6 },
		"anomaly share":       func(c *Config) { c.Training.AnomalyPercentage = 1.5 },
		"no trees":            func(c *Config) { c.Training.TreeCount = 0 },
		"no users":            func(c *Config) { c.Training.NumUsers = 0 },
		"unknown source":      func(c *Config) { c.Training.Source = "csv" },
		"storage source":      func(c *Config) { c.Training.Source = SourceStorage },
		"kafka missing topic": func(c *Config) { c.Ingest.Kafka = KafkaConfig{Enabled: true, Brokers: []string{"x"}} },
		"file tail no files":  func(c *Config) { c.Ingest.FileTail.Enabled = true },
		"bad timezone":        func(c *Config) { c.Ingest.Timezone = "Mars/Olympus" },
		"bad driver":          func(c *Config) { c.Storage = StorageConfig{Enabled: true, Driver: "mysql"} },
		"store corpus":        func(c *Config) { c.Training.StoreCorpus = true },
		"thresholds order":    func(c *Config) { c.Thresholds.Low = 0.9 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	_, err := Load(writeFile(t, "empty.yaml", "  \n"))
	assert.Error(t, err)
}

func TestManagerReload(t *testing.T) {
	path := writeFile(t, "loginguard.yaml", "model:\n  name: first\n")
	m, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, "first", m.Get().Model.Name)

	require.NoError(t, os.WriteFile(path, []byte("model:\n  name: second\n"), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	needs, err := m.NeedsReload()
	require.NoError(t, err)
	require.True(t, needs)
	cfg, err := m.Reload()
	require.NoError(t, err)
	assert.Equal(t, "second", cfg.Model.Name)
	assert.Equal(t, "second", m.Get().Model.Name)

	needs, err = m.NeedsReload()
	require.NoError(t, err)
	assert.False(t, needs)
}
