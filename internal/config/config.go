package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"loginguard/internal/model"
)

type Config struct {
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	Model      ModelConfig      `json:"model" yaml:"model"`
	Training   TrainingConfig   `json:"training" yaml:"training"`
	Geo        GeoConfig        `json:"geo" yaml:"geo"`
	Ingest     IngestConfig     `json:"ingest" yaml:"ingest"`
	API        APIConfig        `json:"api" yaml:"api"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Thresholds ThresholdsConfig `json:"thresholds" yaml:"thresholds"`
}

type ModelConfig struct {
	Dir  string `json:"dir" yaml:"dir"`
	Name string `json:"name" yaml:"name"`
}

type TrainingConfig struct {
	Source            string   `json:"source" yaml:"source"`
	NumUsers          int      `json:"num_users" yaml:"num_users"`
	Days              int      `json:"days" yaml:"days"`
	AnomalyPercentage float64  `json:"anomaly_percentage" yaml:"anomaly_percentage"`
	Contamination     float64  `json:"contamination" yaml:"contamination"`
	TreeCount         int      `json:"tree_count" yaml:"tree_count"`
	MaxSamples        int      `json:"max_samples" yaml:"max_samples"`
	RandomSeed        int64    `json:"random_seed" yaml:"random_seed"`
	CorpusPath        string   `json:"corpus_path" yaml:"corpus_path"`
	WriteCorpus       bool     `json:"write_corpus" yaml:"write_corpus"`
	// FeaturesPath, when set alongside write_corpus, receives the extracted
	// feature rows as JSON Lines.
	FeaturesPath      string   `json:"features_path" yaml:"features_path"`
	// StoreCorpus also inserts a generated corpus into storage. Off by
	// default so synthetic logins never mix with recorded ones.
	StoreCorpus       bool     `json:"store_corpus" yaml:"store_corpus"`
	Lookback          Duration `json:"lookback" yaml:"lookback"`
}

const (
	SourceSynthetic = "synthetic"
	SourceJSONL     = "jsonl"
	SourceStorage   = "storage"
)

type GeoConfig struct {
	CityDB   string         `json:"city_db" yaml:"city_db"`
	Fallback LocationConfig `json:"fallback" yaml:"fallback"`
}

type LocationConfig struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	City      string  `json:"city" yaml:"city"`
	Country   string  `json:"country" yaml:"country"`
}

func (l LocationConfig) Location() model.Location {
	return model.Location{Latitude: l.Latitude, Longitude: l.Longitude, City: l.City, Country: l.Country}
}

type IngestConfig struct {
	ChannelBuffer int            `json:"channel_buffer" yaml:"channel_buffer"`
	Timezone      string         `json:"timezone" yaml:"timezone"`
	DedupeWindow  Duration       `json:"dedupe_window" yaml:"dedupe_window"`
	FileTail      FileTailConfig `json:"file_tail" yaml:"file_tail"`
	Kafka         KafkaConfig    `json:"kafka" yaml:"kafka"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type KafkaConfig struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Brokers     []string `json:"brokers" yaml:"brokers"`
	Topic       string   `json:"topic" yaml:"topic"`
	GroupID     string   `json:"group_id" yaml:"group_id"`
	OutputTopic string   `json:"output_topic" yaml:"output_topic"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Driver     string `json:"driver" yaml:"driver"`
	DSN        string `json:"dsn" yaml:"dsn"`
	SaveScored bool   `json:"save_scored" yaml:"save_scored"`
}

// ThresholdsConfig carries severity cut-offs for downstream consumers. The
// scoring path never reads them.
type ThresholdsConfig struct {
	Low    float64 `json:"low" yaml:"low"`
	Medium float64 `json:"medium" yaml:"medium"`
	High   float64 `json:"high" yaml:"high"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Model:    ModelConfig{Dir: "./ml_models", Name: "login_anomaly_detector"},
		Training: TrainingConfig{
			Source:            SourceSynthetic,
			NumUsers:          50,
			Days:              30,
			AnomalyPercentage: 0.10,
			Contamination:     0.10,
			TreeCount:         100,
			MaxSamples:        256,
			RandomSeed:        42,
			CorpusPath:        "./data/training/login_events.jsonl",
			WriteCorpus:       true,
			FeaturesPath:      "./data/training/login_features.jsonl",
		},
		Geo: GeoConfig{
			Fallback: LocationConfig{Latitude: 37.7749, Longitude: -122.4194, City: "San Francisco", Country: "USA"},
		},
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			Timezone:      "UTC",
			DedupeWindow:  Duration(2 * time.Second),
			FileTail:      FileTailConfig{Enabled: false, StartAtEnd: true},
			Kafka:         KafkaConfig{Enabled: false},
		},
		API:        APIConfig{Enabled: true, Addr: ":8080"},
		Storage:    StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:loginguard.db?_pragma=busy_timeout(5000)"},
		Thresholds: ThresholdsConfig{Low: 0.3, Medium: 0.6, High: 0.8},
	}
}

// Load reads path over the defaults, then applies environment overrides. An
// empty path yields the defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return errors.New("config file is empty")
	}
	if looksLikeJSON(trimmed) {
		return json.Unmarshal([]byte(trimmed), cfg)
	}
	return yaml.Unmarshal([]byte(trimmed), cfg)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

const envPrefix = "LOGINGUARD_"

func applyEnv(cfg *Config) {
	set := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("LOG_LEVEL", &cfg.LogLevel)
	set("MODEL_DIR", &cfg.Model.Dir)
	set("MODEL_NAME", &cfg.Model.Name)
	set("GEOIP_CITY_DB", &cfg.Geo.CityDB)
	set("API_ADDR", &cfg.API.Addr)
	set("STORAGE_DRIVER", &cfg.Storage.Driver)
	if v, ok := os.LookupEnv(envPrefix + "STORAGE_DSN"); ok && v != "" {
		cfg.Storage.DSN = v
		cfg.Storage.Enabled = true
	}
	if v, ok := os.LookupEnv(envPrefix + "KAFKA_BROKERS"); ok && v != "" {
		cfg.Ingest.Kafka.Brokers = splitList(v)
	}
	if v, ok := os.LookupEnv(envPrefix + "RANDOM_SEED"); ok {
		if seed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.Training.RandomSeed = seed
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Model.Dir == "" {
		cfg.Model.Dir = "./ml_models"
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = "login_anomaly_detector"
	}
	if cfg.Training.Source == "" {
		cfg.Training.Source = SourceSynthetic
	}
	if cfg.Training.MaxSamples <= 0 {
		cfg.Training.MaxSamples = 256
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.Timezone == "" {
		cfg.Ingest.Timezone = "UTC"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	t := cfg.Training
	if t.Contamination <= 0 || t.Contamination > 0.5 {
		return fmt.Errorf("training.contamination must be in (0, 0.5], got %v", t.Contamination)
	}
	if t.AnomalyPercentage < 0 || t.AnomalyPercentage > 1 {
		return fmt.Errorf("training.anomaly_percentage must be in [0, 1], got %v", t.AnomalyPercentage)
	}
	if t.TreeCount <= 0 {
		return errors.New("training.tree_count must be > 0")
	}
	if t.NumUsers <= 0 || t.Days <= 0 {
		return errors.New("training.num_users and training.days must be > 0")
	}
	switch t.Source {
	case SourceSynthetic, SourceJSONL:
	case SourceStorage:
		if !cfg.Storage.Enabled {
			return errors.New("training.source storage requires storage.enabled")
		}
	default:
		return fmt.Errorf("training.source must be one of synthetic, jsonl, storage, got %q", t.Source)
	}
	if t.StoreCorpus && !cfg.Storage.Enabled {
		return errors.New("training.store_corpus requires storage.enabled")
	}
	if t.Source == SourceJSONL && t.CorpusPath == "" {
		return errors.New("training.corpus_path required when training.source is jsonl")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if _, err := time.LoadLocation(cfg.Ingest.Timezone); err != nil {
		return fmt.Errorf("ingest.timezone: %w", err)
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql", "pgx":
		default:
			return fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
		}
	}
	th := cfg.Thresholds
	if !(th.Low <= th.Medium && th.Medium <= th.High) {
		return errors.New("thresholds must satisfy low <= medium <= high")
	}
	return nil
}

// Location returns the zone for timestamps that carry no offset.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Ingest.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	if path != "" {
		if info, err := os.Stat(path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if m.path != "" {
		if info, err := os.Stat(m.path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
