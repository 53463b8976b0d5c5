// Package training builds a labeled login corpus, fits the anomaly detector
// on it, measures it against the labels and persists the result.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"loginguard/internal/artifact"
	"loginguard/internal/config"
	"loginguard/internal/detector"
	"loginguard/internal/features"
	"loginguard/internal/iforest"
	"loginguard/internal/ingest"
	"loginguard/internal/model"
	"loginguard/internal/profile"
)

var ErrEmptyCorpus = errors.New("training corpus is empty")

// CorpusStore is the historical event store; storage.Store satisfies it.
type CorpusStore interface {
	SaveEvents(ctx context.Context, events []model.LabeledEvent) error
	LoadEvents(ctx context.Context, since time.Time) ([]model.LabeledEvent, error)
}

type Options struct {
	ModelName    string
	Source       string
	Generator    GeneratorConfig
	Forest       iforest.Config
	CorpusPath   string
	WriteCorpus  bool
	// FeaturesPath receives the feature rows when WriteCorpus is set.
	FeaturesPath string
	// StoreCorpus inserts a generated corpus into the corpus store.
	StoreCorpus  bool
	Lookback     time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	t := cfg.Training
	return Options{
		ModelName: cfg.Model.Name,
		Source:    t.Source,
		Generator: GeneratorConfig{
			Users:       t.NumUsers,
			Days:        t.Days,
			AnomalyRate: t.AnomalyPercentage,
			Seed:        t.RandomSeed,
		},
		Forest: iforest.Config{
			Trees:         t.TreeCount,
			MaxSamples:    t.MaxSamples,
			Contamination: t.Contamination,
			Seed:          t.RandomSeed,
		},
		CorpusPath:   t.CorpusPath,
		WriteCorpus:  t.WriteCorpus,
		FeaturesPath: t.FeaturesPath,
		StoreCorpus:  t.StoreCorpus,
		Lookback:     t.Lookback.Std(),
	}
}

type Result struct {
	Model     *detector.Model
	Profiles  profile.Set
	Metrics   detector.Metrics
	Paths     artifact.Paths
	Events    int
	Anomalies int
}

func (r Result) Bundle() artifact.Bundle {
	return artifact.Bundle{Model: r.Model, Profiles: r.Profiles}
}

// Pipeline runs the stages in order. Each stage is also exported so it can be
// driven on its own.
type Pipeline struct {
	opts      Options
	artifacts *artifact.Store
	store     CorpusStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewPipeline wires the pipeline. A nil artifacts store skips persistence and
// a nil corpus store disables the storage source and sink.
func NewPipeline(opts Options, artifacts *artifact.Store, store CorpusStore, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		opts:      opts,
		artifacts: artifacts,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
}

func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	events, err := p.Corpus(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{Events: len(events), Anomalies: countAnomalies(events)}

	res.Profiles = BuildProfiles(events)
	if p.logger != nil {
		p.logger.Info("profiles built", "users", len(res.Profiles))
	}

	rows := ExtractFeatures(res.Profiles, events)
	if p.logger != nil && len(rows) > 0 {
		p.logger.Info("features extracted", "rows", len(rows), "features", rows[0].Vector.Len())
	}
	if p.opts.WriteCorpus && p.opts.FeaturesPath != "" {
		if err := WriteFeaturesFile(p.opts.FeaturesPath, rows, events); err != nil {
			return Result{}, fmt.Errorf("write features: %w", err)
		}
		if p.logger != nil {
			p.logger.Info("features written", "path", p.opts.FeaturesPath)
		}
	}

	res.Model, err = p.Fit(ctx, rows)
	if err != nil {
		return Result{}, err
	}

	res.Metrics, err = Evaluate(res.Model, rows, events)
	if err != nil {
		return Result{}, err
	}
	if p.logger != nil {
		p.logger.Info("model evaluated",
			"precision", detector.Format(res.Metrics.Precision),
			"recall", detector.Format(res.Metrics.Recall),
			"f1", detector.Format(res.Metrics.F1),
			"confusion", res.Metrics.Confusion,
		)
	}

	res.Paths, err = p.Persist(res.Bundle())
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// Corpus obtains the labeled events for the configured source. A synthetic
// corpus is also written out as JSON Lines, and inserted into the store only
// when StoreCorpus is set.
func (p *Pipeline) Corpus(ctx context.Context) ([]model.LabeledEvent, error) {
	var (
		events []model.LabeledEvent
		err    error
	)
	switch p.opts.Source {
	case config.SourceSynthetic, "":
		events = NewGenerator(p.opts.Generator).Generate()
		if err := p.keep(ctx, events); err != nil {
			return nil, err
		}
	case config.SourceJSONL:
		events, err = ingest.ReadCorpusFile(p.opts.CorpusPath)
		if err != nil {
			return nil, fmt.Errorf("read corpus %s: %w", p.opts.CorpusPath, err)
		}
	case config.SourceStorage:
		if p.store == nil {
			return nil, errors.New("training source storage requires an enabled store")
		}
		var since time.Time
		if p.opts.Lookback > 0 {
			since = p.now().Add(-p.opts.Lookback)
		}
		events, err = p.store.LoadEvents(ctx, since)
		if err != nil {
			return nil, fmt.Errorf("load corpus: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown training source %q", p.opts.Source)
	}
	if len(events) == 0 {
		return nil, ErrEmptyCorpus
	}
	if p.logger != nil {
		anomalies := countAnomalies(events)
		p.logger.Info("corpus ready",
			"source", p.opts.Source,
			"events", len(events),
			"anomalies", anomalies,
			"anomaly_share", float64(anomalies)/float64(len(events)),
		)
	}
	return events, nil
}

func (p *Pipeline) keep(ctx context.Context, events []model.LabeledEvent) error {
	if p.opts.WriteCorpus && p.opts.CorpusPath != "" {
		if err := ingest.WriteCorpusFile(p.opts.CorpusPath, events); err != nil {
			return fmt.Errorf("write corpus: %w", err)
		}
		if p.logger != nil {
			p.logger.Info("corpus written", "path", p.opts.CorpusPath)
		}
	}
	if p.opts.StoreCorpus && p.store != nil {
		if err := p.store.SaveEvents(ctx, events); err != nil {
			return fmt.Errorf("store corpus: %w", err)
		}
		if p.logger != nil {
			p.logger.Info("corpus stored", "events", len(events))
		}
	}
	return nil
}

func BuildProfiles(events []model.LabeledEvent) profile.Set {
	return profile.BuildAll(plain(events))
}

func ExtractFeatures(set profile.Set, events []model.LabeledEvent) []features.Row {
	return features.NewExtractor(set).Batch(plain(events))
}

func (p *Pipeline) Fit(ctx context.Context, rows []features.Row) (*detector.Model, error) {
	started := p.now()
	m, err := detector.Train(ctx, rows, p.opts.Forest)
	if err != nil {
		return nil, err
	}
	if p.logger != nil {
		p.logger.Info("model trained",
			"model_id", m.Meta.ModelID,
			"trees", m.Meta.Trees,
			"samples", m.Meta.Samples,
			"took", p.now().Sub(started).Round(time.Millisecond).String(),
		)
	}
	return m, nil
}

// Evaluate predicts every row and compares the outcome with the labels.
func Evaluate(m *detector.Model, rows []features.Row, events []model.LabeledEvent) (detector.Metrics, error) {
	if len(rows) != len(events) {
		return detector.Metrics{}, fmt.Errorf("evaluate: %d rows for %d events", len(rows), len(events))
	}
	assessments, err := m.PredictBatch(rows)
	if err != nil {
		return detector.Metrics{}, err
	}
	predicted := make([]bool, len(assessments))
	actual := make([]bool, len(events))
	for i := range assessments {
		predicted[i] = assessments[i].IsAnomaly
		actual[i] = events[i].IsAnomalyLabel
	}
	return detector.Evaluate(predicted, actual)
}

func (p *Pipeline) Persist(b artifact.Bundle) (artifact.Paths, error) {
	if p.artifacts == nil {
		return artifact.Paths{}, nil
	}
	paths, err := p.artifacts.Save(p.opts.ModelName, b)
	if err != nil {
		return artifact.Paths{}, fmt.Errorf("persist %s: %w", p.opts.ModelName, err)
	}
	if p.logger != nil {
		p.logger.Info("artifact saved",
			"name", p.opts.ModelName,
			"forest", paths.Forest,
			"scaler", paths.Scaler,
			"features", paths.Features,
			"profiles", paths.Profiles,
		)
	}
	return paths, nil
}

func plain(events []model.LabeledEvent) []model.LoginEvent {
	out := make([]model.LoginEvent, len(events))
	for i := range events {
		out[i] = events[i].LoginEvent
	}
	return out
}

func countAnomalies(events []model.LabeledEvent) int {
	n := 0
	for i := range events {
		if events[i].IsAnomalyLabel {
			n++
		}
	}
	return n
}
