package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"loginguard/internal/artifact"
	"loginguard/internal/detector"
	"loginguard/internal/features"
	"loginguard/internal/metrics"
	"loginguard/internal/model"
	"loginguard/internal/profile"
)

var (
	ErrNotReady = errors.New("engine not ready: no model loaded")
	ErrShutdown = errors.New("engine shut down")
)

// Loader supplies artifact bundles by name; *artifact.Store satisfies it.
type Loader interface {
	Load(name string) (artifact.Bundle, error)
}

// snapshot pairs a model with the profiles it was trained alongside. It is
// replaced as a unit so scoring never mixes generations.
type snapshot struct {
	name      string
	model     *detector.Model
	profiles  profile.Set
	extractor *features.Extractor
	loadedAt  time.Time
}

type Engine struct {
	logger  *slog.Logger
	metrics *metrics.Collectors
	loader  Loader
	name    atomic.Value
	snap    atomic.Pointer[snapshot]
	reload  sync.Mutex
	closed  atomic.Bool
	started time.Time

	dedupe       *DedupeCache
	dedupeWindow atomic.Int64
}

type Status struct {
	Ready     bool      `json:"ready"`
	ModelName string    `json:"model_name"`
	ModelID   string    `json:"model_id,omitempty"`
	TrainedAt time.Time `json:"trained_at,omitempty"`
	LoadedAt  time.Time `json:"loaded_at,omitempty"`
	Features  []string  `json:"features,omitempty"`
	Profiles  int       `json:"profiles"`
	Uptime    string    `json:"uptime"`
}

func NewEngine(loader Loader, name string, logger *slog.Logger, m *metrics.Collectors) *Engine {
	e := &Engine{
		logger:  logger,
		metrics: m,
		loader:  loader,
		started: time.Now().UTC(),
		dedupe:  NewDedupeCache(),
	}
	e.name.Store(name)
	return e
}

func (e *Engine) modelName() string {
	if v, ok := e.name.Load().(string); ok {
		return v
	}
	return ""
}

// Init loads the configured artifact. A failure leaves the engine not ready;
// the host decides whether to serve unscored.
func (e *Engine) Init(ctx context.Context) error {
	return e.Reload(ctx, e.modelName())
}

// Reload loads name and swaps it in. On failure the serving snapshot, if any,
// is left untouched.
func (e *Engine) Reload(ctx context.Context, name string) error {
	if e.closed.Load() {
		return ErrShutdown
	}
	if e.loader == nil {
		return fmt.Errorf("reload %s: no artifact loader", name)
	}
	e.reload.Lock()
	defer e.reload.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := e.loader.Load(name)
	if err != nil {
		e.metrics.Reload(false)
		if e.logger != nil {
			e.logger.Warn("model reload failed", "name", name, "serving", e.Ready(), "error", err)
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.install(name, b); err != nil {
		e.metrics.Reload(false)
		return err
	}
	e.metrics.Reload(true)
	return nil
}

// Swap installs an in-memory bundle, e.g. straight after training.
func (e *Engine) Swap(name string, b artifact.Bundle) error {
	if e.closed.Load() {
		return ErrShutdown
	}
	e.reload.Lock()
	defer e.reload.Unlock()
	return e.install(name, b)
}

func (e *Engine) install(name string, b artifact.Bundle) error {
	if e.closed.Load() {
		return ErrShutdown
	}
	if err := b.Model.Validate(); err != nil {
		return fmt.Errorf("install %s: %w", name, err)
	}
	profiles := b.Profiles
	if profiles == nil {
		profiles = profile.Set{}
	}
	s := &snapshot{
		name:      name,
		model:     b.Model,
		profiles:  profiles,
		extractor: features.NewExtractor(profiles),
		loadedAt:  time.Now().UTC(),
	}
	e.snap.Store(s)
	e.name.Store(name)
	e.metrics.ModelLoaded(true, len(profiles))
	if e.logger != nil {
		e.logger.Info("model installed",
			"name", name,
			"model_id", b.Model.Meta.ModelID,
			"features", len(b.Model.Features),
			"profiles", len(profiles),
		)
	}
	return nil
}

func (e *Engine) Ready() bool {
	return e.snap.Load() != nil
}

// Score runs one event through the serving snapshot. It holds no lock and is
// safe for any number of concurrent callers.
func (e *Engine) Score(ev model.LoginEvent) (model.Assessment, error) {
	s := e.snap.Load()
	if s == nil {
		e.metrics.ScoreError("not_ready")
		return model.Assessment{}, ErrNotReady
	}
	a, err := s.model.Predict(s.extractor.Combine(ev))
	if err != nil {
		reason := "predict"
		if errors.Is(err, detector.ErrFeatureMismatch) {
			reason = "feature_mismatch"
		}
		e.metrics.ScoreError(reason)
		if e.logger != nil {
			e.logger.Error("scoring failed", "user_id", ev.UserID, "error", err)
		}
		return model.Assessment{}, err
	}
	e.metrics.ObserveAssessment(a)
	if a.IsAnomaly && e.logger != nil {
		e.logger.Warn("login anomaly",
			"user_id", ev.UserID,
			"risk_score", a.RiskScore,
			"reasons", a.Reasons,
		)
	}
	return a, nil
}

// ScoreEvent returns a scored copy of ev.
func (e *Engine) ScoreEvent(ev model.LoginEvent) (model.LoginEvent, error) {
	a, err := e.Score(ev)
	if err != nil {
		return ev, err
	}
	return a.Apply(ev), nil
}

// Profile exposes the serving profile of a user, if any.
func (e *Engine) Profile(userID string) (*model.UserProfile, bool) {
	s := e.snap.Load()
	if s == nil {
		return nil, false
	}
	return s.profiles.Get(userID)
}

func (e *Engine) Status() Status {
	st := Status{
		ModelName: e.modelName(),
		Uptime:    time.Since(e.started).Round(time.Second).String(),
	}
	s := e.snap.Load()
	if s == nil {
		return st
	}
	st.Ready = true
	st.ModelName = s.name
	st.ModelID = s.model.Meta.ModelID
	st.TrainedAt = s.model.Meta.TrainedAt
	st.LoadedAt = s.loadedAt
	st.Features = append([]string(nil), s.model.Features...)
	st.Profiles = len(s.profiles)
	return st
}

// Shutdown drops the serving snapshot. Later Score calls fail with
// ErrNotReady and reloads with ErrShutdown.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.reload.Lock()
	defer e.reload.Unlock()
	e.snap.Store(nil)
	e.metrics.ModelLoaded(false, 0)
	if e.logger != nil {
		e.logger.Info("engine shut down", "uptime", time.Since(e.started).Round(time.Second).String())
	}
	return nil
}
