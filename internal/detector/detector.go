// Package detector couples the isolation forest with feature standardization,
// risk normalization and reason generation.
package detector

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"loginguard/internal/features"
	"loginguard/internal/iforest"
	"loginguard/internal/model"
)

var (
	ErrFeatureMismatch = errors.New("feature mismatch")
	ErrNotTrained      = errors.New("model not trained")
)

// FeatureMismatchError reports a vector whose names differ from the training
// feature list. It matches ErrFeatureMismatch with errors.Is.
type FeatureMismatchError struct {
	Expected []string
	Got      []string
}

func (e *FeatureMismatchError) Error() string {
	return fmt.Sprintf("feature mismatch: expected [%s], got [%s]",
		strings.Join(e.Expected, ","), strings.Join(e.Got, ","))
}

func (e *FeatureMismatchError) Is(target error) bool {
	return target == ErrFeatureMismatch
}

type Metadata struct {
	ModelID       string    `json:"model_id"`
	TrainedAt     time.Time `json:"trained_at"`
	Samples       int       `json:"samples"`
	Trees         int       `json:"trees"`
	MaxSamples    int       `json:"max_samples"`
	Contamination float64   `json:"contamination"`
	Seed          int64     `json:"seed"`
}

// Model is immutable once trained and safe for concurrent Predict calls.
type Model struct {
	Forest   *iforest.Forest
	Scaler   Scaler
	Features []string
	Meta     Metadata
}

// Train fits the scaler and forest on rows. Every row must carry the same
// feature names; the first row fixes the order.
func Train(ctx context.Context, rows []features.Row, cfg iforest.Config) (*Model, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("train: %w", ErrNotTrained)
	}
	names := slices.Clone(rows[0].Vector.Names)
	for _, r := range rows[1:] {
		if !slices.Equal(r.Vector.Names, names) {
			return nil, &FeatureMismatchError{Expected: names, Got: slices.Clone(r.Vector.Names)}
		}
	}

	raw := features.Matrix(rows)
	scaler := FitScaler(raw)
	forest, err := iforest.Fit(ctx, scaler.TransformAll(raw), cfg)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	return &Model{
		Forest:   forest,
		Scaler:   scaler,
		Features: names,
		Meta: Metadata{
			ModelID:       uuid.NewString(),
			TrainedAt:     time.Now().UTC(),
			Samples:       len(rows),
			Trees:         cfg.Trees,
			MaxSamples:    cfg.MaxSamples,
			Contamination: cfg.Contamination,
			Seed:          cfg.Seed,
		},
	}, nil
}

// Validate checks that the scaler, forest and feature list agree on width.
func (m *Model) Validate() error {
	if m == nil || m.Forest == nil {
		return ErrNotTrained
	}
	w := len(m.Features)
	if w == 0 || m.Scaler.Width() != w || len(m.Scaler.Std) != w || m.Forest.Features != w {
		return fmt.Errorf("model width disagrees: features=%d scaler=%d forest=%d", w, m.Scaler.Width(), m.Forest.Features)
	}
	return nil
}

func (m *Model) checkNames(v features.Vector) error {
	if !slices.Equal(v.Names, m.Features) || len(v.Values) != len(m.Features) {
		return &FeatureMismatchError{Expected: slices.Clone(m.Features), Got: slices.Clone(v.Names)}
	}
	return nil
}

// scoreCentre is the forest score of a point whose mean path length equals
// c(ψ); shifting by it centres raw scores on zero.
const scoreCentre = -0.5

// RawScore is the forest's sample score centred on zero, in [-0.5, 0.5).
// More negative is more anomalous. It does not depend on the contamination
// offset.
func (m *Model) RawScore(v features.Vector) (float64, error) {
	x, err := m.standardize(v)
	if err != nil {
		return 0, err
	}
	return m.Forest.ScoreSamples(x) - scoreCentre, nil
}

func (m *Model) standardize(v features.Vector) ([]float64, error) {
	if m == nil || m.Forest == nil {
		return nil, ErrNotTrained
	}
	if err := m.checkNames(v); err != nil {
		return nil, err
	}
	return m.Scaler.Transform(v.Values), nil
}

// Predict scores v. IsAnomaly is the forest's contamination-calibrated
// outlier decision and RiskScore the normalized raw score; retuning the
// contamination moves the first and leaves the second alone.
func (m *Model) Predict(v features.Vector) (model.Assessment, error) {
	x, err := m.standardize(v)
	if err != nil {
		return model.Assessment{}, err
	}
	risk := Normalize(m.Forest.ScoreSamples(x) - scoreCentre)
	return model.Assessment{
		IsAnomaly: m.Forest.IsOutlier(x),
		RiskScore: risk,
		Reasons:   Explain(v, risk),
	}, nil
}

// PredictBatch scores rows in order and stops at the first error.
func (m *Model) PredictBatch(rows []features.Row) ([]model.Assessment, error) {
	out := make([]model.Assessment, len(rows))
	for i, r := range rows {
		a, err := m.Predict(r.Vector)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = a
	}
	return out, nil
}
