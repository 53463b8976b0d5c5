// Package metrics exposes scoring and model lifecycle counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"loginguard/internal/model"
)

const namespace = "loginguard"

type Collectors struct {
	scored      *prometheus.CounterVec
	scoreErrors *prometheus.CounterVec
	risk        prometheus.Histogram
	modelLoaded prometheus.Gauge
	profiles    prometheus.Gauge
	reloads     *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		scored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scored_total",
			Help:      "Login events scored, by outcome.",
		}, []string{"outcome"}),
		scoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_errors_total",
			Help:      "Login events that could not be scored, by reason.",
		}, []string{"reason"}),
		risk: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of normalized risk scores.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		modelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_loaded",
			Help:      "1 when a model artifact is serving.",
		}),
		profiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "user_profiles",
			Help:      "User profiles in the serving artifact.",
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_reloads_total",
			Help:      "Model artifact reloads, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(c.scored, c.scoreErrors, c.risk, c.modelLoaded, c.profiles, c.reloads)
	}
	return c
}

func (c *Collectors) ObserveAssessment(a model.Assessment) {
	if c == nil {
		return
	}
	outcome := "normal"
	if a.IsAnomaly {
		outcome = "anomaly"
	}
	c.scored.WithLabelValues(outcome).Inc()
	c.risk.Observe(a.RiskScore)
}

func (c *Collectors) ScoreError(reason string) {
	if c == nil {
		return
	}
	c.scoreErrors.WithLabelValues(reason).Inc()
}

func (c *Collectors) ModelLoaded(loaded bool, profiles int) {
	if c == nil {
		return
	}
	if loaded {
		c.modelLoaded.Set(1)
	} else {
		c.modelLoaded.Set(0)
	}
	c.profiles.Set(float64(profiles))
}

func (c *Collectors) Reload(ok bool) {
	if c == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	c.reloads.WithLabelValues(result).Inc()
}
