package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"loginguard/internal/model"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveAssessment(model.Assessment{IsAnomaly: true, RiskScore: 0.9})
	c.ObserveAssessment(model.Assessment{RiskScore: 0.2})
	c.ObserveAssessment(model.Assessment{RiskScore: 0.3})
	c.ScoreError("feature_mismatch")
	c.ModelLoaded(true, 12)
	c.Reload(true)
	c.Reload(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.scored.WithLabelValues("anomaly")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.scored.WithLabelValues("normal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.scoreErrors.WithLabelValues("feature_mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.modelLoaded))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.profiles))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reloads.WithLabelValues("failure")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.risk))

	n, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestNilCollectorsAreNoops(t *testing.T) {
	var c *Collectors
	c.ObserveAssessment(model.Assessment{})
	c.ScoreError("x")
	c.ModelLoaded(false, 0)
	c.Reload(true)
}
