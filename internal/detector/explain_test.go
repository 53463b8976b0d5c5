package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"loginguard/internal/features"
	"loginguard/internal/model"
	"loginguard/internal/profile"
)

func vectorFor(ev model.LoginEvent, history ...model.LoginEvent) features.Vector {
	return features.NewExtractor(profile.BuildAll(history)).Combine(ev)
}

func TestExplainWeekendWorkHours(t *testing.T) {
	ev := model.LoginEvent{
		UserID:     "u1",
		Timestamp:  time.Date(2024, 1, 20, 11, 0, 0, 0, time.UTC),
		Location:   sanFrancisco,
		DeviceInfo: office,
		Success:    true,
	}
	assert.Equal(t, []string{ReasonWeekend}, Explain(vectorFor(ev), 0.2))
}

func TestExplainColdStartHasNoProfileReasons(t *testing.T) {
	ev := model.LoginEvent{
		UserID:     "nobody",
		Timestamp:  time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC),
		Location:   beijing,
		DeviceInfo: torBox,
		Success:    true,
	}
	assert.Empty(t, Explain(vectorFor(ev), 0.1))
}

func TestExplainFallbackOnlyWhenRiskHigh(t *testing.T) {
	ev := model.LoginEvent{
		UserID:     "u1",
		Timestamp:  time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC),
		Location:   sanFrancisco,
		DeviceInfo: office,
		Success:    true,
	}
	v := vectorFor(ev, ev)
	assert.Empty(t, Explain(v, 0.7))
	assert.Equal(t, []string{ReasonUnusualPattern}, Explain(v, 0.71))
}

func TestExplainDistanceThreshold(t *testing.T) {
	home := model.LoginEvent{
		UserID:     "u1",
		Timestamp:  time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		Location:   sanFrancisco,
		DeviceInfo: office,
		Success:    true,
	}
	away := home
	away.Location = model.Location{Latitude: 40.7128, Longitude: -74.0060}
	reasons := Explain(vectorFor(away, home), 0.9)
	assert.Len(t, reasons, 1)
	assert.Regexp(t, `^Login from unusual location \(>41\d\dkm from typical\)$`, reasons[0])
}

func TestExplainFailedAttempt(t *testing.T) {
	ev := model.LoginEvent{
		UserID:     "u1",
		Timestamp:  time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		Location:   sanFrancisco,
		DeviceInfo: office,
	}
	history := ev
	history.Success = true
	assert.Equal(t, []string{ReasonFailedAttempt}, Explain(vectorFor(ev, history), 0.1))
}

func TestExplainMissingFeaturesUseDefaults(t *testing.T) {
	assert.Equal(t, []string{ReasonOffWorkWeekday, ReasonNewDevice}, Explain(features.Vector{}, 0))
}
