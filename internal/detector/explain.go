package detector

import (
	"fmt"

	"loginguard/internal/features"
)

const (
	ReasonNightHours     = "Login attempt during unusual hours (late night/early morning)"
	ReasonOffWorkWeekday = "Login outside typical work hours on weekday"
	ReasonWeekend        = "Login attempt during weekend"
	ReasonNewDevice      = "Login from new or unusual device"
	ReasonFailedAttempt  = "Failed login attempt"
	ReasonUnusualPattern = "Unusual pattern detected in login behavior"

	unusualLocationKm   = 100.0
	fallbackRiskMinimum = 0.7
	rawScoreClampBound  = 0.5
)

// UnusualLocationReason formats the location reason with the truncated distance.
func UnusualLocationReason(km float64) string {
	return fmt.Sprintf("Login from unusual location (>%dkm from typical)", int(km))
}

// Normalize maps a raw score to a risk in [0, 1]. Scores at or below
// -0.5 map to 1 and scores at or above 0.5 map to 0.
func Normalize(raw float64) float64 {
	clamped := raw
	if clamped < -rawScoreClampBound {
		clamped = -rawScoreClampBound
	}
	if clamped > rawScoreClampBound {
		clamped = rawScoreClampBound
	}
	return 1 - (clamped + rawScoreClampBound)
}

// Explain lists the rule-based reasons for a vector. The order of the rules
// is part of the output contract.
func Explain(v features.Vector, risk float64) []string {
	get := func(name string, def float64) float64 {
		if val, ok := v.Get(name); ok {
			return val
		}
		return def
	}
	reasons := make([]string, 0, 4)
	if get(features.IsNight, 0) == 1 {
		reasons = append(reasons, ReasonNightHours)
	}
	if get(features.IsWorkHours, 0) == 0 && get(features.IsWeekend, 0) == 0 {
		reasons = append(reasons, ReasonOffWorkWeekday)
	}
	if get(features.IsWeekend, 0) == 1 {
		reasons = append(reasons, ReasonWeekend)
	}
	if km := get(features.DistanceFromTypical, 0); km > unusualLocationKm {
		reasons = append(reasons, UnusualLocationReason(km))
	}
	if get(features.IsTypicalDevice, 0) == 0 {
		reasons = append(reasons, ReasonNewDevice)
	}
	if get(features.Success, 1) == 0 {
		reasons = append(reasons, ReasonFailedAttempt)
	}
	if risk > fallbackRiskMinimum && len(reasons) == 0 {
		reasons = append(reasons, ReasonUnusualPattern)
	}
	return reasons
}
