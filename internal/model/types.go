package model

import "time"

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
}

type DeviceInfo struct {
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	DeviceType string `json:"device_type"`
}

// DeviceKey is the "browser/os" identity used for device familiarity.
func (d DeviceInfo) DeviceKey() string {
	return d.Browser + "/" + d.OS
}

// LoginEvent is a validated login attempt. The scoring fields are only set
// on the copy returned by Assessment.Apply.
type LoginEvent struct {
	UserID     string     `json:"user_id"`
	Username   string     `json:"username"`
	Timestamp  time.Time  `json:"timestamp"`
	IPAddress  string     `json:"ip_address"`
	Location   Location   `json:"location"`
	DeviceInfo DeviceInfo `json:"device_info"`
	Success    bool       `json:"success"`

	RiskScore *float64 `json:"risk_score,omitempty"`
	IsAnomaly *bool    `json:"is_anomaly,omitempty"`
	Reasons   []string `json:"reasons,omitempty"`
}

type AnomalyType string

const (
	AnomalyNone            AnomalyType = ""
	AnomalyOffHours        AnomalyType = "off_hours"
	AnomalyUnusualLocation AnomalyType = "unusual_location"
	AnomalyNewDevice       AnomalyType = "new_device"
	AnomalyFailedAttempt   AnomalyType = "failed_attempt"
)

// LabeledEvent is a corpus entry with its ground truth.
type LabeledEvent struct {
	LoginEvent
	IsAnomalyLabel bool        `json:"label_anomaly"`
	AnomalyType    AnomalyType `json:"anomaly_type,omitempty"`
}

type Assessment struct {
	IsAnomaly bool     `json:"is_anomaly"`
	RiskScore float64  `json:"risk_score"`
	Reasons   []string `json:"reasons"`
}

// Apply returns a scored copy of ev.
func (a Assessment) Apply(ev LoginEvent) LoginEvent {
	score := a.RiskScore
	anomaly := a.IsAnomaly
	ev.RiskScore = &score
	ev.IsAnomaly = &anomaly
	ev.Reasons = append([]string(nil), a.Reasons...)
	return ev
}

// UserProfile is the behavioral baseline of one user.
type UserProfile struct {
	UserID          string   `json:"user_id"`
	TypicalHours    []int    `json:"typical_hours"`
	TypicalLocation Location `json:"typical_location"`
	Devices         []string `json:"devices"`
	AvgLoginsPerDay float64  `json:"avg_logins_per_day"`
	TypicalDays     []int    `json:"typical_days"`
}

func (p *UserProfile) HasDevice(key string) bool {
	if p == nil {
		return false
	}
	for _, d := range p.Devices {
		if d == key {
			return true
		}
	}
	return false
}
