package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loginguard/internal/model"
)

type staticLookup map[string]*model.UserProfile

func (s staticLookup) Get(userID string) (*model.UserProfile, bool) {
	p, ok := s[userID]
	return p, ok
}

func TestExtractTemporal(t *testing.T) {
	cases := []struct {
		name string
		ts   time.Time
		want Temporal
	}{
		{"monday afternoon", time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC), Temporal{Hour: 14, DayOfWeek: 0, IsWorkHours: true}},
		{"saturday morning", time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC), Temporal{Hour: 10, DayOfWeek: 5, IsWeekend: true, IsWorkHours: true}},
		{"sunday late", time.Date(2024, 1, 21, 23, 0, 0, 0, time.UTC), Temporal{Hour: 23, DayOfWeek: 6, IsWeekend: true, IsNight: true}},
		{"early morning", time.Date(2024, 1, 16, 5, 59, 0, 0, time.UTC), Temporal{Hour: 5, DayOfWeek: 1, IsNight: true}},
		{"evening", time.Date(2024, 1, 17, 18, 0, 0, 0, time.UTC), Temporal{Hour: 18, DayOfWeek: 2}},
		{"end of work day", time.Date(2024, 1, 18, 17, 59, 0, 0, time.UTC), Temporal{Hour: 17, DayOfWeek: 3, IsWorkHours: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractTemporal(tc.ts))
		})
	}
}

func TestExtractTemporalUsesEventZone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	ts := time.Date(2024, 1, 15, 1, 0, 0, 0, tokyo)
	got := ExtractTemporal(ts)
	assert.Equal(t, 1, got.Hour)
	assert.True(t, got.IsNight)
}

func TestCombineColdStart(t *testing.T) {
	x := NewExtractor(nil)
	v := x.Combine(model.LoginEvent{
		UserID:     "ghost",
		Timestamp:  time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC),
		Location:   model.Location{Latitude: 39.9042, Longitude: 116.4074},
		DeviceInfo: model.DeviceInfo{Browser: "Opera", OS: "BeOS", DeviceType: "desktop"},
		Success:    true,
	})
	require.Equal(t, Names(), v.Names)
	require.Equal(t, 13, v.Len())

	m := v.Map()
	assert.Equal(t, 0.0, m[DistanceFromTypical])
	assert.Equal(t, 1.0, m[IsTypicalDevice])
	assert.Equal(t, 0.0, m[BrowserCode])
	assert.Equal(t, 0.0, m[OSCode])
	assert.Equal(t, 0.0, m[IsMobile])
	assert.Equal(t, 1.0, m[Success])
	assert.Equal(t, 39.9042, m[Latitude])
}

func TestCombineAgainstProfile(t *testing.T) {
	x := NewExtractor(staticLookup{
		"u1": {
			UserID:          "u1",
			TypicalLocation: model.Location{Latitude: 37.7749, Longitude: -122.4194},
			Devices:         []string{"Chrome/Windows"},
		},
	})
	v := x.Combine(model.LoginEvent{
		UserID:     "u1",
		Timestamp:  time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC),
		Location:   model.Location{Latitude: 40.7128, Longitude: -74.0060},
		DeviceInfo: model.DeviceInfo{Browser: "Safari", OS: "iPhone", DeviceType: "mobile"},
	})
	dist, _ := v.Get(DistanceFromTypical)
	assert.InDelta(t, 4129, dist, 10)
	typical, _ := v.Get(IsTypicalDevice)
	assert.Equal(t, 0.0, typical)
	browser, _ := v.Get(BrowserCode)
	assert.Equal(t, float64(BrowserSafari), browser)
	os, _ := v.Get(OSCode)
	assert.Equal(t, float64(OSIOS), os)
	mobile, _ := v.Get(IsMobile)
	assert.Equal(t, 1.0, mobile)
	success, _ := v.Get(Success)
	assert.Equal(t, 0.0, success)
}

func TestVectorGetMissing(t *testing.T) {
	_, ok := Vector{}.Get(Hour)
	assert.False(t, ok)
}

func TestBatchKeepsIdentity(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := NewExtractor(nil).Batch([]model.LoginEvent{{UserID: "a", Timestamp: ts}, {UserID: "b", Timestamp: ts}})
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].UserID)
	assert.Equal(t, ts, rows[1].Timestamp)
	assert.Len(t, Matrix(rows)[1], 13)
}

func TestEncoding(t *testing.T) {
	assert.Equal(t, BrowserTor, ParseBrowser("TOR Browser"))
	assert.Equal(t, BrowserUnknown, ParseBrowser("chrome"))
	assert.Equal(t, BrowserEdge, ParseBrowser(" Edge "))
	assert.Equal(t, OSIOS, ParseOS("iOS"))
	assert.Equal(t, OSMacOS, ParseOS("macOS"))
	assert.Equal(t, OSUnknown, ParseOS(""))
	assert.Equal(t, "Firefox", BrowserFirefox.String())
	assert.Equal(t, "unknown", OS(42).String())
}

func TestHaversine(t *testing.T) {
	assert.Equal(t, 0.0, Haversine(10, 20, 10, 20))
	assert.InDelta(t, 111.19, Haversine(0, 0, 1, 0), 0.01)
	assert.InDelta(t, Haversine(1, 2, 3, 4), Haversine(3, 4, 1, 2), 1e-9)
}
