package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loginguard/internal/geo"
	"loginguard/internal/model"
)

func ptr(v float64) *float64 { return &v }

func validFields() EventFields {
	return EventFields{
		UserID:     "user_001",
		Username:   "employee_001",
		Timestamp:  "2024-01-15T14:30:00",
		IPAddress:  "203.0.113.7",
		Latitude:   ptr(40.7128),
		Longitude:  ptr(-74.0060),
		City:       "New York",
		Country:    "USA",
		Browser:    "Chrome",
		OS:         "Windows",
		DeviceType: "desktop",
		HasDevice:  true,
	}
}

func TestNormalizeValidEvent(t *testing.T) {
	ev, err := Normalize(validFields(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "user_001", ev.UserID)
	assert.Equal(t, time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC), ev.Timestamp)
	assert.True(t, ev.Success)
	assert.Equal(t, "New York", ev.Location.City)
	assert.Equal(t, "Chrome/Windows", ev.DeviceInfo.DeviceKey())
}

func TestNormalizeDefaults(t *testing.T) {
	f := validFields()
	f.Timestamp = ""
	f.Latitude, f.Longitude = nil, nil
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	moscow := model.Location{Latitude: 55.7558, Longitude: 37.6173, City: "Moscow"}

	ev, err := Normalize(f, Options{
		Locator: geo.Static{Location: moscow},
		Now:     func() time.Time { return fixed },
	})
	require.NoError(t, err)
	assert.Equal(t, fixed, ev.Timestamp)
	assert.Equal(t, moscow, ev.Location)

	ev, err = Normalize(f, Options{Now: func() time.Time { return fixed }})
	require.NoError(t, err)
	assert.Equal(t, geo.DefaultFallback, ev.Location)
}

func TestNormalizeCollectsProblems(t *testing.T) {
	f := EventFields{
		IPAddress: "999.1.1.1",
		Latitude:  ptr(91),
		Longitude: ptr(10),
		Success:   "maybe",
	}
	_, err := Normalize(f, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidEvent))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.ElementsMatch(t, []string{
		"missing required field: user_id",
		"missing required field: username",
		"invalid ip address format",
		"missing required field: device_info",
		`invalid success value: "maybe"`,
		"invalid latitude value",
	}, verr.Problems)
}

func TestNormalizeHalfLocation(t *testing.T) {
	f := validFields()
	f.Longitude = nil
	_, err := Normalize(f, Options{})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestNormalizeMissingDeviceField(t *testing.T) {
	f := validFields()
	f.DeviceType = " "
	_, err := Normalize(f, Options{})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"missing required field: device_info.device_type"}, verr.Problems)
}

func TestParseTimestamp(t *testing.T) {
	pst := time.FixedZone("PST", -8*3600)
	cases := []struct {
		in   string
		loc  *time.Location
		want time.Time
	}{
		{"2024-01-15T14:30:00Z", nil, time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)},
		{"2024-01-15T14:30:00.123456", nil, time.Date(2024, 1, 15, 14, 30, 0, 123456000, time.UTC)},
		{"2024-01-15 14:30:00", pst, time.Date(2024, 1, 15, 14, 30, 0, 0, pst)},
		{"1705329000", nil, time.Unix(1705329000, 0)},
		{"1705329000000", nil, time.UnixMilli(1705329000000)},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in, tc.loc)
		require.NoError(t, err, tc.in)
		assert.True(t, tc.want.Equal(got), "%s: got %v want %v", tc.in, got, tc.want)
	}

	got, err := ParseTimestamp("2024-01-15T14:30:00-08:00", nil)
	require.NoError(t, err)
	assert.Equal(t, 14, got.Hour())

	_, err = ParseTimestamp("yesterday", nil)
	assert.Error(t, err)
	_, err = ParseTimestamp("  ", nil)
	assert.Error(t, err)
}

func TestParseSuccess(t *testing.T) {
	for _, v := range []string{"true", "1", "SUCCESS"} {
		ok, err := ParseSuccess(v)
		require.NoError(t, err)
		assert.True(t, ok, v)
	}
	for _, v := range []string{"false", "0", "denied"} {
		ok, err := ParseSuccess(v)
		require.NoError(t, err)
		assert.False(t, ok, v)
	}
}
