package normalize

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"loginguard/internal/geo"
	"loginguard/internal/model"
)

var ErrInvalidEvent = errors.New("invalid login event")

// ValidationError lists every problem found in one event.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid login event: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidEvent
}

// EventFields is a decoded but unvalidated login event. Empty strings and nil
// pointers mean the field was absent.
type EventFields struct {
	UserID     string
	Username   string
	Timestamp  string
	IPAddress  string
	Latitude   *float64
	Longitude  *float64
	City       string
	Country    string
	Browser    string
	OS         string
	DeviceType string
	Success    string
	HasDevice  bool
	Raw        string
}

type Options struct {
	// Locator resolves the location when the event carries none.
	Locator geo.Locator
	// Location applies to timestamps without a zone offset. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
}

// Normalize validates fields and fills defaults: timestamp now, success true,
// location from the locator.
func Normalize(fields EventFields, opts Options) (model.LoginEvent, error) {
	var problems []string
	require := func(name, value string) string {
		v := strings.TrimSpace(value)
		if v == "" {
			problems = append(problems, "missing required field: "+name)
		}
		return v
	}

	userID := require("user_id", fields.UserID)
	username := require("username", fields.Username)
	ip := require("ip_address", fields.IPAddress)
	if ip != "" && net.ParseIP(ip) == nil {
		problems = append(problems, "invalid ip address format")
	}

	var device model.DeviceInfo
	if !fields.HasDevice {
		problems = append(problems, "missing required field: device_info")
	} else {
		device = model.DeviceInfo{
			Browser:    require("device_info.browser", fields.Browser),
			OS:         require("device_info.os", fields.OS),
			DeviceType: require("device_info.device_type", fields.DeviceType),
		}
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	ts := now().In(loc)
	if strings.TrimSpace(fields.Timestamp) != "" {
		parsed, err := ParseTimestamp(fields.Timestamp, loc)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			ts = parsed
		}
	}

	success := true
	if strings.TrimSpace(fields.Success) != "" {
		v, err := ParseSuccess(fields.Success)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			success = v
		}
	}

	var location model.Location
	hasLocation := fields.Latitude != nil || fields.Longitude != nil
	switch {
	case hasLocation && (fields.Latitude == nil || fields.Longitude == nil):
		problems = append(problems, "location must include latitude and longitude")
	case hasLocation:
		if *fields.Latitude < -90 || *fields.Latitude > 90 {
			problems = append(problems, "invalid latitude value")
		}
		if *fields.Longitude < -180 || *fields.Longitude > 180 {
			problems = append(problems, "invalid longitude value")
		}
		location = model.Location{
			Latitude:  *fields.Latitude,
			Longitude: *fields.Longitude,
			City:      strings.TrimSpace(fields.City),
			Country:   strings.TrimSpace(fields.Country),
		}
	}

	if len(problems) > 0 {
		return model.LoginEvent{}, &ValidationError{Problems: problems}
	}
	if !hasLocation {
		if opts.Locator != nil {
			location = opts.Locator.Locate(ip)
		} else {
			location = geo.DefaultFallback
		}
	}
	return model.LoginEvent{
		UserID:     userID,
		Username:   username,
		Timestamp:  ts,
		IPAddress:  ip,
		Location:   location,
		DeviceInfo: device,
		Success:    success,
	}, nil
}

func ParseSuccess(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "ok", "success", "succeeded":
		return true, nil
	case "false", "0", "no", "fail", "failed", "failure", "denied":
		return false, nil
	}
	return false, fmt.Errorf("invalid success value: %q", value)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
}

// ParseTimestamp keeps an explicit zone offset; values without one are read
// in loc. Numeric values are unix seconds, or milliseconds from 13 digits up.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts.In(loc), nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
