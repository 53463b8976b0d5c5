package features

import (
	"time"

	"loginguard/internal/model"
)

type Temporal struct {
	Hour        int
	DayOfWeek   int
	IsWeekend   bool
	IsWorkHours bool
	IsNight     bool
}

type LocationFeatures struct {
	Latitude            float64
	Longitude           float64
	DistanceFromTypical float64
}

type DeviceFeatures struct {
	Browser         Browser
	OS              OS
	IsMobile        bool
	IsTypicalDevice bool
}

// Weekday returns the day index with Monday as 0 and Sunday as 6.
func Weekday(ts time.Time) int {
	return (int(ts.Weekday()) + 6) % 7
}

// ExtractTemporal reads the clock fields of ts in its own location.
func ExtractTemporal(ts time.Time) Temporal {
	hour := ts.Hour()
	day := Weekday(ts)
	return Temporal{
		Hour:        hour,
		DayOfWeek:   day,
		IsWeekend:   day >= 5,
		IsWorkHours: hour >= 9 && hour <= 17,
		IsNight:     hour >= 22 || hour <= 5,
	}
}

// ExtractLocation measures the distance to the profile's typical location.
// Without a profile the distance is 0.
func ExtractLocation(loc model.Location, p *model.UserProfile) LocationFeatures {
	out := LocationFeatures{Latitude: loc.Latitude, Longitude: loc.Longitude}
	if p != nil {
		out.DistanceFromTypical = Haversine(loc.Latitude, loc.Longitude, p.TypicalLocation.Latitude, p.TypicalLocation.Longitude)
	}
	return out
}

// ExtractDevice encodes the device. Without a profile the device counts as typical.
func ExtractDevice(d model.DeviceInfo, p *model.UserProfile) DeviceFeatures {
	out := DeviceFeatures{
		Browser:         ParseBrowser(d.Browser),
		OS:              ParseOS(d.OS),
		IsMobile:        d.DeviceType == "mobile",
		IsTypicalDevice: true,
	}
	if p != nil {
		out.IsTypicalDevice = p.HasDevice(d.DeviceKey())
	}
	return out
}

// Lookup resolves a user's profile. A miss is a cold start, not an error.
type Lookup interface {
	Get(userID string) (*model.UserProfile, bool)
}

type Extractor struct {
	profiles Lookup
}

// NewExtractor binds the extractor to a profile set. A nil lookup treats every
// user as a cold start.
func NewExtractor(profiles Lookup) *Extractor {
	return &Extractor{profiles: profiles}
}

func (x *Extractor) profile(userID string) *model.UserProfile {
	if x == nil || x.profiles == nil {
		return nil
	}
	if p, ok := x.profiles.Get(userID); ok {
		return p
	}
	return nil
}

// Combine builds the canonical vector for one event.
func (x *Extractor) Combine(ev model.LoginEvent) Vector {
	p := x.profile(ev.UserID)
	t := ExtractTemporal(ev.Timestamp)
	l := ExtractLocation(ev.Location, p)
	d := ExtractDevice(ev.DeviceInfo, p)
	return Vector{
		Names: Names(),
		Values: []float64{
			float64(t.Hour),
			float64(t.DayOfWeek),
			flag(t.IsWeekend),
			flag(t.IsWorkHours),
			flag(t.IsNight),
			l.Latitude,
			l.Longitude,
			l.DistanceFromTypical,
			float64(d.Browser),
			float64(d.OS),
			flag(d.IsMobile),
			flag(d.IsTypicalDevice),
			flag(ev.Success),
		},
	}
}

func (x *Extractor) Batch(events []model.LoginEvent) []Row {
	rows := make([]Row, 0, len(events))
	for _, ev := range events {
		rows = append(rows, Row{
			UserID:    ev.UserID,
			Timestamp: ev.Timestamp,
			Vector:    x.Combine(ev),
		})
	}
	return rows
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
