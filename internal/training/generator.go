package training

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"loginguard/internal/model"
)

type city struct {
	name    string
	country string
	lat     float64
	lon     float64
}

var (
	homeCities = []city{
		{"San Francisco", "USA", 37.7749, -122.4194},
		{"New York", "USA", 40.7128, -74.0060},
		{"Houston", "USA", 29.7604, -95.3698},
		{"Miami", "USA", 25.7617, -80.1918},
		{"Seattle", "USA", 47.6062, -122.3321},
	}
	foreignCities = []city{
		{"Beijing", "China", 39.9042, 116.4074},
		{"Moscow", "Russia", 55.7558, 37.6173},
		{"São Paulo", "Brazil", -23.5505, -46.6333},
	}
	deviceSets = [][]string{
		{"Chrome/Windows", "Safari/iPhone"},
		{"Firefox/macOS", "Chrome/Android"},
		{"Edge/Windows"},
	}
	offHours     = []int{2, 3, 4, 22, 23}
	anomalyTypes = []model.AnomalyType{
		model.AnomalyOffHours,
		model.AnomalyUnusualLocation,
		model.AnomalyNewDevice,
		model.AnomalyFailedAttempt,
	}
	unknownDevice = model.DeviceInfo{Browser: "TOR Browser", OS: "Linux", DeviceType: "desktop"}
)

const (
	workStart       = 9
	workEnd         = 17
	coordinateNoise = 0.1
)

type GeneratorConfig struct {
	Users       int
	Days        int
	AnomalyRate float64
	Seed        int64

	// Start is the first generated day; zero means Days before today (UTC).
	Start time.Time
}

type synthUser struct {
	id        string
	username  string
	home      city
	frequency int
	devices   []model.DeviceInfo
}

// Generator produces a labeled corpus of logins: each user logs in from a
// home city with a small device set during work hours, and a configurable
// share of events is replaced by one of the anomaly types.
type Generator struct {
	cfg   GeneratorConfig
	faker *gofakeit.Faker
	users []synthUser
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	g := &Generator{cfg: cfg, faker: gofakeit.New(uint64(cfg.Seed))}
	g.users = make([]synthUser, 0, cfg.Users)
	for i := 0; i < cfg.Users; i++ {
		g.users = append(g.users, g.newUser(i))
	}
	return g
}

func (g *Generator) newUser(i int) synthUser {
	set := deviceSets[g.faker.Number(0, len(deviceSets)-1)]
	devices := make([]model.DeviceInfo, 0, len(set))
	for _, key := range set {
		devices = append(devices, deviceFromKey(key))
	}
	return synthUser{
		id:        fmt.Sprintf("user_%03d", i),
		username:  g.faker.Username(),
		home:      homeCities[g.faker.Number(0, len(homeCities)-1)],
		frequency: g.faker.Number(1, 5),
		devices:   devices,
	}
}

func deviceFromKey(key string) model.DeviceInfo {
	var d model.DeviceInfo
	d.Browser, d.OS, _ = strings.Cut(key, "/")
	d.DeviceType = "mobile"
	if d.OS == "Windows" || d.OS == "macOS" {
		d.DeviceType = "desktop"
	}
	return d
}

// Generate returns events ordered by day, then user.
func (g *Generator) Generate() []model.LabeledEvent {
	start := g.cfg.Start
	if start.IsZero() {
		start = time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -g.cfg.Days)
	}
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)

	var out []model.LabeledEvent
	for day := 0; day < g.cfg.Days; day++ {
		date := start.AddDate(0, 0, day)
		for _, u := range g.users {
			n := g.faker.Number(u.frequency-1, u.frequency+1)
			if n < 1 {
				n = 1
			}
			for i := 0; i < n; i++ {
				if g.faker.Float64() < g.cfg.AnomalyRate {
					typ := anomalyTypes[g.faker.Number(0, len(anomalyTypes)-1)]
					out = append(out, g.anomalous(u, date, typ))
				} else {
					out = append(out, g.normal(u, date))
				}
			}
		}
	}
	return out
}

func (g *Generator) at(date time.Time, hour int) time.Time {
	return date.Add(time.Duration(hour)*time.Hour + time.Duration(g.faker.Number(0, 59))*time.Minute)
}

func (g *Generator) near(c city) model.Location {
	return model.Location{
		Latitude:  c.lat + g.faker.Float64Range(-coordinateNoise, coordinateNoise),
		Longitude: c.lon + g.faker.Float64Range(-coordinateNoise, coordinateNoise),
		City:      c.name,
		Country:   c.country,
	}
}

func (g *Generator) normal(u synthUser, date time.Time) model.LabeledEvent {
	return model.LabeledEvent{
		LoginEvent: model.LoginEvent{
			UserID:     u.id,
			Username:   u.username,
			Timestamp:  g.at(date, g.faker.Number(workStart, workEnd)),
			IPAddress:  g.faker.IPv4Address(),
			Location:   g.near(u.home),
			DeviceInfo: u.devices[g.faker.Number(0, len(u.devices)-1)],
			Success:    true,
		},
	}
}

func (g *Generator) anomalous(u synthUser, date time.Time, typ model.AnomalyType) model.LabeledEvent {
	ev := g.normal(u, date)
	switch typ {
	case model.AnomalyOffHours:
		ev.Timestamp = g.at(date, offHours[g.faker.Number(0, len(offHours)-1)])
	case model.AnomalyUnusualLocation:
		ev.Location = g.near(foreignCities[g.faker.Number(0, len(foreignCities)-1)])
	case model.AnomalyNewDevice:
		ev.DeviceInfo = unknownDevice
	case model.AnomalyFailedAttempt:
		ev.Success = false
	}
	ev.IsAnomalyLabel = true
	ev.AnomalyType = typ
	return ev
}
