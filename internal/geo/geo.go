// Package geo resolves an IP address to a location for events that arrive
// without one.
package geo

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/oschwald/geoip2-golang"

	"loginguard/internal/model"
)

// DefaultFallback is used for private addresses and failed lookups.
var DefaultFallback = model.Location{
	Latitude:  37.7749,
	Longitude: -122.4194,
	City:      "San Francisco",
	Country:   "USA",
}

// Locator never fails: anything it cannot resolve maps to its fallback.
type Locator interface {
	Locate(ip string) model.Location
}

// Static returns the same location for every address.
type Static struct {
	Location model.Location
}

func (s Static) Locate(string) model.Location {
	return s.Location
}

// MaxMind looks addresses up in a GeoIP2/GeoLite2 City database.
type MaxMind struct {
	reader   *geoip2.Reader
	fallback model.Location
	logger   *slog.Logger
}

func OpenMaxMind(path string, fallback model.Location, logger *slog.Logger) (*MaxMind, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip city db %s: %w", path, err)
	}
	return &MaxMind{reader: reader, fallback: fallback, logger: logger}, nil
}

func (m *MaxMind) Close() error {
	if m.reader == nil {
		return nil
	}
	return m.reader.Close()
}

func (m *MaxMind) Locate(ip string) model.Location {
	addr := net.ParseIP(ip)
	if addr == nil || isLocal(addr) {
		return m.fallback
	}
	record, err := m.reader.City(addr)
	if err != nil {
		if m.logger != nil {
			m.logger.Debug("geoip lookup failed", "ip", ip, "error", err)
		}
		return m.fallback
	}
	if record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return m.fallback
	}
	return model.Location{
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
		City:      record.City.Names["en"],
		Country:   record.Country.Names["en"],
	}
}

func isLocal(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

// New opens the city database when path is set and falls back to Static
// otherwise, or when the database cannot be opened.
func New(path string, fallback model.Location, logger *slog.Logger) Locator {
	if path == "" {
		return Static{Location: fallback}
	}
	m, err := OpenMaxMind(path, fallback, logger)
	if err != nil {
		if logger != nil {
			logger.Warn("geoip database unavailable, using fallback location", "path", path, "error", err)
		}
		return Static{Location: fallback}
	}
	return m
}
