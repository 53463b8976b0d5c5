package profile

import (
	"slices"
	"sort"

	"loginguard/internal/features"
	"loginguard/internal/model"
	"loginguard/internal/stats"
)

// Set maps user IDs to their profiles. A Set is never mutated after it is
// built; rebuilding produces a new Set.
type Set map[string]*model.UserProfile

func (s Set) Get(userID string) (*model.UserProfile, bool) {
	p, ok := s[userID]
	return p, ok
}

// Build derives the profile of userID from history. It returns nil when the
// user has no events.
func Build(history []model.LoginEvent, userID string) *model.UserProfile {
	var (
		hours   []int
		days    []int
		lats    []float64
		lons    []float64
		devices []string
		dates   = make(map[string]struct{})
		count   int
	)
	for _, ev := range history {
		if ev.UserID != userID {
			continue
		}
		count++
		hours = append(hours, ev.Timestamp.Hour())
		days = append(days, features.Weekday(ev.Timestamp))
		lats = append(lats, ev.Location.Latitude)
		lons = append(lons, ev.Location.Longitude)
		if key := ev.DeviceInfo.DeviceKey(); !slices.Contains(devices, key) {
			devices = append(devices, key)
		}
		dates[ev.Timestamp.Format("2006-01-02")] = struct{}{}
	}
	if count == 0 {
		return nil
	}
	return &model.UserProfile{
		UserID:       userID,
		TypicalHours: modes(hours),
		TypicalLocation: model.Location{
			Latitude:  stats.Median(lats),
			Longitude: stats.Median(lons),
		},
		Devices:         devices,
		AvgLoginsPerDay: float64(count) / float64(len(dates)),
		TypicalDays:     modes(days),
	}
}

// BuildAll builds a profile for every user present in history.
func BuildAll(history []model.LoginEvent) Set {
	seen := make(map[string]struct{})
	out := make(Set)
	for _, ev := range history {
		if _, ok := seen[ev.UserID]; ok {
			continue
		}
		seen[ev.UserID] = struct{}{}
		if p := Build(history, ev.UserID); p != nil {
			out[ev.UserID] = p
		}
	}
	return out
}

// modes returns every most frequent value in ascending order.
func modes(values []int) []int {
	counts := make(map[int]int, len(values))
	best := 0
	for _, v := range values {
		counts[v]++
		if counts[v] > best {
			best = counts[v]
		}
	}
	out := make([]int, 0, 1)
	for v, c := range counts {
		if c == best {
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
