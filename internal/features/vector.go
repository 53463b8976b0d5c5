package features

import (
	"slices"
	"time"
)

// Canonical feature names, in the order the anomaly model consumes them.
const (
	Hour                = "hour"
	DayOfWeek           = "day_of_week"
	IsWeekend           = "is_weekend"
	IsWorkHours         = "is_work_hours"
	IsNight             = "is_night"
	Latitude            = "latitude"
	Longitude           = "longitude"
	DistanceFromTypical = "distance_from_typical"
	BrowserCode         = "browser_code"
	OSCode              = "os_code"
	IsMobile            = "is_mobile"
	IsTypicalDevice     = "is_typical_device"
	Success             = "success"
)

var canonical = []string{
	Hour,
	DayOfWeek,
	IsWeekend,
	IsWorkHours,
	IsNight,
	Latitude,
	Longitude,
	DistanceFromTypical,
	BrowserCode,
	OSCode,
	IsMobile,
	IsTypicalDevice,
	Success,
}

// Names returns a copy of the canonical feature order.
func Names() []string {
	return slices.Clone(canonical)
}

// Vector is an ordered name -> value mapping.
type Vector struct {
	Names  []string
	Values []float64
}

func (v Vector) Len() int {
	return len(v.Values)
}

func (v Vector) Get(name string) (float64, bool) {
	i := slices.Index(v.Names, name)
	if i < 0 || i >= len(v.Values) {
		return 0, false
	}
	return v.Values[i], true
}

// Map is a convenience view used by logs and JSON output.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.Names))
	for i, name := range v.Names {
		if i < len(v.Values) {
			out[name] = v.Values[i]
		}
	}
	return out
}

// Row is a vector annotated with the identity of the event it came from.
// UserID and Timestamp never enter the model input.
type Row struct {
	UserID    string
	Timestamp time.Time
	Vector    Vector
}

// Matrix stacks the values of rows in row order.
func Matrix(rows []Row) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Vector.Values
	}
	return out
}
