package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/guregu/null"
	"github.com/paulmach/orb"
)

// Network identifies a sensor network.
type Network string

const (
	NetworkClarity   Network = "clarity"
	NetworkPurpleAir Network = "purpleair"
)

// ParseNetwork accepts a network name case-insensitively.
func ParseNetwork(s string) (Network, error) {
	switch Network(strings.ToLower(strings.TrimSpace(s))) {
	case NetworkClarity:
		return NetworkClarity, nil
	case NetworkPurpleAir:
		return NetworkPurpleAir, nil
	default:
		return "", fmt.Errorf("unknown network %q", s)
	}
}

// SensorReading is one hourly observation in canonical form.
// Optional fields are invalid nulls when the source did not report them.
type SensorReading struct {
	Time             time.Time
	LocationID       string
	LocationName     string
	Latitude         null.Float
	Longitude        null.Float
	PM25Hourly       null.Float
	PM25HourlyAQI    null.Int
	PM25Daily        null.Float
	PM25DailyAQI     null.Int
	Temperature      null.Float
	RelativeHumidity null.Float
	Pressure         null.Float
	Elevation        null.Float
}

// Point returns the reading location in (lon, lat) order, or false if either
// coordinate is missing.
func (r SensorReading) Point() (orb.Point, bool) {
	if !r.Latitude.Valid || !r.Longitude.Valid {
		return orb.Point{}, false
	}
	return orb.Point{r.Longitude.Float64, r.Latitude.Float64}, true
}

// Day returns the calendar date of the reading.
func (r SensorReading) Day() time.Time {
	return Day(r.Time)
}

// Day truncates t to midnight of its calendar date, keeping the wall clock.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DailyMean is a per-site 24h concentration supplied by a vendor daily export.
type DailyMean struct {
	LocationID string
	Day        time.Time
	PM25       null.Float
}
