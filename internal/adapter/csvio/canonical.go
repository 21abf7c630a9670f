package csvio

import (
	"fmt"
	"io"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/domain"
)

const canonicalTimeLayout = "2006-01-02 15:04:05.999999999"

// CanonicalHeader is the column order of cleaned reading files.
var CanonicalHeader = []string{
	"time", "location_name", "location_id", "latitude", "longitude",
	"pm2_5_1h_mean", "pm2_5_1h_mean_aqi", "pm2_5_24h_mean", "pm2_5_24h_mean_aqi",
	"temp", "rh", "pressure", "elevation",
}

// WriteReadings writes canonical readings. Times are written as naive wall
// clock; floats use the shortest form that parses back to the same value.
func WriteReadings(w io.Writer, readings []domain.SensorReading) error {
	rows := make([][]string, len(readings))
	for i, r := range readings {
		rows[i] = []string{
			r.Time.Format(canonicalTimeLayout),
			r.LocationName,
			r.LocationID,
			formatFloat(r.Latitude),
			formatFloat(r.Longitude),
			formatFloat(r.PM25Hourly),
			formatInt(r.PM25HourlyAQI),
			formatFloat(r.PM25Daily),
			formatInt(r.PM25DailyAQI),
			formatFloat(r.Temperature),
			formatFloat(r.RelativeHumidity),
			formatFloat(r.Pressure),
			formatFloat(r.Elevation),
		}
	}
	return writeAll(w, CanonicalHeader, rows)
}

// ReadReadings reads a file written by WriteReadings. Only time and
// location_id are required; other missing columns read as nulls.
func ReadReadings(r io.Reader) ([]domain.SensorReading, error) {
	t, err := readTable(r, "time", "location_id")
	if err != nil {
		return nil, fmt.Errorf("canonical: %w", err)
	}

	out := make([]domain.SensorReading, 0, len(t.rows))
	for i, row := range t.rows {
		ts, err := parseTime(t.get(row, "time"), time.UTC, naiveLocal)
		if err != nil {
			return nil, fmt.Errorf("canonical line %d: %w", line(i), err)
		}
		c := t.cells(row)
		rec := domain.SensorReading{
			Time:             ts,
			LocationName:     t.get(row, "location_name"),
			LocationID:       t.get(row, "location_id"),
			Latitude:         c.float("latitude"),
			Longitude:        c.float("longitude"),
			PM25Hourly:       c.float("pm2_5_1h_mean"),
			PM25HourlyAQI:    c.integer("pm2_5_1h_mean_aqi"),
			PM25Daily:        c.float("pm2_5_24h_mean"),
			PM25DailyAQI:     c.integer("pm2_5_24h_mean_aqi"),
			Temperature:      c.float("temp"),
			RelativeHumidity: c.float("rh"),
			Pressure:         c.float("pressure"),
			Elevation:        c.float("elevation"),
		}
		if c.err != nil {
			return nil, fmt.Errorf("canonical line %d: %w", line(i), c.err)
		}
		out = append(out, rec)
	}
	return out, nil
}
