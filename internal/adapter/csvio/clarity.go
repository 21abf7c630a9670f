package csvio

import (
	"fmt"
	"io"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/domain"
)

// Clarity hourly export columns.
const (
	clarityTime  = "startOfPeriod"
	clarityName  = "Name"
	clarityID    = "datasourceId"
	clarityLat   = "locationLatitude"
	clarityLon   = "locationLongitude"
	clarityPM25  = "pm2_5ConcMass1HourMean.value"
	clarityRH    = "relHumidInternal1HourMean.value"
	clarityTempC = "temperatureInternal1HourMean.value"
)

// ReadClarityHourly parses a Clarity hourly export. Timestamps are UTC and
// are converted to wall clock in loc.
func ReadClarityHourly(r io.Reader, loc *time.Location) ([]domain.SensorReading, error) {
	t, err := readTable(r, clarityTime, clarityName, clarityID, clarityLat, clarityLon, clarityPM25)
	if err != nil {
		return nil, fmt.Errorf("clarity hourly: %w", err)
	}

	out := make([]domain.SensorReading, 0, len(t.rows))
	for i, row := range t.rows {
		ts, err := parseTime(t.get(row, clarityTime), loc, naiveUTC)
		if err != nil {
			return nil, fmt.Errorf("clarity hourly line %d: %w", line(i), err)
		}
		id := t.get(row, clarityID)
		if id == "" {
			return nil, fmt.Errorf("clarity hourly line %d: empty %s", line(i), clarityID)
		}
		c := t.cells(row)
		rec := domain.SensorReading{
			Time:             ts,
			LocationID:       id,
			LocationName:     t.get(row, clarityName),
			Latitude:         c.float(clarityLat),
			Longitude:        c.float(clarityLon),
			PM25Hourly:       c.float(clarityPM25),
			Temperature:      c.float(clarityTempC),
			RelativeHumidity: c.float(clarityRH),
		}
		if c.err != nil {
			return nil, fmt.Errorf("clarity hourly line %d: %w", line(i), c.err)
		}
		out = append(out, rec)
	}
	return out, nil
}
