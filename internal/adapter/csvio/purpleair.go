package csvio

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"github.com/guregu/null"
)

// PurpleAir ASDS export columns.
const (
	asdsTime      = "Datetime"
	asdsName      = "Site_Name"
	asdsID        = "Site_ID"
	asdsLat       = "Latitude"
	asdsLon       = "Longitude"
	asdsPM25      = "PM2.5_EPA"
	asdsElevation = "Elevation"
	asdsTemp      = "Temp"
	asdsRH        = "RH"
)

// PurpleAir API history columns, as written by WritePurpleAirAPI.
const (
	apiTime     = "time_stamp"
	apiName     = "sensor_name"
	apiIndex    = "sensor_index"
	apiLat      = "latitude"
	apiLon      = "longitude"
	apiPM25     = "pm2.5_atm"
	apiTemp     = "temperature"
	apiHumidity = "humidity"
	apiPressure = "pressure"
)

var purpleAirAPIHeader = []string{apiTime, apiName, apiIndex, apiLat, apiLon, apiPM25, apiTemp, apiHumidity, apiPressure}

// ReadPurpleAirHourly parses a PurpleAir ASDS hourly export. Naive timestamps
// are already local; values carrying an offset are converted to loc.
func ReadPurpleAirHourly(r io.Reader, loc *time.Location) ([]domain.SensorReading, error) {
	t, err := readTable(r, asdsTime, asdsName, asdsID, asdsLat, asdsLon, asdsPM25)
	if err != nil {
		return nil, fmt.Errorf("purpleair hourly: %w", err)
	}

	out := make([]domain.SensorReading, 0, len(t.rows))
	for i, row := range t.rows {
		ts, err := parseTime(t.get(row, asdsTime), loc, naiveLocal)
		if err != nil {
			return nil, fmt.Errorf("purpleair hourly line %d: %w", line(i), err)
		}
		id := t.get(row, asdsID)
		if id == "" {
			return nil, fmt.Errorf("purpleair hourly line %d: empty %s", line(i), asdsID)
		}
		c := t.cells(row)
		rec := domain.SensorReading{
			Time:             ts,
			LocationID:       id,
			LocationName:     t.get(row, asdsName),
			Latitude:         c.float(asdsLat),
			Longitude:        c.float(asdsLon),
			PM25Hourly:       c.float(asdsPM25),
			Temperature:      c.float(asdsTemp),
			RelativeHumidity: c.float(asdsRH),
			Elevation:        c.float(asdsElevation),
		}
		if c.err != nil {
			return nil, fmt.Errorf("purpleair hourly line %d: %w", line(i), c.err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadPurpleAirDaily parses a PurpleAir ASDS daily export.
func ReadPurpleAirDaily(r io.Reader, loc *time.Location) ([]domain.DailyMean, error) {
	t, err := readTable(r, asdsTime, asdsID, asdsPM25)
	if err != nil {
		return nil, fmt.Errorf("purpleair daily: %w", err)
	}

	out := make([]domain.DailyMean, 0, len(t.rows))
	for i, row := range t.rows {
		ts, err := parseTime(t.get(row, asdsTime), loc, naiveLocal)
		if err != nil {
			return nil, fmt.Errorf("purpleair daily line %d: %w", line(i), err)
		}
		c := t.cells(row)
		rec := domain.DailyMean{
			LocationID: t.get(row, asdsID),
			Day:        domain.Day(ts),
			PM25:       c.float(asdsPM25),
		}
		if c.err != nil {
			return nil, fmt.Errorf("purpleair daily line %d: %w", line(i), c.err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadPurpleAirAPI parses PurpleAir API history rows. Timestamps are UTC
// (RFC 3339 or epoch seconds) and are converted to wall clock in loc.
func ReadPurpleAirAPI(r io.Reader, loc *time.Location) ([]domain.SensorReading, error) {
	t, err := readTable(r, apiTime, apiName, apiIndex, apiLat, apiLon, apiPM25)
	if err != nil {
		return nil, fmt.Errorf("purpleair api: %w", err)
	}

	out := make([]domain.SensorReading, 0, len(t.rows))
	for i, row := range t.rows {
		ts, err := parseTime(t.get(row, apiTime), loc, naiveUTC)
		if err != nil {
			return nil, fmt.Errorf("purpleair api line %d: %w", line(i), err)
		}
		id := t.get(row, apiIndex)
		if id == "" {
			return nil, fmt.Errorf("purpleair api line %d: empty %s", line(i), apiIndex)
		}
		c := t.cells(row)
		rec := domain.SensorReading{
			Time:             ts,
			LocationID:       id,
			LocationName:     t.get(row, apiName),
			Latitude:         c.float(apiLat),
			Longitude:        c.float(apiLon),
			PM25Hourly:       c.float(apiPM25),
			Temperature:      c.float(apiTemp),
			RelativeHumidity: c.float(apiHumidity),
			Pressure:         c.float(apiPressure),
		}
		if c.err != nil {
			return nil, fmt.Errorf("purpleair api line %d: %w", line(i), c.err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// PurpleAirAPIRow is one history row joined with its sensor metadata.
type PurpleAirAPIRow struct {
	TimeStamp   time.Time
	SensorIndex int
	SensorName  string
	Latitude    null.Float
	Longitude   null.Float
	PM25Atm     null.Float
	Temperature null.Float
	Humidity    null.Float
	Pressure    null.Float
}

// WritePurpleAirAPI writes history rows in the shape ReadPurpleAirAPI reads.
func WritePurpleAirAPI(w io.Writer, rows []PurpleAirAPIRow) error {
	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = []string{
			r.TimeStamp.UTC().Format(time.RFC3339),
			r.SensorName,
			strconv.Itoa(r.SensorIndex),
			formatFloat(r.Latitude),
			formatFloat(r.Longitude),
			formatFloat(r.PM25Atm),
			formatFloat(r.Temperature),
			formatFloat(r.Humidity),
			formatFloat(r.Pressure),
		}
	}
	return writeAll(w, purpleAirAPIHeader, records)
}
