package domain

import (
	"math"
	"slices"
	"time"

	"github.com/guregu/null"
)

// DefaultTimeZone is the zone canonical timestamps are expressed in.
const DefaultTimeZone = "America/Los_Angeles"

// NormalizeTime converts t into loc and returns the same wall clock with the
// zone stripped (location UTC).
func NormalizeTime(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC)
}

// ClampNonNegative maps negative concentrations to 0 and non-finite ones to null.
func ClampNonNegative(v null.Float) null.Float {
	if !v.Valid {
		return v
	}
	if math.IsNaN(v.Float64) || math.IsInf(v.Float64, 0) {
		return null.Float{}
	}
	if v.Float64 < 0 {
		return null.FloatFrom(0)
	}
	return v
}

type dayKey struct {
	locationID string
	day        time.Time
}

// CleanHourly returns a cleaned copy of readings: hourly concentrations are
// clamped, the mean of each (location, day) is joined onto every row of that
// day, and AQI is computed for both. The result is sorted by time.
func CleanHourly(readings []SensorReading) []SensorReading {
	out := clampHourly(readings)

	type acc struct {
		sum float64
		n   int
	}
	sums := make(map[dayKey]*acc)
	for _, r := range out {
		k := dayKey{r.LocationID, r.Day()}
		a, ok := sums[k]
		if !ok {
			a = &acc{}
			sums[k] = a
		}
		if r.PM25Hourly.Valid {
			a.sum += r.PM25Hourly.Float64
			a.n++
		}
	}

	for i := range out {
		a := sums[dayKey{out[i].LocationID, out[i].Day()}]
		if a.n > 0 {
			out[i].PM25Daily = ClampNonNegative(null.FloatFrom(a.sum / float64(a.n)))
		} else {
			out[i].PM25Daily = null.Float{}
		}
	}
	return finishClean(out)
}

// CleanWithDaily is CleanHourly for sources that ship their own daily means.
// The daily value for each (location, day) is joined instead of computed;
// days absent from daily get a null 24h mean. When daily lists a day more
// than once the first row wins.
func CleanWithDaily(readings []SensorReading, daily []DailyMean) []SensorReading {
	out := clampHourly(readings)

	means := make(map[dayKey]null.Float, len(daily))
	for _, d := range daily {
		k := dayKey{d.LocationID, Day(d.Day)}
		if _, seen := means[k]; !seen {
			means[k] = ClampNonNegative(d.PM25)
		}
	}
	for i := range out {
		out[i].PM25Daily = means[dayKey{out[i].LocationID, out[i].Day()}]
	}
	return finishClean(out)
}

// MergeSources concatenates cleaned tables of one network and stably sorts the
// result by time. Duplicate (location, time) rows are kept.
func MergeSources(tables ...[]SensorReading) []SensorReading {
	var n int
	for _, t := range tables {
		n += len(t)
	}
	out := make([]SensorReading, 0, n)
	for _, t := range tables {
		out = append(out, t...)
	}
	sortByTime(out)
	return out
}

func clampHourly(readings []SensorReading) []SensorReading {
	out := make([]SensorReading, len(readings))
	for i, r := range readings {
		r.PM25Hourly = ClampNonNegative(r.PM25Hourly)
		out[i] = r
	}
	return out
}

func finishClean(out []SensorReading) []SensorReading {
	for i := range out {
		out[i].PM25HourlyAQI = ConcentrationToAQI(out[i].PM25Hourly)
		out[i].PM25DailyAQI = ConcentrationToAQI(out[i].PM25Daily)
	}
	sortByTime(out)
	return out
}

func sortByTime(rs []SensorReading) {
	slices.SortStableFunc(rs, func(a, b SensorReading) int {
		return a.Time.Compare(b.Time)
	})
}
