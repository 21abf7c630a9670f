package domain

import (
	"fmt"
	"slices"
	"time"
)

// DateWindow is an inclusive range of calendar dates.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// ParseDateWindow parses two YYYY-MM-DD dates. Either may be empty to leave
// that side open.
func ParseDateWindow(start, end string) (DateWindow, error) {
	var w DateWindow
	var err error
	if start != "" {
		if w.Start, err = time.Parse(time.DateOnly, start); err != nil {
			return DateWindow{}, fmt.Errorf("window start: %w", err)
		}
	}
	if end != "" {
		if w.End, err = time.Parse(time.DateOnly, end); err != nil {
			return DateWindow{}, fmt.Errorf("window end: %w", err)
		}
	}
	if !w.Start.IsZero() && !w.End.IsZero() && w.End.Before(w.Start) {
		return DateWindow{}, fmt.Errorf("window end %s before start %s", end, start)
	}
	return w, nil
}

// Contains reports whether t falls on a date within the window.
func (w DateWindow) Contains(t time.Time) bool {
	d := Day(t)
	if !w.Start.IsZero() && d.Before(Day(w.Start)) {
		return false
	}
	if !w.End.IsZero() && d.After(Day(w.End)) {
		return false
	}
	return true
}

func (w DateWindow) String() string {
	f := func(t time.Time) string {
		if t.IsZero() {
			return "*"
		}
		return t.Format(time.DateOnly)
	}
	return f(w.Start) + ".." + f(w.End)
}

// TractMedians is the per-tract median daily AQI of one network.
type TractMedians struct {
	Medians    map[string]float64
	InWindow   int
	Assigned   int
	Unassigned int
}

// MedianAQIByTract assigns each in-window reading with a defined daily AQI to
// its containing tract and returns the median of the pooled values per tract.
// Readings without a location or outside every tract are counted as unassigned.
func MedianAQIByTract(readings []SensorReading, layer *TractLayer, window DateWindow) TractMedians {
	res := TractMedians{Medians: make(map[string]float64)}
	pooled := make(map[string][]float64)
	for _, r := range readings {
		if !window.Contains(r.Time) || !r.PM25DailyAQI.Valid {
			continue
		}
		res.InWindow++
		p, ok := r.Point()
		if !ok {
			res.Unassigned++
			continue
		}
		id, ok := layer.Locate(p)
		if !ok {
			res.Unassigned++
			continue
		}
		res.Assigned++
		pooled[id] = append(pooled[id], float64(r.PM25DailyAQI.Int64))
	}
	for id, vs := range pooled {
		res.Medians[id], _ = Median(vs)
	}
	return res
}

// Median returns the middle value of vs, averaging the two middle values when
// len(vs) is even. It does not modify vs.
func Median(vs []float64) (float64, bool) {
	if len(vs) == 0 {
		return 0, false
	}
	s := slices.Clone(vs)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid], true
	}
	return (s[mid-1] + s[mid]) / 2, true
}
