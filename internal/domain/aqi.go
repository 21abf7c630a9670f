package domain

import (
	"math"
	"strconv"
	"strings"

	"github.com/guregu/null"
)

// BreakpointRow maps a concentration band onto an index band.
type BreakpointRow struct {
	ConcLow   float64
	ConcHigh  float64
	IndexLow  int
	IndexHigh int
}

// PM25Breakpoints is the EPA PM2.5 table, µg/m³ to AQI.
var PM25Breakpoints = []BreakpointRow{
	{0.0, 9.0, 0, 50},
	{9.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 125.4, 151, 200},
	{125.5, 225.4, 201, 300},
	{225.5, 500.4, 301, 500},
}

// ConcentrationToAQI converts a PM2.5 concentration to its AQI. The result is
// invalid for a null, negative, non-finite, or off-table concentration.
func ConcentrationToAQI(c null.Float) null.Int {
	if !c.Valid || c.Float64 < 0 || math.IsNaN(c.Float64) || math.IsInf(c.Float64, 0) {
		return null.Int{}
	}
	conc := truncateTenths(c.Float64)
	for _, row := range PM25Breakpoints {
		if conc < row.ConcLow || conc > row.ConcHigh {
			continue
		}
		idx := float64(row.IndexHigh-row.IndexLow)/(row.ConcHigh-row.ConcLow)*(conc-row.ConcLow) + float64(row.IndexLow)
		return null.IntFrom(int64(math.RoundToEven(idx)))
	}
	return null.Int{}
}

// truncateTenths drops every digit after the first decimal of the shortest
// decimal form of v, so 9.05 becomes 9.0 and 35.49 becomes 35.4.
func truncateTenths(v float64) float64 {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 || len(s)-dot <= 2 {
		return v
	}
	t, err := strconv.ParseFloat(s[:dot+2], 64)
	if err != nil {
		return v
	}
	return t
}
