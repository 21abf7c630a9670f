package domain

import (
	"testing"
	"time"

	"github.com/guregu/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hour(day, h int) time.Time {
	return time.Date(2024, time.June, day, h, 0, 0, 0, time.UTC)
}

func TestNormalizeTime_StripsZone(t *testing.T) {
	loc, err := time.LoadLocation(DefaultTimeZone)
	require.NoError(t, err)

	// 2024-06-02 03:00 UTC is 2024-06-01 20:00 PDT.
	got := NormalizeTime(time.Date(2024, time.June, 2, 3, 0, 0, 0, time.UTC), loc)
	assert.Equal(t, time.Date(2024, time.June, 1, 20, 0, 0, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestClampNonNegative(t *testing.T) {
	assert.Equal(t, null.FloatFrom(0), ClampNonNegative(null.FloatFrom(-3.2)))
	assert.Equal(t, null.FloatFrom(4.1), ClampNonNegative(null.FloatFrom(4.1)))
	assert.False(t, ClampNonNegative(null.Float{}).Valid)
}

func TestCleanHourly_DailyMeanJoinedPerLocationDay(t *testing.T) {
	in := []SensorReading{
		{Time: hour(1, 10), LocationID: "A", PM25Hourly: null.FloatFrom(10)},
		{Time: hour(1, 2), LocationID: "A", PM25Hourly: null.FloatFrom(-4)},
		{Time: hour(1, 5), LocationID: "A", PM25Hourly: null.Float{}},
		{Time: hour(1, 5), LocationID: "B", PM25Hourly: null.FloatFrom(30)},
		{Time: hour(2, 1), LocationID: "A", PM25Hourly: null.FloatFrom(2)},
	}

	out := CleanHourly(in)
	require.Len(t, out, 5)

	// Sorted by time; ties keep input order.
	assert.Equal(t, hour(1, 2), out[0].Time)
	assert.Equal(t, "A", out[1].LocationID)
	assert.Equal(t, "B", out[2].LocationID)
	assert.Equal(t, hour(1, 10), out[3].Time)
	assert.Equal(t, hour(2, 1), out[4].Time)

	// Negative hourly clamps to 0 before averaging: (0 + 10) / 2.
	assert.Equal(t, null.FloatFrom(0), out[0].PM25Hourly)
	for _, i := range []int{0, 1, 3} {
		assert.Equal(t, null.FloatFrom(5), out[i].PM25Daily, "row %d", i)
		assert.Equal(t, null.IntFrom(28), out[i].PM25DailyAQI, "row %d", i)
	}
	assert.False(t, out[1].PM25HourlyAQI.Valid)
	assert.Equal(t, null.FloatFrom(30), out[2].PM25Daily)
	assert.Equal(t, null.FloatFrom(2), out[4].PM25Daily)
	assert.Equal(t, null.IntFrom(56), CleanHourly([]SensorReading{{PM25Hourly: null.FloatFrom(12)}})[0].PM25HourlyAQI)
}

func TestCleanHourly_DoesNotMutateInput(t *testing.T) {
	in := []SensorReading{{Time: hour(1, 1), LocationID: "A", PM25Hourly: null.FloatFrom(-1)}}
	_ = CleanHourly(in)
	assert.Equal(t, null.FloatFrom(-1), in[0].PM25Hourly)
	assert.False(t, in[0].PM25Daily.Valid)
}

func TestCleanHourly_AllNullDay(t *testing.T) {
	out := CleanHourly([]SensorReading{{Time: hour(1, 1), LocationID: "A"}})
	require.Len(t, out, 1)
	assert.False(t, out[0].PM25Daily.Valid)
	assert.False(t, out[0].PM25DailyAQI.Valid)
}

func TestCleanWithDaily_JoinsSuppliedMeans(t *testing.T) {
	in := []SensorReading{
		{Time: hour(1, 1), LocationID: "7", PM25Hourly: null.FloatFrom(3)},
		{Time: hour(2, 1), LocationID: "7", PM25Hourly: null.FloatFrom(4)},
	}
	daily := []DailyMean{
		{LocationID: "7", Day: hour(1, 0), PM25: null.FloatFrom(-2)},
		{LocationID: "7", Day: hour(1, 0), PM25: null.FloatFrom(99)},
	}

	out := CleanWithDaily(in, daily)
	require.Len(t, out, 2)
	assert.Equal(t, null.FloatFrom(0), out[0].PM25Daily)
	assert.Equal(t, null.IntFrom(0), out[0].PM25DailyAQI)
	assert.False(t, out[1].PM25Daily.Valid)
}

func TestMergeSources_StableByTime(t *testing.T) {
	a := []SensorReading{{Time: hour(1, 3), LocationID: "a1"}, {Time: hour(1, 5), LocationID: "a2"}}
	b := []SensorReading{{Time: hour(1, 3), LocationID: "b1"}, {Time: hour(1, 1), LocationID: "b2"}}

	out := MergeSources(a, b)
	var ids []string
	for _, r := range out {
		ids = append(ids, r.LocationID)
	}
	assert.Equal(t, []string{"b2", "a1", "b1", "a2"}, ids)
}
