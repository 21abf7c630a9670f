package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTractGeoID(t *testing.T) {
	assert.Equal(t, "06081604102", TractGeoID(DefaultGeoIDPrefix, 6041.02))
	assert.Equal(t, "06081000100", TractGeoID(DefaultGeoIDPrefix, 1))
	// Rounded, not truncated, so float error in tract*100 cannot drop a digit.
	assert.Equal(t, "06081613801", TractGeoID(DefaultGeoIDPrefix, 6138.01))
}

func TestCompositeRisk(t *testing.T) {
	tracts := []TractAQI{
		{TractID: "b", CombinedAQI: 50},
		{TractID: "a", CombinedAQI: 100},
		{TractID: "c", CombinedAQI: 25},
	}
	health := map[string]float64{"a": 0.2, "b": 0.8}

	got, err := CompositeRisk(tracts, health, 0.7)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "a", got[0].TractID)
	assert.Equal(t, 1.0, got[0].AirNorm)
	assert.InDelta(t, 0.7*1+0.3*0.2, got[0].Risk, 1e-12)

	assert.Equal(t, "b", got[1].TractID)
	assert.Equal(t, 0.5, got[1].AirNorm)
	assert.InDelta(t, 0.7*0.5+0.3*0.8, got[1].Risk, 1e-12)
}

func TestCompositeRisk_Errors(t *testing.T) {
	_, err := CompositeRisk([]TractAQI{{TractID: "a", CombinedAQI: 1}}, nil, 1.5)
	assert.Error(t, err)

	_, err = CompositeRisk([]TractAQI{{TractID: "a", CombinedAQI: 0}}, map[string]float64{"a": 1}, 0.5)
	assert.ErrorIs(t, err, ErrNoData)
}
