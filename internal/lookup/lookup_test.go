package lookup

import (
	"testing"

	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"github.com/couchcryptid/aqi-fusion/internal/predictability"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(minLon, minLat, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minLon, minLat}, {minLon + size, minLat}, {minLon + size, minLat + size},
		{minLon, minLat + size}, {minLon, minLat},
	}}
}

func testService(t *testing.T) *Service {
	t.Helper()
	layer, err := domain.NewTractLayer([]domain.Tract{
		{ID: "06081600100", Geometry: square(-122.5, 37.5, 0.1)},
		{ID: "06081600200", Geometry: square(-122.4, 37.5, 0.1)},
		{ID: "06081600300", Geometry: square(-122.3, 37.5, 0.1)},
	})
	require.NoError(t, err)

	tracts := []domain.TractAQI{
		{TractID: "06081600100", Medians: map[domain.Network]float64{domain.NetworkClarity: 80}, CombinedAQI: 80},
		{TractID: "06081600200", Medians: map[domain.Network]float64{domain.NetworkPurpleAir: 40}, CombinedAQI: 40},
	}
	health := map[string]float64{"06081600100": 0.5, "06081600200": 1}
	monitors := predictability.NewIndex([]predictability.Monitor{
		{LocationID: "m1", Point: orb.Point{-122.45, 37.55}, Predictability: 0.9},
	})
	return New(layer, []domain.Network{domain.NetworkClarity, domain.NetworkPurpleAir}, tracts, health, monitors)
}

func TestService_Tract(t *testing.T) {
	s := testService(t)
	got, err := s.Tract("06081600200")
	require.NoError(t, err)
	assert.Equal(t, 40.0, got.CombinedAQI)

	_, err = s.Tract("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, s.Tracts(), 2)
}

func TestService_Risk(t *testing.T) {
	s := testService(t)
	risks, err := s.Risk(0.5)
	require.NoError(t, err)
	require.Len(t, risks, 2)
	assert.InDelta(t, 0.75, risks[0].Risk, 1e-12)
	assert.InDelta(t, 0.75, risks[1].Risk, 1e-12)

	_, err = New(s.layer, nil, s.tracts, nil, nil).Risk(0.5)
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestService_Lookup(t *testing.T) {
	s := testService(t)

	res, err := s.Lookup(37.55, -122.45, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "06081600100", res.TractID)
	require.NotNil(t, res.Tract)
	assert.Equal(t, 80.0, res.Tract.CombinedAQI)
	require.NotNil(t, res.Risk)
	assert.InDelta(t, 0.7+0.3*0.5, res.Risk.Risk, 1e-12)
	require.Len(t, res.Nearest, 1)
	assert.Equal(t, 0.9, res.Predictability.Float64)

	// Tract in the layer without a fused value.
	res, err = s.Lookup(37.55, -122.25, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "06081600300", res.TractID)
	assert.Nil(t, res.Tract)
	assert.Nil(t, res.Risk)

	// Outside every tract.
	res, err = s.Lookup(10, 10, 0.5)
	require.NoError(t, err)
	assert.Empty(t, res.TractID)
	assert.True(t, res.Predictability.Valid)

	_, err = s.Lookup(91, 0, 0.5)
	assert.Error(t, err)
}

func TestService_LookupWithoutMonitors(t *testing.T) {
	s := New(testService(t).layer, nil, nil, nil, nil)
	res, err := s.Lookup(37.55, -122.45, 0.5)
	require.NoError(t, err)
	assert.Empty(t, res.Nearest)
	assert.False(t, res.Predictability.Valid)
}

func TestHolder(t *testing.T) {
	var h Holder
	assert.Nil(t, h.Current())
	assert.Error(t, h.CheckReadiness(t.Context()))

	s := testService(t)
	h.Store(s)
	assert.Same(t, s, h.Current())
	assert.NoError(t, h.CheckReadiness(t.Context()))
}
