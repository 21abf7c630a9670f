package predictability

import (
	"testing"

	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIndex() *Index {
	return NewIndex([]Monitor{
		{LocationID: "far", Point: orb.Point{-122.0, 38.0}, Predictability: 0.1},
		{LocationID: "A1", Point: orb.Point{-122.30, 37.50}, Predictability: 0.8},
		{LocationID: "12345", Point: orb.Point{-122.32, 37.50}, Network: domain.NetworkPurpleAir, Predictability: 0.4},
		{LocationID: "B2", Point: orb.Point{-122.40, 37.60}, Predictability: 0.6},
	})
}

func TestNetworkFor(t *testing.T) {
	assert.Equal(t, domain.NetworkPurpleAir, NetworkFor("131075"))
	assert.Equal(t, domain.NetworkClarity, NetworkFor("DAABL1560"))
	assert.Equal(t, domain.NetworkClarity, NetworkFor(""))
}

func TestIndex_Nearest(t *testing.T) {
	idx := testIndex()
	got := idx.Nearest(orb.Point{-122.305, 37.50}, 2)
	require.Len(t, got, 2)

	assert.Equal(t, "A1", got[0].LocationID)
	assert.Equal(t, "12345", got[1].LocationID)
	assert.InDelta(t, 0.27, got[0].DistanceMiles, 0.01)
	assert.InDelta(t, 0.82, got[1].DistanceMiles, 0.01)
	assert.Equal(t, 37.50, got[0].Latitude)
	assert.Equal(t, domain.NetworkPurpleAir, got[1].Network)

	assert.Len(t, idx.Nearest(orb.Point{-122.31, 37.50}, 10), 4)
}

func TestIndex_Estimate(t *testing.T) {
	idx := testIndex()

	// A1 is three times closer than 12345: (3*0.8 + 1*0.4) / 4.
	v, ok := idx.Estimate(orb.Point{-122.305, 37.50}, 2)
	require.True(t, ok)
	assert.InDelta(t, 0.7, v, 1e-4)

	v, ok = idx.Estimate(orb.Point{-122.40, 37.60}, DefaultNeighbors)
	require.True(t, ok)
	assert.Equal(t, 0.6, v, "exact hit")

	_, ok = NewIndex(nil).Estimate(orb.Point{0, 0}, 5)
	assert.False(t, ok)
}
