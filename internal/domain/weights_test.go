package domain

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/guregu/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func daily(name string, h int, v float64) SensorReading {
	return SensorReading{Time: hour(1, h), LocationName: name, LocationID: name + "-id", PM25Daily: null.FloatFrom(v)}
}

func TestFindOverlap_JoinsOnTimeAndName(t *testing.T) {
	tables := map[Network][]SensorReading{
		NetworkClarity: {
			daily("Site", 1, 0), daily("Site", 2, 2), daily("Site", 3, 4),
			daily("Other", 1, 50),
			{Time: hour(1, 4), LocationName: "Site"},
		},
		NetworkPurpleAir: {
			daily("Site", 3, 2), daily("Site", 1, 0), daily("Site", 2, 1),
			daily("Site", 4, 7),
		},
	}

	o := FindOverlap(tables, OverlapByLocationName)
	assert.Equal(t, []Network{NetworkClarity, NetworkPurpleAir}, o.Networks)
	want := [][]float64{{0, 0}, {2, 1}, {4, 2}}
	if diff := cmp.Diff(want, o.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestFindOverlap_ByLocationIDIgnoresNames(t *testing.T) {
	tables := map[Network][]SensorReading{
		NetworkClarity:   {daily("A", 1, 3)},
		NetworkPurpleAir: {daily("B", 1, 5)},
	}
	assert.Empty(t, FindOverlap(tables, OverlapByLocationName).Rows)
	assert.Empty(t, FindOverlap(tables, OverlapByLocationID).Rows)

	tables[NetworkPurpleAir][0].LocationID = "A-id"
	assert.Equal(t, [][]float64{{3, 5}}, FindOverlap(tables, OverlapByLocationID).Rows)
}

func TestFindOverlap_DuplicateKeysExpand(t *testing.T) {
	tables := map[Network][]SensorReading{
		NetworkClarity:   {daily("S", 1, 1), daily("S", 1, 2)},
		NetworkPurpleAir: {daily("S", 1, 10), daily("S", 1, 20)},
	}
	o := FindOverlap(tables, OverlapByLocationName)
	assert.Equal(t, [][]float64{{1, 10}, {1, 20}, {2, 10}, {2, 20}}, o.Rows)
}

func TestInverseVarianceWeights(t *testing.T) {
	o := Overlap{
		Networks: []Network{NetworkClarity, NetworkPurpleAir},
		Rows:     [][]float64{{0, 0}, {2, 1}, {4, 2}},
	}
	// Sample variances 4 and 1.
	w, err := InverseVarianceWeights(o)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, w[NetworkClarity], 1e-12)
	assert.InDelta(t, 0.8, w[NetworkPurpleAir], 1e-12)
	assert.NoError(t, w.Validate())
}

func TestInverseVarianceWeights_Insufficient(t *testing.T) {
	o := Overlap{Networks: []Network{NetworkClarity, NetworkPurpleAir}, Rows: [][]float64{{1, 2}}}
	_, err := InverseVarianceWeights(o)
	assert.True(t, errors.Is(err, ErrInsufficientOverlap))

	_, err = InverseVarianceWeights(Overlap{Networks: []Network{NetworkClarity, NetworkPurpleAir}})
	assert.ErrorIs(t, err, ErrInsufficientOverlap)
}

func TestInverseVarianceWeights_ZeroVariance(t *testing.T) {
	o := Overlap{
		Networks: []Network{NetworkClarity, NetworkPurpleAir},
		Rows:     [][]float64{{3, 1}, {3, 2}, {3, 5}},
	}
	_, err := InverseVarianceWeights(o)
	assert.ErrorIs(t, err, ErrZeroVariance)
}

func TestWeights_Validate(t *testing.T) {
	assert.NoError(t, Weights{NetworkClarity: 0.76, NetworkPurpleAir: 0.24}.Validate())
	assert.Error(t, Weights{NetworkClarity: 0.5, NetworkPurpleAir: 0.6}.Validate())
	assert.Error(t, Weights{NetworkClarity: -0.2, NetworkPurpleAir: 1.2}.Validate())
	assert.ErrorIs(t, Weights{}.Validate(), ErrNoData)
}

func TestWeights_String(t *testing.T) {
	w := Weights{NetworkPurpleAir: 0.24, NetworkClarity: 0.76}
	assert.Equal(t, "clarity=0.7600 purpleair=0.2400", w.String())
}

func TestParseOverlapKey(t *testing.T) {
	k, err := ParseOverlapKey("")
	require.NoError(t, err)
	assert.Equal(t, OverlapByLocationName, k)
	_, err = ParseOverlapKey("sensor")
	assert.Error(t, err)
}
