package domain

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fallback = Weights{NetworkClarity: 0.76, NetworkPurpleAir: 0.24}

func TestCombine(t *testing.T) {
	v, ok := Combine(map[Network]float64{NetworkClarity: 100, NetworkPurpleAir: 50}, fallback)
	require.True(t, ok)
	assert.InDelta(t, 88, v, 1e-9)

	v, ok = Combine(map[Network]float64{NetworkPurpleAir: 50}, fallback)
	require.True(t, ok)
	assert.Equal(t, 50.0, v)

	_, ok = Combine(map[Network]float64{}, fallback)
	assert.False(t, ok)

	_, ok = Combine(map[Network]float64{NetworkClarity: 100, NetworkPurpleAir: 50}, Weights{})
	assert.False(t, ok)
}

func TestCombine_SingleNetworkIgnoresItsWeight(t *testing.T) {
	for name, w := range map[string]Weights{
		"missing": {NetworkClarity: 1},
		"zero":    {NetworkClarity: 1, NetworkPurpleAir: 0},
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, w.Validate())
			v, ok := Combine(map[Network]float64{NetworkPurpleAir: 50}, w)
			require.True(t, ok)
			assert.Equal(t, 50.0, v)

			got := Fuse(map[Network]map[string]float64{NetworkPurpleAir: {"T1": 50}}, w, nil)
			want := []TractAQI{{TractID: "T1", Medians: map[Network]float64{NetworkPurpleAir: 50}, CombinedAQI: 50}}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("fuse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFuse_GapFillFromMeasuredNeighbours(t *testing.T) {
	perNetwork := map[Network]map[string]float64{
		NetworkClarity:   {"A": 40, "C": 100},
		NetworkPurpleAir: {"B": 60, "C": 50},
	}
	rules := []GapFillRule{
		{Tract: "X", Neighbors: []string{"A", "B", "missing"}},
		{Tract: "Y", Neighbors: []string{"X", "A"}},
		{Tract: "Z", Neighbors: []string{"nowhere"}},
		{Tract: "C", Neighbors: []string{"A"}},
	}

	got := Fuse(perNetwork, fallback, rules)
	want := []TractAQI{
		{TractID: "A", Medians: map[Network]float64{NetworkClarity: 40}, CombinedAQI: 40},
		{TractID: "B", Medians: map[Network]float64{NetworkPurpleAir: 60}, CombinedAQI: 60},
		{TractID: "C", Medians: map[Network]float64{NetworkClarity: 100, NetworkPurpleAir: 50}, CombinedAQI: 88},
		{TractID: "X", Medians: map[Network]float64{}, CombinedAQI: 50, GapFilled: true},
		// Y reads only measured tracts: X is gap-filled, so Y = A.
		{TractID: "Y", Medians: map[Network]float64{}, CombinedAQI: 40, GapFilled: true},
	}
	approx := cmp.Comparer(func(a, b float64) bool { return a-b < 1e-9 && b-a < 1e-9 })
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("fuse mismatch (-want +got):\n%s", diff)
	}
}

func TestFuse_Empty(t *testing.T) {
	assert.Empty(t, Fuse(nil, fallback, nil))
}

func TestGapFill(t *testing.T) {
	v, ok := GapFill(map[string]float64{"a": 40}, GapFillRule{Tract: "t", Neighbors: []string{"a", "b"}})
	require.True(t, ok)
	assert.Equal(t, 40.0, v)

	_, ok = GapFill(map[string]float64{}, GapFillRule{Tract: "t", Neighbors: []string{"a"}})
	assert.False(t, ok)
}

func TestAssignAndFuse_RepeatableUnderReordering(t *testing.T) {
	layer := testLayer(t)
	clarity := []SensorReading{
		at(-122.44, 37.55, 1, 40), // overlap of 000100 and 000300
		at(-122.48, 37.52, 2, 60),
		at(-122.35, 37.55, 3, 30),
		at(-122.32, 37.58, 4, 35),
		at(-121.95, 37.05, 5, 90),
	}
	purpleair := []SensorReading{
		at(-122.46, 37.56, 1, 55),
		at(-122.36, 37.51, 2, 20),
		at(-122.38, 37.52, 3, 25),
		at(-122.31, 37.54, 4, 28),
	}
	rules := []GapFillRule{{Tract: "06081000900", Neighbors: []string{"06081000100", "06081000200"}}}

	run := func(c, p []SensorReading) ([]TractAQI, map[Network]map[string]float64) {
		perNetwork := map[Network]map[string]float64{
			NetworkClarity:   MedianAQIByTract(c, layer, DateWindow{}).Medians,
			NetworkPurpleAir: MedianAQIByTract(p, layer, DateWindow{}).Medians,
		}
		return Fuse(perNetwork, fallback, rules), perNetwork
	}

	first, firstMedians := run(clarity, purpleair)
	require.NotEmpty(t, first)

	rng := rand.New(rand.NewPCG(7, 11))
	shuffled := func(in []SensorReading) []SensorReading {
		out := slices.Clone(in)
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	}
	for i := 0; i < 5; i++ {
		_, medians := run(shuffled(clarity), shuffled(purpleair))
		if diff := cmp.Diff(firstMedians, medians); diff != "" {
			t.Fatalf("medians changed on pass %d (-first +again):\n%s", i, diff)
		}

		// Rebuild the maps so Fuse iterates them in a fresh order.
		rebuilt := make(map[Network]map[string]float64, len(medians))
		for n, m := range medians {
			rebuilt[n] = make(map[string]float64, len(m))
			for id, v := range m {
				rebuilt[n][id] = v
			}
		}
		if diff := cmp.Diff(first, Fuse(rebuilt, fallback, rules)); diff != "" {
			t.Fatalf("fused tracts changed on pass %d (-first +again):\n%s", i, diff)
		}
	}
}
