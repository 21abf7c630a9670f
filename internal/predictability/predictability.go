// Package predictability estimates how predictable air quality is at an
// arbitrary point from the scores of nearby monitors.
package predictability

import (
	"cmp"
	"slices"

	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"github.com/guregu/null"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// DefaultNeighbors is the number of monitors consulted per estimate.
const DefaultNeighbors = 5

const metersPerMile = 1609.344

// Monitor is a scored sensor location.
type Monitor struct {
	LocationID     string         `json:"location_id"`
	Network        domain.Network `json:"network"`
	Point          orb.Point      `json:"-"`
	Predictability float64        `json:"predictability"`
	Consistency    null.Float     `json:"consistency"`
}

// NetworkFor infers a monitor's network from its id: PurpleAir sensor
// indices are numeric, Clarity datasource ids are not.
func NetworkFor(locationID string) domain.Network {
	if locationID == "" {
		return domain.NetworkClarity
	}
	for _, r := range locationID {
		if r < '0' || r > '9' {
			return domain.NetworkClarity
		}
	}
	return domain.NetworkPurpleAir
}

// Neighbor is a monitor with its distance from a query point.
type Neighbor struct {
	Monitor
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	DistanceMiles float64 `json:"distance_miles"`
}

// Index answers nearest-monitor queries.
type Index struct {
	monitors []Monitor
}

// NewIndex copies monitors into an index.
func NewIndex(monitors []Monitor) *Index {
	return &Index{monitors: slices.Clone(monitors)}
}

// Len returns the number of monitors.
func (i *Index) Len() int { return len(i.monitors) }

// Nearest returns up to k monitors ordered by great-circle distance from p,
// ties broken by location id.
func (i *Index) Nearest(p orb.Point, k int) []Neighbor {
	all := make([]Neighbor, len(i.monitors))
	for j, m := range i.monitors {
		all[j] = Neighbor{
			Monitor:       m,
			Latitude:      m.Point.Lat(),
			Longitude:     m.Point.Lon(),
			DistanceMiles: geo.DistanceHaversine(p, m.Point) / metersPerMile,
		}
	}
	slices.SortFunc(all, func(a, b Neighbor) int {
		if c := cmp.Compare(a.DistanceMiles, b.DistanceMiles); c != 0 {
			return c
		}
		return cmp.Compare(a.LocationID, b.LocationID)
	})
	if k < len(all) {
		all = all[:k]
	}
	return all
}

// Estimate returns the inverse-distance-weighted mean predictability of the k
// nearest monitors. A monitor at p contributes its own value alone.
func (i *Index) Estimate(p orb.Point, k int) (float64, bool) {
	neighbors := i.Nearest(p, k)
	if len(neighbors) == 0 {
		return 0, false
	}
	var num, den float64
	for _, n := range neighbors {
		if n.DistanceMiles == 0 {
			return n.Predictability, true
		}
		w := 1 / n.DistanceMiles
		num += w * n.Predictability
		den += w
	}
	return num / den, true
}
