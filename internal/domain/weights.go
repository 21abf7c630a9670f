package domain

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

// OverlapKey selects the reading field used, together with time, to pair
// readings from different networks.
type OverlapKey string

const (
	OverlapByLocationName OverlapKey = "location_name"
	OverlapByLocationID   OverlapKey = "location_id"
)

// ParseOverlapKey validates an overlap key name. Empty selects location_name.
func ParseOverlapKey(s string) (OverlapKey, error) {
	switch OverlapKey(s) {
	case "", OverlapByLocationName:
		return OverlapByLocationName, nil
	case OverlapByLocationID:
		return OverlapByLocationID, nil
	default:
		return "", fmt.Errorf("unknown overlap key %q", s)
	}
}

func (k OverlapKey) value(r SensorReading) string {
	if k == OverlapByLocationID {
		return r.LocationID
	}
	return r.LocationName
}

// NetworkWeight is one network's share of the fused value.
type NetworkWeight struct {
	Network Network `json:"network"`
	Weight  float64 `json:"weight"`
}

// Weights maps each network to its fusion weight.
type Weights map[Network]float64

// Sorted returns the weights ordered by network name.
func (w Weights) Sorted() []NetworkWeight {
	out := make([]NetworkWeight, 0, len(w))
	for n, v := range w {
		out = append(out, NetworkWeight{Network: n, Weight: v})
	}
	slices.SortFunc(out, func(a, b NetworkWeight) int { return cmp.Compare(a.Network, b.Network) })
	return out
}

// Validate checks that every weight is finite and non-negative and that the
// weights sum to 1.
func (w Weights) Validate() error {
	if len(w) == 0 {
		return fmt.Errorf("weights: %w", ErrNoData)
	}
	var sum float64
	for n, v := range w {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("weight for %s must be a non-negative number, got %v", n, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("weights must sum to 1, got %v", sum)
	}
	return nil
}

func (w Weights) String() string {
	parts := make([]string, 0, len(w))
	for _, nw := range w.Sorted() {
		parts = append(parts, fmt.Sprintf("%s=%.4f", nw.Network, nw.Weight))
	}
	return strings.Join(parts, " ")
}

// Overlap holds paired 24h means: Rows[i][j] is network Networks[j]'s value
// in the i-th joined row.
type Overlap struct {
	Networks []Network
	Rows     [][]float64
}

// Column returns the values of network n across all rows.
func (o Overlap) Column(n Network) []float64 {
	j := slices.Index(o.Networks, n)
	if j < 0 {
		return nil
	}
	col := make([]float64, len(o.Rows))
	for i, row := range o.Rows {
		col[i] = row[j]
	}
	return col
}

type overlapKey struct {
	t   time.Time
	key string
}

// FindOverlap inner-joins the tables on (time, key). Readings without a 24h
// mean never join. Keys present more than once in a table pair with every
// matching row of the other tables. Rows are ordered by time, key, then input
// order.
func FindOverlap(tables map[Network][]SensorReading, key OverlapKey) Overlap {
	networks := make([]Network, 0, len(tables))
	for n := range tables {
		networks = append(networks, n)
	}
	slices.Sort(networks)

	o := Overlap{Networks: networks}
	if len(networks) == 0 {
		return o
	}

	grouped := make([]map[overlapKey][]float64, len(networks))
	for j, n := range networks {
		g := make(map[overlapKey][]float64)
		for _, r := range tables[n] {
			if !r.PM25Daily.Valid {
				continue
			}
			k := overlapKey{r.Time, key.value(r)}
			g[k] = append(g[k], r.PM25Daily.Float64)
		}
		grouped[j] = g
	}

	keys := make([]overlapKey, 0, len(grouped[0]))
	for k := range grouped[0] {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b overlapKey) int {
		if c := a.t.Compare(b.t); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})

	for _, k := range keys {
		groups := make([][]float64, len(networks))
		complete := true
		for j := range networks {
			groups[j] = grouped[j][k]
			if len(groups[j]) == 0 {
				complete = false
				break
			}
		}
		if complete {
			o.Rows = appendProduct(o.Rows, groups)
		}
	}
	return o
}

// appendProduct appends the cartesian product of groups to rows.
func appendProduct(rows [][]float64, groups [][]float64) [][]float64 {
	idx := make([]int, len(groups))
	for {
		row := make([]float64, len(groups))
		for j, g := range groups {
			row[j] = g[idx[j]]
		}
		rows = append(rows, row)

		j := len(groups) - 1
		for ; j >= 0; j-- {
			idx[j]++
			if idx[j] < len(groups[j]) {
				break
			}
			idx[j] = 0
		}
		if j < 0 {
			return rows
		}
	}
}

// InverseVarianceWeights estimates weights from the overlap: each network's
// weight is proportional to the reciprocal of its sample variance.
func InverseVarianceWeights(o Overlap) (Weights, error) {
	if len(o.Networks) < 2 || len(o.Rows) < 2 {
		return nil, fmt.Errorf("%d overlapping rows across %d networks: %w", len(o.Rows), len(o.Networks), ErrInsufficientOverlap)
	}

	inv := make(map[Network]float64, len(o.Networks))
	var total float64
	for _, n := range o.Networks {
		v := stat.Variance(o.Column(n), nil)
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("network %s variance %v: %w", n, v, ErrZeroVariance)
		}
		inv[n] = 1 / v
		total += inv[n]
	}

	w := make(Weights, len(inv))
	for n, x := range inv {
		w[n] = x / total
	}
	return w, nil
}
