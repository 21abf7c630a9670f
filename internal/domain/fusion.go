package domain

import (
	"cmp"
	"slices"
)

// TractAQI is the fused air-quality value of one tract.
type TractAQI struct {
	TractID     string              `json:"tract_id"`
	Medians     map[Network]float64 `json:"medians"`
	CombinedAQI float64             `json:"combined_aqi"`
	GapFilled   bool                `json:"gap_filled"`
}

// Median returns the tract's median for network n.
func (t TractAQI) Median(n Network) (float64, bool) {
	v, ok := t.Medians[n]
	return v, ok
}

// GapFillRule derives a tract's value from the mean of its neighbours.
type GapFillRule struct {
	Tract     string
	Neighbors []string
}

// Combine fuses per-network medians. Only networks present in medians take
// part and their weights are renormalised. A single network contributes its
// own median unchanged whatever its weight. It returns false when medians is
// empty or the present networks carry no weight at all.
func Combine(medians map[Network]float64, w Weights) (float64, bool) {
	if len(medians) == 1 {
		for _, m := range medians {
			return m, true
		}
	}
	var num, den float64
	for n, m := range medians {
		wn, ok := w[n]
		if !ok {
			continue
		}
		num += wn * m
		den += wn
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// Fuse combines per-network tract medians (network -> tract -> median) into
// one TractAQI per tract, then applies gap-fill rules. Gap-filled values are
// means over measured tracts only. A rule whose target is already measured is
// ignored. The result is sorted by tract id.
func Fuse(perNetwork map[Network]map[string]float64, w Weights, rules []GapFillRule) []TractAQI {
	byTract := make(map[string]map[Network]float64)
	for n, medians := range perNetwork {
		for id, m := range medians {
			if byTract[id] == nil {
				byTract[id] = make(map[Network]float64)
			}
			byTract[id][n] = m
		}
	}

	measured := make(map[string]float64, len(byTract))
	out := make([]TractAQI, 0, len(byTract)+len(rules))
	for id, medians := range byTract {
		combined, ok := Combine(medians, w)
		if !ok {
			continue
		}
		measured[id] = combined
		out = append(out, TractAQI{TractID: id, Medians: medians, CombinedAQI: combined})
	}

	for _, rule := range rules {
		if _, ok := measured[rule.Tract]; ok {
			continue
		}
		v, ok := GapFill(measured, rule)
		if !ok {
			continue
		}
		out = append(out, TractAQI{TractID: rule.Tract, Medians: map[Network]float64{}, CombinedAQI: v, GapFilled: true})
	}

	slices.SortFunc(out, func(a, b TractAQI) int { return cmp.Compare(a.TractID, b.TractID) })
	return out
}

// GapFill returns the mean of the rule's neighbours present in measured.
func GapFill(measured map[string]float64, rule GapFillRule) (float64, bool) {
	var sum float64
	var n int
	for _, id := range rule.Neighbors {
		if v, ok := measured[id]; ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
