package domain

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// DefaultGeoIDPrefix is the state+county FIPS prefix of San Mateo County, CA.
const DefaultGeoIDPrefix = "06081"

// TractGeoID builds an 11-digit tract geoid from a decimal tract number such
// as 6041.02.
func TractGeoID(prefix string, tractNumber float64) string {
	return fmt.Sprintf("%s%06d", prefix, int64(math.Round(tractNumber*100)))
}

// TractRisk is a tract's composite of air quality and health risk.
type TractRisk struct {
	TractID     string  `json:"tract_id"`
	CombinedAQI float64 `json:"combined_aqi"`
	AirNorm     float64 `json:"air_norm"`
	HealthIndex float64 `json:"health_index"`
	Risk        float64 `json:"risk"`
}

// AirWeightPresets are the commonly offered air/health mixes, as air share in percent.
var AirWeightPresets = []int{50, 70, 30}

// CompositeRisk scores each tract present in both tracts and health:
// risk = a*air_norm + (1-a)*health, where air_norm is the combined AQI divided
// by the maximum combined AQI over tracts. The result is sorted by tract id.
func CompositeRisk(tracts []TractAQI, health map[string]float64, airWeight float64) ([]TractRisk, error) {
	if airWeight < 0 || airWeight > 1 || math.IsNaN(airWeight) {
		return nil, fmt.Errorf("air weight %v outside [0, 1]", airWeight)
	}

	var maxAQI float64
	for _, t := range tracts {
		maxAQI = max(maxAQI, t.CombinedAQI)
	}
	if maxAQI <= 0 {
		return nil, fmt.Errorf("no positive combined AQI: %w", ErrNoData)
	}

	out := make([]TractRisk, 0, len(tracts))
	for _, t := range tracts {
		h, ok := health[t.TractID]
		if !ok {
			continue
		}
		norm := t.CombinedAQI / maxAQI
		out = append(out, TractRisk{
			TractID:     t.TractID,
			CombinedAQI: t.CombinedAQI,
			AirNorm:     norm,
			HealthIndex: h,
			Risk:        airWeight*norm + (1-airWeight)*h,
		})
	}
	slices.SortFunc(out, func(a, b TractRisk) int { return cmp.Compare(a.TractID, b.TractID) })
	return out, nil
}
