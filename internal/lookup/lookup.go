// Package lookup answers point and tract queries over a finished fusion run.
package lookup

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"github.com/couchcryptid/aqi-fusion/internal/predictability"
	"github.com/guregu/null"
	"github.com/paulmach/orb"
)

// ErrNotFound reports an unknown tract.
var ErrNotFound = errors.New("not found")

// Service holds the published tract table and its supporting layers.
type Service struct {
	layer    *domain.TractLayer
	networks []domain.Network
	tracts   []domain.TractAQI
	byID     map[string]domain.TractAQI
	health   map[string]float64
	monitors *predictability.Index
}

// New builds a Service. health and monitors may be nil, in which case risk
// and predictability are omitted from lookups.
func New(layer *domain.TractLayer, networks []domain.Network, tracts []domain.TractAQI, health map[string]float64, monitors *predictability.Index) *Service {
	byID := make(map[string]domain.TractAQI, len(tracts))
	for _, t := range tracts {
		byID[t.TractID] = t
	}
	if monitors == nil {
		monitors = predictability.NewIndex(nil)
	}
	return &Service{
		layer:    layer,
		networks: networks,
		tracts:   tracts,
		byID:     byID,
		health:   health,
		monitors: monitors,
	}
}

// Networks returns the networks reported per tract.
func (s *Service) Networks() []domain.Network { return s.networks }

// Tracts returns every tract, sorted by id.
func (s *Service) Tracts() []domain.TractAQI { return s.tracts }

// Tract returns one tract's values.
func (s *Service) Tract(id string) (domain.TractAQI, error) {
	t, ok := s.byID[id]
	if !ok {
		return domain.TractAQI{}, fmt.Errorf("tract %s: %w", id, ErrNotFound)
	}
	return t, nil
}

// Risk computes the composite risk of every tract with a health index.
// airWeight is the air-quality share in [0, 1].
func (s *Service) Risk(airWeight float64) ([]domain.TractRisk, error) {
	if len(s.health) == 0 {
		return nil, fmt.Errorf("health risk table: %w", domain.ErrNoData)
	}
	return domain.CompositeRisk(s.tracts, s.health, airWeight)
}

// Result answers a point lookup.
type Result struct {
	Latitude       float64                   `json:"latitude"`
	Longitude      float64                   `json:"longitude"`
	TractID        string                    `json:"tract_id,omitempty"`
	Tract          *domain.TractAQI          `json:"tract,omitempty"`
	Risk           *domain.TractRisk         `json:"risk,omitempty"`
	Nearest        []predictability.Neighbor `json:"nearest_monitors"`
	Predictability null.Float                `json:"predictability"`
}

// Lookup locates the tract containing (lat, lon) and reports its fused AQI,
// its composite risk at airWeight, the nearest monitors and the estimated
// predictability at the point.
func (s *Service) Lookup(lat, lon, airWeight float64) (Result, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Result{}, fmt.Errorf("coordinates (%v, %v) out of range", lat, lon)
	}
	p := orb.Point{lon, lat}
	res := Result{
		Latitude:  lat,
		Longitude: lon,
		Nearest:   s.monitors.Nearest(p, predictability.DefaultNeighbors),
	}
	res.Predictability = null.NewFloat(s.monitors.Estimate(p, predictability.DefaultNeighbors))

	id, ok := s.layer.Locate(p)
	if !ok {
		return res, nil
	}
	res.TractID = id
	if t, ok := s.byID[id]; ok {
		res.Tract = &t
	}
	if len(s.health) > 0 {
		risks, err := domain.CompositeRisk(s.tracts, s.health, airWeight)
		if err != nil && !errors.Is(err, domain.ErrNoData) {
			return Result{}, err
		}
		for i := range risks {
			if risks[i].TractID == id {
				res.Risk = &risks[i]
				break
			}
		}
	}
	return res, nil
}
