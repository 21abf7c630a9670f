package domain

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Tract is one census tract polygon.
type Tract struct {
	ID       string
	Geometry orb.Geometry
	bound    orb.Bound
}

// TractLayer is an ordered set of tracts with unique ids.
type TractLayer struct {
	tracts []Tract
	byID   map[string]int
}

// NewTractLayer validates and indexes tracts. Geometries must be polygons or
// multipolygons; ids must be non-empty and unique.
func NewTractLayer(tracts []Tract) (*TractLayer, error) {
	l := &TractLayer{
		tracts: make([]Tract, 0, len(tracts)),
		byID:   make(map[string]int, len(tracts)),
	}
	for i, t := range tracts {
		if t.ID == "" {
			return nil, fmt.Errorf("tract %d: empty id", i)
		}
		if _, dup := l.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate tract id %q", t.ID)
		}
		switch t.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		case nil:
			return nil, fmt.Errorf("tract %q: missing geometry", t.ID)
		default:
			return nil, fmt.Errorf("tract %q: unsupported geometry %s", t.ID, t.Geometry.GeoJSONType())
		}
		t.bound = t.Geometry.Bound()
		l.byID[t.ID] = len(l.tracts)
		l.tracts = append(l.tracts, t)
	}
	return l, nil
}

// Len returns the number of tracts.
func (l *TractLayer) Len() int { return len(l.tracts) }

// Tracts returns the tracts in layer order.
func (l *TractLayer) Tracts() []Tract { return l.tracts }

// Get returns the tract with the given id.
func (l *TractLayer) Get(id string) (Tract, bool) {
	i, ok := l.byID[id]
	if !ok {
		return Tract{}, false
	}
	return l.tracts[i], true
}

// Locate returns the id of the first tract in layer order containing p.
func (l *TractLayer) Locate(p orb.Point) (string, bool) {
	for _, t := range l.tracts {
		if !t.bound.Contains(p) {
			continue
		}
		if contains(t.Geometry, p) {
			return t.ID, true
		}
	}
	return "", false
}

func contains(g orb.Geometry, p orb.Point) bool {
	switch g := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	}
	return false
}
