// Package geojson loads tract layers and writes fused tract values as GeoJSON.
package geojson

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/couchcryptid/aqi-fusion/internal/adapter/csvio"
	"github.com/couchcryptid/aqi-fusion/internal/domain"
	orbjson "github.com/paulmach/orb/geojson"
)

const combinedProperty = "combined_aqi"

// ReadTractLayer reads a FeatureCollection of tract polygons. Each feature's
// id comes from idProperty, which may hold a string or a number.
func ReadTractLayer(r io.Reader, idProperty string) (*domain.TractLayer, error) {
	fc, err := decode(r)
	if err != nil {
		return nil, err
	}
	tracts := make([]domain.Tract, 0, len(fc.Features))
	for i, f := range fc.Features {
		id, ok := propertyID(f.Properties, idProperty)
		if !ok {
			return nil, fmt.Errorf("feature %d: property %q: %w", i, idProperty, domain.ErrMissingColumn)
		}
		tracts = append(tracts, domain.Tract{ID: id, Geometry: f.Geometry})
	}
	return domain.NewTractLayer(tracts)
}

// WriteTracts writes one feature per tract with the tract's geometry, a
// <network>_aqi property per network (null when absent) and combined_aqi.
func WriteTracts(w io.Writer, layer *domain.TractLayer, idProperty string, networks []domain.Network, tracts []domain.TractAQI) error {
	fc := orbjson.NewFeatureCollection()
	for _, t := range tracts {
		tract, ok := layer.Get(t.TractID)
		if !ok {
			return fmt.Errorf("tract %s not in layer", t.TractID)
		}
		f := orbjson.NewFeature(tract.Geometry)
		f.Properties[idProperty] = t.TractID
		for _, n := range networks {
			if v, ok := t.Median(n); ok {
				f.Properties[csvio.NetworkColumn(n)] = v
			} else {
				f.Properties[csvio.NetworkColumn(n)] = nil
			}
		}
		f.Properties[combinedProperty] = t.CombinedAQI
		fc.Append(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal tracts: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// ReadTracts reads a collection written by WriteTracts back into tract values.
func ReadTracts(r io.Reader, idProperty string) ([]domain.TractAQI, error) {
	fc, err := decode(r)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TractAQI, 0, len(fc.Features))
	for i, f := range fc.Features {
		id, ok := propertyID(f.Properties, idProperty)
		if !ok {
			return nil, fmt.Errorf("feature %d: property %q: %w", i, idProperty, domain.ErrMissingColumn)
		}
		combined, ok := f.Properties[combinedProperty].(float64)
		if !ok {
			return nil, fmt.Errorf("feature %s: property %q: %w", id, combinedProperty, domain.ErrMissingColumn)
		}
		t := domain.TractAQI{TractID: id, Medians: make(map[domain.Network]float64), CombinedAQI: combined}
		for key, v := range f.Properties {
			if key == combinedProperty || !strings.HasSuffix(key, "_aqi") {
				continue
			}
			n, err := domain.ParseNetwork(strings.TrimSuffix(key, "_aqi"))
			if err != nil {
				return nil, fmt.Errorf("feature %s: property %q: %w", id, key, err)
			}
			if m, ok := v.(float64); ok {
				t.Medians[n] = m
			}
		}
		t.GapFilled = len(t.Medians) == 0
		out = append(out, t)
	}
	return out, nil
}

func decode(r io.Reader) (*orbjson.FeatureCollection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	fc, err := orbjson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	return fc, nil
}

func propertyID(p orbjson.Properties, key string) (string, bool) {
	switch v := p[key].(type) {
	case string:
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}
