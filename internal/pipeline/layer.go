package pipeline

import (
	"io"

	"github.com/couchcryptid/aqi-fusion/internal/adapter/geojson"
	"github.com/couchcryptid/aqi-fusion/internal/domain"
)

// LoadTractLayer reads the tract layer GeoJSON at path.
func LoadTractLayer(path, idProperty string) (*domain.TractLayer, error) {
	var layer *domain.TractLayer
	err := withFile(path, func(r io.Reader) error {
		var err error
		layer, err = geojson.ReadTractLayer(r, idProperty)
		return err
	})
	return layer, err
}
