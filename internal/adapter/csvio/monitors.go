package csvio

import (
	"fmt"
	"io"

	"github.com/couchcryptid/aqi-fusion/internal/predictability"
	"github.com/paulmach/orb"
)

// ReadMonitors reads the monitor score table. Rows without coordinates or a
// predictability score are skipped; malformed numbers are errors.
func ReadMonitors(r io.Reader) ([]predictability.Monitor, error) {
	t, err := readTable(r, "location_id", "latitude", "longitude", "predictability")
	if err != nil {
		return nil, fmt.Errorf("monitor scores: %w", err)
	}
	out := make([]predictability.Monitor, 0, len(t.rows))
	for i, row := range t.rows {
		c := t.cells(row)
		id := t.get(row, "location_id")
		consistency := c.float("consistency")
		lat := c.float("latitude")
		lon := c.float("longitude")
		score := c.float("predictability")
		if c.err != nil {
			return nil, fmt.Errorf("monitor scores line %d: %w", line(i), c.err)
		}
		if id == "" || !lat.Valid || !lon.Valid || !score.Valid {
			continue
		}
		out = append(out, predictability.Monitor{
			LocationID:     id,
			Network:        predictability.NetworkFor(id),
			Point:          orb.Point{lon.Float64, lat.Float64},
			Predictability: score.Float64,
			Consistency:    consistency,
		})
	}
	return out, nil
}
