package csvio

import (
	"fmt"
	"io"

	"github.com/couchcryptid/aqi-fusion/internal/domain"
)

const (
	healthTract = "tract"
	healthIndex = "Health Risk Index"
)

// ReadHealthRisk reads the tract health index table, keyed by geoid built from
// prefix and the decimal tract number. Rows with a blank tract or index are
// skipped; malformed numbers are errors.
func ReadHealthRisk(r io.Reader, prefix string) (map[string]float64, error) {
	t, err := readTable(r, healthTract, healthIndex)
	if err != nil {
		return nil, fmt.Errorf("health risk: %w", err)
	}
	out := make(map[string]float64, len(t.rows))
	for i, row := range t.rows {
		c := t.cells(row)
		tract := c.float(healthTract)
		idx := c.float(healthIndex)
		if c.err != nil {
			return nil, fmt.Errorf("health risk line %d: %w", line(i), c.err)
		}
		if !tract.Valid || !idx.Valid {
			continue
		}
		out[domain.TractGeoID(prefix, tract.Float64)] = idx.Float64
	}
	return out, nil
}
