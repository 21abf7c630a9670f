package csvio

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"github.com/guregu/null"
)

const (
	tractIDColumn       = "geoid"
	combinedAQIColumn   = "combined_aqi"
	networkColumnSuffix = "_aqi"
)

// NetworkColumn names the per-network median column.
func NetworkColumn(n domain.Network) string {
	return string(n) + networkColumnSuffix
}

// TractHeader returns the tract table columns for networks.
func TractHeader(networks []domain.Network) []string {
	h := make([]string, 0, len(networks)+2)
	h = append(h, tractIDColumn)
	for _, n := range networks {
		h = append(h, NetworkColumn(n))
	}
	return append(h, combinedAQIColumn)
}

// WriteTractTable writes one row per tract. A network without a median for
// the tract leaves its cell empty.
func WriteTractTable(w io.Writer, networks []domain.Network, tracts []domain.TractAQI) error {
	rows := make([][]string, len(tracts))
	for i, t := range tracts {
		row := make([]string, 0, len(networks)+2)
		row = append(row, t.TractID)
		for _, n := range networks {
			row = append(row, formatFloat(null.NewFloat(t.Median(n))))
		}
		rows[i] = append(row, formatFloat(null.FloatFrom(t.CombinedAQI)))
	}
	return writeAll(w, TractHeader(networks), rows)
}

// ReadTractTable reads a table written by WriteTractTable. Networks are
// recovered from the header; a tract with no network medians is gap-filled.
func ReadTractTable(r io.Reader) ([]domain.TractAQI, []domain.Network, error) {
	t, err := readTable(r, tractIDColumn, combinedAQIColumn)
	if err != nil {
		return nil, nil, fmt.Errorf("tract table: %w", err)
	}

	var networks []domain.Network
	for col := range t.cols {
		if col == combinedAQIColumn || !strings.HasSuffix(col, networkColumnSuffix) {
			continue
		}
		n, err := domain.ParseNetwork(strings.TrimSuffix(col, networkColumnSuffix))
		if err != nil {
			return nil, nil, fmt.Errorf("tract table column %q: %w", col, err)
		}
		networks = append(networks, n)
	}
	sortByColumn(networks, t)

	out := make([]domain.TractAQI, 0, len(t.rows))
	for i, row := range t.rows {
		c := t.cells(row)
		combined := c.float(combinedAQIColumn)
		if c.err != nil {
			return nil, nil, fmt.Errorf("tract table line %d: %w", line(i), c.err)
		}
		if !combined.Valid {
			return nil, nil, fmt.Errorf("tract table line %d: missing %s", line(i), combinedAQIColumn)
		}
		ta := domain.TractAQI{
			TractID:     t.get(row, tractIDColumn),
			Medians:     make(map[domain.Network]float64),
			CombinedAQI: combined.Float64,
		}
		for _, n := range networks {
			if v := c.float(NetworkColumn(n)); v.Valid {
				ta.Medians[n] = v.Float64
			}
		}
		if c.err != nil {
			return nil, nil, fmt.Errorf("tract table line %d: %w", line(i), c.err)
		}
		ta.GapFilled = len(ta.Medians) == 0
		out = append(out, ta)
	}
	return out, networks, nil
}

// sortByColumn orders networks by their position in the header.
func sortByColumn(networks []domain.Network, t *table) {
	slices.SortFunc(networks, func(a, b domain.Network) int {
		return t.cols[NetworkColumn(a)] - t.cols[NetworkColumn(b)]
	})
}
