// Package csvio reads vendor CSV exports into canonical readings and writes the
// pipeline's CSV outputs.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"github.com/guregu/null"
)

// table is a CSV body indexed by header name.
type table struct {
	cols map[string]int
	rows [][]string
}

// readTable reads a header row and every record. Every column in required
// must be present.
func readTable(r io.Reader, required ...string) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file: %w", domain.ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &table{cols: make(map[string]int, len(header))}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		t.cols[strings.TrimSpace(h)] = i
	}
	for _, c := range required {
		if _, ok := t.cols[c]; !ok {
			return nil, fmt.Errorf("column %q: %w", c, domain.ErrMissingColumn)
		}
	}

	t.rows, err = cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return t, nil
}

func (t *table) has(col string) bool {
	_, ok := t.cols[col]
	return ok
}

// get returns the trimmed cell, or "" when the column is absent or the row short.
func (t *table) get(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// line converts a row index to its 1-based file line, counting the header.
func line(i int) int { return i + 2 }

var nullTokens = map[string]bool{"": true, "na": true, "nan": true, "null": true, "none": true, "n/a": true}

// parseFloat reads a numeric cell. Blanks and null tokens are nulls; any
// other text must be a finite number.
func parseFloat(s string) (null.Float, error) {
	if nullTokens[strings.ToLower(s)] {
		return null.Float{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return null.Float{}, fmt.Errorf("invalid number %q", s)
	}
	return null.FloatFrom(v), nil
}

func parseInt(s string) (null.Int, error) {
	if nullTokens[strings.ToLower(s)] {
		return null.Int{}, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return null.Int{}, fmt.Errorf("invalid integer %q", s)
	}
	return null.IntFrom(v), nil
}

// cells reads the numeric cells of one row and keeps the first parse error.
type cells struct {
	t   *table
	row []string
	err error
}

func (t *table) cells(row []string) *cells { return &cells{t: t, row: row} }

func (c *cells) float(col string) null.Float {
	v, err := parseFloat(c.t.get(c.row, col))
	c.note(col, err)
	return v
}

func (c *cells) integer(col string) null.Int {
	v, err := parseInt(c.t.get(c.row, col))
	c.note(col, err)
	return v
}

func (c *cells) note(col string, err error) {
	if err != nil && c.err == nil {
		c.err = fmt.Errorf("column %q: %w", col, err)
	}
}

func formatFloat(v null.Float) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'g', -1, 64)
}

func formatInt(v null.Int) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatInt(v.Int64, 10)
}

var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
	}
	naiveLayouts = []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04",
		"2006-01-02T15:04",
		"1/2/2006 15:04",
		"1/2/2006 15:04:05",
		time.DateOnly,
		"1/2/2006",
	}
)

// naiveZone says how a timestamp without an offset is interpreted.
type naiveZone int

const (
	naiveUTC   naiveZone = iota // convert to the target zone like any zoned value
	naiveLocal                  // already a wall clock in the target zone
)

// parseTime returns a canonical wall-clock time in loc. Values with an offset
// and unix epoch seconds are converted; naive values follow nz.
func parseTime(s string, loc *time.Location, nz naiveZone) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isDigits(s) {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
		}
		return domain.NormalizeTime(time.Unix(sec, 0), loc), nil
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.NormalizeTime(t, loc), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if nz == naiveLocal {
				return t, nil
			}
			return domain.NormalizeTime(t, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func writeAll(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
