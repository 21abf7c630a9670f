package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/adapter/csvio"
	"github.com/couchcryptid/aqi-fusion/internal/config"
	"github.com/couchcryptid/aqi-fusion/internal/domain"
)

// Source extracts one table of cleaned canonical readings.
type Source interface {
	Name() string
	Network() domain.Network
	Extract(ctx context.Context) ([]domain.SensorReading, error)
}

// FileSource reads a vendor CSV export and cleans it.
type FileSource struct {
	def     config.Source
	network domain.Network
	loc     *time.Location
}

// NewFileSource builds a source from its pipeline definition. Timestamps are
// converted to wall clock in loc.
func NewFileSource(def config.Source, loc *time.Location) (*FileSource, error) {
	n, err := domain.ParseNetwork(def.Network)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", def.Name, err)
	}
	return &FileSource{def: def, network: n, loc: loc}, nil
}

// SourcesFromConfig builds a FileSource for every source in p.
func SourcesFromConfig(p *config.Pipeline) ([]Source, error) {
	out := make([]Source, 0, len(p.Sources))
	for _, def := range p.Sources {
		s, err := NewFileSource(def, p.Location())
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (s *FileSource) Name() string            { return s.def.Name }
func (s *FileSource) Network() domain.Network { return s.network }

// Extract parses and cleans the source. Canonical files are already clean and
// pass through unchanged.
func (s *FileSource) Extract(ctx context.Context) ([]domain.SensorReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []domain.SensorReading
	err := withFile(s.def.Path, func(r io.Reader) error {
		var err error
		switch s.def.Format {
		case config.FormatClarityHourly:
			raw, err = csvio.ReadClarityHourly(r, s.loc)
		case config.FormatPurpleAirHourly:
			raw, err = csvio.ReadPurpleAirHourly(r, s.loc)
		case config.FormatPurpleAirAPI:
			raw, err = csvio.ReadPurpleAirAPI(r, s.loc)
		case config.FormatCanonical:
			raw, err = csvio.ReadReadings(r)
		default:
			err = fmt.Errorf("unknown format %q", s.def.Format)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", s.def.Name, err)
	}

	switch {
	case s.def.Format == config.FormatCanonical:
		return raw, nil
	case s.def.DailyPath != "":
		var daily []domain.DailyMean
		err := withFile(s.def.DailyPath, func(r io.Reader) error {
			var err error
			daily, err = csvio.ReadPurpleAirDaily(r, s.loc)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("source %s daily: %w", s.def.Name, err)
		}
		return domain.CleanWithDaily(raw, daily), nil
	default:
		return domain.CleanHourly(raw), nil
	}
}

func withFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, domain.ErrMissingFile)
		}
		return err
	}
	defer f.Close()
	return fn(f)
}
