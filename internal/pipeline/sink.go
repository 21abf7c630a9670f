package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/adapter/csvio"
	"github.com/couchcryptid/aqi-fusion/internal/adapter/geojson"
	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"github.com/couchcryptid/aqi-fusion/internal/observability"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
)

// Output file names written under the output directory.
const (
	TractCSVFile     = "tract_aqi.csv"
	TractGeoJSONFile = "tract_aqi.geojson"
)

// CanonicalFile is the cleaned table of one network.
func CanonicalFile(n domain.Network) string { return string(n) + "_clean.csv" }

// TractLoader publishes the fused tract table.
type TractLoader interface {
	Name() string
	LoadTracts(ctx context.Context, run domain.RunInfo, tracts []domain.TractAQI) error
}

// FileSink writes the tract table as CSV and as GeoJSON with tract geometry.
type FileSink struct {
	dir        string
	layer      *domain.TractLayer
	idProperty string
	networks   []domain.Network
}

// NewFileSink writes into dir, creating it if needed.
func NewFileSink(dir string, layer *domain.TractLayer, idProperty string, networks []domain.Network) *FileSink {
	return &FileSink{dir: dir, layer: layer, idProperty: idProperty, networks: networks}
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) LoadTracts(_ context.Context, _ domain.RunInfo, tracts []domain.TractAQI) error {
	if err := writeFileAtomic(filepath.Join(s.dir, TractCSVFile), func(w io.Writer) error {
		return csvio.WriteTractTable(w, s.networks, tracts)
	}); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.dir, TractGeoJSONFile), func(w io.Writer) error {
		return geojson.WriteTracts(w, s.layer, s.idProperty, s.networks, tracts)
	})
}

// writeFileAtomic writes through a temp file in the target directory and
// renames it into place, so readers never see a partial file.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// retryingLoader retries a sink with exponential backoff.
type retryingLoader struct {
	next        TractLoader
	maxAttempts int
	initial     time.Duration
	logger      *slog.Logger
	metrics     *observability.Metrics
}

func (r *retryingLoader) Name() string { return r.next.Name() }

func (r *retryingLoader) LoadTracts(ctx context.Context, run domain.RunInfo, tracts []domain.TractAQI) error {
	backoff := r.initial
	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err = r.next.LoadTracts(ctx, run, tracts); err == nil {
			return nil
		}
		r.metrics.SinkErrors.WithLabelValues(r.next.Name()).Inc()
		r.logger.Warn("sink load failed",
			"sink", r.next.Name(),
			"attempt", attempt,
			"max_attempts", r.maxAttempts,
			"error", err,
		)
		if attempt == r.maxAttempts || ctx.Err() != nil {
			break
		}
		if !sharedretry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = sharedretry.NextBackoff(backoff, maxBackoff)
	}
	return fmt.Errorf("sink %s: %w", r.next.Name(), err)
}
