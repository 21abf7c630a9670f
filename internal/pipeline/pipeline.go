// Package pipeline runs a fusion batch: extract and clean every source,
// estimate network weights, aggregate to tracts, fuse, gap-fill and publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/adapter/csvio"
	"github.com/couchcryptid/aqi-fusion/internal/config"
	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"github.com/couchcryptid/aqi-fusion/internal/observability"
	"github.com/google/uuid"
)

// Sink retry backoff: start at 200ms, double each attempt, cap at 5s.
const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Options tune a Pipeline.
type Options struct {
	// CanonicalDir receives one cleaned CSV per network. Empty disables it.
	CanonicalDir string
	// MaxAttempts bounds sink retries. Values below 1 mean a single attempt.
	MaxAttempts int
}

// Pipeline orchestrates one batch run over a fixed definition.
type Pipeline struct {
	def     *config.Pipeline
	sources []Source
	layer   *domain.TractLayer
	sinks   []TractLoader
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Pipeline with the given stages and observability.
func New(def *config.Pipeline, sources []Source, layer *domain.TractLayer, sinks []TractLoader, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Pipeline{
		def:     def,
		sources: sources,
		layer:   layer,
		sinks:   sinks,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

// WeightsResult is the outcome of the weight estimation stage.
type WeightsResult struct {
	OverlapRows int
	Weights     domain.Weights
	// Fallback is true when Weights came from configuration because the
	// overlap could not support an estimate.
	Fallback bool
	// EstimateErr explains why estimation failed, if it did.
	EstimateErr error
}

// Report summarises a completed run.
type Report struct {
	RunID          string
	Readings       map[domain.Network]int
	Weights        WeightsResult
	TractsMeasured map[domain.Network]int
	Tracts         int
	GapFilled      int
	Sinks          []string
}

// Run executes every stage once and publishes the result to all sinks. Every
// sink is attempted even if an earlier one fails.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	if err := p.checkGapFillTargets(); err != nil {
		return Report{}, err
	}

	tables, err := p.extract(ctx)
	if err != nil {
		return Report{}, err
	}
	report := Report{
		RunID:          uuid.NewString(),
		Readings:       make(map[domain.Network]int, len(tables)),
		TractsMeasured: make(map[domain.Network]int, len(tables)),
	}
	for n, rs := range tables {
		report.Readings[n] = len(rs)
	}

	if err := p.writeCanonical(tables); err != nil {
		return report, err
	}

	report.Weights, err = p.weights(tables)
	if err != nil {
		return report, err
	}

	start := time.Now()
	perNetwork := make(map[domain.Network]map[string]float64, len(tables))
	for _, n := range p.def.Networks() {
		m := domain.MedianAQIByTract(tables[n], p.layer, p.def.DateWindow())
		perNetwork[n] = m.Medians
		report.TractsMeasured[n] = len(m.Medians)
		p.metrics.TractsMeasured.WithLabelValues(string(n)).Set(float64(len(m.Medians)))
		p.logger.Info("tracts aggregated",
			"network", n,
			"window", p.def.DateWindow().String(),
			"in_window", m.InWindow,
			"assigned", m.Assigned,
			"unassigned", m.Unassigned,
			"tracts", len(m.Medians),
		)
	}
	p.observeStage("aggregate", start)

	start = time.Now()
	tracts := domain.Fuse(perNetwork, report.Weights.Weights, p.def.GapFillRules())
	p.observeStage("fuse", start)
	report.Tracts = len(tracts)
	for _, t := range tracts {
		if t.GapFilled {
			report.GapFilled++
		}
	}
	p.metrics.TractsOutput.Set(float64(report.Tracts))
	p.metrics.TractsGapFilled.Set(float64(report.GapFilled))

	run := domain.RunInfo{
		RunID:       report.RunID,
		GeneratedAt: domain.Now(),
		Window:      p.def.DateWindow(),
		Weights:     report.Weights.Weights,
		Fallback:    report.Weights.Fallback,
	}
	start = time.Now()
	var loadErrs []error
	for _, s := range p.sinks {
		r := &retryingLoader{next: s, maxAttempts: p.opts.MaxAttempts, initial: initialBackoff, logger: p.logger, metrics: p.metrics}
		if err := r.LoadTracts(ctx, run, tracts); err != nil {
			loadErrs = append(loadErrs, err)
			continue
		}
		report.Sinks = append(report.Sinks, s.Name())
	}
	p.observeStage("load", start)

	p.logger.Info("run complete",
		"run_id", report.RunID,
		"tracts", report.Tracts,
		"gap_filled", report.GapFilled,
		"weights", report.Weights.Weights.String(),
		"fallback_weights", report.Weights.Fallback,
		"sinks", report.Sinks,
	)
	return report, errors.Join(loadErrs...)
}

// EstimateWeights extracts every source and runs only the weight stage.
func (p *Pipeline) EstimateWeights(ctx context.Context) (WeightsResult, error) {
	tables, err := p.extract(ctx)
	if err != nil {
		return WeightsResult{}, err
	}
	return p.weights(tables)
}

// extract reads every source and merges the tables of each network. Any
// source failure aborts the run.
func (p *Pipeline) extract(ctx context.Context) (map[domain.Network][]domain.SensorReading, error) {
	start := time.Now()
	defer p.observeStage("extract", start)

	byNetwork := make(map[domain.Network][][]domain.SensorReading)
	for _, s := range p.sources {
		readings, err := s.Extract(ctx)
		if err != nil {
			p.metrics.SourceErrors.WithLabelValues(s.Name()).Inc()
			p.logger.Error("source extract failed", "source", s.Name(), "error", err)
			return nil, err
		}
		p.logger.Info("source extracted", "source", s.Name(), "network", s.Network(), "readings", len(readings))
		byNetwork[s.Network()] = append(byNetwork[s.Network()], readings)
	}

	tables := make(map[domain.Network][]domain.SensorReading, len(byNetwork))
	for n, ts := range byNetwork {
		tables[n] = domain.MergeSources(ts...)
		p.metrics.ReadingsCleaned.WithLabelValues(string(n)).Add(float64(len(tables[n])))
		p.logger.Info("network cleaned", "network", n, "readings", len(tables[n]))
	}
	return tables, nil
}

func (p *Pipeline) writeCanonical(tables map[domain.Network][]domain.SensorReading) error {
	if p.opts.CanonicalDir == "" {
		return nil
	}
	for n, rs := range tables {
		path := filepath.Join(p.opts.CanonicalDir, CanonicalFile(n))
		if err := writeFileAtomic(path, func(w io.Writer) error {
			return csvio.WriteReadings(w, rs)
		}); err != nil {
			return err
		}
		p.logger.Debug("canonical table written", "network", n, "path", path)
	}
	return nil
}

// weights estimates inverse-variance weights, falling back to configured
// weights when the overlap is too small or degenerate.
func (p *Pipeline) weights(tables map[domain.Network][]domain.SensorReading) (WeightsResult, error) {
	start := time.Now()
	defer p.observeStage("weights", start)

	overlap := domain.FindOverlap(tables, p.def.Overlap())
	res := WeightsResult{OverlapRows: len(overlap.Rows)}
	p.metrics.OverlapRows.Set(float64(res.OverlapRows))
	p.logger.Info("overlap joined", "key", p.def.Overlap(), "networks", overlap.Networks, "rows", res.OverlapRows)

	w, err := domain.InverseVarianceWeights(overlap)
	switch {
	case err == nil:
		res.Weights = w
	case errors.Is(err, domain.ErrInsufficientOverlap), errors.Is(err, domain.ErrZeroVariance):
		res.EstimateErr = err
		if p.def.Fallback() == nil {
			return res, fmt.Errorf("estimate weights (no fallback_weights configured): %w", err)
		}
		res.Weights = p.def.Fallback()
		res.Fallback = true
		p.logger.Warn("weight estimate unavailable, using fallback", "error", err, "weights", res.Weights.String())
	default:
		return res, fmt.Errorf("estimate weights: %w", err)
	}

	if res.Fallback {
		p.metrics.WeightsFallback.Set(1)
	} else {
		p.metrics.WeightsFallback.Set(0)
	}
	for n, v := range res.Weights {
		p.metrics.NetworkWeight.WithLabelValues(string(n)).Set(v)
	}
	p.logger.Info("network weights", "weights", res.Weights.String(), "fallback", res.Fallback)
	return res, nil
}

// checkGapFillTargets rejects rules whose target has no geometry, since the
// GeoJSON output could not place it. Unknown neighbours only warn.
func (p *Pipeline) checkGapFillTargets() error {
	for _, r := range p.def.GapFillRules() {
		if _, ok := p.layer.Get(r.Tract); !ok {
			return fmt.Errorf("gap_fill tract %s is not in the tract layer", r.Tract)
		}
		for _, n := range r.Neighbors {
			if _, ok := p.layer.Get(n); !ok {
				p.logger.Warn("gap_fill neighbor not in tract layer", "tract", r.Tract, "neighbor", n)
			}
		}
	}
	return nil
}

func (p *Pipeline) observeStage(stage string, start time.Time) {
	p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
