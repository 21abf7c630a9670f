package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/adapter/csvio"
	httpadapter "github.com/couchcryptid/aqi-fusion/internal/adapter/http"
	"github.com/couchcryptid/aqi-fusion/internal/config"
	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"github.com/couchcryptid/aqi-fusion/internal/lookup"
	"github.com/couchcryptid/aqi-fusion/internal/observability"
	"github.com/couchcryptid/aqi-fusion/internal/pipeline"
	"github.com/couchcryptid/aqi-fusion/internal/predictability"
	"github.com/spf13/cobra"
)

func (a *app) serveCommand() *cobra.Command {
	var reload time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve tract AQI, composite risk and point lookups over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			def, err := a.loadPipeline()
			if err != nil {
				return err
			}
			metrics := observability.NewMetrics()

			data := &lookup.Holder{}
			srv := httpadapter.NewServer(a.cfg.HTTPAddr, data, data, a.cfg.LookupCacheSize, metrics, a.logger)

			// Start HTTP server.
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.logger.Error("http server error", "error", err)
				}
			}()

			// Load tract data; /readyz reports 503 until it is in place.
			go a.keepLoaded(ctx, def, data, reload)

			<-ctx.Done()
			a.logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("http server shutdown error", "error", err)
			}
			a.logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().DurationVar(&reload, "reload", 0, "reload published tract data at this interval (0 disables)")
	return cmd
}

// keepLoaded loads the published run into data, then reloads it every
// interval until ctx is done. A failed reload keeps the previous data.
func (a *app) keepLoaded(ctx context.Context, def *config.Pipeline, data *lookup.Holder, interval time.Duration) {
	load := func() {
		svc, err := loadService(def)
		if err != nil {
			a.logger.Error("load tract data failed", "error", err)
			return
		}
		data.Store(svc)
		a.logger.Info("tract data loaded", "tracts", len(svc.Tracts()), "networks", svc.Networks())
	}

	load()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			load()
		}
	}
}

// loadService reads the tract layer, the published tract table and the
// optional health risk and monitor score tables.
func loadService(def *config.Pipeline) (*lookup.Service, error) {
	layer, err := pipeline.LoadTractLayer(def.Tracts.Path, def.Tracts.IDProperty)
	if err != nil {
		return nil, fmt.Errorf("tract layer: %w", err)
	}

	path := filepath.Join(def.Output.Dir, pipeline.TractCSVFile)
	var tracts []domain.TractAQI
	var networks []domain.Network
	err = readFile(path, func(r io.Reader) error {
		var err error
		tracts, networks, err = csvio.ReadTractTable(r)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("tract table (run `aqi run` first): %w", err)
	}

	var health map[string]float64
	if def.HealthRisk.Path != "" {
		err := readFile(def.HealthRisk.Path, func(r io.Reader) error {
			var err error
			health, err = csvio.ReadHealthRisk(r, def.HealthRisk.GeoIDPrefix)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("health risk table: %w", err)
		}
	}

	var monitors *predictability.Index
	if def.Monitors.Path != "" {
		err := readFile(def.Monitors.Path, func(r io.Reader) error {
			ms, err := csvio.ReadMonitors(r)
			monitors = predictability.NewIndex(ms)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("monitor scores: %w", err)
		}
	}

	return lookup.New(layer, networks, tracts, health, monitors), nil
}

func readFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}
