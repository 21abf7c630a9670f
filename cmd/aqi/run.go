package main

import (
	"fmt"
	"maps"
	"slices"

	kafkaadapter "github.com/couchcryptid/aqi-fusion/internal/adapter/kafka"
	"github.com/couchcryptid/aqi-fusion/internal/adapter/postgres"
	"github.com/couchcryptid/aqi-fusion/internal/observability"
	"github.com/couchcryptid/aqi-fusion/internal/pipeline"
	"github.com/spf13/cobra"
)

func (a *app) runCommand() *cobra.Command {
	var skipCanonical bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the fusion pipeline once and publish tract AQI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			def, err := a.loadPipeline()
			if err != nil {
				return err
			}
			metrics := observability.NewMetrics()

			sources, err := pipeline.SourcesFromConfig(def)
			if err != nil {
				return err
			}
			layer, err := pipeline.LoadTractLayer(def.Tracts.Path, def.Tracts.IDProperty)
			if err != nil {
				return fmt.Errorf("tract layer: %w", err)
			}
			a.logger.Info("tract layer loaded", "path", def.Tracts.Path, "tracts", layer.Len())

			sinks := []pipeline.TractLoader{pipeline.NewFileSink(def.Output.Dir, layer, def.Tracts.IDProperty, def.Networks())}

			if a.cfg.KafkaEnabled {
				w := kafkaadapter.NewWriter(a.cfg, a.logger)
				defer func() {
					if err := w.Close(); err != nil {
						a.logger.Error("kafka writer close error", "error", err)
					}
				}()
				sinks = append(sinks, w)
				a.logger.Info("kafka sink enabled", "topic", a.cfg.KafkaSinkTopic)
			}
			if a.cfg.DatabaseURL != "" {
				store, err := postgres.New(ctx, a.cfg.DatabaseURL, a.logger)
				if err != nil {
					return err
				}
				defer store.Close() //nolint:errcheck // pool close never fails
				sinks = append(sinks, store)
				a.logger.Info("postgres sink enabled")
			}

			opts := pipeline.Options{MaxAttempts: a.cfg.SinkMaxAttempts}
			if !skipCanonical {
				opts.CanonicalDir = def.Output.Dir
			}
			p := pipeline.New(def, sources, layer, sinks, opts, a.logger, metrics)
			report, runErr := p.Run(ctx)

			if a.cfg.MetricsTextfile != "" {
				if err := metrics.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
					a.logger.Error("write metrics textfile", "path", a.cfg.MetricsTextfile, "error", err)
				}
			}
			if report.RunID != "" {
				printReport(cmd, report)
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&skipCanonical, "no-canonical", false, "skip writing the cleaned per-network CSVs")
	return cmd
}

func printReport(cmd *cobra.Command, r pipeline.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s\n", r.RunID)
	networks := slices.Sorted(maps.Keys(r.Readings))
	for _, n := range networks {
		fmt.Fprintf(out, "  %-10s readings=%d\n", n, r.Readings[n])
	}
	fmt.Fprintf(out, "  overlap rows: %d\n", r.Weights.OverlapRows)
	if r.Weights.Weights != nil {
		fmt.Fprintf(out, "  weights: %s", r.Weights.Weights)
		if r.Weights.Fallback {
			fmt.Fprint(out, " (fallback)")
		}
		fmt.Fprintln(out)
	}
	for _, n := range networks {
		fmt.Fprintf(out, "  %-10s tracts=%d\n", n, r.TractsMeasured[n])
	}
	fmt.Fprintf(out, "  tracts: %d (gap-filled %d)\n", r.Tracts, r.GapFilled)
	fmt.Fprintf(out, "  sinks: %v\n", r.Sinks)
}
