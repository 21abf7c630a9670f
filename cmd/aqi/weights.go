package main

import (
	"fmt"

	"github.com/couchcryptid/aqi-fusion/internal/observability"
	"github.com/couchcryptid/aqi-fusion/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func (a *app) weightsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "weights",
		Short: "Estimate inverse-variance network weights without publishing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			def, err := a.loadPipeline()
			if err != nil {
				return err
			}
			sources, err := pipeline.SourcesFromConfig(def)
			if err != nil {
				return err
			}
			p := pipeline.New(def, sources, nil, nil, pipeline.Options{}, a.logger, observability.NewMetricsWithRegistry(prometheus.NewRegistry()))

			res, err := p.EstimateWeights(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "overlap rows: %d (key %s)\n", res.OverlapRows, def.Overlap())
			if err != nil {
				return err
			}
			if res.Fallback {
				fmt.Fprintf(out, "estimate unavailable: %v\n", res.EstimateErr)
				fmt.Fprintf(out, "fallback weights: %s\n", res.Weights)
				return nil
			}
			fmt.Fprintf(out, "weights: %s\n", res.Weights)
			return nil
		},
	}
}
