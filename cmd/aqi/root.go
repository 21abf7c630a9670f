package main

import (
	"log/slog"

	"github.com/couchcryptid/aqi-fusion/internal/config"
	"github.com/couchcryptid/aqi-fusion/internal/observability"
	"github.com/spf13/cobra"
)

// app carries process state shared by subcommands.
type app struct {
	pipelinePath string
	cfg          *config.Config
	logger       *slog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "aqi",
		Short:         "Census-tract air quality fusion",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				slog.Error("failed to load config", "error", err)
				return err
			}
			if cmd.Flags().Changed("config") {
				cfg.PipelinePath = a.pipelinePath
			}
			a.cfg = cfg
			a.logger = observability.NewLogger(cfg)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.pipelinePath, "config", "c", "", "pipeline definition YAML (overrides PIPELINE_CONFIG)")

	root.AddCommand(
		a.runCommand(),
		a.weightsCommand(),
		a.serveCommand(),
		a.fetchCommand(),
		a.validateCommand(),
	)
	return root
}

func (a *app) loadPipeline() (*config.Pipeline, error) {
	def, err := config.LoadPipeline(a.cfg.PipelinePath)
	if err != nil {
		a.logger.Error("failed to load pipeline definition", "path", a.cfg.PipelinePath, "error", err)
		return nil, err
	}
	return def, nil
}
