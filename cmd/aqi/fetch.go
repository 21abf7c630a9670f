package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/adapter/csvio"
	"github.com/couchcryptid/aqi-fusion/internal/adapter/purpleair"
	"github.com/couchcryptid/aqi-fusion/internal/observability"
	"github.com/spf13/cobra"
)

func (a *app) fetchCommand() *cobra.Command {
	var (
		sensors    []int
		start, end string
		average    int
		out        string
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download PurpleAir sensor history as a purpleair_api CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.PurpleAirAPIKey == "" {
				return errors.New("PURPLEAIR_API_KEY is not set")
			}
			if len(sensors) == 0 {
				return errors.New("--sensors is required")
			}
			q := purpleair.HistoryQuery{Average: average}
			var err error
			if q.Start, err = parseFlagTime("start", start); err != nil {
				return err
			}
			if q.End, err = parseFlagTime("end", end); err != nil {
				return err
			}

			toStdout := out == "" || out == "-"
			logger := a.logger
			if toStdout {
				// The process logger writes to stdout; keep the CSV stream clean.
				logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), nil))
			}

			metrics := observability.NewMetrics()
			client := purpleair.NewClient(a.cfg.PurpleAirAPIKey, a.cfg.PurpleAirBaseURL,
				a.cfg.PurpleAirTimeout, a.cfg.PurpleAirRequestDelay, metrics, logger)

			rows, fetchErr := client.FetchHistory(cmd.Context(), sensors, q)
			if a.cfg.MetricsTextfile != "" {
				if err := metrics.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
					logger.Error("write metrics textfile", "path", a.cfg.MetricsTextfile, "error", err)
				}
			}
			if fetchErr != nil {
				return fetchErr
			}

			if toStdout {
				return csvio.WritePurpleAirAPI(cmd.OutOrStdout(), rows)
			}
			if err := writeOut(out, func(w io.Writer) error { return csvio.WritePurpleAirAPI(w, rows) }); err != nil {
				return err
			}
			a.logger.Info("purpleair history written", "path", out, "rows", len(rows), "sensors", len(sensors))
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&sensors, "sensors", nil, "PurpleAir sensor indices, comma separated")
	cmd.Flags().StringVar(&start, "start", "", "history start (RFC 3339 or YYYY-MM-DD, UTC); default 24h before end")
	cmd.Flags().StringVar(&end, "end", "", "history end (RFC 3339 or YYYY-MM-DD, UTC); default now")
	cmd.Flags().IntVar(&average, "average", purpleair.DefaultAverage, fmt.Sprintf("averaging minutes, one of %v", purpleair.ValidAverages))
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output CSV path, - for stdout")
	return cmd
}

func parseFlagTime(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --%s %q", name, s)
}

func writeOut(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
