// Package postgres publishes fused tract tables to PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS fusion_runs (
    run_id       uuid PRIMARY KEY,
    generated_at timestamptz NOT NULL,
    window_start date,
    window_end   date,
    weights      jsonb NOT NULL,
    fallback     boolean NOT NULL,
    tract_count  integer NOT NULL
);
CREATE TABLE IF NOT EXISTS tract_aqi (
    tract_id     text PRIMARY KEY,
    run_id       uuid NOT NULL REFERENCES fusion_runs (run_id),
    medians      jsonb NOT NULL,
    combined_aqi double precision NOT NULL,
    gap_filled   boolean NOT NULL,
    updated_at   timestamptz NOT NULL
)`

const insertRunSQL = `INSERT INTO fusion_runs (run_id, generated_at, window_start, window_end, weights, fallback, tract_count)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (run_id) DO NOTHING`

const upsertTractSQL = `INSERT INTO tract_aqi (tract_id, run_id, medians, combined_aqi, gap_filled, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (tract_id) DO UPDATE
SET run_id = EXCLUDED.run_id,
    medians = EXCLUDED.medians,
    combined_aqi = EXCLUDED.combined_aqi,
    gap_filled = EXCLUDED.gap_filled,
    updated_at = EXCLUDED.updated_at`

// deleteStaleSQL drops tracts the current run did not produce.
const deleteStaleSQL = `DELETE FROM tract_aqi WHERE run_id <> $1`

// batchSender is the part of *pgxpool.Pool the store needs.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store records each run and replaces the tract table with the run's tracts.
type Store struct {
	pool   *pgxpool.Pool
	db     batchSender
	logger *slog.Logger
}

// New connects to databaseURL and creates the tables if needed.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{pool: pool, db: pool, logger: logger}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Name identifies the sink in logs and metrics.
func (s *Store) Name() string { return "postgres" }

// LoadTracts records the run, upserts every tract and deletes tracts from
// earlier runs, all in one batch. pgx runs the batch in an implicit
// transaction, so readers never see a mix of runs.
func (s *Store) LoadTracts(ctx context.Context, run domain.RunInfo, tracts []domain.TractAQI) error {
	batch, err := buildBatch(run, tracts)
	if err != nil {
		return err
	}

	res := s.db.SendBatch(ctx, batch)
	defer res.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("postgres batch statement %d: %w", i, err)
		}
	}
	s.logger.Debug("tracts upserted", "count", len(tracts), "run_id", run.RunID)
	return nil
}

func buildBatch(run domain.RunInfo, tracts []domain.TractAQI) (*pgx.Batch, error) {
	weights, err := json.Marshal(run.Weights)
	if err != nil {
		return nil, fmt.Errorf("encode weights: %w", err)
	}

	batch := &pgx.Batch{}
	batch.Queue(insertRunSQL, run.RunID, run.GeneratedAt, dateOrNil(run.Window.Start), dateOrNil(run.Window.End),
		weights, run.Fallback, len(tracts))

	for _, t := range tracts {
		medians, err := json.Marshal(t.Medians)
		if err != nil {
			return nil, fmt.Errorf("encode medians for %s: %w", t.TractID, err)
		}
		batch.Queue(upsertTractSQL, t.TractID, run.RunID, medians, t.CombinedAQI, t.GapFilled, run.GeneratedAt)
	}
	batch.Queue(deleteStaleSQL, run.RunID)
	return batch, nil
}

func dateOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
