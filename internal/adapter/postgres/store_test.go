package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResults struct {
	execs  int
	failAt int
	closed bool
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	r.execs++
	if r.failAt > 0 && r.execs == r.failAt {
		return pgconn.CommandTag{}, errors.New("unique violation")
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error {
	r.closed = true
	return nil
}

type fakeDB struct {
	batch   *pgx.Batch
	results *fakeResults
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batch = b
	return f.results
}

func testRun() domain.RunInfo {
	return domain.RunInfo{
		RunID:       "8d6f1c2e-0000-4000-8000-000000000001",
		GeneratedAt: time.Date(2025, 4, 1, 6, 0, 0, 0, time.UTC),
		Window:      domain.DateWindow{Start: time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC)},
		Weights:     domain.Weights{domain.NetworkClarity: 0.76, domain.NetworkPurpleAir: 0.24},
	}
}

func testTracts() []domain.TractAQI {
	return []domain.TractAQI{
		{TractID: "06081604200", Medians: map[domain.Network]float64{domain.NetworkClarity: 41}, CombinedAQI: 41},
		{TractID: "06081604104", Medians: map[domain.Network]float64{}, CombinedAQI: 40, GapFilled: true},
	}
}

func TestLoadTracts_QueuesRunThenTracts(t *testing.T) {
	db := &fakeDB{results: &fakeResults{}}
	s := &Store{db: db, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	require.NoError(t, s.LoadTracts(context.Background(), testRun(), testTracts()))

	require.Equal(t, 4, db.batch.Len())
	assert.Equal(t, insertRunSQL, db.batch.QueuedQueries[0].SQL)
	runArgs := db.batch.QueuedQueries[0].Arguments
	assert.Equal(t, testRun().RunID, runArgs[0])
	assert.Nil(t, runArgs[3], "open window end is stored as NULL")
	assert.Equal(t, 2, runArgs[6])

	tract := db.batch.QueuedQueries[2]
	assert.Equal(t, upsertTractSQL, tract.SQL)
	assert.Equal(t, "06081604104", tract.Arguments[0])
	assert.JSONEq(t, `{}`, string(tract.Arguments[2].([]byte)))
	assert.Equal(t, true, tract.Arguments[4])

	assert.Equal(t, 4, db.results.execs)
	assert.True(t, db.results.closed)
}

func TestLoadTracts_DeletesTractsFromEarlierRuns(t *testing.T) {
	db := &fakeDB{results: &fakeResults{}}
	s := &Store{db: db, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	require.NoError(t, s.LoadTracts(context.Background(), testRun(), testTracts()))

	last := db.batch.QueuedQueries[db.batch.Len()-1]
	assert.Equal(t, deleteStaleSQL, last.SQL)
	assert.Equal(t, []any{testRun().RunID}, last.Arguments)
}

func TestLoadTracts_NoTractsClearsTable(t *testing.T) {
	db := &fakeDB{results: &fakeResults{}}
	s := &Store{db: db, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	require.NoError(t, s.LoadTracts(context.Background(), testRun(), nil))

	require.Equal(t, 2, db.batch.Len())
	assert.Equal(t, insertRunSQL, db.batch.QueuedQueries[0].SQL)
	assert.Equal(t, deleteStaleSQL, db.batch.QueuedQueries[1].SQL)
}

func TestLoadTracts_StatementError(t *testing.T) {
	db := &fakeDB{results: &fakeResults{failAt: 2}}
	s := &Store{db: db, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := s.LoadTracts(context.Background(), testRun(), testTracts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement 1")
	assert.True(t, db.results.closed)
}
