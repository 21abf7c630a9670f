package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"github.com/couchcryptid/aqi-fusion/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLoader struct {
	calls int
	err   error
}

func (c *countingLoader) Name() string { return "counting" }

func (c *countingLoader) LoadTracts(context.Context, domain.RunInfo, []domain.TractAQI) error {
	c.calls++
	return c.err
}

func TestRetryingLoader_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	next := &countingLoader{err: errors.New("unavailable")}
	r := &retryingLoader{
		next:        next,
		maxAttempts: 5,
		initial:     time.Hour,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:     observability.NewMetricsForTesting(),
	}

	err := r.LoadTracts(ctx, domain.RunInfo{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink counting")
	assert.Equal(t, 1, next.calls)
}

func TestRetryingLoader_SucceedsFirstTry(t *testing.T) {
	next := &countingLoader{}
	r := &retryingLoader{
		next:        next,
		maxAttempts: 3,
		initial:     time.Millisecond,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:     observability.NewMetricsForTesting(),
	}
	require.NoError(t, r.LoadTracts(context.Background(), domain.RunInfo{}, nil))
	assert.Equal(t, 1, next.calls)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	path := filepath.Join(dir, "out.csv")

	require.NoError(t, writeFileAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "a,b\n")
		return err
	}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	err = writeFileAtomic(path, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return errors.New("boom")
	})
	require.Error(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data), "failed write leaves the previous file")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
