package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalPipeline = `
sources:
  - name: clarity
    network: clarity
    format: clarity_hourly
    path: clarity.csv
tracts:
  path: tracts.geojson
`

func TestParsePipeline_Defaults(t *testing.T) {
	p, err := ParsePipeline([]byte(minimalPipeline))
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultTimeZone, p.TimeZone)
	assert.Equal(t, "America/Los_Angeles", p.Location().String())
	assert.Equal(t, "geoid", p.Tracts.IDProperty)
	assert.Equal(t, domain.DefaultGeoIDPrefix, p.HealthRisk.GeoIDPrefix)
	assert.Equal(t, "out", p.Output.Dir)
	assert.Equal(t, domain.OverlapByLocationName, p.Overlap())
	assert.Nil(t, p.Fallback())
	assert.True(t, p.DateWindow().Contains(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, []domain.Network{domain.NetworkClarity}, p.Networks())
}

func TestLoadPipeline_RepositoryExample(t *testing.T) {
	p, err := LoadPipeline(filepath.Join("..", "..", "pipeline.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []domain.Network{domain.NetworkClarity, domain.NetworkPurpleAir}, p.Networks())
	assert.Equal(t, domain.Weights{domain.NetworkClarity: 0.76, domain.NetworkPurpleAir: 0.24}, p.Fallback())
	assert.Equal(t, "2024-03-30..2025-03-31", p.DateWindow().String())
	require.Len(t, p.GapFillRules(), 2)
	assert.Equal(t, domain.GapFillRule{
		Tract:     "06081604104",
		Neighbors: []string{"06081604200", "06081604102", "06081604000"},
	}, p.GapFillRules()[0])
	assert.Equal(t, "purpleair_asds_daily.csv", filepath.Base(p.Sources[1].DailyPath))
	assert.Equal(t, filepath.Join("..", "..", "data", "raw", "clarity_hourly.csv"), p.Sources[0].Path)
}

func TestLoadPipeline_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalPipeline), 0o600))

	p, err := LoadPipeline(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "clarity.csv"), p.Sources[0].Path)
	assert.Equal(t, filepath.Join(dir, "tracts.geojson"), p.Tracts.Path)
	assert.Equal(t, filepath.Join(dir, "out"), p.Output.Dir)
	assert.Empty(t, p.Monitors.Path)
}

func TestLoadPipeline_MissingFile(t *testing.T) {
	_, err := LoadPipeline(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, domain.ErrMissingFile)
}

func TestParsePipeline_Invalid(t *testing.T) {
	tests := []struct {
		name, yaml, want string
	}{
		{"no sources", "tracts: {path: t.geojson}", "at least one source"},
		{"no tracts", "sources: [{name: a, network: clarity, format: canonical, path: a.csv}]", "tracts.path"},
		{"bad network", "sources: [{name: a, network: airnow, format: canonical, path: a.csv}]\ntracts: {path: t}", "unknown network"},
		{"bad format", "sources: [{name: a, network: clarity, format: xlsx, path: a.csv}]\ntracts: {path: t}", "unknown format"},
		{"dup source", "sources: [{name: a, network: clarity, format: canonical, path: a.csv}, {name: a, network: clarity, format: canonical, path: b.csv}]\ntracts: {path: t}", "duplicate name"},
		{"daily on clarity", "sources: [{name: a, network: clarity, format: clarity_hourly, path: a.csv, daily_path: d.csv}]\ntracts: {path: t}", "daily_path"},
		{"bad zone", "time_zone: Mars/Olympus\n" + minimalPipeline, "time_zone"},
		{"bad window", "window: {start: \"2025-01-02\", end: \"2025-01-01\"}\n" + minimalPipeline, "before start"},
		{"bad weights", "fallback_weights: {clarity: 0.5, purpleair: 0.6}\n" + minimalPipeline, "sum to 1"},
		{"bad overlap", "overlap_key: sensor\n" + minimalPipeline, "overlap_key"},
		{"empty rule", "gap_fill: [{tract: x}]\n" + minimalPipeline, "gap_fill[0]"},
		{"unknown key", "colour: blue\n" + minimalPipeline, "colour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePipeline([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
