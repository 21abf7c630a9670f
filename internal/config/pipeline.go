package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"gopkg.in/yaml.v3"
)

// Source formats understood by the vendor readers.
const (
	FormatClarityHourly   = "clarity_hourly"
	FormatPurpleAirHourly = "purpleair_hourly"
	FormatPurpleAirAPI    = "purpleair_api"
	FormatCanonical       = "canonical"
)

// Pipeline is the YAML definition of one fusion run.
type Pipeline struct {
	TimeZone        string             `yaml:"time_zone"`
	Window          Window             `yaml:"window"`
	Sources         []Source           `yaml:"sources"`
	Tracts          TractsFile         `yaml:"tracts"`
	OverlapKey      string             `yaml:"overlap_key"`
	FallbackWeights map[string]float64 `yaml:"fallback_weights"`
	GapFill         []GapFill          `yaml:"gap_fill"`
	HealthRisk      HealthRiskFile     `yaml:"health_risk"`
	Monitors        MonitorsFile       `yaml:"monitors"`
	Output          Output             `yaml:"output"`

	location   *time.Location
	window     domain.DateWindow
	overlapKey domain.OverlapKey
	fallback   domain.Weights
}

// Window bounds the aggregation by calendar date, both ends inclusive.
type Window struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Source is one raw input file.
type Source struct {
	Name      string `yaml:"name"`
	Network   string `yaml:"network"`
	Format    string `yaml:"format"`
	Path      string `yaml:"path"`
	DailyPath string `yaml:"daily_path"`
}

// TractsFile locates the tract layer GeoJSON.
type TractsFile struct {
	Path       string `yaml:"path"`
	IDProperty string `yaml:"id_property"`
}

// GapFill fills Tract from the mean of its measured neighbours.
type GapFill struct {
	Tract     string   `yaml:"tract"`
	Neighbors []string `yaml:"neighbors"`
}

// HealthRiskFile locates the tract health index table.
type HealthRiskFile struct {
	Path        string `yaml:"path"`
	GeoIDPrefix string `yaml:"geoid_prefix"`
}

// MonitorsFile locates the monitor score table.
type MonitorsFile struct {
	Path string `yaml:"path"`
}

// Output controls where file sinks write.
type Output struct {
	Dir string `yaml:"dir"`
}

// LoadPipeline reads and validates a pipeline definition. Relative paths in
// the file resolve against the file's directory.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("pipeline config %s: %w", path, domain.ErrMissingFile)
		}
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}
	p, err := ParsePipeline(data)
	if err != nil {
		return nil, fmt.Errorf("pipeline config %s: %w", path, err)
	}
	p.resolvePaths(filepath.Dir(path))
	return p, nil
}

// ParsePipeline decodes and validates a pipeline definition. Unknown keys are errors.
func ParsePipeline(data []byte) (*Pipeline, error) {
	var p Pipeline
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	p.applyDefaults()
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Pipeline) applyDefaults() {
	if p.TimeZone == "" {
		p.TimeZone = domain.DefaultTimeZone
	}
	if p.Tracts.IDProperty == "" {
		p.Tracts.IDProperty = "geoid"
	}
	if p.HealthRisk.GeoIDPrefix == "" {
		p.HealthRisk.GeoIDPrefix = domain.DefaultGeoIDPrefix
	}
	if p.Output.Dir == "" {
		p.Output.Dir = "out"
	}
}

func (p *Pipeline) validate() error {
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return fmt.Errorf("time_zone: %w", err)
	}
	p.location = loc

	if p.window, err = domain.ParseDateWindow(p.Window.Start, p.Window.End); err != nil {
		return err
	}
	if p.overlapKey, err = domain.ParseOverlapKey(p.OverlapKey); err != nil {
		return fmt.Errorf("overlap_key: %w", err)
	}

	if len(p.Sources) == 0 {
		return errors.New("at least one source is required")
	}
	names := make(map[string]bool, len(p.Sources))
	for i, s := range p.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("sources[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = true
		if _, err := domain.ParseNetwork(s.Network); err != nil {
			return fmt.Errorf("source %s: %w", s.Name, err)
		}
		switch s.Format {
		case FormatClarityHourly, FormatPurpleAirHourly, FormatPurpleAirAPI, FormatCanonical:
		default:
			return fmt.Errorf("source %s: unknown format %q", s.Name, s.Format)
		}
		if s.Path == "" {
			return fmt.Errorf("source %s: path is required", s.Name)
		}
		if s.DailyPath != "" && s.Format != FormatPurpleAirHourly {
			return fmt.Errorf("source %s: daily_path is only valid for %s", s.Name, FormatPurpleAirHourly)
		}
	}

	if p.Tracts.Path == "" {
		return errors.New("tracts.path is required")
	}

	if len(p.FallbackWeights) > 0 {
		w := make(domain.Weights, len(p.FallbackWeights))
		for name, v := range p.FallbackWeights {
			n, err := domain.ParseNetwork(name)
			if err != nil {
				return fmt.Errorf("fallback_weights: %w", err)
			}
			w[n] = v
		}
		if err := w.Validate(); err != nil {
			return fmt.Errorf("fallback_weights: %w", err)
		}
		p.fallback = w
	}

	targets := make(map[string]bool, len(p.GapFill))
	for i, g := range p.GapFill {
		if g.Tract == "" || len(g.Neighbors) == 0 {
			return fmt.Errorf("gap_fill[%d]: tract and neighbors are required", i)
		}
		if targets[g.Tract] {
			return fmt.Errorf("gap_fill[%d]: duplicate tract %q", i, g.Tract)
		}
		targets[g.Tract] = true
	}
	return nil
}

func (p *Pipeline) resolvePaths(base string) {
	abs := func(s string) string {
		if s == "" || filepath.IsAbs(s) {
			return s
		}
		return filepath.Join(base, s)
	}
	for i := range p.Sources {
		p.Sources[i].Path = abs(p.Sources[i].Path)
		p.Sources[i].DailyPath = abs(p.Sources[i].DailyPath)
	}
	p.Tracts.Path = abs(p.Tracts.Path)
	p.HealthRisk.Path = abs(p.HealthRisk.Path)
	p.Monitors.Path = abs(p.Monitors.Path)
	p.Output.Dir = abs(p.Output.Dir)
}

// Location returns the zone canonical timestamps are expressed in.
func (p *Pipeline) Location() *time.Location { return p.location }

// DateWindow returns the parsed aggregation window.
func (p *Pipeline) DateWindow() domain.DateWindow { return p.window }

// Overlap returns the key used to pair readings across networks.
func (p *Pipeline) Overlap() domain.OverlapKey { return p.overlapKey }

// Fallback returns the configured fallback weights, or nil when none are set.
func (p *Pipeline) Fallback() domain.Weights { return p.fallback }

// GapFillRules converts the gap-fill section to domain rules.
func (p *Pipeline) GapFillRules() []domain.GapFillRule {
	rules := make([]domain.GapFillRule, len(p.GapFill))
	for i, g := range p.GapFill {
		rules[i] = domain.GapFillRule{Tract: g.Tract, Neighbors: g.Neighbors}
	}
	return rules
}

// Networks returns the distinct source networks in order of first appearance.
func (p *Pipeline) Networks() []domain.Network {
	var out []domain.Network
	seen := make(map[domain.Network]bool)
	for _, s := range p.Sources {
		n, _ := domain.ParseNetwork(s.Network)
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
