package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"

	"github.com/couchcryptid/aqi-fusion/internal/adapter/csvio"
	"github.com/couchcryptid/aqi-fusion/internal/adapter/geojson"
	"github.com/couchcryptid/aqi-fusion/internal/config"
	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"github.com/couchcryptid/aqi-fusion/internal/pipeline"
	"github.com/spf13/cobra"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func (a *app) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the integrity of a published run's output files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			def, err := a.loadPipeline()
			if err != nil {
				return err
			}
			return validateOutput(cmd.OutOrStdout(), def)
		},
	}
}

func validateOutput(out io.Writer, def *config.Pipeline) error {
	fmt.Fprintln(out, "=== Tract AQI Output Validation ===")
	fmt.Fprintln(out)

	layer, err := pipeline.LoadTractLayer(def.Tracts.Path, def.Tracts.IDProperty)
	if err != nil {
		return fmt.Errorf("tract layer: %w", err)
	}

	var csvTracts []domain.TractAQI
	err = readFile(filepath.Join(def.Output.Dir, pipeline.TractCSVFile), func(r io.Reader) error {
		var err error
		csvTracts, _, err = csvio.ReadTractTable(r)
		return err
	})
	if err != nil {
		return fmt.Errorf("tract table: %w", err)
	}

	var geoTracts []domain.TractAQI
	err = readFile(filepath.Join(def.Output.Dir, pipeline.TractGeoJSONFile), func(r io.Reader) error {
		var err error
		geoTracts, err = geojson.ReadTracts(r, def.Tracts.IDProperty)
		return err
	})
	if err != nil {
		return fmt.Errorf("tract geojson: %w", err)
	}

	phases := []*phase{
		validateCanonical(def),
		validateTractTable(csvTracts, layer),
		validateAgreement(csvTracts, geoTracts),
		validateGapFill(csvTracts, def.GapFillRules()),
	}

	fmt.Fprintln(out)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Tracts: %d CSV, %d GeoJSON, %d in layer\n", len(csvTracts), len(geoTracts), layer.Len())

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return nil
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return errors.New("validation failed")
}

// ── Phase 1: Canonical AQI ──
// Recomputes AQI from the stored concentrations of every cleaned table.

func validateCanonical(def *config.Pipeline) *phase {
	p := &phase{name: "Phase 1: Canonical AQI (recompute)"}
	for _, n := range def.Networks() {
		var readings []domain.SensorReading
		err := readFile(filepath.Join(def.Output.Dir, pipeline.CanonicalFile(n)), func(r io.Reader) error {
			var err error
			readings, err = csvio.ReadReadings(r)
			return err
		})
		if err != nil {
			p.errorf("%s: %v", n, err)
			continue
		}
		checkReadings(p, n, readings)
	}
	return p
}

func checkReadings(p *phase, n domain.Network, readings []domain.SensorReading) {
	for i, r := range readings {
		if r.PM25Hourly.Valid && r.PM25Hourly.Float64 < 0 {
			p.errorf("%s row %d: negative 1h concentration %v", n, i+1, r.PM25Hourly.Float64)
		}
		if r.PM25Daily.Valid && r.PM25Daily.Float64 < 0 {
			p.errorf("%s row %d: negative 24h concentration %v", n, i+1, r.PM25Daily.Float64)
		}
		if want := domain.ConcentrationToAQI(r.PM25Hourly); want != r.PM25HourlyAQI {
			p.errorf("%s row %d: 1h AQI %v, recomputed %v", n, i+1, r.PM25HourlyAQI, want)
		}
		if want := domain.ConcentrationToAQI(r.PM25Daily); want != r.PM25DailyAQI {
			p.errorf("%s row %d: 24h AQI %v, recomputed %v", n, i+1, r.PM25DailyAQI, want)
		}
		if i > 0 && r.Time.Before(readings[i-1].Time) {
			p.errorf("%s row %d: time %s before previous row", n, i+1, r.Time)
		}
	}
}

// ── Phase 2: Tract table ──
// Every tract is unique, sorted, in the layer, and a weighted mean of its medians.

func validateTractTable(tracts []domain.TractAQI, layer *domain.TractLayer) *phase {
	p := &phase{name: "Phase 2: Tract Table (integrity)"}
	seen := make(map[string]bool, len(tracts))
	for i, t := range tracts {
		if seen[t.TractID] {
			p.errorf("tract %s: duplicate row", t.TractID)
		}
		seen[t.TractID] = true
		if i > 0 && t.TractID < tracts[i-1].TractID {
			p.errorf("tract %s: out of order after %s", t.TractID, tracts[i-1].TractID)
		}
		if _, ok := layer.Get(t.TractID); !ok {
			p.errorf("tract %s: not in the tract layer", t.TractID)
		}
		if math.IsNaN(t.CombinedAQI) || math.IsInf(t.CombinedAQI, 0) {
			p.errorf("tract %s: combined AQI %v", t.TractID, t.CombinedAQI)
			continue
		}
		if t.GapFilled {
			if len(t.Medians) > 0 {
				p.errorf("tract %s: gap-filled but has network medians", t.TractID)
			}
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, m := range t.Medians {
			lo, hi = min(lo, m), max(hi, m)
		}
		if len(t.Medians) == 0 || t.CombinedAQI < lo-1e-9 || t.CombinedAQI > hi+1e-9 {
			p.errorf("tract %s: combined %v outside medians [%v, %v]", t.TractID, t.CombinedAQI, lo, hi)
		}
	}
	return p
}

// ── Phase 3: CSV vs GeoJSON ──

func validateAgreement(csvTracts, geoTracts []domain.TractAQI) *phase {
	p := &phase{name: "Phase 3: CSV vs GeoJSON (agreement)"}
	geo := make(map[string]domain.TractAQI, len(geoTracts))
	for _, t := range geoTracts {
		geo[t.TractID] = t
	}
	if len(geoTracts) != len(csvTracts) {
		p.errorf("CSV has %d tracts, GeoJSON has %d", len(csvTracts), len(geoTracts))
	}
	for _, c := range csvTracts {
		g, ok := geo[c.TractID]
		if !ok {
			p.errorf("tract %s: missing from GeoJSON", c.TractID)
			continue
		}
		if g.CombinedAQI != c.CombinedAQI {
			p.errorf("tract %s: combined CSV=%v GeoJSON=%v", c.TractID, c.CombinedAQI, g.CombinedAQI)
		}
		for n, m := range c.Medians {
			if gm, ok := g.Medians[n]; !ok || gm != m {
				p.errorf("tract %s: %s median CSV=%v GeoJSON=%v", c.TractID, n, m, gm)
			}
		}
		if len(g.Medians) != len(c.Medians) {
			p.errorf("tract %s: CSV has %d medians, GeoJSON has %d", c.TractID, len(c.Medians), len(g.Medians))
		}
	}
	return p
}

// ── Phase 4: Gap-fill ──
// Gap-filled values equal the mean of the rule's measured neighbours.

func validateGapFill(tracts []domain.TractAQI, rules []domain.GapFillRule) *phase {
	p := &phase{name: "Phase 4: Gap-Fill (neighbour means)"}
	measured := make(map[string]float64, len(tracts))
	filled := make(map[string]float64)
	for _, t := range tracts {
		if t.GapFilled {
			filled[t.TractID] = t.CombinedAQI
		} else {
			measured[t.TractID] = t.CombinedAQI
		}
	}
	targets := make(map[string]bool, len(rules))
	for _, r := range rules {
		targets[r.Tract] = true
		got, isFilled := filled[r.Tract]
		want, ok := domain.GapFill(measured, r)
		switch {
		case !isFilled:
			if _, isMeasured := measured[r.Tract]; !isMeasured && ok {
				p.errorf("tract %s: neighbours measured but no gap-filled value", r.Tract)
			}
		case !ok:
			p.errorf("tract %s: gap-filled but no neighbour is measured", r.Tract)
		case math.Abs(got-want) > 1e-9:
			p.errorf("tract %s: gap-filled %v, neighbour mean %v", r.Tract, got, want)
		}
	}
	for id := range filled {
		if !targets[id] {
			p.errorf("tract %s: gap-filled without a rule", id)
		}
	}
	return p
}
