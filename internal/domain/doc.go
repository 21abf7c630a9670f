// Package domain models air-quality readings from low-cost sensor networks and
// the per-census-tract composite AQI derived from them.
//
// # Data Sources
//
// Two networks report PM2.5 for the same area:
//
//	Clarity    hourly exports keyed by datasourceId, timestamps in UTC.
//	PurpleAir  hourly ASDS exports (naive local time, with an optional daily
//	           companion file) and raw history rows pulled from the PurpleAir
//	           API (UTC epoch timestamps).
//
// Vendor readers in adapter/csvio map every source onto SensorReading. The
// functions in this package never read files or talk to the network.
//
// # Time Convention
//
// Canonical timestamps are wall-clock values in the configured zone
// (America/Los_Angeles by default) carried in a time.Time whose location is
// UTC. NormalizeTime performs the conversion; Day truncates to a calendar date.
//
// # AQI Convention
//
// PM2.5 concentrations (µg/m³) map onto the US EPA index through six
// breakpoint rows. The concentration is truncated to one decimal before the
// lookup, so 9.05 reports as 9.0 and AQI 50. Results are rounded half to even.
// Anything outside the table (negative, or above 500.4) is undefined and
// travels as an invalid null.Int rather than 0.
//
// # Fusion
//
// Each network's daily AQI is pooled per tract and reduced to a median.
// Network medians combine with inverse-variance weights estimated from
// co-located sensors; when the weights cannot be estimated a configured
// fallback applies. Tracts with no sensors may be gap-filled from the mean of
// measured neighbours.
package domain
