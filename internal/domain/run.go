package domain

import "time"

// RunInfo identifies one fusion run in published output.
type RunInfo struct {
	RunID       string
	GeneratedAt time.Time
	Window      DateWindow
	Weights     Weights
	Fallback    bool
}
