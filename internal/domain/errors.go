package domain

import "errors"

// Configuration errors. These abort a run.
var (
	ErrMissingColumn = errors.New("missing required column")
	ErrMissingFile   = errors.New("missing input file")
)

// Data-sufficiency errors. Callers recover from these, typically by falling
// back to configured values or reporting the result as undefined.
var (
	ErrInsufficientOverlap = errors.New("insufficient overlapping readings")
	ErrZeroVariance        = errors.New("zero or non-finite variance")
	ErrNoData              = errors.New("no data")
)
