package landscape

import "errors"

var (
	// ErrDegenerateInput means there is nothing to compute: a zero
	// dimension, count or step count, or endpoints that are not two rows.
	ErrDegenerateInput = errors.New("landscape: degenerate input")

	// ErrDimensionMismatch means a vector does not match the parameter layout.
	ErrDimensionMismatch = errors.New("landscape: dimension mismatch")

	// ErrCacheMismatch means cached grids exist but were built for a
	// different parameter dimension or step count.
	ErrCacheMismatch = errors.New("landscape: cached grids do not match this run")

	// ErrEmptyDataset means the dataset cursor yielded no records.
	ErrEmptyDataset = errors.New("landscape: dataset is empty")
)
