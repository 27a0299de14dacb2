package acseg

import "errors"

var (
	// ErrSizeMismatch is returned when two arrays or grids that must have
	// identical dimensions do not.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrCoordMismatch is returned when the x, y, and z lists of a sparse
	// coordinate set have different lengths.
	ErrCoordMismatch = errors.New("sparse coordinate lists have different lengths")

	// ErrFieldNotFound is returned when a named attribute is not part of any schema tier.
	ErrFieldNotFound = errors.New("field not found")

	// ErrBadSeed is returned for seeds that cannot be evolved, e.g., index 0.
	ErrBadSeed = errors.New("bad seed")

	// ErrInterrupted is returned when a host interrupt stopped a run early.
	// Any output written before the interruption is incomplete.
	ErrInterrupted = errors.New("interrupted")
)
