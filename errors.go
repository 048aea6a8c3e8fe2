package contourtree

import "errors"

var (
	// ErrPrecondition reports a violated input or internal invariant: an
	// out-of-range index, a stage run out of order, a generated tree whose
	// arc count is not node count - 1. The failing stage is always fatal.
	ErrPrecondition = errors.New("precondition violated")

	// ErrIO reports a missing, short or malformed file.
	ErrIO = errors.New("i/o failure")
)
