package models

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamDataUnavailable marks a price or foreign snapshot fetch
	// that failed or returned too few rows. Callers degrade, never abort.
	ErrUpstreamDataUnavailable = errors.New("upstream data unavailable")
	ErrInvariantViolation      = errors.New("invariant violation")
	ErrConfiguration           = errors.New("configuration error")
	ErrInvalidTransition       = fmt.Errorf("%w: invalid status transition", ErrInvariantViolation)
	ErrStaleVersion            = errors.New("stale recommendation version")
	ErrNotFound                = errors.New("not found")
)
