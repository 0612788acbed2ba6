package qct

import (
	"errors"
	"fmt"

	"lungqct/internal/models"
	"lungqct/pkg/histogram"
	"lungqct/pkg/peak"
	"lungqct/pkg/sampler"
)

// Failure kinds raised while analysing a subject. They alias the errors of
// the packages that produce them, so errors.Is works on either name.
var (
	ErrShapeMismatch        = sampler.ErrShapeMismatch
	ErrEmptyMask            = sampler.ErrEmptyMask
	ErrMissingMask          = sampler.ErrMissingMask
	ErrUnrecognizedRegion   = models.ErrUnrecognizedRegion
	ErrNoConvergence        = peak.ErrNoConvergence
	ErrHistogramConsistency = histogram.ErrInconsistent
)

// RegionError is a failure of one region of one subject
type RegionError struct {
	Subject string
	Region  models.Region
	Err     error
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("subject %s, region %s: %s: %v", e.Subject, e.Region, Kind(e.Err), e.Err)
}

func (e *RegionError) Unwrap() error {
	return e.Err
}

// Kind names the failure class of err for user-facing messages
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissingMask):
		return "missing mask"
	case errors.Is(err, ErrShapeMismatch):
		return "shape mismatch"
	case errors.Is(err, ErrEmptyMask), errors.Is(err, histogram.ErrNoValues):
		return "empty mask"
	case errors.Is(err, ErrUnrecognizedRegion):
		return "unrecognized region"
	case errors.Is(err, ErrNoConvergence):
		return "fit non-convergence"
	case errors.Is(err, ErrHistogramConsistency):
		return "histogram consistency"
	default:
		return "error"
	}
}
