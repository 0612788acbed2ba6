// Package sampler extracts the HU values of a labelled lung region.
package sampler

import (
	"errors"
	"fmt"

	"lungqct/internal/models"
)

// HU range kept by the sampler. Values outside it are dropped.
const (
	MinHU = -1020
	MaxHU = 180
)

var (
	// ErrShapeMismatch is returned when the volume and mask dimensions differ
	ErrShapeMismatch = errors.New("volume and mask shape mismatch")

	// ErrEmptyMask is returned when a region has no samples inside the HU range
	ErrEmptyMask = errors.New("empty mask")
)

// Rule selects the voxels of one region
type Rule struct {
	// Kind is the mask the rule is evaluated on
	Kind models.MaskKind

	// Labels lists the accepted label codes. Empty means any nonzero label.
	Labels []int16
}

// Match reports whether label belongs to the region
func (r Rule) Match(label int16) bool {
	if len(r.Labels) == 0 {
		return label != 0
	}
	for _, l := range r.Labels {
		if label == l {
			return true
		}
	}
	return false
}

// labelTable maps each region to its selector. Side assignment of the lung
// mask (10 right, 20 left) follows the segmentation output convention.
var labelTable = map[models.Region]Rule{
	models.Bilateral:    {Kind: models.LungMask},
	models.Right:        {Kind: models.LungMask, Labels: []int16{10}},
	models.Left:         {Kind: models.LungMask, Labels: []int16{20}},
	models.Lower:        {Kind: models.UpperMask, Labels: []int16{10}},
	models.Upper:        {Kind: models.UpperMask, Labels: []int16{20}},
	models.Dorsal:       {Kind: models.VentralMask, Labels: []int16{10}},
	models.Ventral:      {Kind: models.VentralMask, Labels: []int16{20}},
	models.LowerDorsal:  {Kind: models.MixedMask, Labels: []int16{11}},
	models.LowerVentral: {Kind: models.MixedMask, Labels: []int16{21}},
	models.UpperDorsal:  {Kind: models.MixedMask, Labels: []int16{22}},
	models.UpperVentral: {Kind: models.MixedMask, Labels: []int16{42}},
}

// RuleFor returns the label selector of a region
func RuleFor(region models.Region) (Rule, error) {
	rule, ok := labelTable[region]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", models.ErrUnrecognizedRegion, region)
	}
	return rule, nil
}

// Samples holds the intensities extracted for one region
type Samples struct {
	// Values are the HU values inside [MinHU, MaxHU]
	Values []float64

	// VoxelCount is the number of mask voxels selected, before HU clipping
	VoxelCount int
}

// Sample returns the volume values where mask matches rule, keeping only
// values inside [MinHU, MaxHU]. An empty result is reported as ErrEmptyMask
// together with the voxel count.
func Sample(volume *models.Volume, mask *models.Mask, rule Rule) (Samples, error) {
	if volume == nil || mask == nil {
		return Samples{}, fmt.Errorf("sample: nil volume or mask")
	}
	if volume.Shape != mask.Shape || len(volume.Data) != len(mask.Labels) {
		return Samples{}, fmt.Errorf("%w: volume %s, mask %s", ErrShapeMismatch, volume.Shape, mask.Shape)
	}

	var out Samples
	for i, label := range mask.Labels {
		if !rule.Match(label) {
			continue
		}
		out.VoxelCount++

		hu := volume.Data[i]
		if hu < MinHU || hu > MaxHU {
			continue
		}
		out.Values = append(out.Values, float64(hu))
	}

	if len(out.Values) == 0 {
		return out, fmt.Errorf("%w: %d voxels selected, none inside [%d, %d] HU",
			ErrEmptyMask, out.VoxelCount, MinHU, MaxHU)
	}
	return out, nil
}

// SampleRegion resolves the region's rule and mask from a MaskSet and samples it.
// A missing mask is reported with models.MaskKind so the caller can decide policy.
func SampleRegion(volume *models.Volume, masks models.MaskSet, region models.Region) (Samples, error) {
	rule, err := RuleFor(region)
	if err != nil {
		return Samples{}, err
	}
	mask := masks.Get(rule.Kind)
	if mask == nil {
		return Samples{}, &MissingMaskError{Region: region, Kind: rule.Kind}
	}
	return Sample(volume, mask, rule)
}

// ErrMissingMask is matched by MissingMaskError
var ErrMissingMask = errors.New("missing mask")

// MissingMaskError reports a region whose mask was never generated
type MissingMaskError struct {
	Region models.Region
	Kind   models.MaskKind
}

func (e *MissingMaskError) Error() string {
	return fmt.Sprintf("missing mask: region %q needs the %s mask", e.Region, e.Kind)
}

// Is makes errors.Is(err, ErrMissingMask) succeed
func (e *MissingMaskError) Is(target error) bool {
	return target == ErrMissingMask
}
