// Package masks derives the upper/lower, ventral/dorsal and quadrant label
// masks from a lung segmentation.
package masks

import (
	"errors"
	"fmt"

	"lungqct/internal/models"
)

// Label values of the derived masks
const (
	LabelLow  int16 = 10 // lower or dorsal
	LabelHigh int16 = 20 // upper or ventral
)

// ErrEmptyLung is returned when the lung mask has no labelled voxel
var ErrEmptyLung = errors.New("lung mask is empty")

// Options controls the patient orientation assumed by the split
type Options struct {
	// UpperAtLowZ marks slices below the midpoint as upper, for images
	// stored feet first
	UpperAtLowZ bool

	// VentralAtHighY marks rows past the midpoint as ventral
	VentralAtHighY bool
}

// Upper splits the lung at the midpoint of its z extent. Lung voxels on the
// cranial side get LabelHigh, the others LabelLow.
func Upper(lung *models.Mask, opts Options) (*models.Mask, error) {
	zmin, zmax, ok := extentZ(lung)
	if !ok {
		return nil, ErrEmptyLung
	}
	mid := (zmin + zmax + 1) / 2

	s := lung.Shape
	out := models.NewMask(s)
	for z := 0; z < s.Depth; z++ {
		upper := z >= mid
		if opts.UpperAtLowZ {
			upper = z < mid
		}
		label := LabelLow
		if upper {
			label = LabelHigh
		}
		for i := z * s.Width * s.Height; i < (z+1)*s.Width*s.Height; i++ {
			if lung.Labels[i] != 0 {
				out.Labels[i] = label
			}
		}
	}
	return out, nil
}

// Ventral splits every slice of the lung at the midpoint of that slice's y
// extent. Lung voxels on the anterior side get LabelHigh, the others LabelLow.
func Ventral(lung *models.Mask, opts Options) (*models.Mask, error) {
	if lung.Count() == 0 {
		return nil, ErrEmptyLung
	}
	s := lung.Shape
	out := models.NewMask(s)
	for z := 0; z < s.Depth; z++ {
		ymin, ymax, ok := extentY(lung, z)
		if !ok {
			continue
		}
		mid := (ymin + ymax + 1) / 2
		for y := ymin; y <= ymax; y++ {
			ventral := y < mid
			if opts.VentralAtHighY {
				ventral = y >= mid
			}
			label := LabelLow
			if ventral {
				label = LabelHigh
			}
			for x := 0; x < s.Width; x++ {
				idx := s.Index(x, y, z)
				if lung.Labels[idx] != 0 {
					out.Labels[idx] = label
				}
			}
		}
	}
	return out, nil
}

// Mixed combines an upper and a ventral mask into quadrant codes
// upper*ventral/10 + upper/10: 11 lower-dorsal, 21 lower-ventral,
// 22 upper-dorsal and 42 upper-ventral.
func Mixed(upper, ventral *models.Mask) (*models.Mask, error) {
	if upper.Shape != ventral.Shape {
		return nil, fmt.Errorf("mixed mask: upper %s, ventral %s", upper.Shape, ventral.Shape)
	}
	out := models.NewMask(upper.Shape)
	for i, u := range upper.Labels {
		v := ventral.Labels[i]
		if u == 0 || v == 0 {
			continue
		}
		out.Labels[i] = u*v/10 + u/10
	}
	return out, nil
}

// Derive fills the missing derived masks of set from its lung mask. Masks
// already present are kept.
func Derive(set models.MaskSet, opts Options) (models.MaskSet, error) {
	if set.Lung == nil {
		return set, errors.New("derive masks: no lung mask")
	}
	var err error
	if set.Upper == nil {
		if set.Upper, err = Upper(set.Lung, opts); err != nil {
			return set, fmt.Errorf("upper mask: %w", err)
		}
	}
	if set.Ventral == nil {
		if set.Ventral, err = Ventral(set.Lung, opts); err != nil {
			return set, fmt.Errorf("ventral mask: %w", err)
		}
	}
	if set.Mixed == nil {
		if set.Mixed, err = Mixed(set.Upper, set.Ventral); err != nil {
			return set, err
		}
	}
	return set, nil
}

func extentZ(m *models.Mask) (lo, hi int, ok bool) {
	s := m.Shape
	lo, hi = s.Depth, -1
	plane := s.Width * s.Height
	for i, l := range m.Labels {
		if l == 0 {
			continue
		}
		z := i / plane
		if z < lo {
			lo = z
		}
		if z > hi {
			hi = z
		}
	}
	return lo, hi, hi >= 0
}

func extentY(m *models.Mask, z int) (lo, hi int, ok bool) {
	s := m.Shape
	lo, hi = s.Height, -1
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			if m.Labels[s.Index(x, y, z)] != 0 {
				if y < lo {
					lo = y
				}
				hi = y
				break
			}
		}
	}
	return lo, hi, hi >= 0
}
