package models

import "fmt"

// Spacing is the physical size of a voxel in mm
type Spacing struct {
	X, Y, Z float64
}

// VoxelVolume returns the volume of a single voxel in mm³.
// A positive sliceThickness replaces the Z spacing.
func (s Spacing) VoxelVolume(sliceThickness float64) float64 {
	z := s.Z
	if sliceThickness > 0 {
		z = sliceThickness
	}
	return s.X * s.Y * z
}

// Shape describes the dimensions of a voxel grid
type Shape struct {
	Width, Height, Depth int
}

// Len returns the number of voxels in the grid
func (s Shape) Len() int {
	return s.Width * s.Height * s.Depth
}

// Index returns the row-major offset of voxel (x, y, z)
func (s Shape) Index(x, y, z int) int {
	return z*s.Width*s.Height + y*s.Width + x
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Width, s.Height, s.Depth)
}

// Volume represents a CT scan as a 3D grid of Hounsfield Units
type Volume struct {
	// Data holds the HU values as a 1D array in row-major order (x fastest)
	Data []int16

	Shape

	// Spacing is the physical size of each voxel in mm
	Spacing Spacing
}

// NewVolume allocates an empty volume of the given shape
func NewVolume(shape Shape, spacing Spacing) *Volume {
	return &Volume{
		Data:    make([]int16, shape.Len()),
		Shape:   shape,
		Spacing: spacing,
	}
}

// At returns the HU value at voxel (x, y, z)
func (v *Volume) At(x, y, z int) int16 {
	return v.Data[v.Index(x, y, z)]
}

// Mask is a label grid with the same layout as a Volume.
// Label codes identify anatomical sub-regions of the lung.
type Mask struct {
	// Labels holds one label per voxel in row-major order
	Labels []int16

	Shape
}

// NewMask allocates an empty mask of the given shape
func NewMask(shape Shape) *Mask {
	return &Mask{
		Labels: make([]int16, shape.Len()),
		Shape:  shape,
	}
}

// At returns the label at voxel (x, y, z)
func (m *Mask) At(x, y, z int) int16 {
	return m.Labels[m.Index(x, y, z)]
}

// Set assigns a label at voxel (x, y, z)
func (m *Mask) Set(x, y, z int, label int16) {
	m.Labels[m.Index(x, y, z)] = label
}

// Count returns the number of voxels carrying a nonzero label
func (m *Mask) Count() int {
	n := 0
	for _, l := range m.Labels {
		if l != 0 {
			n++
		}
	}
	return n
}

// MaskKind identifies which of the subject's masks a region is read from
type MaskKind int

const (
	// LungMask is the segmentation output: 10 = right lung, 20 = left lung
	LungMask MaskKind = iota
	// UpperMask splits the lung along the z axis: 20 = upper, 10 = lower
	UpperMask
	// VentralMask splits each slice along the y axis: 20 = ventral, 10 = dorsal
	VentralMask
	// MixedMask combines UpperMask and VentralMask into quadrant codes
	MixedMask
)

func (k MaskKind) String() string {
	switch k {
	case LungMask:
		return "lung"
	case UpperMask:
		return "upper"
	case VentralMask:
		return "ventral"
	case MixedMask:
		return "mixed"
	default:
		return fmt.Sprintf("MaskKind(%d)", int(k))
	}
}

// MaskSet groups the masks available for a subject.
// A nil entry means the mask was not generated.
type MaskSet struct {
	Lung    *Mask
	Upper   *Mask
	Ventral *Mask
	Mixed   *Mask
}

// Get returns the mask of the given kind, or nil when absent
func (s MaskSet) Get(kind MaskKind) *Mask {
	switch kind {
	case LungMask:
		return s.Lung
	case UpperMask:
		return s.Upper
	case VentralMask:
		return s.Ventral
	case MixedMask:
		return s.Mixed
	default:
		return nil
	}
}

// Subject is one CT study ready for analysis
type Subject struct {
	// ID is the subject directory name
	ID string

	// AccessionNumber identifies the study in output rows
	AccessionNumber string

	Study Study

	Volume *Volume
	Masks  MaskSet
}

// Study holds the DICOM attributes reported next to the features
type Study struct {
	AcquisitionDate string
	PatientAge      string
	PatientSex      string
}
