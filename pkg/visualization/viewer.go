package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"lungqct/internal/models"
	"lungqct/pkg/sampler"
)

// Display window of the lung previews, in HU
const (
	WindowLow  = -1000.0
	WindowHigh = 200.0
)

// Viewer extracts display slices from a CT volume
type Viewer struct {
	volume *models.Volume

	// low and high map to black and white
	low  float64
	high float64
}

// NewViewer creates a viewer with the lung display window
func NewViewer(volume *models.Volume) *Viewer {
	return &Viewer{volume: volume, low: WindowLow, high: WindowHigh}
}

// SetWindow changes the HU display window
func (v *Viewer) SetWindow(low, high float64) error {
	if low >= high {
		return fmt.Errorf("invalid window [%g, %g]", low, high)
	}
	v.low, v.high = low, high
	return nil
}

func (v *Viewer) gray(hu int16) color.Gray {
	t := (float64(hu) - v.low) / (v.high - v.low)
	return color.Gray{Y: uint8(math.Round(math.Max(0, math.Min(1, t)) * 255))}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	s := v.volume.Shape

	var img *image.Gray
	switch axis {
	case "x", "X":
		// sagittal: YZ plane
		if position >= s.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, s.Width)
		}
		img = image.NewGray(image.Rect(0, 0, s.Depth, s.Height))
		for y := 0; y < s.Height; y++ {
			for z := 0; z < s.Depth; z++ {
				img.SetGray(z, y, v.gray(v.volume.At(position, y, z)))
			}
		}

	case "y", "Y":
		// coronal: XZ plane
		if position >= s.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, s.Height)
		}
		img = image.NewGray(image.Rect(0, 0, s.Width, s.Depth))
		for z := 0; z < s.Depth; z++ {
			for x := 0; x < s.Width; x++ {
				img.SetGray(x, z, v.gray(v.volume.At(x, position, z)))
			}
		}

	case "z", "Z":
		// axial: XY plane
		if position >= s.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, s.Depth)
		}
		img = image.NewGray(image.Rect(0, 0, s.Width, s.Height))
		for y := 0; y < s.Height; y++ {
			for x := 0; x < s.Width; x++ {
				img.SetGray(x, y, v.gray(v.volume.At(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// RegionColor tints the voxels of a previewed region
var RegionColor = color.NRGBA{R: 230, G: 60, B: 40, A: 110}

// CentralSlice returns the axial slice holding the most voxels of rule
func CentralSlice(mask *models.Mask, rule sampler.Rule) (int, bool) {
	s := mask.Shape
	best, bestCount := 0, 0
	for z := 0; z < s.Depth; z++ {
		n := 0
		for i := z * s.Width * s.Height; i < (z+1)*s.Width*s.Height; i++ {
			if rule.Match(mask.Labels[i]) {
				n++
			}
		}
		if n > bestCount {
			best, bestCount = z, n
		}
	}
	return best, bestCount > 0
}

// Preview draws axial slice z with the voxels of rule tinted, scaled by factor
func (v *Viewer) Preview(mask *models.Mask, rule sampler.Rule, z, factor int) (image.Image, error) {
	if mask.Shape != v.volume.Shape {
		return nil, fmt.Errorf("%w: volume %s, mask %s", sampler.ErrShapeMismatch, v.volume.Shape, mask.Shape)
	}
	slice, err := v.ExtractSlice("z", z)
	if err != nil {
		return nil, err
	}

	b := slice.Bounds()
	overlay := image.NewNRGBA(b)
	draw.Draw(overlay, b, slice, b.Min, draw.Src)
	tint := image.NewUniform(RegionColor)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if rule.Match(mask.At(x, y, z)) {
				draw.Draw(overlay, image.Rect(x, y, x+1, y+1), tint, image.Point{}, draw.Over)
			}
		}
	}

	if factor <= 1 {
		return overlay, nil
	}
	scaled := image.NewNRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), overlay, b, draw.Src, nil)
	return scaled, nil
}

// SaveImage saves img as a PNG, creating the directory if needed
func SaveImage(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
