package qct

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/stat/distuv"

	"lungqct/internal/models"
)

// aeratedSubject returns a subject whose lungs hold a sharp aerated peak at
// -850 HU plus uniform background between -600 and 100 HU. Voxels with
// x < width/2 are labelled 10, the others 20.
func aeratedSubject(t *testing.T, id string) *models.Subject {
	t.Helper()
	shape := models.Shape{Width: 60, Height: 50, Depth: 40}
	vol := models.NewVolume(shape, models.Spacing{X: 1, Y: 1, Z: 1})
	lung := models.NewMask(shape)

	n := shape.Len()
	peak := n * 5 / 6
	dist := distuv.Normal{Mu: -850, Sigma: 40}
	values := make([]int16, 0, n)
	for k := 0; k < peak; k++ {
		values = append(values, int16(math.Round(dist.Quantile((float64(k)+0.5)/float64(peak)))))
	}
	for k := 0; k < n-peak; k++ {
		values = append(values, int16(math.Round(-600+700*(float64(k)+0.5)/float64(n-peak))))
	}

	// interleave so both sides see the same distribution
	for i := range vol.Data {
		vol.Data[i] = values[(i*7919)%n]
	}
	for z := 0; z < shape.Depth; z++ {
		for y := 0; y < shape.Height; y++ {
			for x := 0; x < shape.Width; x++ {
				label := int16(10)
				if x >= shape.Width/2 {
					label = 20
				}
				lung.Set(x, y, z, label)
			}
		}
	}
	return &models.Subject{
		ID:              id,
		AccessionNumber: "ACC-" + id,
		Volume:          vol,
		Masks:           models.MaskSet{Lung: lung},
	}
}

// cubeSubject returns a 20³ volume at hu with a 10³ cube labelled label
func cubeSubject(id string, hu, label int16) *models.Subject {
	shape := models.Shape{Width: 20, Height: 20, Depth: 20}
	vol := models.NewVolume(shape, models.Spacing{X: 1, Y: 1, Z: 1})
	lung := models.NewMask(shape)
	for i := range vol.Data {
		vol.Data[i] = hu
	}
	for z := 5; z < 15; z++ {
		for y := 5; y < 15; y++ {
			for x := 5; x < 15; x++ {
				lung.Set(x, y, z, label)
			}
		}
	}
	return &models.Subject{
		ID:              id,
		AccessionNumber: id,
		Volume:          vol,
		Masks:           models.MaskSet{Lung: lung},
	}
}
