// Package stats computes the descriptive statistics of a sampled lung region.
package stats

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"lungqct/internal/models"
)

// ErrNoSamples is returned when Describe is called with an empty sample set
var ErrNoSamples = errors.New("no samples")

// Percentiles reported for every region
var Percentiles = [4]float64{0.25, 0.50, 0.75, 0.90}

// Summary holds the descriptive statistics of one region
type Summary struct {
	VoxelCount int

	// VolumeCC is voxel count times voxel volume, in cm³
	VolumeCC float64

	Mean     float64
	StdDev   float64
	Skewness float64
	Kurtosis float64

	Perc25 float64
	Perc50 float64
	Perc75 float64
	Perc90 float64
}

// VolumeCC converts a voxel count to cm³. A positive sliceThickness replaces
// the Z spacing, as in pipelines that resample only along z.
func VolumeCC(voxelCount int, spacing models.Spacing, sliceThickness float64) float64 {
	if voxelCount <= 0 {
		return 0
	}
	return float64(voxelCount) * spacing.VoxelVolume(sliceThickness) / 1000
}

// Describe computes the summary statistics of values.
//
// The standard deviation is the population one. Skewness is the biased
// moment ratio m3/m2^1.5 and kurtosis the Fisher excess m4/m2² - 3; both are
// reported as zero for constant input. Percentiles interpolate linearly
// between the order statistics at rank (n-1)p.
func Describe(values []float64, voxelCount int, spacing models.Spacing, sliceThickness float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrNoSamples
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mean, std := stat.PopMeanStdDev(sorted, nil)

	s := Summary{
		VoxelCount: voxelCount,
		VolumeCC:   VolumeCC(voxelCount, spacing, sliceThickness),
		Mean:       mean,
		StdDev:     std,
	}

	m2 := std * std
	if m2 > 0 {
		s.Skewness = stat.Moment(3, sorted, nil) / math.Pow(m2, 1.5)
		s.Kurtosis = stat.Moment(4, sorted, nil)/(m2*m2) - 3
	}

	q := make([]float64, len(Percentiles))
	for i, p := range Percentiles {
		q[i] = quantile(p, sorted)
	}
	s.Perc25, s.Perc50, s.Perc75, s.Perc90 = q[0], q[1], q[2], q[3]

	return s, nil
}

// quantile interpolates between the order statistics around rank (n-1)p.
// sorted must be in ascending order.
func quantile(p float64, sorted []float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}
