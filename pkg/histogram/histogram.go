// Package histogram bins region intensities into the fixed QCT density histogram.
package histogram

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Fixed binning of the QCT histogram: 240 bins of 5 HU over [-1020, 180].
const (
	Low      = -1020.0
	High     = 180.0
	NumBins  = 240
	BinWidth = (High - Low) / NumBins
)

var (
	// ErrInconsistent signals a bin/edge count mismatch, which is a programming error
	ErrInconsistent = errors.New("histogram consistency")

	// ErrNoValues is returned when no value falls inside the histogram range
	ErrNoValues = errors.New("no values in histogram range")
)

// Histogram is a density-normalised histogram: Σ Counts × BinWidth = 1
type Histogram struct {
	// Counts holds the density of each bin
	Counts []float64

	// Edges holds NumBins+1 bin boundaries
	Edges []float64

	// Midpoints holds the centre of each bin (left edge + BinWidth/2)
	Midpoints []float64
}

func init() {
	// 240 × 5 must reconstruct [-1020, 180] exactly
	if NumBins*BinWidth != High-Low {
		panic("histogram: bin layout does not cover the HU range")
	}
}

// Build bins values into the QCT histogram. Values outside [Low, High] are
// ignored; the last bin is closed at High.
func Build(values []float64) (*Histogram, error) {
	h := &Histogram{
		Counts:    make([]float64, NumBins),
		Edges:     make([]float64, NumBins+1),
		Midpoints: make([]float64, NumBins),
	}
	for i := range h.Edges {
		h.Edges[i] = Low + float64(i)*BinWidth
	}
	for i := range h.Midpoints {
		h.Midpoints[i] = h.Edges[i] + BinWidth/2
	}

	var n int
	for _, v := range values {
		if v < Low || v > High {
			continue
		}
		bin := int((v - Low) / BinWidth)
		if bin == NumBins {
			bin--
		}
		h.Counts[bin]++
		n++
	}
	if n == 0 {
		return nil, fmt.Errorf("%w [%g, %g]", ErrNoValues, Low, High)
	}

	floats.Scale(1/(float64(n)*BinWidth), h.Counts)

	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Validate checks the bin layout invariants
func (h *Histogram) Validate() error {
	if len(h.Counts) != NumBins || len(h.Midpoints) != NumBins {
		return fmt.Errorf("%w: %d counts, %d midpoints, want %d",
			ErrInconsistent, len(h.Counts), len(h.Midpoints), NumBins)
	}
	if len(h.Edges) != NumBins+1 {
		return fmt.Errorf("%w: %d edges, want %d", ErrInconsistent, len(h.Edges), NumBins+1)
	}
	return nil
}

// Total returns the sum of all bin densities
func (h *Histogram) Total() float64 {
	return floats.Sum(h.Counts)
}

// Mass returns the summed density of the bins whose midpoint lies in [lo, hi]
func (h *Histogram) Mass(lo, hi float64) float64 {
	var sum float64
	for i, m := range h.Midpoints {
		if m >= lo && m <= hi {
			sum += h.Counts[i]
		}
	}
	return sum
}

// Fraction returns Mass(lo, hi) relative to the total mass, in [0, 1]
func (h *Histogram) Fraction(lo, hi float64) float64 {
	total := h.Total()
	if total <= 0 {
		return 0
	}
	return h.Mass(lo, hi) / total
}

// Window returns the midpoints and counts whose midpoint lies strictly inside (lo, hi)
func (h *Histogram) Window(lo, hi float64) (x, y []float64) {
	for i, m := range h.Midpoints {
		if m > lo && m < hi {
			x = append(x, m)
			y = append(y, h.Counts[i])
		}
	}
	return x, y
}

// Band is a fixed HU interval of the ventilation breakdown
type Band struct {
	Name string
	Low  float64
	High float64
}

// VentilationBands are the four aeration compartments
var VentilationBands = []Band{
	{Name: "over_inflated", Low: -1000, High: -900},
	{Name: "normally_aerated", Low: -900, High: -500},
	{Name: "non_aerated", Low: -500, High: -100},
	{Name: "consolidated", Low: -100, High: 100},
}

// Ventilation holds the histogram mass fraction of each aeration compartment
type Ventilation struct {
	OverInflated    float64
	NormallyAerated float64
	NonAerated      float64
	Consolidated    float64
}

// Ventilation integrates the histogram over VentilationBands. Bands are
// half-open on the midpoint, [Low, High), so adjacent bands never share a bin.
func (h *Histogram) Ventilation() Ventilation {
	total := h.Total()
	frac := make([]float64, len(VentilationBands))
	if total > 0 {
		for i, b := range VentilationBands {
			var sum float64
			for j, m := range h.Midpoints {
				if m >= b.Low && m < b.High {
					sum += h.Counts[j]
				}
			}
			frac[i] = sum / total
		}
	}
	return Ventilation{
		OverInflated:    frac[0],
		NormallyAerated: frac[1],
		NonAerated:      frac[2],
		Consolidated:    frac[3],
	}
}
