// Package peak isolates the aerated-lung peak of a QCT density histogram.
//
// The isolator locates the first extremum of the histogram inside the
// hypo-aeration window, fits a Gaussian on a short run of bins starting there,
// and checks the fit against physiological bounds. An accepted fit splits the
// histogram into the Gaussian component and an "ill" residual whose moments
// summarise abnormal tissue. Every failure of the fit falls back to the
// rejected branch; Analyze never returns an error.
package peak

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"lungqct/pkg/histogram"
)

// Interval is a closed range [Low, High]
type Interval struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// Contains reports whether v lies in the interval
func (iv Interval) Contains(v float64) bool {
	return v >= iv.Low && v <= iv.High
}

// Config holds the isolator parameters
type Config struct {
	// Window is the open HU range searched for the peak
	Window Interval

	// PeakKernel is the median filter size used before peak search
	PeakKernel int

	// FitBins is the number of bins fitted from the first extremum on
	FitBins int

	Fit FitOptions

	// GateMean and GateSigma bound an acceptable fit
	GateMean  Interval
	GateSigma Interval

	// IllKernel is the median filter size applied to the residual curve
	IllKernel int

	// Threshold is the fit-free WAVE.th band
	Threshold Interval
}

// DefaultConfig returns the canonical isolator parameters
func DefaultConfig() Config {
	return Config{
		Window:     Interval{Low: -950, High: -700},
		PeakKernel: 7,
		FitBins:    7,
		Fit:        DefaultFitOptions(),
		GateMean:   Interval{Low: -950, High: -750},
		GateSigma:  Interval{Low: 5, High: 150},
		IllKernel:  5,
		Threshold:  Interval{Low: -950, High: -750},
	}
}

// Result is the outcome of Analyze
type Result struct {
	// Fit holds the fitted parameters, zero when the optimizer failed
	Fit      Params
	Accepted bool

	// Reason explains a rejection
	Reason string

	// Err is the optimizer error when the fit did not converge
	Err error

	Evaluations int

	// Wave is the fitted peak's share of the histogram mass, 0 when rejected
	Wave float64

	// WaveTh is the histogram mass fraction inside Threshold
	WaveTh float64

	MeanIll float64
	StdIll  float64

	// PeakIndex is the first extremum, relative to the search window
	PeakIndex int

	// FitX and FitY are the bins the Gaussian was fitted to
	FitX []float64
	FitY []float64

	// GaussTotal is the fitted Gaussian over all histogram midpoints
	GaussTotal []float64

	// Ill is the median-filtered residual |counts - GaussTotal|
	Ill []float64
}

// Isolator runs the gaussian-peak analysis with a fixed configuration
type Isolator struct {
	cfg Config
}

// NewIsolator creates an isolator
func NewIsolator(cfg Config) *Isolator {
	return &Isolator{cfg: cfg}
}

// Config returns the isolator configuration
func (iso *Isolator) Config() Config {
	return iso.cfg
}

// Analyze decomposes h into the fitted peak and the ill residual
func (iso *Isolator) Analyze(h *histogram.Histogram) Result {
	cfg := iso.cfg
	res := Result{
		WaveTh:     h.Fraction(cfg.Threshold.Low, cfg.Threshold.High),
		GaussTotal: make([]float64, len(h.Counts)),
	}

	x, y := h.Window(cfg.Window.Low, cfg.Window.High)
	smoothed := MedianFilter(y, cfg.PeakKernel)
	res.PeakIndex, _ = FirstExtremum(Gradient(smoothed))

	end := res.PeakIndex + cfg.FitBins
	if end > len(x) {
		end = len(x)
	}
	res.FitX, res.FitY = x[res.PeakIndex:end], y[res.PeakIndex:end]

	fit, err := FitGaussian(res.FitX, res.FitY, cfg.Fit)
	res.Evaluations = fit.Evaluations
	switch {
	case err != nil:
		res.Err = err
		res.Reason = err.Error()
	case !cfg.GateMean.Contains(fit.Mean):
		res.Fit = fit.Params
		res.Reason = fmt.Sprintf("mean %.1f outside [%g, %g]", fit.Mean, cfg.GateMean.Low, cfg.GateMean.High)
	case !cfg.GateSigma.Contains(fit.Sigma):
		res.Fit = fit.Params
		res.Reason = fmt.Sprintf("sigma %.1f outside [%g, %g]", fit.Sigma, cfg.GateSigma.Low, cfg.GateSigma.High)
	default:
		res.Fit = fit.Params
		res.Accepted = true
	}

	if res.Accepted {
		res.GaussTotal = Curve(h.Midpoints, res.Fit)
		if total := h.Total(); total > 0 {
			res.Wave = floats.Sum(res.GaussTotal) / total
		}
	}

	diff := make([]float64, len(h.Counts))
	floats.SubTo(diff, h.Counts, res.GaussTotal)
	for i, d := range diff {
		diff[i] = math.Abs(d)
	}
	res.Ill = MedianFilter(diff, cfg.IllKernel)
	if floats.Sum(res.Ill) > 0 {
		res.MeanIll, res.StdIll = stat.PopMeanStdDev(h.Midpoints, res.Ill)
	}

	return res
}
