// Package visualization renders the QCT histogram plots and region previews.
package visualization

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"lungqct/pkg/histogram"
	"lungqct/pkg/qct"
)

// Plot size of the saved histograms
const (
	PlotWidth  = 6 * vg.Inch
	PlotHeight = 4 * vg.Inch
)

var (
	fitColor   = color.RGBA{R: 220, G: 50, B: 32, A: 255}
	illColor   = color.RGBA{R: 0, G: 90, B: 181, A: 255}
	pointColor = color.RGBA{A: 255}
)

// NewHistogramPlot draws the density histogram of one region with the fitted
// Gaussian and the ill curve. A new plot is built on every call.
func NewHistogramPlot(data qct.PlotData, title string) (*plot.Plot, error) {
	if len(data.Counts) != histogram.NumBins || len(data.Midpoints) != histogram.NumBins {
		return nil, errors.New("plot data holds no histogram")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "HU"
	p.Y.Label.Text = "Density"
	p.X.Min, p.X.Max = histogram.Low, histogram.High

	xys := make(plotter.XYs, len(data.Counts))
	for i := range data.Counts {
		xys[i] = plotter.XY{X: data.Midpoints[i], Y: data.Counts[i]}
	}
	hist, err := plotter.NewHistogram(xys, histogram.NumBins)
	if err != nil {
		return nil, err
	}
	// keep the exact 5 HU bins rather than re-binning the midpoints
	for i := range hist.Bins {
		lo := data.Midpoints[i] - histogram.BinWidth/2
		hist.Bins[i] = plotter.HistogramBin{Min: lo, Max: lo + histogram.BinWidth, Weight: data.Counts[i]}
	}
	hist.Width = histogram.BinWidth
	hist.FillColor = color.Gray{Y: 190}
	hist.LineStyle.Width = vg.Points(0.3)
	p.Add(hist)
	p.Legend.Add("density", hist)

	if curve := line(data.Midpoints, data.Gauss); curve != nil {
		gauss, err := plotter.NewLine(curve)
		if err != nil {
			return nil, err
		}
		gauss.Color = fitColor
		gauss.Width = vg.Points(1.5)
		p.Add(gauss)
		p.Legend.Add("gaussian", gauss)
	}

	if curve := line(data.Midpoints, data.Ill); curve != nil {
		ill, err := plotter.NewLine(curve)
		if err != nil {
			return nil, err
		}
		ill.Color = illColor
		ill.Width = vg.Points(1)
		ill.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(ill)
		p.Legend.Add("ill", ill)
	}

	if len(data.FitX) > 0 && len(data.FitX) == len(data.FitY) {
		pts := make(plotter.XYs, len(data.FitX))
		for i := range data.FitX {
			pts[i] = plotter.XY{X: data.FitX[i], Y: data.FitY[i]}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		sc.Color = pointColor
		sc.Radius = vg.Points(1.5)
		p.Add(sc)
		p.Legend.Add("fitted bins", sc)
	}

	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10
	return p, nil
}

// line returns nil for an empty or all-zero curve
func line(x, y []float64) plotter.XYs {
	if len(y) != len(x) {
		return nil
	}
	nonzero := false
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i] = plotter.XY{X: x[i], Y: y[i]}
		if y[i] != 0 {
			nonzero = true
		}
	}
	if !nonzero {
		return nil
	}
	return pts
}

// SaveHistogram renders res and writes it as a PNG to path
func SaveHistogram(res qct.RegionResult, path string) error {
	title := fmt.Sprintf("%s %s (fit %s)", res.AccessionNumber, res.Region, res.FitStatus())
	p, err := NewHistogramPlot(res.Plot, title)
	if err != nil {
		return err
	}
	return p.Save(PlotWidth, PlotHeight, path)
}
