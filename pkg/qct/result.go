package qct

import (
	"lungqct/internal/models"
	"lungqct/pkg/histogram"
	"lungqct/pkg/peak"
	"lungqct/pkg/stats"
)

// FeatureNames are the numeric columns of every region, in output order
var FeatureNames = []string{
	"volume", "mean", "stddev",
	"perc25", "perc50", "perc75", "perc90",
	"skewness", "kurtosis",
	"wave", "waveth", "mean_ill", "std_ill",
}

// VentilationNames are the optional ventilation columns, in output order
func VentilationNames() []string {
	names := make([]string, len(histogram.VentilationBands))
	for i, b := range histogram.VentilationBands {
		names[i] = b.Name
	}
	return names
}

// Feature is one named numeric value of a region
type Feature struct {
	Name  string
	Value float64
}

// PlotData holds the arrays a renderer needs to draw one region's histogram
type PlotData struct {
	Midpoints []float64
	Counts    []float64

	// FitX and FitY are the bins the Gaussian was fitted to
	FitX []float64
	FitY []float64

	// Gauss is the accepted Gaussian over all midpoints, zero when rejected
	Gauss []float64
	Ill   []float64
}

// RegionResult is the complete feature set of one (subject, region)
type RegionResult struct {
	AccessionNumber string
	Region          models.Region

	stats.Summary

	Wave    float64
	WaveTh  float64
	MeanIll float64
	StdIll  float64

	FitAccepted bool
	Fit         peak.Params
	FitReason   string

	// Ventilation is nil unless ventilation fractions were requested
	Ventilation *histogram.Ventilation

	Plot PlotData
}

// Features returns the region's numeric values in FeatureNames order,
// followed by the ventilation fractions when present.
func (r RegionResult) Features() []Feature {
	values := []float64{
		r.VolumeCC, r.Mean, r.StdDev,
		r.Perc25, r.Perc50, r.Perc75, r.Perc90,
		r.Skewness, r.Kurtosis,
		r.Wave, r.WaveTh, r.MeanIll, r.StdIll,
	}
	out := make([]Feature, 0, len(values)+len(histogram.VentilationBands))
	for i, v := range values {
		out = append(out, Feature{Name: FeatureNames[i], Value: v})
	}
	if v := r.Ventilation; v != nil {
		for i, f := range []float64{v.OverInflated, v.NormallyAerated, v.NonAerated, v.Consolidated} {
			out = append(out, Feature{Name: histogram.VentilationBands[i].Name, Value: f})
		}
	}
	return out
}

// FitStatus is "accepted" or "rejected"
func (r RegionResult) FitStatus() string {
	if r.FitAccepted {
		return "accepted"
	}
	return "rejected"
}

// SubjectResult collects the regions of one subject
type SubjectResult struct {
	SubjectID       string
	AccessionNumber string

	// Regions holds the analysed regions in configuration order
	Regions []RegionResult

	// Failures holds the regions that were skipped
	Failures []*RegionError
}

// Region returns the result of region r, if it was analysed
func (s *SubjectResult) Region(r models.Region) (RegionResult, bool) {
	for _, res := range s.Regions {
		if res.Region == r {
			return res, true
		}
	}
	return RegionResult{}, false
}

// Columns flattens the subject into region-suffixed features, e.g. volume_left
func (s *SubjectResult) Columns() []Feature {
	var out []Feature
	for _, res := range s.Regions {
		for _, f := range res.Features() {
			out = append(out, Feature{Name: ColumnName(f.Name, res.Region), Value: f.Value})
		}
	}
	return out
}

// ColumnName joins a feature and a region into a wide-table column name
func ColumnName(feature string, region models.Region) string {
	return feature + "_" + string(region)
}
