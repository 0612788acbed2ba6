// Package qct aggregates the per-region clinical features of lung CT subjects.
//
// An Analyzer runs the sampling, statistics, histogram and peak isolation
// steps for every configured region of one subject. A Runner fans subjects out
// over a worker pool and hands each result to the configured sinks.
package qct

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"lungqct/internal/models"
	"lungqct/pkg/histogram"
	"lungqct/pkg/peak"
	"lungqct/pkg/sampler"
	"lungqct/pkg/stats"
)

// Options configures an Analyzer
type Options struct {
	// Regions are analysed in this order
	Regions []models.Region

	// SliceThickness overrides the z spacing in volume computations when positive
	SliceThickness float64

	// Ventilation adds the four ventilation fractions to every region
	Ventilation bool

	// WithPlots keeps the histogram and fit arrays in every RegionResult
	WithPlots bool

	Peak peak.Config
}

// DefaultOptions analyses the bilateral and left/right regions
func DefaultOptions() Options {
	return Options{
		Regions:   []models.Region{models.Bilateral, models.Left, models.Right},
		WithPlots: true,
		Peak:      peak.DefaultConfig(),
	}
}

// Analyzer computes RegionResults with a fixed configuration. It holds no
// per-subject state and is safe for concurrent use.
type Analyzer struct {
	opts Options
	iso  *peak.Isolator
	log  zerolog.Logger
}

// NewAnalyzer checks the region list and creates an analyzer
func NewAnalyzer(opts Options, log zerolog.Logger) (*Analyzer, error) {
	if len(opts.Regions) == 0 {
		return nil, errors.New("qct: no regions configured")
	}
	seen := make(map[models.Region]bool, len(opts.Regions))
	for _, r := range opts.Regions {
		if _, err := sampler.RuleFor(r); err != nil {
			return nil, fmt.Errorf("qct: %w", err)
		}
		if seen[r] {
			return nil, fmt.Errorf("qct: region %q listed twice", r)
		}
		seen[r] = true
	}
	return &Analyzer{
		opts: opts,
		iso:  peak.NewIsolator(opts.Peak),
		log:  log.With().Str("component", "analyzer").Logger(),
	}, nil
}

// Options returns the analyzer configuration
func (a *Analyzer) Options() Options {
	return a.opts
}

// RequiredMasks lists the mask kinds the configured regions read
func (a *Analyzer) RequiredMasks() []models.MaskKind {
	var kinds []models.MaskKind
	seen := map[models.MaskKind]bool{}
	for _, r := range a.opts.Regions {
		rule, _ := sampler.RuleFor(r)
		if !seen[rule.Kind] {
			seen[rule.Kind] = true
			kinds = append(kinds, rule.Kind)
		}
	}
	return kinds
}

// AnalyzeRegion computes the features of one region of subj
func (a *Analyzer) AnalyzeRegion(subj *models.Subject, region models.Region) (RegionResult, error) {
	samples, err := sampler.SampleRegion(subj.Volume, subj.Masks, region)
	if err != nil {
		return RegionResult{}, err
	}

	summary, err := stats.Describe(samples.Values, samples.VoxelCount, subj.Volume.Spacing, a.opts.SliceThickness)
	if err != nil {
		return RegionResult{}, fmt.Errorf("%w: %v", ErrEmptyMask, err)
	}

	hist, err := histogram.Build(samples.Values)
	if err != nil {
		return RegionResult{}, err
	}

	fit := a.iso.Analyze(hist)
	log := a.log.With().Str("subject", subj.ID).Str("region", string(region)).Logger()
	if fit.Accepted {
		log.Debug().
			Float64("mean", fit.Fit.Mean).
			Float64("sigma", fit.Fit.Sigma).
			Int("evaluations", fit.Evaluations).
			Msg("peak fit accepted")
	} else {
		log.Debug().Str("reason", fit.Reason).Msg("peak fit rejected")
	}

	res := RegionResult{
		AccessionNumber: subj.AccessionNumber,
		Region:          region,
		Summary:         summary,
		Wave:            fit.Wave,
		WaveTh:          fit.WaveTh,
		MeanIll:         fit.MeanIll,
		StdIll:          fit.StdIll,
		FitAccepted:     fit.Accepted,
		Fit:             fit.Fit,
		FitReason:       fit.Reason,
	}
	if a.opts.Ventilation {
		v := hist.Ventilation()
		res.Ventilation = &v
	}
	if a.opts.WithPlots {
		res.Plot = PlotData{
			Midpoints: hist.Midpoints,
			Counts:    hist.Counts,
			FitX:      fit.FitX,
			FitY:      fit.FitY,
			Gauss:     fit.GaussTotal,
			Ill:       fit.Ill,
		}
	}
	return res, nil
}

// AnalyzeSubject runs every configured region of subj. A missing mask aborts
// the subject before any region is computed; other region failures are
// recorded in Failures and the remaining regions continue.
func (a *Analyzer) AnalyzeSubject(ctx context.Context, subj *models.Subject) (*SubjectResult, error) {
	if subj == nil || subj.Volume == nil {
		return nil, errors.New("qct: subject has no volume")
	}
	for _, r := range a.opts.Regions {
		rule, _ := sampler.RuleFor(r)
		if subj.Masks.Get(rule.Kind) == nil {
			return nil, &RegionError{
				Subject: subj.ID,
				Region:  r,
				Err:     &sampler.MissingMaskError{Region: r, Kind: rule.Kind},
			}
		}
	}

	out := &SubjectResult{
		SubjectID:       subj.ID,
		AccessionNumber: subj.AccessionNumber,
	}
	for _, r := range a.opts.Regions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := a.AnalyzeRegion(subj, r)
		if err != nil {
			rerr := &RegionError{Subject: subj.ID, Region: r, Err: err}
			if errors.Is(err, ErrMissingMask) {
				return nil, rerr
			}
			a.log.Warn().Err(err).
				Str("subject", subj.ID).
				Str("region", string(r)).
				Str("kind", Kind(err)).
				Msg("region skipped")
			out.Failures = append(out.Failures, rerr)
			continue
		}
		out.Regions = append(out.Regions, res)
	}
	return out, nil
}
