package visualization

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"lungqct/internal/models"
	"lungqct/pkg/qct"
	"lungqct/pkg/sampler"
)

// PreviewScale enlarges the preview slices
const PreviewScale = 2

// Renderer writes the image artefacts of every subject
type Renderer struct {
	Dir string

	// Histograms writes <acc>_hist_<region>.png
	Histograms bool

	// Previews writes <acc>_preview_<region>.png
	Previews bool

	Log zerolog.Logger
}

// HistogramPath returns the file name of a region's histogram plot
func (r *Renderer) HistogramPath(acc string, region models.Region) string {
	return filepath.Join(r.Dir, fmt.Sprintf("%s_hist_%s.png", acc, region))
}

// PreviewPath returns the file name of a region's preview
func (r *Renderer) PreviewPath(acc string, region models.Region) string {
	return filepath.Join(r.Dir, fmt.Sprintf("%s_preview_%s.png", acc, region))
}

// Write renders the enabled artefacts of res
func (r *Renderer) Write(subj *models.Subject, res *qct.SubjectResult) error {
	if !r.Histograms && !r.Previews {
		return nil
	}
	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return err
	}
	for _, reg := range res.Regions {
		if r.Histograms {
			path := r.HistogramPath(res.AccessionNumber, reg.Region)
			if err := SaveHistogram(reg, path); err != nil {
				return fmt.Errorf("histogram %s: %w", path, err)
			}
		}
		if r.Previews && subj != nil {
			if err := r.preview(subj, reg.Region); err != nil {
				r.Log.Warn().Err(err).Str("subject", subj.ID).Str("region", string(reg.Region)).Msg("preview skipped")
			}
		}
	}
	return nil
}

func (r *Renderer) preview(subj *models.Subject, region models.Region) error {
	rule, err := sampler.RuleFor(region)
	if err != nil {
		return err
	}
	mask := subj.Masks.Get(rule.Kind)
	if mask == nil {
		return &sampler.MissingMaskError{Region: region, Kind: rule.Kind}
	}
	z, ok := CentralSlice(mask, rule)
	if !ok {
		return sampler.ErrEmptyMask
	}
	img, err := NewViewer(subj.Volume).Preview(mask, rule, z, PreviewScale)
	if err != nil {
		return err
	}
	return SaveImage(img, r.PreviewPath(subj.AccessionNumber, region))
}
