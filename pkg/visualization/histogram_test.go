package visualization

import (
	"os"
	"testing"

	"github.com/rs/zerolog"

	"lungqct/internal/models"
	"lungqct/pkg/histogram"
	"lungqct/pkg/peak"
	"lungqct/pkg/qct"
)

func regionResult(t *testing.T, values []float64) qct.RegionResult {
	t.Helper()
	h, err := histogram.Build(values)
	if err != nil {
		t.Fatal(err)
	}
	fit := peak.NewIsolator(peak.DefaultConfig()).Analyze(h)
	return qct.RegionResult{
		AccessionNumber: "ACC9",
		Region:          models.Left,
		FitAccepted:     fit.Accepted,
		Plot: qct.PlotData{
			Midpoints: h.Midpoints,
			Counts:    h.Counts,
			FitX:      fit.FitX,
			FitY:      fit.FitY,
			Gauss:     fit.GaussTotal,
			Ill:       fit.Ill,
		},
	}
}

func spread() []float64 {
	var values []float64
	for v := -1000.0; v < 100; v += 0.5 {
		values = append(values, v)
	}
	return values
}

// TestNewHistogramPlot verifies that the plot keeps the fixed bin layout
func TestNewHistogramPlot(t *testing.T) {
	res := regionResult(t, spread())

	p, err := NewHistogramPlot(res.Plot, "test")
	if err != nil {
		t.Fatalf("NewHistogramPlot: %v", err)
	}
	if p.Title.Text != "test" {
		t.Errorf("unexpected title %q", p.Title.Text)
	}
	if p.X.Min > histogram.Low || p.X.Max < histogram.High {
		t.Errorf("x axis [%g, %g] does not cover the histogram", p.X.Min, p.X.Max)
	}

	if _, err := NewHistogramPlot(qct.PlotData{}, "empty"); err == nil {
		t.Error("expected error for missing plot data")
	}
}

// TestRendererWrite verifies the artefact file names
func TestRendererWrite(t *testing.T) {
	dir := t.TempDir()
	res := regionResult(t, spread())

	vol := models.NewVolume(models.Shape{Width: 4, Height: 4, Depth: 2}, models.Spacing{X: 1, Y: 1, Z: 1})
	lung := models.NewMask(vol.Shape)
	lung.Set(1, 1, 0, 20)
	subj := &models.Subject{ID: "s", AccessionNumber: "ACC9", Volume: vol, Masks: models.MaskSet{Lung: lung}}

	r := &Renderer{Dir: dir, Histograms: true, Previews: true, Log: zerolog.Nop()}
	sr := &qct.SubjectResult{SubjectID: "s", AccessionNumber: "ACC9", Regions: []qct.RegionResult{res}}
	if err := r.Write(subj, sr); err != nil {
		t.Fatalf("Write: %v", err)
	}

	for _, path := range []string{r.HistogramPath("ACC9", models.Left), r.PreviewPath("ACC9", models.Left)} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("expected %s: %v", path, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", path)
		}
	}
}

// TestRendererDisabled verifies that nothing is written when all outputs are off
func TestRendererDisabled(t *testing.T) {
	dir := t.TempDir()
	r := &Renderer{Dir: dir, Log: zerolog.Nop()}
	sr := &qct.SubjectResult{Regions: []qct.RegionResult{regionResult(t, spread())}}
	if err := r.Write(nil, sr); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected empty dir, got %d entries", len(entries))
	}
}
