package qct

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lungqct/internal/models"
	"lungqct/pkg/nifti"
)

var testLayout = Layout{
	CT:          "ct.nii.gz",
	LungMask:    "lung.nii.gz",
	UpperMask:   "upper.nii",
	VentralMask: "ventral.nii",
	MixedMask:   "mixed.nii",
	DICOMDir:    "CT",
}

// writeSubject stores subj under base/<id> using testLayout
func writeSubject(t *testing.T, base string, subj *models.Subject) {
	t.Helper()
	dir := filepath.Join(base, subj.ID)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, nifti.WriteVolume(filepath.Join(dir, testLayout.CT), subj.Volume))
	require.NoError(t, nifti.WriteMask(filepath.Join(dir, testLayout.LungMask), subj.Masks.Lung, subj.Volume.Spacing))
}

func TestDirLoader_Subjects(t *testing.T) {
	base := t.TempDir()
	writeSubject(t, base, cubeSubject("P002", -850, 10))
	writeSubject(t, base, cubeSubject("P001", -850, 10))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "notes"), 0755))

	l := &DirLoader{Base: base, Layout: testLayout, Log: zerolog.Nop()}
	ids, err := l.Subjects()
	require.NoError(t, err)
	assert.Equal(t, []string{"P001", "P002"}, ids)
}

func TestDirLoader_LoadDerivesMasks(t *testing.T) {
	base := t.TempDir()
	src := cubeSubject("P001", -850, 10)
	writeSubject(t, base, src)

	l := &DirLoader{
		Base:     base,
		Layout:   testLayout,
		Generate: true,
		Write:    true,
		Needed:   []models.MaskKind{models.LungMask, models.MixedMask},
		Log:      zerolog.Nop(),
	}
	subj, err := l.Load(context.Background(), "P001")
	require.NoError(t, err)

	assert.Equal(t, "P001", subj.ID)
	// no DICOM series, the directory name identifies the subject
	assert.Equal(t, "P001", subj.AccessionNumber)
	assert.Equal(t, src.Volume.Data, subj.Volume.Data)
	assert.Equal(t, src.Masks.Lung.Labels, subj.Masks.Lung.Labels)
	require.NotNil(t, subj.Masks.Upper)
	require.NotNil(t, subj.Masks.Ventral)
	require.NotNil(t, subj.Masks.Mixed)

	for _, name := range []string{testLayout.UpperMask, testLayout.VentralMask, testLayout.MixedMask} {
		_, err := os.Stat(filepath.Join(base, "P001", name))
		assert.NoError(t, err, name)
	}
}

func TestDirLoader_MissingCT(t *testing.T) {
	l := &DirLoader{Base: t.TempDir(), Layout: testLayout, Log: zerolog.Nop()}
	_, err := l.Load(context.Background(), "P404")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunner_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end run in short mode")
	}
	base := t.TempDir()
	for _, id := range []string{"A", "B"} {
		subj := aeratedSubject(t, id)
		writeSubject(t, base, subj)
	}

	opts := DefaultOptions()
	opts.Regions = []models.Region{models.Bilateral, models.Upper, models.LowerDorsal}
	a, err := NewAnalyzer(opts, zerolog.Nop())
	require.NoError(t, err)

	l := &DirLoader{
		Base:     base,
		Layout:   testLayout,
		Generate: true,
		Needed:   a.RequiredMasks(),
		Log:      zerolog.Nop(),
	}
	ids, err := l.Subjects()
	require.NoError(t, err)

	sink := &recordingSink{}
	sum, err := NewRunner(a, l, 2, zerolog.Nop(), sink).Run(context.Background(), ids)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Analysed)
	assert.Equal(t, 6, sum.Regions)
	assert.Equal(t, 0, sum.Aborted)
	assert.ElementsMatch(t, []string{"A", "B"}, sink.ids)
}
