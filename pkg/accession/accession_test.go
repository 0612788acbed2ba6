package accession

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func element(t *testing.T, tg tag.Tag, v []string) *dicom.Element {
	t.Helper()
	el, err := dicom.NewElement(tg, v)
	require.NoError(t, err)
	return el
}

func TestValue(t *testing.T) {
	ds := dicom.Dataset{Elements: []*dicom.Element{
		element(t, tag.AccessionNumber, []string{" ACC123 "}),
		element(t, tag.PatientSex, []string{""}),
	}}

	assert.Equal(t, "ACC123", value(ds, tag.AccessionNumber, Unknown))
	assert.Equal(t, NotDefined, value(ds, tag.PatientSex, NotDefined))
	assert.Equal(t, NotDefined, value(ds, tag.PatientAge, NotDefined))
}

func TestRead_NoDICOM(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a dicom file"), 0644))

	_, err := Read(dir)
	assert.ErrorIs(t, err, ErrNoDICOM)

	_, err = Read(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestResolve_FallsBackToSubject(t *testing.T) {
	info := Resolve(filepath.Join(t.TempDir(), "CT"), "patient_007")
	assert.Equal(t, "patient_007", info.AccessionNumber)
	assert.Equal(t, NotDefined, info.Study.PatientAge)
	assert.Equal(t, NotDefined, info.Study.AcquisitionDate)
}
