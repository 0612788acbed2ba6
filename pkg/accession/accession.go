// Package accession reads study identifiers from a subject's DICOM series.
package accession

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"lungqct/internal/models"
)

const (
	// Unknown is reported when a DICOM series has no accession number
	Unknown = "-99999"

	// NotDefined fills the study attributes a series does not carry
	NotDefined = "N/D"
)

// ErrNoDICOM is returned when a directory holds no readable DICOM file
var ErrNoDICOM = errors.New("no DICOM file found")

// Info is what Read extracts from a series
type Info struct {
	AccessionNumber string
	Study           models.Study
}

// Read parses the DICOM files of dir in name order and returns the
// attributes of the first file that parses. Pixel data is skipped.
func Read(dir string) (Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Info{}, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		ds, err := dicom.ParseFile(filepath.Join(dir, name), nil, dicom.SkipPixelData())
		if err != nil {
			continue
		}
		return Info{
			AccessionNumber: value(ds, tag.AccessionNumber, Unknown),
			Study: models.Study{
				AcquisitionDate: value(ds, tag.AcquisitionDate, NotDefined),
				PatientAge:      value(ds, tag.PatientAge, NotDefined),
				PatientSex:      value(ds, tag.PatientSex, NotDefined),
			},
		}, nil
	}
	return Info{}, ErrNoDICOM
}

// Resolve reads dicomDir and falls back to the subject id when the series is
// missing or unreadable
func Resolve(dicomDir, subjectID string) Info {
	info, err := Read(dicomDir)
	if err != nil {
		return Fallback(subjectID)
	}
	return info
}

// Fallback identifies a subject without DICOM by its directory name
func Fallback(subjectID string) Info {
	return Info{
		AccessionNumber: subjectID,
		Study: models.Study{
			AcquisitionDate: NotDefined,
			PatientAge:      NotDefined,
			PatientSex:      NotDefined,
		},
	}
}

func value(ds dicom.Dataset, t tag.Tag, fallback string) string {
	el, err := ds.FindElementByTag(t)
	if err != nil || el.Value == nil {
		return fallback
	}
	if el.Value.ValueType() != dicom.Strings {
		return fallback
	}
	strs := dicom.MustGetStrings(el.Value)
	if len(strs) == 0 || strings.TrimSpace(strs[0]) == "" {
		return fallback
	}
	return strings.TrimSpace(strs[0])
}
