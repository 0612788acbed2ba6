// Package report writes QCT features as tab-separated tables.
//
// Table holds one row per (subject, region). Wide holds one row per subject
// with region-suffixed columns, as consumed by the report generator.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"lungqct/internal/models"
	"lungqct/pkg/qct"
)

// Decimals is the precision of every written value
const Decimals = 3

// FormatValue rounds v to Decimals and drops trailing zeros
func FormatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NA"
	}
	p := math.Pow(10, Decimals)
	r := math.Round(v*p) / p
	if r == 0 {
		r = 0 // no negative zero
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// file couples a tab-separated writer with the file behind it
type file struct {
	w *csv.Writer
	c io.Closer
}

func newFile(w io.Writer) file {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	f := file{w: cw}
	if c, ok := w.(io.Closer); ok {
		f.c = c
	}
	return f
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

func (f file) write(record []string) error {
	if err := f.w.Write(record); err != nil {
		return err
	}
	f.w.Flush()
	return f.w.Error()
}

func (f file) close() error {
	f.w.Flush()
	err := f.w.Error()
	if f.c != nil {
		if cerr := f.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Table writes one row per analysed region
type Table struct {
	f           file
	ventilation bool
}

// NewTable writes the header to w. If w is an io.Closer, Close closes it.
func NewTable(w io.Writer, ventilation bool) (*Table, error) {
	t := &Table{f: newFile(w), ventilation: ventilation}
	if err := t.f.write(t.Header()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return t, nil
}

// CreateTable creates the file at path and writes its header
func CreateTable(path string, ventilation bool) (*Table, error) {
	f, err := create(path)
	if err != nil {
		return nil, err
	}
	t, err := NewTable(f, ventilation)
	if err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

// Header returns the column names
func (t *Table) Header() []string {
	h := append([]string{"AccessionNumber", "Region"}, qct.FeatureNames...)
	h = append(h, "fit")
	if t.ventilation {
		h = append(h, qct.VentilationNames()...)
	}
	return h
}

// Write appends the rows of res. Skipped regions produce no row.
func (t *Table) Write(_ *models.Subject, res *qct.SubjectResult) error {
	for _, r := range res.Regions {
		feats := r.Features()
		row := make([]string, 0, len(feats)+3)
		row = append(row, r.AccessionNumber, string(r.Region))
		for _, f := range feats[:len(qct.FeatureNames)] {
			row = append(row, FormatValue(f.Value))
		}
		row = append(row, r.FitStatus())
		if t.ventilation {
			if r.Ventilation == nil {
				for range qct.VentilationNames() {
					row = append(row, "NA")
				}
			} else {
				for _, f := range feats[len(qct.FeatureNames):] {
					row = append(row, FormatValue(f.Value))
				}
			}
		}
		if err := t.f.write(row); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the table
func (t *Table) Close() error {
	return t.f.close()
}

// Wide writes one row per subject with region-suffixed columns
type Wide struct {
	f           file
	regions     []models.Region
	ventilation bool
}

// NewWide writes the header for the given regions to w
func NewWide(w io.Writer, regions []models.Region, ventilation bool) (*Wide, error) {
	t := &Wide{f: newFile(w), regions: regions, ventilation: ventilation}
	if err := t.f.write(t.Header()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return t, nil
}

// CreateWide creates the file at path and writes its header
func CreateWide(path string, regions []models.Region, ventilation bool) (*Wide, error) {
	f, err := create(path)
	if err != nil {
		return nil, err
	}
	t, err := NewWide(f, regions, ventilation)
	if err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

func (t *Wide) features() []string {
	names := append([]string(nil), qct.FeatureNames...)
	if t.ventilation {
		names = append(names, qct.VentilationNames()...)
	}
	return names
}

// Header returns the column names
func (t *Wide) Header() []string {
	h := []string{"AccessionNumber", "SubjectID", "AcquisitionDate", "PatientAge", "PatientSex"}
	for _, r := range t.regions {
		for _, name := range t.features() {
			h = append(h, qct.ColumnName(name, r))
		}
	}
	return h
}

// Write appends the subject row. Columns of skipped regions are left empty.
func (t *Wide) Write(subj *models.Subject, res *qct.SubjectResult) error {
	var study models.Study
	if subj != nil {
		study = subj.Study
	}
	row := []string{res.AccessionNumber, res.SubjectID, study.AcquisitionDate, study.PatientAge, study.PatientSex}

	values := make(map[string]float64)
	for _, c := range res.Columns() {
		values[c.Name] = c.Value
	}
	for _, r := range t.regions {
		for _, name := range t.features() {
			if v, ok := values[qct.ColumnName(name, r)]; ok {
				row = append(row, FormatValue(v))
			} else {
				row = append(row, "")
			}
		}
	}
	return t.f.write(row)
}

// Close flushes and closes the table
func (t *Wide) Close() error {
	return t.f.close()
}
