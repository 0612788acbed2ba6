package qct

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"lungqct/internal/models"
	"lungqct/pkg/accession"
	"lungqct/pkg/masks"
	"lungqct/pkg/nifti"
)

// Layout names the files of a subject directory
type Layout struct {
	CT          string
	LungMask    string
	UpperMask   string
	VentralMask string
	MixedMask   string

	// DICOMDir is read for the accession number, relative to the subject
	DICOMDir string
}

// DirLoader loads subjects from <base>/<subject>/ directories
type DirLoader struct {
	Base   string
	Layout Layout

	// Generate derives the upper, ventral and mixed masks that are not on disk
	Generate bool

	// Write stores the derived masks in the subject directory
	Write bool

	Orientation masks.Options

	// Needed lists the mask kinds that must be available after loading
	Needed []models.MaskKind

	Log zerolog.Logger
}

// Subjects lists the subject directories holding a CT image
func (l *DirLoader) Subjects() ([]string, error) {
	entries, err := os.ReadDir(l.Base)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(l.Base, e.Name(), l.Layout.CT)); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Load reads the CT, the masks and the study identifiers of one subject
func (l *DirLoader) Load(ctx context.Context, id string) (*models.Subject, error) {
	dir := filepath.Join(l.Base, id)

	vol, err := nifti.LoadVolume(filepath.Join(dir, l.Layout.CT))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lung, err := nifti.LoadMask(filepath.Join(dir, l.Layout.LungMask))
	if err != nil {
		return nil, err
	}
	set := models.MaskSet{Lung: lung}

	for _, opt := range []struct {
		name string
		dst  **models.Mask
	}{
		{l.Layout.UpperMask, &set.Upper},
		{l.Layout.VentralMask, &set.Ventral},
		{l.Layout.MixedMask, &set.Mixed},
	} {
		if opt.name == "" {
			continue
		}
		m, err := nifti.LoadMask(filepath.Join(dir, opt.name))
		switch {
		case err == nil:
			*opt.dst = m
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	if l.Generate && l.needsDerived(set) {
		derived, err := masks.Derive(set, l.Orientation)
		if err != nil {
			return nil, fmt.Errorf("subject %s: %w", id, err)
		}
		if l.Write {
			l.writeDerived(dir, set, derived, vol.Spacing)
		}
		set = derived
	}

	info := accession.Resolve(filepath.Join(dir, l.Layout.DICOMDir), id)
	return &models.Subject{
		ID:              id,
		AccessionNumber: info.AccessionNumber,
		Study:           info.Study,
		Volume:          vol,
		Masks:           set,
	}, nil
}

func (l *DirLoader) needsDerived(set models.MaskSet) bool {
	for _, k := range l.Needed {
		if set.Get(k) == nil {
			return true
		}
	}
	return false
}

func (l *DirLoader) writeDerived(dir string, before, after models.MaskSet, spacing models.Spacing) {
	for _, m := range []struct {
		name       string
		old, fresh *models.Mask
	}{
		{l.Layout.UpperMask, before.Upper, after.Upper},
		{l.Layout.VentralMask, before.Ventral, after.Ventral},
		{l.Layout.MixedMask, before.Mixed, after.Mixed},
	} {
		if m.old != nil || m.name == "" {
			continue
		}
		path := filepath.Join(dir, m.name)
		if err := nifti.WriteMask(path, m.fresh, spacing); err != nil {
			l.Log.Warn().Err(err).Str("path", path).Msg("could not write derived mask")
		}
	}
}
