// Package store records analysis runs in a SQLite database.
//
// Every run gets a UUID; subjects, region features and skipped regions are
// stored against it so results of different configurations can be compared.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"lungqct/internal/models"
	"lungqct/pkg/qct"
)

// ErrNoRun is returned by Write before BeginRun
var ErrNoRun = errors.New("store: no active run")

// Store is a SQLite-backed qct.Sink
type Store struct {
	db  *sql.DB
	log zerolog.Logger
	run string
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragmas: %w", err)
	}

	s := &Store{db: db, log: log.With().Str("component", "store").Logger()}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Run is one recorded invocation
type Run struct {
	ID        string
	StartedAt time.Time

	// FinishedAt is zero while the run is in progress or was interrupted
	FinishedAt time.Time
	Config     string
	Subjects   int
	Analysed   int
	Aborted    int
}

// BeginRun starts a new run and makes it the target of Write. config is a
// snapshot of the settings in effect, stored verbatim.
func (s *Store) BeginRun(ctx context.Context, config string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, config) VALUES (?, ?, ?)`,
		id, now(), config)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	s.run = id
	s.log.Debug().Str("run", id).Msg("run started")
	return id, nil
}

// FinishRun stores the totals of the active run
func (s *Store) FinishRun(ctx context.Context, sum qct.Summary) error {
	if s.run == "" {
		return ErrNoRun
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, subjects = ?, analysed = ?, aborted = ? WHERE run_id = ?`,
		now(), sum.Subjects, sum.Analysed, sum.Aborted, s.run)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", s.run, err)
	}
	return nil
}

// Write stores one analysed subject in a single transaction
func (s *Store) Write(subj *models.Subject, res *qct.SubjectResult) error {
	if s.run == "" {
		return ErrNoRun
	}
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var st models.Study
	if subj != nil {
		st = subj.Study
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO subjects (run_id, subject_id, accession_number, acquisition_date, patient_age, patient_sex)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.run, res.SubjectID, res.AccessionNumber, st.AcquisitionDate, st.PatientAge, st.PatientSex,
	); err != nil {
		return fmt.Errorf("insert subject %s: %w", res.SubjectID, err)
	}

	for _, r := range res.Regions {
		if err := insertRegion(ctx, tx, s.run, res.SubjectID, r); err != nil {
			return fmt.Errorf("insert %s/%s: %w", res.SubjectID, r.Region, err)
		}
	}
	for _, f := range res.Failures {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO region_failures (run_id, subject_id, region, kind, message) VALUES (?, ?, ?, ?, ?)`,
			s.run, res.SubjectID, string(f.Region), qct.Kind(f.Err), f.Err.Error(),
		); err != nil {
			return fmt.Errorf("insert failure %s/%s: %w", res.SubjectID, f.Region, err)
		}
	}

	return tx.Commit()
}

func insertRegion(ctx context.Context, tx *sql.Tx, run, subject string, r qct.RegionResult) error {
	var vent [4]sql.NullFloat64
	if v := r.Ventilation; v != nil {
		for i, f := range []float64{v.OverInflated, v.NormallyAerated, v.NonAerated, v.Consolidated} {
			vent[i] = sql.NullFloat64{Float64: f, Valid: true}
		}
	}
	var fit [3]sql.NullFloat64
	if r.FitAccepted {
		fit[0] = sql.NullFloat64{Float64: r.Fit.Amplitude, Valid: true}
		fit[1] = sql.NullFloat64{Float64: r.Fit.Mean, Valid: true}
		fit[2] = sql.NullFloat64{Float64: r.Fit.Sigma, Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO region_features (
			run_id, subject_id, region, voxel_count,
			volume, mean, stddev, perc25, perc50, perc75, perc90, skewness, kurtosis,
			wave, waveth, mean_ill, std_ill,
			fit_accepted, fit_amplitude, fit_mean, fit_sigma, fit_reason,
			over_inflated, normally_aerated, non_aerated, consolidated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run, subject, string(r.Region), r.VoxelCount,
		r.VolumeCC, r.Mean, r.StdDev, r.Perc25, r.Perc50, r.Perc75, r.Perc90, r.Skewness, r.Kurtosis,
		r.Wave, r.WaveTh, r.MeanIll, r.StdIll,
		r.FitAccepted, fit[0], fit[1], fit[2], r.FitReason,
		vent[0], vent[1], vent[2], vent[3],
	)
	return err
}

// Runs lists recorded runs, newest first
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, COALESCE(config, ''), subjects, analysed, aborted
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started string
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &started, &finished, &r.Config, &r.Subjects, &r.Analysed, &r.Aborted); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		if finished.Valid {
			if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished.String); err != nil {
				return nil, fmt.Errorf("run %s: %w", r.ID, err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// now returns the current time in the stored text format
func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// RegionRow is one stored region of a run
type RegionRow struct {
	SubjectID       string
	AccessionNumber string
	Region          models.Region
	VoxelCount      int
	VolumeCC        float64
	Mean            float64
	Wave            float64
	WaveTh          float64
	FitAccepted     bool
}

// Regions returns the region rows of a run ordered by subject and region
func (s *Store) Regions(ctx context.Context, runID string) ([]RegionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.subject_id, s.accession_number, f.region, f.voxel_count,
		       f.volume, f.mean, f.wave, f.waveth, f.fit_accepted
		FROM region_features f
		JOIN subjects s ON s.run_id = f.run_id AND s.subject_id = f.subject_id
		WHERE f.run_id = ?
		ORDER BY f.subject_id, f.region`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RegionRow
	for rows.Next() {
		var r RegionRow
		var region string
		if err := rows.Scan(&r.SubjectID, &r.AccessionNumber, &region, &r.VoxelCount,
			&r.VolumeCC, &r.Mean, &r.Wave, &r.WaveTh, &r.FitAccepted); err != nil {
			return nil, err
		}
		r.Region = models.Region(region)
		out = append(out, r)
	}
	return out, rows.Err()
}

// FailureCount returns the number of skipped regions recorded for a run
func (s *Store) FailureCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM region_failures WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}
