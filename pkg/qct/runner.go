package qct

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"lungqct/internal/models"
)

// Loader provides the subjects to analyse
type Loader interface {
	// Load reads the subject with the given id
	Load(ctx context.Context, id string) (*models.Subject, error)
}

// Sink consumes finished subjects. Write is only ever called from the
// runner's collecting goroutine.
type Sink interface {
	Write(subj *models.Subject, res *SubjectResult) error
}

// Summary reports the outcome of a Run
type Summary struct {
	Subjects int
	Analysed int

	// Aborted counts subjects that produced no rows
	Aborted int

	Regions        int
	RegionFailures int
	RejectedFits   int

	// Errors holds one error per aborted subject and per skipped region
	Errors []error

	Elapsed time.Duration
}

// Runner analyses subjects in parallel
type Runner struct {
	analyzer *Analyzer
	loader   Loader
	sinks    []Sink
	workers  int
	log      zerolog.Logger
}

// NewRunner creates a runner using workers goroutines, or one per CPU when
// workers is not positive
func NewRunner(analyzer *Analyzer, loader Loader, workers int, log zerolog.Logger, sinks ...Sink) *Runner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Runner{
		analyzer: analyzer,
		loader:   loader,
		sinks:    sinks,
		workers:  workers,
		log:      log.With().Str("component", "runner").Logger(),
	}
}

type subjectOutcome struct {
	id      string
	subject *models.Subject
	result  *SubjectResult
	err     error
}

// Run analyses every subject id. Subject-level failures are collected in the
// summary; Run itself fails only when the context is cancelled or a sink
// cannot write. Sinks see the subjects in completion order.
func (r *Runner) Run(ctx context.Context, ids []string) (Summary, error) {
	start := time.Now()
	sum := Summary{Subjects: len(ids)}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan string)
	results := make(chan subjectOutcome)

	workers := r.workers
	if workers > len(ids) {
		workers = len(ids)
	}
	for w := 0; w < workers; w++ {
		go func() {
			for id := range jobs {
				out := r.process(ctx, id)
				select {
				case results <- out:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, id := range ids {
			select {
			case jobs <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	var runErr error
	for completed := 0; completed < len(ids); completed++ {
		var out subjectOutcome
		select {
		case out = <-results:
		case <-ctx.Done():
			sum.Elapsed = time.Since(start)
			if runErr != nil {
				return sum, runErr
			}
			return sum, ctx.Err()
		}

		if runErr != nil {
			continue
		}
		if out.err != nil {
			if errors.Is(out.err, context.Canceled) || errors.Is(out.err, context.DeadlineExceeded) {
				continue
			}
			sum.Aborted++
			sum.Errors = append(sum.Errors, out.err)
			r.log.Error().Err(out.err).Str("subject", out.id).Str("kind", Kind(out.err)).Msg("subject aborted")
			continue
		}

		sum.Analysed++
		sum.Regions += len(out.result.Regions)
		sum.RegionFailures += len(out.result.Failures)
		for _, f := range out.result.Failures {
			sum.Errors = append(sum.Errors, f)
		}
		for _, reg := range out.result.Regions {
			if !reg.FitAccepted {
				sum.RejectedFits++
			}
		}

		for _, s := range r.sinks {
			if err := s.Write(out.subject, out.result); err != nil {
				runErr = fmt.Errorf("write subject %s: %w", out.id, err)
				cancel()
				break
			}
		}

		r.log.Info().
			Str("subject", out.id).
			Int("regions", len(out.result.Regions)).
			Int("skipped", len(out.result.Failures)).
			Str("progress", fmt.Sprintf("%.1f%%", float64(completed+1)/float64(len(ids))*100)).
			Msg("subject done")
	}

	sum.Elapsed = time.Since(start)
	if runErr == nil {
		runErr = ctx.Err()
	}
	return sum, runErr
}

func (r *Runner) process(ctx context.Context, id string) subjectOutcome {
	out := subjectOutcome{id: id}
	if err := ctx.Err(); err != nil {
		out.err = err
		return out
	}
	subj, err := r.loader.Load(ctx, id)
	if err != nil {
		out.err = fmt.Errorf("load subject %s: %w", id, err)
		return out
	}
	res, err := r.analyzer.AnalyzeSubject(ctx, subj)
	if err != nil {
		out.err = err
		return out
	}
	out.subject, out.result = subj, res
	return out
}
