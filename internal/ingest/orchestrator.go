package ingest

// orchestrator.go owns the job lifecycle. Submit registers a pending job and
// returns immediately; a dedicated goroutine then loads the rules, streams
// the workbook sheet by sheet, validates and transforms each row, and
// persists accepted records in batches. Row failures reject single rows;
// only structural problems (bad rules file, unreadable workbook, missing
// sheets) fail the whole job.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// progressEvery is how many consumed rows pass between progress flushes to
// the job store, so status polls see movement on large files without a
// store write per row.
const progressEvery = 100

// Options configures an Orchestrator.
type Options struct {
	RulesPath  string
	BatchSize  int           // accepted records per upsert batch
	JobTimeout time.Duration // hard deadline per job, 0 for none
	KeepFiles  bool          // keep staged upload files after the job ends
}

// Orchestrator runs ingestion jobs. Safe for concurrent use; each job runs
// in its own goroutine against a shared JobStore and RecordStore.
type Orchestrator struct {
	jobs    JobStore
	records RecordStore
	opts    Options
	log     *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
	wg      sync.WaitGroup
}

func NewOrchestrator(jobs JobStore, records RecordStore, opts Options, log *slog.Logger) *Orchestrator {
	if opts.BatchSize < 1 {
		opts.BatchSize = 500
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		jobs:    jobs,
		records: records,
		opts:    opts,
		log:     log,
		now:     time.Now,
		cancels: make(map[uuid.UUID]context.CancelFunc),
	}
}

// Submit registers a new job for the staged file and starts processing it in
// the background. The returned job is the pending snapshot; callers poll the
// status endpoint for progress.
func (o *Orchestrator) Submit(ctx context.Context, filename, filePath string) (*Job, error) {
	now := o.now().UTC()
	job := &Job{
		ID:        uuid.New(),
		Filename:  filename,
		FilePath:  filePath,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	runCtx := context.Background()
	var cancel context.CancelFunc
	if o.opts.JobTimeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, o.opts.JobTimeout)
	} else {
		runCtx, cancel = context.WithCancel(runCtx)
	}

	o.mu.Lock()
	o.cancels[job.ID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		defer func() {
			o.mu.Lock()
			delete(o.cancels, job.ID)
			o.mu.Unlock()
		}()
		o.run(runCtx, job.ID, filePath)
	}()

	return job.Clone(), nil
}

// Cancel stops a running job. The job transitions to failed with a
// cancellation message once its worker observes the signal.
func (o *Orchestrator) Cancel(id uuid.UUID) error {
	o.mu.Lock()
	cancel, ok := o.cancels[id]
	o.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	cancel()
	return nil
}

// Wait blocks until all in-flight jobs finish. Used for graceful shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, jobID uuid.UUID, filePath string) {
	log := o.log.With("job_id", jobID.String())

	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "panic", r)
			o.fail(jobID, fmt.Sprintf("internal error: %v", r))
		}
	}()
	defer o.cleanupFile(filePath, log)

	o.update(jobID, func(j *Job) {
		j.Status = StatusProcessing
		j.CurrentStep = StepReading
		t := o.now().UTC()
		j.StartedAt = &t
	})
	log.Info("job started", "file", filePath)

	rules, err := LoadRulesFile(o.opts.RulesPath)
	if err != nil {
		log.Error("rules load failed", "error", err)
		o.fail(jobID, err.Error())
		return
	}

	wb, err := OpenWorkbook(filePath)
	if err != nil {
		log.Error("workbook open failed", "error", err)
		o.fail(jobID, err.Error())
		return
	}
	defer wb.Close()

	if err := wb.RequireSheets(SheetEmployees, SheetProjects); err != nil {
		log.Error("workbook structure invalid", "error", err)
		o.fail(jobID, err.Error())
		return
	}

	employeeRows, err := wb.CountRows(SheetEmployees)
	if err != nil {
		o.fail(jobID, err.Error())
		return
	}
	projectRows, err := wb.CountRows(SheetProjects)
	if err != nil {
		o.fail(jobID, err.Error())
		return
	}
	total := employeeRows + projectRows
	o.update(jobID, func(j *Job) {
		j.TotalRows = &total
		j.CurrentStep = StepValidating
	})

	transformer := NewTransformer(rules, o.now)
	progress := &jobProgress{}

	err = processSheet(ctx, o, jobID, wb, SheetEmployees, progress,
		NewValidator(EmployeeSheet, rules),
		transformer.TransformEmployee,
		o.records.UpsertEmployees,
	)
	if err == nil {
		err = processSheet(ctx, o, jobID, wb, SheetProjects, progress,
			NewValidator(ProjectSheet, rules),
			transformer.TransformProject,
			o.records.UpsertProjects,
		)
	}
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			log.Warn("job cancelled")
			o.fail(jobID, "cancelled")
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn("job timed out")
			o.fail(jobID, "timed out")
		default:
			log.Error("job failed", "error", err)
			o.fail(jobID, err.Error())
		}
		return
	}

	job := o.update(jobID, func(j *Job) {
		j.Status = StatusCompleted
		j.CurrentStep = StepCompleted
		t := o.now().UTC()
		j.CompletedAt = &t
	})
	if job != nil {
		log.Info("job completed",
			"total_rows", total,
			"processed_rows", job.ProcessedRows,
			"error_rows", job.ErrorRows)
	}
}

// jobProgress tracks consumed rows across sheets so flushes every
// progressEvery rows span sheet boundaries.
type jobProgress struct {
	consumed  int
	lastFlush int
}

// processSheet streams one sheet through validate, transform and batched
// persistence. Returns an error only for structural or cancellation
// failures; row rejections are recorded on the job and processing goes on.
func processSheet[T any](
	ctx context.Context,
	o *Orchestrator,
	jobID uuid.UUID,
	wb *Workbook,
	sheet string,
	progress *jobProgress,
	validator *Validator,
	transform func(RawRow) (*T, *RowError),
	upsert func(context.Context, []T) error,
) error {
	type batchItem struct {
		row int
		rec T
	}

	var (
		batch        []batchItem
		rowErrors    []RowError
		transforming bool
	)

	o.update(jobID, func(j *Job) { j.CurrentStep = StepValidating })

	flush := func() error {
		if len(batch) == 0 && len(rowErrors) == 0 {
			o.flushProgress(jobID, progress, nil)
			return nil
		}

		var failed []RowError
		if len(batch) > 0 {
			o.update(jobID, func(j *Job) { j.CurrentStep = StepPersisting })
			recs := make([]T, len(batch))
			for i, item := range batch {
				recs[i] = item.rec
			}
			if err := upsert(ctx, recs); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				// The whole batch is lost but the job survives; every
				// row in it becomes a row error with the store failure.
				o.log.Error("batch upsert failed",
					"job_id", jobID.String(), "sheet", sheet, "rows", len(batch), "error", err)
				failed = make([]RowError, 0, len(batch))
				for _, item := range batch {
					failed = append(failed, RowError{
						Sheet:   sheet,
						Row:     item.row,
						Message: fmt.Sprintf("persist failed: %v", err),
					})
				}
			}
		}

		all := append(rowErrors, failed...)
		o.flushProgress(jobID, progress, all)
		if transforming {
			o.update(jobID, func(j *Job) { j.CurrentStep = StepTransforming })
		}
		batch = batch[:0]
		rowErrors = rowErrors[:0]
		return nil
	}

	err := wb.ReadSheet(sheet, func(row RawRow) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		progress.consumed++

		if rowErr := validator.Validate(row); rowErr != nil {
			rowErrors = append(rowErrors, *rowErr)
		} else if rec, rowErr := transform(row); rowErr != nil {
			rowErrors = append(rowErrors, *rowErr)
		} else {
			if !transforming {
				transforming = true
				o.update(jobID, func(j *Job) { j.CurrentStep = StepTransforming })
			}
			batch = append(batch, batchItem{row: row.Index, rec: *rec})
		}

		if len(batch) >= o.opts.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		} else if progress.consumed-progress.lastFlush >= progressEvery {
			o.flushProgress(jobID, progress, rowErrors)
			rowErrors = rowErrors[:0]
		}
		return nil
	})
	if err != nil {
		return err
	}

	return flush()
}

// flushProgress publishes consumed-row counts and accumulated row errors.
func (o *Orchestrator) flushProgress(jobID uuid.UUID, progress *jobProgress, rowErrors []RowError) {
	consumed := progress.consumed
	progress.lastFlush = consumed
	o.update(jobID, func(j *Job) {
		j.ProcessedRows = consumed
		if len(rowErrors) > 0 {
			j.ErrorRows += len(rowErrors)
			j.ErrorDetails = append(j.ErrorDetails, rowErrors...)
		}
	})
}

// update applies a mutation to a job unless it is already terminal. Store
// writes use a fresh context so a cancelled job can still record its final
// state.
func (o *Orchestrator) update(jobID uuid.UUID, mutate func(*Job)) *Job {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := o.jobs.UpdateJob(ctx, jobID, func(j *Job) {
		if j.Terminal() {
			return
		}
		mutate(j)
		j.UpdatedAt = o.now().UTC()
	})
	if err != nil {
		o.log.Error("job update failed", "job_id", jobID.String(), "error", err)
		return nil
	}
	return job
}

func (o *Orchestrator) fail(jobID uuid.UUID, message string) {
	o.update(jobID, func(j *Job) {
		j.Status = StatusFailed
		j.ErrorMessage = message
		t := o.now().UTC()
		j.CompletedAt = &t
	})
}

func (o *Orchestrator) cleanupFile(path string, log *slog.Logger) {
	if o.opts.KeepFiles {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("staged file cleanup failed", "file", path, "error", err)
	}
}
