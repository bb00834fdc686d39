package store

// Package store persists jobs and imported records in PostgreSQL via pgx.
// All SQL lives here; callers work with the ingest types.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rkowalik/staffimport/internal/ingest"
)

// Store implements ingest.JobStore and ingest.RecordStore on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the tables if they do not exist. Kept idempotent so the
// server can run it at startup.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS upload_jobs (
			id             UUID PRIMARY KEY,
			filename       TEXT NOT NULL,
			status         TEXT NOT NULL,
			current_step   TEXT NOT NULL DEFAULT '',
			total_rows     INTEGER,
			processed_rows INTEGER NOT NULL DEFAULT 0,
			error_rows     INTEGER NOT NULL DEFAULT 0,
			error_details  JSONB NOT NULL DEFAULT '[]',
			error_message  TEXT NOT NULL DEFAULT '',
			started_at     TIMESTAMPTZ,
			completed_at   TIMESTAMPTZ,
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS upload_jobs_created_at_idx ON upload_jobs (created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS employees (
			employee_id       TEXT PRIMARY KEY,
			name              TEXT,
			department_code   TEXT,
			salary            DOUBLE PRECISION,
			hire_date         DATE,
			department_name   TEXT,
			annual_salary_eur DOUBLE PRECISION,
			tenure_years      INTEGER,
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			project_id   TEXT PRIMARY KEY,
			project_name TEXT,
			budget_usd   DOUBLE PRECISION,
			start_date   DATE,
			status       TEXT,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

const jobColumns = `id, filename, status, current_step, total_rows, processed_rows,
	error_rows, error_details, error_message, started_at, completed_at, created_at, updated_at`

func (s *Store) CreateJob(ctx context.Context, job *ingest.Job) error {
	details, err := json.Marshal(job.ErrorDetails)
	if err != nil {
		return fmt.Errorf("marshal error details: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO upload_jobs (`+jobColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		job.ID, job.Filename, job.Status, job.CurrentStep, job.TotalRows, job.ProcessedRows,
		job.ErrorRows, details, job.ErrorMessage, job.StartedAt, job.CompletedAt,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*ingest.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM upload_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ingest.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// UpdateJob applies mutate under a row lock so concurrent progress writes
// and status polls never interleave half-applied state.
func (s *Store) UpdateJob(ctx context.Context, id uuid.UUID, mutate func(*ingest.Job)) (*ingest.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM upload_jobs WHERE id = $1 FOR UPDATE`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ingest.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock job: %w", err)
	}

	mutate(job)

	details, err := json.Marshal(job.ErrorDetails)
	if err != nil {
		return nil, fmt.Errorf("marshal error details: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE upload_jobs SET
			status = $2, current_step = $3, total_rows = $4, processed_rows = $5,
			error_rows = $6, error_details = $7, error_message = $8,
			started_at = $9, completed_at = $10, updated_at = $11
		WHERE id = $1`,
		job.ID, job.Status, job.CurrentStep, job.TotalRows, job.ProcessedRows,
		job.ErrorRows, details, job.ErrorMessage, job.StartedAt, job.CompletedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return job, nil
}

func (s *Store) ListJobs(ctx context.Context, params ingest.ListJobsParams) ([]*ingest.Job, int64, error) {
	where := ""
	args := []any{}
	if params.Status != "" {
		where = " WHERE status = $1"
		args = append(args, params.Status)
	}

	var total int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM upload_jobs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	page, size := params.Page, params.Size
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}

	query := fmt.Sprintf(
		`SELECT %s FROM upload_jobs%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		jobColumns, where, len(args)+1, len(args)+2)
	args = append(args, size, (page-1)*size)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*ingest.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}
	return jobs, total, nil
}

func scanJob(row pgx.Row) (*ingest.Job, error) {
	var (
		job     ingest.Job
		details []byte
	)
	err := row.Scan(
		&job.ID, &job.Filename, &job.Status, &job.CurrentStep, &job.TotalRows,
		&job.ProcessedRows, &job.ErrorRows, &details, &job.ErrorMessage,
		&job.StartedAt, &job.CompletedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &job.ErrorDetails); err != nil {
			return nil, fmt.Errorf("unmarshal error details: %w", err)
		}
	}
	return &job, nil
}

// UpsertEmployees writes a batch keyed on employee_id. Re-running the same
// file updates rows in place instead of duplicating them.
func (s *Store) UpsertEmployees(ctx context.Context, records []ingest.EmployeeRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO employees (
				employee_id, name, department_code, salary, hire_date,
				department_name, annual_salary_eur, tenure_years, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
			ON CONFLICT (employee_id) DO UPDATE SET
				name = EXCLUDED.name,
				department_code = EXCLUDED.department_code,
				salary = EXCLUDED.salary,
				hire_date = EXCLUDED.hire_date,
				department_name = EXCLUDED.department_name,
				annual_salary_eur = EXCLUDED.annual_salary_eur,
				tenure_years = EXCLUDED.tenure_years,
				updated_at = now()`,
			rec.EmployeeID, rec.Name, rec.DepartmentCode, rec.Salary, rec.HireDate,
			rec.DepartmentName, rec.AnnualSalaryEUR, rec.TenureYears,
		)
	}
	return s.sendBatch(ctx, batch, "employees")
}

// UpsertProjects writes a batch keyed on project_id.
func (s *Store) UpsertProjects(ctx context.Context, records []ingest.ProjectRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO projects (
				project_id, project_name, budget_usd, start_date, status, updated_at
			) VALUES ($1,$2,$3,$4,$5,now())
			ON CONFLICT (project_id) DO UPDATE SET
				project_name = EXCLUDED.project_name,
				budget_usd = EXCLUDED.budget_usd,
				start_date = EXCLUDED.start_date,
				status = EXCLUDED.status,
				updated_at = now()`,
			rec.ProjectID, rec.ProjectName, rec.BudgetUSD, rec.StartDate, rec.Status,
		)
	}
	return s.sendBatch(ctx, batch, "projects")
}

// sendBatch runs all queued statements in one transaction so a batch either
// lands fully or not at all.
func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, table string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upsert %s record %d: %w", table, i+1, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
