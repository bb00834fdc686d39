// Package ingest implements the spreadsheet transformation-and-ingestion
// pipeline: rule loading, sheet decoding, row validation, transformation,
// and batched merge-persistence, driven by an asynchronous job orchestrator.
// This package has no HTTP dependencies and can be driven by any frontend.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sheet names the pipeline expects in every uploaded workbook.
const (
	SheetEmployees = "Employees"
	SheetProjects  = "Projects"
)

// JobStatus is the lifecycle state of an upload job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// JobStep is an advisory progress label within the processing state.
// Steps carry no failure semantics of their own.
type JobStep string

const (
	StepReading      JobStep = "reading"
	StepValidating   JobStep = "validating"
	StepTransforming JobStep = "transforming"
	StepPersisting   JobStep = "persisting"
	StepCompleted    JobStep = "completed"
)

// RowError describes a failure scoped to a single input row.
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s row %d: %s: %s", e.Sheet, e.Row, e.Field, e.Message)
	}
	return fmt.Sprintf("%s row %d: %s", e.Sheet, e.Row, e.Message)
}

// Job tracks one asynchronous run of the pipeline over one uploaded file.
//
// Lifecycle: pending -> processing -> {completed, failed}. Terminal states
// are reached exactly once and never revisited. Only the Orchestrator
// mutates a Job; everyone else reads snapshots through a JobStore.
type Job struct {
	ID            uuid.UUID  `json:"id"`
	Filename      string     `json:"filename"`
	FilePath      string     `json:"-"`
	Status        JobStatus  `json:"status"`
	CurrentStep   JobStep    `json:"current_step,omitempty"`
	TotalRows     *int       `json:"total_rows"`
	ProcessedRows int        `json:"processed_rows"`
	ErrorRows     int        `json:"error_rows"`
	ErrorDetails  []RowError `json:"error_details,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	StartedAt     *time.Time `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Clone returns a deep copy safe to hand out as a snapshot.
func (j *Job) Clone() *Job {
	c := *j
	if j.TotalRows != nil {
		v := *j.TotalRows
		c.TotalRows = &v
	}
	if j.StartedAt != nil {
		v := *j.StartedAt
		c.StartedAt = &v
	}
	if j.CompletedAt != nil {
		v := *j.CompletedAt
		c.CompletedAt = &v
	}
	if j.ErrorDetails != nil {
		c.ErrorDetails = make([]RowError, len(j.ErrorDetails))
		copy(c.ErrorDetails, j.ErrorDetails)
	}
	return &c
}

// RawRow is one source record as decoded from a sheet. Index is the 1-based
// data row position (header excluded) used for error attribution. Values maps
// column header to the raw cell text; blank cells are absent or empty.
type RawRow struct {
	Sheet  string
	Index  int
	Values map[string]string
}

// Get returns the trimmed cell value for a column, or "" if absent.
func (r RawRow) Get(field string) string {
	return strings.TrimSpace(r.Values[field])
}

// EmployeeRecord is the destination entity for the Employees sheet. It keeps
// both the source attributes and the rule-derived ones so re-uploads can be
// audited against the original values.
type EmployeeRecord struct {
	EmployeeID     string     `json:"employee_id"`
	Name           *string    `json:"name"`
	DepartmentCode *string    `json:"department_code"`
	Salary         *float64   `json:"salary"`
	HireDate       *time.Time `json:"hire_date"`

	DepartmentName  *string  `json:"department_name"`
	AnnualSalaryEUR *float64 `json:"annual_salary_eur"`
	TenureYears     *int     `json:"tenure_years"`
}

// ProjectRecord is the destination entity for the Projects sheet.
type ProjectRecord struct {
	ProjectID   string     `json:"project_id"`
	ProjectName *string    `json:"project_name"`
	BudgetUSD   *float64   `json:"budget_usd"`
	StartDate   *time.Time `json:"start_date"`
	Status      *string    `json:"status"`
}

// ErrJobNotFound is returned by JobStore lookups for unknown identifiers.
var ErrJobNotFound = errors.New("job not found")

// ListJobsParams controls job listing pagination and filtering.
type ListJobsParams struct {
	Page   int       // 1-based
	Size   int
	Status JobStatus // empty matches all
}

// JobStore is the job registry abstraction owned by the Orchestrator's
// caller. Reads return snapshots; UpdateJob applies the mutation under the
// store's write exclusion and returns the resulting snapshot.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	UpdateJob(ctx context.Context, id uuid.UUID, mutate func(*Job)) (*Job, error)
	ListJobs(ctx context.Context, params ListJobsParams) ([]*Job, int64, error)
}

// RecordStore persists transformed records. Each call is one atomic batch:
// after a nil return the whole batch is durably merged by natural key; after
// an error the batch has no effect.
type RecordStore interface {
	UpsertEmployees(ctx context.Context, records []EmployeeRecord) error
	UpsertProjects(ctx context.Context, records []ProjectRecord) error
}
