package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rkowalik/staffimport/internal/ingest"
	"github.com/rkowalik/staffimport/internal/logging"
	"github.com/rkowalik/staffimport/internal/store"
)

// allowedExtensions are the spreadsheet formats accepted for upload.
var allowedExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
}

// handleUpload accepts a spreadsheet, stages it to disk and submits an
// ingestion job. It answers 202 with the job id; clients poll the status
// endpoint for progress.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds the %d byte limit", maxSize))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported file type %q, expected .xlsx or .xlsm", ext))
		return
	}
	if header.Size == 0 {
		writeError(w, http.StatusBadRequest, "file is empty")
		return
	}

	stagedPath, err := s.stageFile(file, ext)
	if err != nil {
		logging.FromContext(r.Context()).Error("stage upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not store uploaded file")
		return
	}

	job, err := s.orchestrator.Submit(r.Context(), header.Filename, stagedPath)
	if err != nil {
		logging.FromContext(r.Context()).Error("submit job failed", "error", err)
		os.Remove(stagedPath)
		writeError(w, http.StatusInternalServerError, "could not start import job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID.String(),
		"status": string(job.Status),
	})
}

// stageFile copies the upload into the staging directory under a fresh
// name, so nothing in the original filename ever reaches the filesystem.
func (s *Server) stageFile(src io.Reader, ext string) (string, error) {
	dir := s.cfg.Upload.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	path := filepath.Join(dir, uuid.New().String()+ext)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	return path, nil
}

// handleJobStatus returns the current snapshot of one job.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	job, err := s.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, ingest.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("get job failed", "job_id", jobID.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "could not load job")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// handleCancelJob stops a running job.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	if err := s.orchestrator.Cancel(jobID); err != nil {
		if errors.Is(err, ingest.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found or already finished")
			return
		}
		logging.FromContext(r.Context()).Error("cancel job failed", "job_id", jobID.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "could not cancel job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID.String(), "status": "cancelling"})
}

// jobListResponse is one page of job history.
type jobListResponse struct {
	Jobs  []*ingest.Job `json:"jobs"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
}

// handleListJobs returns job history, newest first.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	page, size := parsePaging(r)
	params := ingest.ListJobsParams{
		Page:   page,
		Size:   size,
		Status: ingest.JobStatus(r.URL.Query().Get("status")),
	}

	jobs, total, err := s.jobs.ListJobs(r.Context(), params)
	if err != nil {
		logging.FromContext(r.Context()).Error("list jobs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list jobs")
		return
	}

	writeJSON(w, http.StatusOK, jobListResponse{Jobs: jobs, Total: total, Page: page, Size: size})
}

// recordListResponse is one page of imported records.
type recordListResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

// handleListEmployees returns imported employees with paging, sorting,
// search on the name and an exact department filter.
func (s *Server) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	result, err := s.records.ListEmployees(r.Context(), listParamsFromQuery(r, "department"))
	if err != nil {
		logging.FromContext(r.Context()).Error("list employees failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list employees")
		return
	}
	writeJSON(w, http.StatusOK, recordListResponse[ingest.EmployeeRecord]{
		Items: result.Items, Total: result.Total, Page: result.Page, Size: result.Size,
	})
}

// handleListProjects returns imported projects with an exact status filter.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	result, err := s.records.ListProjects(r.Context(), listParamsFromQuery(r, "status"))
	if err != nil {
		logging.FromContext(r.Context()).Error("list projects failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list projects")
		return
	}
	writeJSON(w, http.StatusOK, recordListResponse[ingest.ProjectRecord]{
		Items: result.Items, Total: result.Total, Page: result.Page, Size: result.Size,
	})
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "jobID")
	jobID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, false
	}
	return jobID, true
}

func parsePaging(r *http.Request) (page, size int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	size, _ = strconv.Atoi(r.URL.Query().Get("size"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 200 {
		size = 20
	}
	return page, size
}

func listParamsFromQuery(r *http.Request, filterParam string) store.ListParams {
	page, size := parsePaging(r)
	q := r.URL.Query()
	return store.ListParams{
		Page:   page,
		Size:   size,
		SortBy: q.Get("sort_by"),
		Order:  q.Get("order"),
		Search: q.Get("search"),
		Filter: q.Get(filterParam),
	}
}
