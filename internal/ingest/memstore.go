package ingest

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryJobStore keeps jobs in process memory. It backs tests and single
// node deployments that run without a database for job tracking; record
// persistence still goes through whatever RecordStore is configured.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[uuid.UUID]*Job)}
}

func (s *MemoryJobStore) CreateJob(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

// GetJob returns a snapshot; callers can inspect it without racing the
// worker that owns the live job.
func (s *MemoryJobStore) GetJob(_ context.Context, id uuid.UUID) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryJobStore) UpdateJob(_ context.Context, id uuid.UUID, mutate func(*Job)) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	mutate(job)
	return job.Clone(), nil
}

func (s *MemoryJobStore) ListJobs(_ context.Context, params ListJobsParams) ([]*Job, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if params.Status != "" && job.Status != params.Status {
			continue
		}
		matched = append(matched, job)
	}

	// Newest first, with ID as tiebreaker so paging is stable.
	slices.SortFunc(matched, func(a, b *Job) int {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if a.CreatedAt.After(b.CreatedAt) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})

	total := int64(len(matched))

	page, size := params.Page, params.Size
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	start := (page - 1) * size
	if start >= len(matched) {
		return []*Job{}, total, nil
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]*Job, 0, end-start)
	for _, job := range matched[start:end] {
		out = append(out, job.Clone())
	}
	return out, total, nil
}
