package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/finance-categorizer/internal/jobs"
)

// Store keeps categorization jobs in a map for the lifetime of the process.
// Jobs go in and come out as clones, so callers never share a job with the
// queue workers.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.CategorizeFileJob
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.CategorizeFileJob),
	}
}

// SaveJob inserts or replaces the job.
func (s *Store) SaveJob(ctx context.Context, job *jobs.CategorizeFileJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.JobID] = job.Clone()
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.CategorizeFileJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}
	return job.Clone(), nil
}

// ListJobs returns the jobs matching filter, newest first with ties broken by
// ID, then applies Offset and Limit.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.CategorizeFileJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*jobs.CategorizeFileJob{}
	for _, job := range s.jobs {
		if matches(job, filter) {
			result = append(result, job.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].JobID < result[j].JobID
	})

	return page(result, filter.Offset, filter.Limit), nil
}

func matches(job *jobs.CategorizeFileJob, filter jobs.JobFilter) bool {
	if filter.UserID != "" && job.UserID != filter.UserID {
		return false
	}
	return filter.Status == "" || job.Status == filter.Status
}

func page(list []*jobs.CategorizeFileJob, offset, limit int) []*jobs.CategorizeFileJob {
	if offset >= len(list) {
		return []*jobs.CategorizeFileJob{}
	}
	if offset > 0 {
		list = list[offset:]
	}
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}

// UpdateJobStatus sets the status, and the error message when one is given.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}

	return nil
}

var _ jobs.JobStore = (*Store)(nil)
