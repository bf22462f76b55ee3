package operations

import (
	"fmt"
	"sort"
	"sync"
	"time"

	apierrors "mertoncli/internal/errors"
)

// MemoryJobStore keeps jobs in process memory. Jobs go in and come out as
// copies, so callers never share state with the store.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryJobStore creates an empty store
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: map[string]*Job{}}
}

func (s *MemoryJobStore) CreateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.ID]; dup {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryJobStore) GetJob(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, missingJob(id)
	}
	return job.Clone(), nil
}

func (s *MemoryJobStore) UpdateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return missingJob(job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// ListJobs returns summaries of the jobs matching filter, newest first.
// Jobs created in the same instant are ordered by id.
func (s *MemoryJobStore) ListJobs(filter JobFilter) ([]*Job, error) {
	s.mu.RLock()
	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.matches(job) {
			out = append(out, job.Summary())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CleanupOldJobs drops terminal jobs that finished before now-olderThan
// and reports how many went
func (s *MemoryJobStore) CleanupOldJobs(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.jobs {
		if job.Status.Terminal() && finishedAt(job).Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// CountByStatus tallies stored jobs per status
func (s *MemoryJobStore) CountByStatus() map[JobStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[JobStatus]int, 5)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts
}

func (f JobFilter) matches(job *Job) bool {
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	return f.Since.IsZero() || !job.CreatedAt.Before(f.Since)
}

// finishedAt falls back to the creation time for jobs cancelled before
// they ever ran
func finishedAt(job *Job) time.Time {
	if job.CompletedAt != nil {
		return *job.CompletedAt
	}
	return job.CreatedAt
}

func missingJob(id string) error {
	return fmt.Errorf("job %s: %w", id, apierrors.ErrJobNotFound)
}
