package repo

import (
	"context"
	"sort"
	"sync"

	"voicestudio/internal/domain"
)

// JobRepositoryMemory implements domain.JobRepository in process memory. It
// mirrors the one-active-job-per-project index of the Postgres schema.
type JobRepositoryMemory struct {
	mu   sync.RWMutex
	jobs map[string]*domain.GenerationJob
}

// NewMemoryJobRepository creates an empty in-memory job store.
func NewMemoryJobRepository() *JobRepositoryMemory {
	return &JobRepositoryMemory{jobs: make(map[string]*domain.GenerationJob)}
}

// Create inserts a new job record.
func (r *JobRepositoryMemory) Create(_ context.Context, job *domain.GenerationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return domain.ErrActiveJobExists
	}
	if !job.Status.Terminal() {
		for _, existing := range r.jobs {
			if existing.ProjectID == job.ProjectID && !existing.Status.Terminal() {
				return domain.ErrActiveJobExists
			}
		}
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryMemory) Get(_ context.Context, jobID string) (*domain.GenerationJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

// Update replaces the stored record if nobody wrote it since job was read.
func (r *JobRepositoryMemory) Update(_ context.Context, job *domain.GenerationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != job.Version {
		return domain.ErrConcurrentUpdate
	}
	job.Version++
	r.jobs[job.ID] = job.Clone()
	return nil
}

// FindActiveByProject returns the project's non-terminal job.
func (r *JobRepositoryMemory) FindActiveByProject(_ context.Context, projectID string) (*domain.GenerationJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, job := range r.jobs {
		if job.ProjectID == projectID && !job.Status.Terminal() {
			return job.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

// ListByProject returns the project's jobs, newest first.
func (r *JobRepositoryMemory) ListByProject(_ context.Context, projectID string) ([]domain.GenerationJob, error) {
	return r.collect(func(j *domain.GenerationJob) bool { return j.ProjectID == projectID }), nil
}

// ListByStatus returns jobs in any of the given statuses, newest first.
func (r *JobRepositoryMemory) ListByStatus(_ context.Context, statuses ...domain.JobStatus) ([]domain.GenerationJob, error) {
	want := make(map[domain.JobStatus]struct{}, len(statuses))
	for _, s := range statuses {
		want[s] = struct{}{}
	}
	return r.collect(func(j *domain.GenerationJob) bool {
		_, ok := want[j.Status]
		return ok
	}), nil
}

// CountByStatus tallies jobs per status.
func (r *JobRepositoryMemory) CountByStatus(_ context.Context) (map[domain.JobStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[domain.JobStatus]int)
	for _, job := range r.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (r *JobRepositoryMemory) collect(keep func(*domain.GenerationJob) bool) []domain.GenerationJob {
	r.mu.RLock()
	out := make([]domain.GenerationJob, 0)
	for _, job := range r.jobs {
		if keep(job) {
			out = append(out, *job.Clone())
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

var _ domain.JobRepository = (*JobRepositoryMemory)(nil)
