// Package generation owns the lifecycle of audio generation jobs: submission,
// worker progress, cancellation and the aggregate queue view polled by clients.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voicestudio/internal/domain"
)

// DefaultAverageJobDuration feeds the queue wait estimate when none is configured.
const DefaultAverageJobDuration = 10 * time.Minute

// maxWriteAttempts bounds re-reads when another API replica writes the same job.
const maxWriteAttempts = 5

var errNoChange = errors.New("job unchanged")

// WorkerPool is the external executor of synthesis work.
type WorkerPool interface {
	Enqueue(ctx context.Context, task domain.SynthesisTask) error
	RequestCancel(ctx context.Context, jobID string) error
}

// SubmitRequest carries the parameters of a new generation.
type SubmitRequest struct {
	ProjectID    string
	VoiceMapping domain.VoiceMapping
	Options      json.RawMessage
}

// Options tunes the manager.
type Options struct {
	AverageJobDuration time.Duration
	Now                func() time.Time
	NewID              func() string
}

// Manager is the single source of truth for generation job state.
type Manager struct {
	jobs     domain.JobRepository
	scripts  domain.ScriptRepository
	pool     WorkerPool
	logger   zerolog.Logger
	avgJob   time.Duration
	now      func() time.Time
	newID    func() string
	jobLocks *keyedMutex
	projects *keyedMutex
}

// NewManager wires a manager over its collaborators.
func NewManager(jobs domain.JobRepository, scripts domain.ScriptRepository, pool WorkerPool, logger zerolog.Logger, opts Options) *Manager {
	m := &Manager{
		jobs:     jobs,
		scripts:  scripts,
		pool:     pool,
		logger:   logger,
		avgJob:   opts.AverageJobDuration,
		now:      opts.Now,
		newID:    opts.NewID,
		jobLocks: newKeyedMutex(),
		projects: newKeyedMutex(),
	}
	if m.avgJob <= 0 {
		m.avgJob = DefaultAverageJobDuration
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m
}

// Submit validates the project's script, records a queued job and hands a
// snapshot of the script to the worker pool. It never waits for synthesis.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*domain.GenerationJob, error) {
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		return nil, fmt.Errorf("%w: project_id is required", domain.ErrValidation)
	}

	segments, err := m.scripts.GetSegments(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}
	if !domain.HasSpeakableText(segments) {
		return nil, domain.ErrEmptyScript
	}
	mapping, err := m.scripts.GetVoiceMapping(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load voice mapping: %w", err)
	}
	mapping = mapping.Merge(req.VoiceMapping)

	snapshot := make([]domain.Segment, 0, len(segments))
	for _, s := range segments {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		snapshot = append(snapshot, s)
	}
	domain.SortSegments(snapshot)

	unlock := m.projects.Lock(projectID)
	job, err := m.createLocked(ctx, projectID, mapping, req.Options)
	unlock()
	if err != nil {
		return nil, err
	}

	task := domain.SynthesisTask{
		JobID:        job.ID,
		ProjectID:    projectID,
		Segments:     snapshot,
		VoiceMapping: mapping.Clone(),
		Options:      job.Options,
		EnqueuedAt:   job.CreatedAt,
	}
	if err := m.pool.Enqueue(ctx, task); err != nil {
		m.logger.Error().Err(err).Str("job_id", job.ID).Msg("manager: enqueue failed")
		failed, ferr := m.apply(ctx, job.ID, domain.ProgressUpdate{
			Status:       domain.JobStatusFailed,
			ErrorMessage: "could not queue audio generation",
		})
		if ferr != nil {
			m.logger.Error().Err(ferr).Str("job_id", job.ID).Msg("manager: failed to record enqueue failure")
		}
		if failed != nil {
			job = failed
		}
		return job, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}

	m.logger.Info().
		Str("job_id", job.ID).
		Str("project_id", projectID).
		Int("segments", len(snapshot)).
		Msg("manager: job queued")
	return job, nil
}

func (m *Manager) createLocked(ctx context.Context, projectID string, mapping domain.VoiceMapping, options json.RawMessage) (*domain.GenerationJob, error) {
	existing, err := m.jobs.FindActiveByProject(ctx, projectID)
	switch {
	case err == nil:
		return nil, &domain.ConflictError{ExistingJobID: existing.ID, Status: existing.Status}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("find active job: %w", err)
	}

	job := domain.NewGenerationJob(m.newID(), projectID, mapping, options, m.now())
	if err := m.jobs.Create(ctx, job); err != nil {
		if errors.Is(err, domain.ErrActiveJobExists) {
			// Lost a race against another API replica.
			if other, ferr := m.jobs.FindActiveByProject(ctx, projectID); ferr == nil {
				return nil, &domain.ConflictError{ExistingJobID: other.ID, Status: other.Status}
			}
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job.Clone(), nil
}

// Cancel records a cancellation request and signals the pool. The job only
// becomes cancelled once the pool acknowledges. Cancelling a terminal job
// returns it unchanged.
func (m *Manager) Cancel(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	// UpdatedAt stays with the last worker report so the watchdog still sees a silent worker.
	job, err := m.mutate(ctx, jobID, func(job *domain.GenerationJob) error {
		if job.Status.Terminal() || job.CancelRequested {
			return errNoChange
		}
		job.CancelRequested = true
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("record cancel request: %w", err)
	}
	if job.Status.Terminal() {
		return job, nil
	}

	// The pool may acknowledge synchronously, so it is signalled without the job lock.
	if err := m.pool.RequestCancel(ctx, jobID); err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("manager: cancel signal failed, watchdog will settle the job")
	}
	m.logger.Info().Str("job_id", jobID).Msg("manager: cancel requested")

	return m.jobs.Get(ctx, jobID)
}

// ReportProgress applies a worker update. Updates for jobs that already
// reached a terminal state fail with domain.ErrStaleTransition and never
// modify the stored record.
func (m *Manager) ReportProgress(ctx context.Context, jobID string, update domain.ProgressUpdate) (*domain.GenerationJob, error) {
	job, err := m.apply(ctx, jobID, update)
	if err != nil {
		ev := m.logger.Warn()
		if errors.Is(err, domain.ErrStaleTransition) {
			ev = m.logger.Debug()
		}
		ev.Err(err).Str("job_id", jobID).Str("status", string(update.Status)).Msg("manager: progress rejected")
		return nil, err
	}
	if job.Status.Terminal() {
		m.logger.Info().Str("job_id", jobID).Str("status", string(job.Status)).Msg("manager: job finished")
	}
	return job, nil
}

// Report satisfies the worker-side reporter contract for in-process pools.
func (m *Manager) Report(ctx context.Context, jobID string, update domain.ProgressUpdate) error {
	_, err := m.ReportProgress(ctx, jobID, update)
	return err
}

func (m *Manager) apply(ctx context.Context, jobID string, update domain.ProgressUpdate) (*domain.GenerationJob, error) {
	return m.mutate(ctx, jobID, func(job *domain.GenerationJob) error {
		return job.Apply(update, m.now())
	})
}

// mutate runs change against the stored job and writes the result. The job
// lock serializes this process; the repository's version check catches
// writes from other replicas, in which case the job is re-read and change
// runs again on the fresh record. A change returning errNoChange skips the
// write and yields the stored job.
func (m *Manager) mutate(ctx context.Context, jobID string, change func(*domain.GenerationJob) error) (*domain.GenerationJob, error) {
	unlock := m.jobLocks.Lock(jobID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		job, err := m.jobs.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if err := change(job); err != nil {
			if errors.Is(err, errNoChange) {
				return job, nil
			}
			return nil, err
		}
		err = m.jobs.Update(ctx, job)
		switch {
		case err == nil:
			return job, nil
		case errors.Is(err, domain.ErrConcurrentUpdate) && attempt < maxWriteAttempts:
			m.logger.Debug().Str("job_id", jobID).Int("attempt", attempt).Msg("manager: job written elsewhere, retrying")
		default:
			return nil, fmt.Errorf("persist job %s: %w", jobID, err)
		}
	}
}

// GetStatus returns a snapshot of the job.
func (m *Manager) GetStatus(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	return m.jobs.Get(ctx, jobID)
}

// ListProjectJobs returns the project's job history, newest first.
func (m *Manager) ListProjectJobs(ctx context.Context, projectID string) ([]domain.GenerationJob, error) {
	return m.jobs.ListByProject(ctx, projectID)
}

// QueueStatus derives queue depth and an advisory wait from all tracked jobs.
func (m *Manager) QueueStatus(ctx context.Context) (domain.QueueStatus, error) {
	counts, err := m.jobs.CountByStatus(ctx)
	if err != nil {
		return domain.QueueStatus{}, fmt.Errorf("count jobs: %w", err)
	}
	var active int
	for status, n := range counts {
		if status.Active() {
			active += n
		}
	}
	queued := counts[domain.JobStatusQueued]
	qs := domain.QueueStatus{
		Position:   queued,
		ActiveJobs: active,
		QueuedJobs: queued,
	}
	if queued > 0 {
		wait := time.Duration(active+queued) * m.avgJob
		qs.EstimatedWait = &wait
	}
	return qs, nil
}
