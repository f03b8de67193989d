package domain

import "context"

// JobRepository defines persistence for generation jobs.
type JobRepository interface {
	// Create stores a new job. It returns ErrActiveJobExists when the project
	// already owns a non-terminal job.
	Create(ctx context.Context, job *GenerationJob) error
	Get(ctx context.Context, jobID string) (*GenerationJob, error)
	// Update writes job only if the stored record still carries job.Version,
	// then advances job.Version. A newer stored record yields ErrConcurrentUpdate.
	Update(ctx context.Context, job *GenerationJob) error
	// FindActiveByProject returns the project's non-terminal job or ErrNotFound.
	FindActiveByProject(ctx context.Context, projectID string) (*GenerationJob, error)
	ListByProject(ctx context.Context, projectID string) ([]GenerationJob, error)
	ListByStatus(ctx context.Context, statuses ...JobStatus) ([]GenerationJob, error)
	CountByStatus(ctx context.Context) (map[JobStatus]int, error)
}

// ScriptRepository exposes the read-only script data of a project.
type ScriptRepository interface {
	// GetSegments returns segments in script order or ErrProjectNotFound.
	GetSegments(ctx context.Context, projectID string) ([]Segment, error)
	GetVoiceMapping(ctx context.Context, projectID string) (VoiceMapping, error)
}
