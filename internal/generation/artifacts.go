package generation

import (
	"context"
	"errors"
	"fmt"
	"io"

	"voicestudio/internal/domain"
	"voicestudio/internal/storage"
)

// ArtifactReader serves the audio of completed jobs.
type ArtifactReader struct {
	manager *Manager
	store   storage.ArtifactStore
}

func NewArtifactReader(m *Manager, store storage.ArtifactStore) *ArtifactReader {
	return &ArtifactReader{manager: m, store: store}
}

// OpenArtifact returns the job's final audio. Jobs that have not completed
// yield domain.ErrNotReady.
func (a *ArtifactReader) OpenArtifact(ctx context.Context, jobID string) (io.ReadCloser, *domain.GenerationJob, error) {
	job, err := a.manager.GetStatus(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != domain.JobStatusCompleted || job.OutputPath == "" {
		return nil, job, fmt.Errorf("%w: job %s is %s", domain.ErrNotReady, job.ID, job.Status)
	}
	rc, err := a.store.Open(ctx, job.OutputPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, job, fmt.Errorf("artifact %s: %w", job.OutputPath, domain.ErrNotFound)
		}
		return nil, job, fmt.Errorf("open artifact %s: %w", job.OutputPath, err)
	}
	return rc, job, nil
}
