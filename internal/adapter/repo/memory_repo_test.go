package repo_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicestudio/internal/adapter/repo"
	"voicestudio/internal/domain"
)

func TestMemoryJobRepositoryOneActivePerProject(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemoryJobRepository()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	first := domain.NewGenerationJob("j1", "p1", nil, nil, now)
	require.NoError(t, r.Create(ctx, first))
	require.ErrorIs(t, r.Create(ctx, domain.NewGenerationJob("j2", "p1", nil, nil, now)), domain.ErrActiveJobExists)
	require.NoError(t, r.Create(ctx, domain.NewGenerationJob("j3", "p2", nil, nil, now)))

	active, err := r.FindActiveByProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "j1", active.ID)

	require.NoError(t, first.Apply(domain.ProgressUpdate{Status: domain.JobStatusCancelled}, now.Add(time.Second)))
	require.NoError(t, r.Update(ctx, first))
	_, err = r.FindActiveByProject(ctx, "p1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	later := domain.NewGenerationJob("j4", "p1", nil, nil, now.Add(time.Minute))
	require.NoError(t, r.Create(ctx, later))

	history, err := r.ListByProject(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "j4", history[0].ID)

	queued, err := r.ListByStatus(ctx, domain.JobStatusQueued)
	require.NoError(t, err)
	assert.Len(t, queued, 2)

	counts, err := r.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.JobStatusQueued])
	assert.Equal(t, 1, counts[domain.JobStatusCancelled])
}

func TestMemoryJobRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemoryJobRepository()
	job := domain.NewGenerationJob("j1", "p1", domain.VoiceMapping{1: "a"}, nil, time.Now())
	require.NoError(t, r.Create(ctx, job))

	got, err := r.Get(ctx, "j1")
	require.NoError(t, err)
	got.VoiceMapping[1] = "mutated"
	got.Status = domain.JobStatusFailed

	again, err := r.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "a", again.VoiceMapping[1])
	assert.Equal(t, domain.JobStatusQueued, again.Status)

	require.ErrorIs(t, r.Update(ctx, domain.NewGenerationJob("ghost", "p", nil, nil, time.Now())), domain.ErrNotFound)
}

func TestMemoryJobRepositoryRejectsStaleWrites(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemoryJobRepository()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.Create(ctx, domain.NewGenerationJob("j1", "p1", nil, nil, now)))

	a, err := r.Get(ctx, "j1")
	require.NoError(t, err)
	b, err := r.Get(ctx, "j1")
	require.NoError(t, err)

	require.NoError(t, a.Apply(domain.ProgressUpdate{Status: domain.JobStatusCancelled}, now.Add(time.Second)))
	require.NoError(t, r.Update(ctx, a))
	assert.EqualValues(t, 1, a.Version)

	b.CancelRequested = true
	require.ErrorIs(t, r.Update(ctx, b), domain.ErrConcurrentUpdate)
	assert.EqualValues(t, 0, b.Version)

	stored, err := r.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, stored.Status)
	assert.False(t, stored.CancelRequested)
	assert.EqualValues(t, 1, stored.Version)
}

func TestLoadScriptFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scripts.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
  {"project_id": "demo", "voice_mapping": {"1": "en-Carter_man"},
   "segments": [
     {"id": "b", "order": 2, "text": "Second.", "speaker_id": 1},
     {"id": "a", "order": 1, "text": "First.", "speaker_id": 1}
   ]}
]`), 0o600))

	r, err := repo.LoadScriptFixtures(path)
	require.NoError(t, err)

	segments, err := r.GetSegments(context.Background(), "demo")
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "a", segments[0].ID)

	mapping, err := r.GetVoiceMapping(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, domain.VoiceMapping{1: "en-Carter_man"}, mapping)

	_, err = r.GetSegments(context.Background(), "other")
	require.ErrorIs(t, err, domain.ErrProjectNotFound)
}
