package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"voicestudio/internal/domain"
	"voicestudio/internal/infra"
	"voicestudio/internal/sqlinline"
)

const uniqueViolation = "23505"

// JobRepositoryPG implements domain.JobRepository backed by PostgreSQL.
type JobRepositoryPG struct {
	db infra.SQLExecutor
}

// NewJobRepository creates a new job repository over an audited executor.
func NewJobRepository(db infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{db: db}
}

// Create inserts a new job record. A second non-terminal job for the same
// project violates the partial unique index and maps to ErrActiveJobExists.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob) error {
	mapping, err := json.Marshal(job.VoiceMapping)
	if err != nil {
		return fmt.Errorf("encode voice mapping: %w", err)
	}
	_, err = r.db.Exec(ctx, sqlinline.QJobInsert,
		job.ID,
		job.ProjectID,
		string(job.Status),
		job.Progress,
		job.CurrentChunk,
		job.TotalChunks,
		job.ChunkProgress,
		etaSeconds(job.EstimatedTimeRemaining),
		job.OutputPath,
		job.AudioDuration,
		job.ErrorMessage,
		mapping,
		nullableBytes(job.Options),
		job.CancelRequested,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
		job.Version,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrActiveJobExists
	}
	return err
}

// Update persists the mutable fields of a job when the stored version still
// matches the one the caller read.
func (r *JobRepositoryPG) Update(ctx context.Context, job *domain.GenerationJob) error {
	tag, err := r.db.Exec(ctx, sqlinline.QJobUpdate,
		job.ID,
		string(job.Status),
		job.Progress,
		job.CurrentChunk,
		job.TotalChunks,
		job.ChunkProgress,
		etaSeconds(job.EstimatedTimeRemaining),
		job.OutputPath,
		job.AudioDuration,
		job.ErrorMessage,
		job.CancelRequested,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
		job.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, job.ID); err != nil {
			return err
		}
		return domain.ErrConcurrentUpdate
	}
	job.Version++
	return nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	return scanJob(r.db.QueryRow(ctx, sqlinline.QJobGet, jobID))
}

// FindActiveByProject returns the project's non-terminal job, if any.
func (r *JobRepositoryPG) FindActiveByProject(ctx context.Context, projectID string) (*domain.GenerationJob, error) {
	return scanJob(r.db.QueryRow(ctx, sqlinline.QJobActiveByProject, projectID))
}

// ListByProject returns the project's job history, newest first.
func (r *JobRepositoryPG) ListByProject(ctx context.Context, projectID string) ([]domain.GenerationJob, error) {
	rows, err := r.db.Query(ctx, sqlinline.QJobListByProject, projectID)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// ListByStatus returns jobs in any of the given statuses.
func (r *JobRepositoryPG) ListByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]domain.GenerationJob, error) {
	raw := make([]string, len(statuses))
	for i, s := range statuses {
		raw[i] = string(s)
	}
	rows, err := r.db.Query(ctx, sqlinline.QJobListByStatus, raw)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// CountByStatus tallies jobs per status.
func (r *JobRepositoryPG) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := r.db.Query(ctx, sqlinline.QJobCountByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

func collectJobs(rows pgx.Rows) ([]domain.GenerationJob, error) {
	defer rows.Close()
	jobs := make([]domain.GenerationJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.GenerationJob, error) {
	var (
		job     domain.GenerationJob
		status  string
		eta     *float64
		mapping []byte
		options []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.ProjectID,
		&status,
		&job.Progress,
		&job.CurrentChunk,
		&job.TotalChunks,
		&job.ChunkProgress,
		&eta,
		&job.OutputPath,
		&job.AudioDuration,
		&job.ErrorMessage,
		&mapping,
		&options,
		&job.CancelRequested,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.UpdatedAt,
		&job.Version,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	parsed, err := domain.ParseJobStatus(status)
	if err != nil {
		return nil, err
	}
	job.Status = parsed
	if eta != nil {
		d := time.Duration(*eta * float64(time.Second))
		job.EstimatedTimeRemaining = &d
	}
	if len(mapping) > 0 {
		if err := json.Unmarshal(mapping, &job.VoiceMapping); err != nil {
			return nil, fmt.Errorf("decode voice mapping: %w", err)
		}
	}
	if len(options) > 0 {
		job.Options = json.RawMessage(options)
	}
	return &job, nil
}

func etaSeconds(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	s := d.Seconds()
	return &s
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
