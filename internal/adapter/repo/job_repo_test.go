package repo

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicestudio/internal/domain"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if r.values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

type fakeExecutor struct {
	execErr  error
	affected int64
	row      fakeRow
	queries  []string
}

func (f *fakeExecutor) Exec(_ context.Context, query string, _ ...any) (pgconn.CommandTag, error) {
	f.queries = append(f.queries, query)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", f.affected)), nil
}

func (f *fakeExecutor) QueryRow(_ context.Context, query string, _ ...any) pgx.Row {
	f.queries = append(f.queries, query)
	return f.row
}

func (f *fakeExecutor) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func TestJobRepositoryCreateMapsUniqueViolation(t *testing.T) {
	exec := &fakeExecutor{execErr: &pgconn.PgError{Code: "23505", ConstraintName: "uq_generation_jobs_active_project"}}
	r := NewJobRepository(exec)

	err := r.Create(context.Background(), domain.NewGenerationJob("j1", "p1", nil, nil, time.Now()))
	require.ErrorIs(t, err, domain.ErrActiveJobExists)
	require.Len(t, exec.queries, 1)
	assert.Contains(t, exec.queries[0], "--sql ")
}

func jobRow(status string, version int64) fakeRow {
	created := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	return fakeRow{values: []any{
		"j1", "p1", status,
		0.0, 0, 0, 0.0, (*float64)(nil), "", (*int)(nil), "",
		[]byte(nil), []byte(nil), false,
		created, (*time.Time)(nil), (*time.Time)(nil), created,
		version,
	}}
}

func TestJobRepositoryUpdate(t *testing.T) {
	ctx := context.Background()

	exec := &fakeExecutor{affected: 1}
	job := domain.NewGenerationJob("j1", "p1", nil, nil, time.Now())
	require.NoError(t, NewJobRepository(exec).Update(ctx, job))
	assert.EqualValues(t, 1, job.Version)
	assert.Contains(t, exec.queries[0], "version = $15")

	missing := &fakeExecutor{affected: 0, row: fakeRow{err: pgx.ErrNoRows}}
	err := NewJobRepository(missing).Update(ctx, domain.NewGenerationJob("j1", "p1", nil, nil, time.Now()))
	require.ErrorIs(t, err, domain.ErrNotFound)

	moved := &fakeExecutor{affected: 0, row: jobRow("completed", 3)}
	stale := domain.NewGenerationJob("j1", "p1", nil, nil, time.Now())
	err = NewJobRepository(moved).Update(ctx, stale)
	require.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	assert.EqualValues(t, 0, stale.Version)
}

func TestJobRepositoryGetNoRows(t *testing.T) {
	r := NewJobRepository(&fakeExecutor{row: fakeRow{err: pgx.ErrNoRows}})
	_, err := r.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestScanJobDecodesColumns(t *testing.T) {
	created := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	eta := 42.5
	row := fakeRow{values: []any{
		"j1", "p1", "generating",
		37.5, 2, 4, 50.0,
		&eta,
		"", (*int)(nil), "",
		[]byte(`{"1":"en-Carter_man"}`),
		[]byte(`{"cfg_scale":1.3}`),
		true,
		created, &created, (*time.Time)(nil), created,
		int64(7),
	}}

	job, err := scanJob(row)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusGenerating, job.Status)
	assert.Equal(t, 2, job.CurrentChunk)
	require.NotNil(t, job.EstimatedTimeRemaining)
	assert.Equal(t, 42500*time.Millisecond, *job.EstimatedTimeRemaining)
	assert.Equal(t, domain.VoiceMapping{1: "en-Carter_man"}, job.VoiceMapping)
	assert.JSONEq(t, `{"cfg_scale":1.3}`, string(job.Options))
	assert.True(t, job.CancelRequested)
	assert.Nil(t, job.CompletedAt)
	assert.EqualValues(t, 7, job.Version)
}

func TestScanJobRejectsUnknownStatus(t *testing.T) {
	_, err := scanJob(jobRow("exploded", 0))
	require.ErrorIs(t, err, domain.ErrValidation)
}
