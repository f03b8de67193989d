package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesOrdered(t *testing.T) {
	names, err := MigrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_projects.sql", "0002_generation_jobs.sql"}, names)
}

func TestGenerationJobsHasActiveProjectIndex(t *testing.T) {
	body, err := migrationsFS.ReadFile("migrations/0002_generation_jobs.sql")
	require.NoError(t, err)
	sql := string(body)
	assert.Contains(t, sql, "CREATE UNIQUE INDEX IF NOT EXISTS uq_generation_jobs_active_project")
	for _, status := range []string{"'queued'", "'loading_model'", "'generating'", "'stitching'"} {
		idx := strings.Index(sql, "WHERE status IN")
		require.Positive(t, idx)
		assert.Contains(t, sql[idx:], status)
	}
}
