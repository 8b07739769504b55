package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vefmedia/vef/internal/models"
	"github.com/vefmedia/vef/internal/testutil"
)

func TestJobRepoCreateAndGet(t *testing.T) {
	repo := NewJobRepository(testutil.NewDB(t))
	ctx := context.Background()

	job := testutil.NewJob()
	require.NoError(t, repo.Create(ctx, job))
	require.False(t, job.ID.IsZero())

	loaded, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, job.InputPath, loaded.InputPath)
	assert.Equal(t, models.JobStatusQueued, loaded.Status)

	missing, err := repo.GetByID(ctx, models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestJobRepoCreateValidates(t *testing.T) {
	repo := NewJobRepository(testutil.NewDB(t))

	job := testutil.NewJob()
	job.InputPath = ""
	err := repo.Create(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInputPathRequired)
}

func TestJobRepoGetByStatus(t *testing.T) {
	repo := NewJobRepository(testutil.NewDB(t))
	ctx := context.Background()

	queued := testutil.NewJob()
	require.NoError(t, repo.Create(ctx, queued))

	done := testutil.NewJob()
	done.Status = models.JobStatusSuccess
	require.NoError(t, repo.Create(ctx, done))

	jobs, err := repo.GetByStatus(ctx, models.JobStatusQueued)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, queued.ID, jobs[0].ID)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestJobRepoNextQueuedIsOldestFirst(t *testing.T) {
	repo := NewJobRepository(testutil.NewDB(t))
	ctx := context.Background()

	first := testutil.NewJob()
	require.NoError(t, repo.Create(ctx, first))

	// created_at has second-level granularity in SQLite depending on the
	// column type, so force distinct timestamps.
	second := testutil.NewJob()
	require.NoError(t, repo.Create(ctx, second))
	require.NoError(t, repo.UpdateFields(ctx, second.ID, map[string]any{
		"created_at": time.Now().Add(time.Minute),
	}))

	next, err := repo.NextQueued(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, first.ID, next.ID)
}

func TestJobRepoNextQueuedEmpty(t *testing.T) {
	repo := NewJobRepository(testutil.NewDB(t))

	next, err := repo.NextQueued(context.Background())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestJobRepoHasRunning(t *testing.T) {
	repo := NewJobRepository(testutil.NewDB(t))
	ctx := context.Background()

	running, err := repo.HasRunning(ctx)
	require.NoError(t, err)
	assert.False(t, running)

	job := testutil.NewJob()
	job.Status = models.JobStatusRunning
	require.NoError(t, repo.Create(ctx, job))

	running, err = repo.HasRunning(ctx)
	require.NoError(t, err)
	assert.True(t, running)
}

func TestJobRepoUpdateFields(t *testing.T) {
	repo := NewJobRepository(testutil.NewDB(t))
	ctx := context.Background()

	job := testutil.NewJob()
	require.NoError(t, repo.Create(ctx, job))

	require.NoError(t, repo.UpdateFields(ctx, job.ID, map[string]any{
		"status":   models.JobStatusRunning,
		"progress": 42,
	}))

	loaded, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, loaded.Status)
	assert.Equal(t, 42, loaded.Progress)
}

func TestJobRepoMarkRunningFailed(t *testing.T) {
	repo := NewJobRepository(testutil.NewDB(t))
	ctx := context.Background()

	interrupted := testutil.NewJob()
	interrupted.Status = models.JobStatusRunning
	interrupted.Progress = 57
	require.NoError(t, repo.Create(ctx, interrupted))

	untouched := testutil.NewJob()
	require.NoError(t, repo.Create(ctx, untouched))

	failed, err := repo.MarkRunningFailed(ctx, "system restart")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, interrupted.ID, failed[0].ID)
	// Progress at interruption time is preserved for the audit trail.
	assert.Equal(t, 57, failed[0].Progress)

	loaded, err := repo.GetByID(ctx, interrupted.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, loaded.Status)
	assert.Equal(t, "system restart", loaded.ErrorMessage)

	still, err := repo.GetByID(ctx, untouched.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, still.Status)
}

func TestJobRepoDelete(t *testing.T) {
	repo := NewJobRepository(testutil.NewDB(t))
	ctx := context.Background()

	job := testutil.NewJob()
	require.NoError(t, repo.Create(ctx, job))
	require.NoError(t, repo.Delete(ctx, job.ID))

	loaded, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
