package startup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vefmedia/vef/internal/models"
	"github.com/vefmedia/vef/internal/repository"
	"github.com/vefmedia/vef/internal/testutil"
	"github.com/vefmedia/vef/internal/transcode"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestRunRemovesOrphanedDownloads(t *testing.T) {
	db := testutil.NewDB(t)
	jobs := repository.NewJobRepository(db)
	ctx := context.Background()

	queued := testutil.NewJob()
	require.NoError(t, jobs.Create(ctx, queued))
	finished := testutil.NewJob()
	require.NoError(t, jobs.Create(ctx, finished))
	finished.MarkSuccess(&models.Metrics{})
	require.NoError(t, jobs.Update(ctx, finished))

	downloads := t.TempDir()
	keep := filepath.Join(downloads, queued.ID.String()+"-in.mp4")
	orphan := filepath.Join(downloads, finished.ID.String()+"-in.mp4")
	stray := filepath.Join(downloads, "partial.tmp")
	touch(t, keep)
	touch(t, orphan)
	touch(t, stray)

	cleaner := NewCleaner(jobs, downloads, nil)
	require.NoError(t, cleaner.Run(ctx))

	_, err := os.Stat(keep)
	assert.NoError(t, err)
	_, err = os.Stat(orphan)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(stray)
	assert.True(t, os.IsNotExist(err))
}

func TestRunRemovesInterruptedJobLeftovers(t *testing.T) {
	db := testutil.NewDB(t)
	jobs := repository.NewJobRepository(db)
	ctx := context.Background()

	outDir := t.TempDir()

	failed := testutil.NewJob()
	failed.OutputPath = filepath.Join(outDir, "crashed.mp4")
	require.NoError(t, jobs.Create(ctx, failed))
	failed.MarkFailed(assert.AnError)
	require.NoError(t, jobs.Update(ctx, failed))

	running := testutil.NewJob()
	running.OutputPath = filepath.Join(outDir, "live.mp4")
	require.NoError(t, jobs.Create(ctx, running))
	running.MarkRunning()
	require.NoError(t, jobs.Update(ctx, running))

	orphanScenes := transcode.SceneDir(failed.OutputPath)
	require.NoError(t, os.MkdirAll(orphanScenes, 0o755))
	touch(t, filepath.Join(orphanScenes, "scene-000.mp4"))
	orphanReport := failed.OutputPath + ".vmaf.json"
	touch(t, orphanReport)

	liveScenes := transcode.SceneDir(running.OutputPath)
	require.NoError(t, os.MkdirAll(liveScenes, 0o755))

	cleaner := NewCleaner(jobs, t.TempDir(), nil)
	require.NoError(t, cleaner.Run(ctx))

	_, err := os.Stat(orphanScenes)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(orphanReport)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(liveScenes)
	assert.NoError(t, err)
}

func TestScheduleRejectsBadExpression(t *testing.T) {
	db := testutil.NewDB(t)
	cleaner := NewCleaner(repository.NewJobRepository(db), t.TempDir(), nil)
	err := cleaner.Schedule(context.Background(), "not a cron spec")
	require.Error(t, err)
}

func TestScheduleAcceptsSixFieldSpec(t *testing.T) {
	db := testutil.NewDB(t)
	cleaner := NewCleaner(repository.NewJobRepository(db), t.TempDir(), nil)
	require.NoError(t, cleaner.Schedule(context.Background(), "0 0 3 * * *"))
	cleaner.Stop()
}
