// Package startup handles housekeeping that runs when the service boots and
// on a recurring schedule: removing work products orphaned by crashed or
// interrupted jobs.
package startup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/vefmedia/vef/internal/models"
	"github.com/vefmedia/vef/internal/observability"
	"github.com/vefmedia/vef/internal/repository"
	"github.com/vefmedia/vef/internal/transcode"
)

// Cleaner removes orphaned transient files: scene segment directories and
// quality report logs left behind by interrupted encodes, and downloaded
// inputs whose job is no longer active.
type Cleaner struct {
	jobs         repository.JobRepository
	downloadsDir string
	logger       *slog.Logger
	cron         *cron.Cron
}

// NewCleaner creates a Cleaner.
func NewCleaner(jobs repository.JobRepository, downloadsDir string, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.WithComponent(logger, "cleanup")
	return &Cleaner{
		jobs:         jobs,
		downloadsDir: downloadsDir,
		logger:       logger,
	}
}

// Run performs one cleanup sweep.
func (c *Cleaner) Run(ctx context.Context) error {
	defer observability.TimedOperation(ctx, c.logger, "cleanup sweep")()

	active, err := c.activeJobIDs(ctx)
	if err != nil {
		return err
	}

	removed := c.sweepDownloads(active)
	removed += c.sweepJobLeftovers(ctx, active)

	if removed > 0 {
		c.logger.Info("cleanup sweep finished", slog.Int("removed", removed))
	}
	return nil
}

// Schedule starts periodic sweeps using a 6-field cron expression (with
// seconds). Stop cancels the schedule.
func (c *Cleaner) Schedule(ctx context.Context, spec string) error {
	c.cron = cron.New(cron.WithSeconds())
	_, err := c.cron.AddFunc(spec, func() {
		if err := c.Run(ctx); err != nil {
			c.logger.Warn("scheduled cleanup failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling cleanup %q: %w", spec, err)
	}
	c.cron.Start()
	c.logger.Info("cleanup scheduled", slog.String("cron", spec))
	return nil
}

// Stop cancels the periodic schedule.
func (c *Cleaner) Stop() {
	if c.cron != nil {
		c.cron.Stop()
	}
}

// activeJobIDs returns the IDs of jobs whose transient files must survive a
// sweep: everything queued or running.
func (c *Cleaner) activeJobIDs(ctx context.Context) (map[string]struct{}, error) {
	active := make(map[string]struct{})
	for _, status := range []models.JobStatus{models.JobStatusQueued, models.JobStatusRunning} {
		jobs, err := c.jobs.GetByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("listing %s jobs: %w", status, err)
		}
		for _, job := range jobs {
			active[job.ID.String()] = struct{}{}
		}
	}
	return active, nil
}

// sweepDownloads removes downloaded inputs not owned by an active job.
// Download files are named <jobID>-<basename>.
func (c *Cleaner) sweepDownloads(active map[string]struct{}) int {
	entries, err := os.ReadDir(c.downloadsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("reading downloads directory", slog.String("error", err.Error()))
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		id, _, found := strings.Cut(entry.Name(), "-")
		if found {
			if _, ok := active[id]; ok {
				continue
			}
		}
		path := filepath.Join(c.downloadsDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			c.logger.Warn("removing orphaned download",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		c.logger.Debug("removed orphaned download", slog.String("path", path))
		removed++
	}
	return removed
}

// sweepJobLeftovers removes scene directories and quality report files
// belonging to jobs that are no longer active.
func (c *Cleaner) sweepJobLeftovers(ctx context.Context, active map[string]struct{}) int {
	all, err := c.jobs.GetAll(ctx)
	if err != nil {
		c.logger.Warn("listing jobs for cleanup", slog.String("error", err.Error()))
		return 0
	}

	removed := 0
	for _, job := range all {
		if _, ok := active[job.ID.String()]; ok {
			continue
		}
		for _, path := range []string{
			transcode.SceneDir(job.OutputPath),
			job.OutputPath + ".vmaf.json",
		} {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := os.RemoveAll(path); err != nil {
				c.logger.Warn("removing orphaned work product",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
				continue
			}
			c.logger.Debug("removed orphaned work product", slog.String("path", path))
			removed++
		}
	}
	return removed
}
