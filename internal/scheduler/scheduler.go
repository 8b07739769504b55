package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vefmedia/vef/internal/ffmpeg"
	"github.com/vefmedia/vef/internal/models"
	"github.com/vefmedia/vef/internal/observability"
	"github.com/vefmedia/vef/internal/repository"
	"github.com/vefmedia/vef/internal/transcode"
)

// JobProcessor executes one job and returns its final metrics.
type JobProcessor interface {
	Process(ctx context.Context, job *models.Job, report func(int), check transcode.StatusCheck) (*models.Metrics, error)
}

// Scheduler polls the queue and runs at most one job at a time. ffmpeg is
// greedy with cores; running encodes concurrently makes all of them slower
// and the timeout budget meaningless.
type Scheduler struct {
	jobs      repository.JobRepository
	audits    repository.AuditRepository
	processor JobProcessor
	interval  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Scheduler.
func New(jobs repository.JobRepository, audits repository.AuditRepository, processor JobProcessor, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.WithComponent(logger, "scheduler")
	return &Scheduler{
		jobs:      jobs,
		audits:    audits,
		processor: processor,
		interval:  interval,
		logger:    logger,
	}
}

// Recover fails every job left in the running state by a previous process.
// A running row with no live process means the service died mid-encode; the
// job is failed rather than silently re-queued so the operator sees what
// happened, and the prior progress is preserved in the audit trail. Must be
// called before Start.
func (s *Scheduler) Recover(ctx context.Context) error {
	orphaned, err := s.jobs.MarkRunningFailed(ctx, "interrupted by service restart")
	if err != nil {
		return fmt.Errorf("recovering interrupted jobs: %w", err)
	}
	for _, job := range orphaned {
		s.logger.Warn("recovered interrupted job",
			slog.String("job_id", job.ID.String()),
			slog.Int("progress", job.Progress),
		)
		detail := fmt.Sprintf("interrupted by service restart at %d%% progress", job.Progress)
		if err := s.audits.Record(ctx, models.AuditActionRecover, "job", job.ID, detail); err != nil {
			s.logger.Warn("recording recovery audit entry",
				slog.String("job_id", job.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Start launches the scheduler loop. Stop shuts it down.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.logger.Info("scheduler started", slog.Duration("poll_interval", s.interval))
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			s.tick(ctx)
			select {
			case <-ctx.Done():
				s.logger.Info("scheduler stopped")
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight job to wind down.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// tick runs one scheduler iteration: skip if a job is already in flight,
// otherwise claim and run the oldest queued job to completion.
func (s *Scheduler) tick(ctx context.Context) {
	running, err := s.jobs.HasRunning(ctx)
	if err != nil {
		s.logger.Error("checking for running jobs", slog.String("error", err.Error()))
		return
	}
	if running {
		return
	}

	job, err := s.jobs.NextQueued(ctx)
	if err != nil {
		s.logger.Error("fetching next queued job", slog.String("error", err.Error()))
		return
	}
	if job == nil {
		return
	}

	s.runJob(ctx, job)
}

func (s *Scheduler) runJob(ctx context.Context, job *models.Job) {
	logger := observability.WithJobID(s.logger, job.ID.String())

	job.MarkRunning()
	if err := s.jobs.Update(ctx, job); err != nil {
		logger.Error("marking job running", slog.String("error", err.Error()))
		return
	}
	logger.Info("job started",
		slog.String("input", job.InputPath),
		slog.String("rate_control", string(job.Params.RateControl)),
	)

	start := time.Now()
	metrics, err := s.processor.Process(ctx, job, s.reportProgress(ctx, job), s.statusCheck(job.ID))
	if err != nil {
		s.finishFailed(ctx, job, err, logger)
		return
	}

	job.MarkSuccess(metrics)
	if updateErr := s.jobs.Update(ctx, job); updateErr != nil {
		logger.Error("persisting job success", slog.String("error", updateErr.Error()))
		return
	}
	logger.Info("job completed",
		slog.Duration("elapsed", time.Since(start)),
		slog.Int64("size_bytes", metrics.SizeBytes),
	)
}

// finishFailed persists the terminal state for an unsuccessful job,
// distinguishing cancellation from failure.
func (s *Scheduler) finishFailed(ctx context.Context, job *models.Job, cause error, logger *slog.Logger) {
	// The process may have been killed by a cancel request that already
	// persisted the canceled status; keep that state.
	if current, err := s.jobs.GetByID(ctx, job.ID); err == nil && current != nil && current.Status == models.JobStatusCanceled {
		logger.Info("job canceled")
		return
	}

	if errors.Is(cause, ffmpeg.ErrCanceled) {
		job.MarkCanceled()
		if err := s.jobs.Update(ctx, job); err != nil {
			observability.WithError(logger, err).Error("persisting job cancellation")
		}
		logger.Info("job canceled")
		return
	}

	job.MarkFailed(cause)
	if err := s.jobs.Update(ctx, job); err != nil {
		observability.WithError(logger, err).Error("persisting job failure")
	}
	observability.WithError(logger, cause).Error("job failed")
}

// reportProgress returns a progress sink that persists monotonically
// increasing percentages for the job. Retuning attempts and scene boundaries
// can re-emit lower values; those never reach the store.
func (s *Scheduler) reportProgress(ctx context.Context, job *models.Job) func(int) {
	last := job.Progress
	return func(pct int) {
		if pct <= last {
			return
		}
		last = pct
		if err := s.jobs.UpdateFields(ctx, job.ID, map[string]any{"progress": pct}); err != nil {
			s.logger.Warn("persisting progress",
				slog.String("job_id", job.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// statusCheck returns a check that stops multi-stage work when the stored
// status is no longer running, e.g. after a cancel request landed between
// scenes.
func (s *Scheduler) statusCheck(id models.ULID) transcode.StatusCheck {
	return func(ctx context.Context) error {
		current, err := s.jobs.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("checking job status: %w", err)
		}
		if current == nil {
			return fmt.Errorf("job %s disappeared mid-run", id)
		}
		if current.Status != models.JobStatusRunning {
			return fmt.Errorf("job is %s: %w", current.Status, ffmpeg.ErrCanceled)
		}
		return nil
	}
}
