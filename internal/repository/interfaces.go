// Package repository provides data access layers over GORM for vef models.
package repository

import (
	"context"

	"github.com/vefmedia/vef/internal/models"
)

// JobRepository defines the data access contract for transcode jobs.
type JobRepository interface {
	// Create persists a new job.
	Create(ctx context.Context, job *models.Job) error

	// GetByID retrieves a job by ID. Returns (nil, nil) when not found.
	GetByID(ctx context.Context, id models.ULID) (*models.Job, error)

	// GetAll retrieves all jobs, newest first.
	GetAll(ctx context.Context) ([]*models.Job, error)

	// GetByStatus retrieves jobs with the given status, newest first.
	GetByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)

	// Update persists all fields of an existing job.
	Update(ctx context.Context, job *models.Job) error

	// UpdateFields applies a partial update to the job row.
	UpdateFields(ctx context.Context, id models.ULID, fields map[string]any) error

	// NextQueued returns the oldest queued job, or (nil, nil) when the
	// queue is empty.
	NextQueued(ctx context.Context) (*models.Job, error)

	// HasRunning reports whether any job is currently running.
	HasRunning(ctx context.Context) (bool, error)

	// MarkRunningFailed transitions every running job to failed with the
	// given error message, returning the jobs that were transitioned.
	// Used for crash recovery at startup.
	MarkRunningFailed(ctx context.Context, reason string) ([]*models.Job, error)

	// Delete removes a job by ID.
	Delete(ctx context.Context, id models.ULID) error
}

// AuditRepository defines the data access contract for audit log entries.
type AuditRepository interface {
	// Create persists a new audit entry.
	Create(ctx context.Context, entry *models.AuditLog) error

	// GetByEntity retrieves entries for an entity, newest first.
	GetByEntity(ctx context.Context, entityType string, entityID models.ULID) ([]*models.AuditLog, error)

	// Record is a convenience helper that builds and persists an entry.
	Record(ctx context.Context, action models.AuditAction, entityType string, entityID models.ULID, detail string) error
}
