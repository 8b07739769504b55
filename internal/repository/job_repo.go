package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/vefmedia/vef/internal/models"
)

// jobRepo implements JobRepository using GORM.
type jobRepo struct {
	db *gorm.DB
}

var _ JobRepository = (*jobRepo)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *jobRepo {
	return &jobRepo{db: db}
}

// Create creates a new job.
func (r *jobRepo) Create(ctx context.Context, job *models.Job) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("creating job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by ID.
func (r *jobRepo) GetByID(ctx context.Context, id models.ULID) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job by ID: %w", err)
	}
	return &job, nil
}

// GetAll retrieves all jobs, newest first.
func (r *jobRepo) GetAll(ctx context.Context) ([]*models.Job, error) {
	var jobs []*models.Job
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting all jobs: %w", err)
	}
	return jobs, nil
}

// GetByStatus retrieves jobs by status, newest first.
func (r *jobRepo) GetByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	var jobs []*models.Job
	if err := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting jobs by status: %w", err)
	}
	return jobs, nil
}

// Update updates an existing job.
func (r *jobRepo) Update(ctx context.Context, job *models.Job) error {
	if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	return nil
}

// UpdateFields applies a partial update to the job row.
func (r *jobRepo) UpdateFields(ctx context.Context, id models.ULID, fields map[string]any) error {
	if err := r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("updating job fields: %w", err)
	}
	return nil
}

// NextQueued returns the oldest queued job, preserving FIFO dispatch order.
func (r *jobRepo) NextQueued(ctx context.Context) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		Where("status = ?", models.JobStatusQueued).
		Order("created_at ASC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting next queued job: %w", err)
	}
	return &job, nil
}

// HasRunning reports whether any job is currently running.
func (r *jobRepo) HasRunning(ctx context.Context) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("status = ?", models.JobStatusRunning).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("counting running jobs: %w", err)
	}
	return count > 0, nil
}

// MarkRunningFailed transitions every running job to failed with the given
// reason. Used at startup to settle jobs that were interrupted by a restart.
func (r *jobRepo) MarkRunningFailed(ctx context.Context, reason string) ([]*models.Job, error) {
	var jobs []*models.Job
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("status = ?", models.JobStatusRunning).Find(&jobs).Error; err != nil {
			return fmt.Errorf("finding running jobs: %w", err)
		}
		for _, job := range jobs {
			job.MarkFailed(errors.New(reason))
			if err := tx.Save(job).Error; err != nil {
				return fmt.Errorf("failing job %s: %w", job.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Delete deletes a job by ID.
func (r *jobRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Job{}).Error; err != nil {
		return fmt.Errorf("deleting job: %w", err)
	}
	return nil
}
