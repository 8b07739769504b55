package models

import (
	"time"

	"gorm.io/gorm"
)

// JobStatus represents the current status of a transcode job.
type JobStatus string

const (
	// JobStatusQueued indicates the job is waiting to be picked up.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates the job is currently transcoding.
	JobStatusRunning JobStatus = "running"
	// JobStatusSuccess indicates the job completed successfully.
	JobStatusSuccess JobStatus = "success"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCanceled indicates the job was canceled by request.
	JobStatusCanceled JobStatus = "canceled"
)

// Job represents a single transcode request and its lifecycle state.
type Job struct {
	BaseModel

	// InputPath is a local file path or an http(s) URL.
	InputPath string `gorm:"not null;size:4096" json:"input_path"`

	// OutputPath is the destination file. The creation path suffixes the
	// requested name with the job ID so concurrent requests never collide.
	OutputPath string `gorm:"not null;size:4096" json:"output_path"`

	// Params holds the encode parameters, stored as JSON.
	Params EncodeParams `gorm:"type:text" json:"params"`

	// Status indicates the current status of the job.
	Status JobStatus `gorm:"not null;default:'queued';size:20;index" json:"status"`

	// Progress is the encode progress percentage, 0..100.
	Progress int `gorm:"default:0" json:"progress"`

	// ErrorMessage contains the failure reason for failed jobs.
	ErrorMessage string `gorm:"size:4096" json:"error_message,omitempty"`

	// Metrics holds encode results (size, timing, quality), stored as JSON.
	Metrics *Metrics `gorm:"type:text" json:"metrics,omitempty"`

	// StartedAt is the timestamp when the job started executing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is the timestamp when the job reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// IsQueued returns true if the job is waiting to run.
func (j *Job) IsQueued() bool {
	return j.Status == JobStatusQueued
}

// IsRunning returns true if the job is currently executing.
func (j *Job) IsRunning() bool {
	return j.Status == JobStatusRunning
}

// IsFinished returns true if the job has reached a terminal state.
func (j *Job) IsFinished() bool {
	return j.Status == JobStatusSuccess || j.Status == JobStatusFailed || j.Status == JobStatusCanceled
}

// CanRetry returns true if the job may be re-queued.
func (j *Job) CanRetry() bool {
	return j.Status == JobStatusFailed || j.Status == JobStatusCanceled
}

// CanCancel returns true if the job may be canceled. Completed jobs cannot
// be canceled; failed and canceled jobs are already terminal but canceling
// them again is a no-op handled at the API boundary.
func (j *Job) CanCancel() bool {
	return j.Status != JobStatusSuccess
}

// MarkRunning marks the job as running.
func (j *Job) MarkRunning() {
	j.Status = JobStatusRunning
	now := time.Now()
	j.StartedAt = &now
	j.ErrorMessage = ""
}

// MarkSuccess marks the job as completed with final metrics.
func (j *Job) MarkSuccess(metrics *Metrics) {
	j.Status = JobStatusSuccess
	now := time.Now()
	j.CompletedAt = &now
	j.Progress = 100
	j.Metrics = metrics
	j.ErrorMessage = ""
}

// MarkFailed marks the job as failed with an error message.
func (j *Job) MarkFailed(err error) {
	j.Status = JobStatusFailed
	now := time.Now()
	j.CompletedAt = &now
	if err != nil {
		j.ErrorMessage = err.Error()
	}
}

// MarkCanceled marks the job as canceled.
func (j *Job) MarkCanceled() {
	j.Status = JobStatusCanceled
	now := time.Now()
	j.CompletedAt = &now
}

// ResetForRetry returns the job to the queue, clearing prior results.
func (j *Job) ResetForRetry() {
	j.Status = JobStatusQueued
	j.Progress = 0
	j.ErrorMessage = ""
	j.Metrics = nil
	j.StartedAt = nil
	j.CompletedAt = nil
}

// Validate performs basic validation on the job.
func (j *Job) Validate() error {
	if j.InputPath == "" {
		return ErrInputPathRequired
	}
	if j.OutputPath == "" {
		return ErrOutputPathRequired
	}
	return j.Params.Validate()
}

// BeforeCreate is a GORM hook that validates the job and generates a ULID.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if err := j.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return j.Validate()
}
