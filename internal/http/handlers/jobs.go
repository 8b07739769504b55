// Package handlers provides the HTTP API handlers for vef.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/vefmedia/vef/internal/ffmpeg"
	"github.com/vefmedia/vef/internal/models"
	"github.com/vefmedia/vef/internal/repository"
)

// JobsHandler handles the job queue API endpoints.
type JobsHandler struct {
	jobs     repository.JobRepository
	audits   repository.AuditRepository
	registry *ffmpeg.Registry
	logger   *slog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(jobs repository.JobRepository, audits repository.AuditRepository, registry *ffmpeg.Registry) *JobsHandler {
	return &JobsHandler{
		jobs:     jobs,
		audits:   audits,
		registry: registry,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *JobsHandler) WithLogger(logger *slog.Logger) *JobsHandler {
	h.logger = logger
	return h
}

// Register registers the job routes with the API.
func (h *JobsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "createJob",
		Method:        "POST",
		Path:          "/api/v1/jobs",
		Summary:       "Submit a transcode job",
		Description:   "Queues a new transcode job. The output path is suffixed with the job ID so concurrent submissions never collide.",
		Tags:          []string{"Jobs"},
		DefaultStatus: 201,
	}, h.CreateJob)

	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      "GET",
		Path:        "/api/v1/jobs",
		Summary:     "List jobs",
		Description: "Returns all jobs, newest first, optionally filtered by status",
		Tags:        []string{"Jobs"},
	}, h.ListJobs)

	huma.Register(api, huma.Operation{
		OperationID: "getJob",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get job by ID",
		Tags:        []string{"Jobs"},
	}, h.GetJob)

	huma.Register(api, huma.Operation{
		OperationID: "cancelJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/cancel",
		Summary:     "Cancel a job",
		Description: "Cancels a queued or running job. Running jobs get their ffmpeg process terminated.",
		Tags:        []string{"Jobs"},
	}, h.CancelJob)

	huma.Register(api, huma.Operation{
		OperationID: "retryJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/retry",
		Summary:     "Retry a job",
		Description: "Re-queues a failed or canceled job, clearing prior results",
		Tags:        []string{"Jobs"},
	}, h.RetryJob)

	huma.Register(api, huma.Operation{
		OperationID: "deleteJob",
		Method:      "DELETE",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Delete a job",
		Description: "Removes a job record. Running jobs cannot be deleted; cancel them first.",
		Tags:        []string{"Jobs"},
	}, h.DeleteJob)

	huma.Register(api, huma.Operation{
		OperationID: "getJobAudit",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}/audit",
		Summary:     "Get a job's audit trail",
		Tags:        []string{"Jobs"},
	}, h.GetJobAudit)
}

// JobResponse is the API representation of a job.
type JobResponse struct {
	ID           string              `json:"id"`
	InputPath    string              `json:"input_path"`
	OutputPath   string              `json:"output_path"`
	Params       models.EncodeParams `json:"params"`
	Status       models.JobStatus    `json:"status"`
	Progress     int                 `json:"progress"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Metrics      *models.Metrics     `json:"metrics,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
}

// JobFromModel converts a job model to its API representation.
func JobFromModel(job *models.Job) JobResponse {
	return JobResponse{
		ID:           job.ID.String(),
		InputPath:    job.InputPath,
		OutputPath:   job.OutputPath,
		Params:       job.Params,
		Status:       job.Status,
		Progress:     job.Progress,
		ErrorMessage: job.ErrorMessage,
		Metrics:      job.Metrics,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
}

// CreateJobInput is the input for submitting a job.
type CreateJobInput struct {
	Body struct {
		InputPath  string              `json:"input_path" required:"true" doc:"Local file path or http(s) URL"`
		OutputPath string              `json:"output_path" required:"true" doc:"Destination file path"`
		Params     models.EncodeParams `json:"params" required:"true"`
	}
}

// CreateJobOutput is the output for submitting a job.
type CreateJobOutput struct {
	Body struct {
		Success bool        `json:"success"`
		Data    JobResponse `json:"data"`
	}
}

// CreateJob validates and queues a new transcode job.
func (h *JobsHandler) CreateJob(ctx context.Context, input *CreateJobInput) (*CreateJobOutput, error) {
	job := &models.Job{
		InputPath:  input.Body.InputPath,
		OutputPath: input.Body.OutputPath,
		Params:     input.Body.Params,
		Status:     models.JobStatusQueued,
	}
	if err := job.Validate(); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	// The ID is needed before insert to derive the collision-free output
	// path.
	job.ID = models.NewULID()
	job.OutputPath = outputPathWithID(job.OutputPath, job.ID)

	if err := h.jobs.Create(ctx, job); err != nil {
		h.logger.Error("creating job", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("Failed to create job")
	}

	if err := h.audits.Record(ctx, models.AuditActionCreate, "job", job.ID, "job queued"); err != nil {
		h.logger.Warn("recording audit entry", slog.String("error", err.Error()))
	}

	resp := &CreateJobOutput{}
	resp.Body.Success = true
	resp.Body.Data = JobFromModel(job)
	return resp, nil
}

// ListJobsInput is the input for listing jobs.
type ListJobsInput struct {
	Status string `query:"status" enum:"queued,running,success,failed,canceled" doc:"Filter by status"`
}

// ListJobsOutput is the output for listing jobs.
type ListJobsOutput struct {
	Body struct {
		Success bool          `json:"success"`
		Items   []JobResponse `json:"items"`
		Count   int           `json:"count"`
	}
}

// ListJobs returns all jobs, optionally filtered by status.
func (h *JobsHandler) ListJobs(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	var jobs []*models.Job
	var err error
	if input.Status != "" {
		jobs, err = h.jobs.GetByStatus(ctx, models.JobStatus(input.Status))
	} else {
		jobs, err = h.jobs.GetAll(ctx)
	}
	if err != nil {
		h.logger.Error("listing jobs", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("Failed to list jobs")
	}

	items := make([]JobResponse, len(jobs))
	for i, job := range jobs {
		items[i] = JobFromModel(job)
	}

	resp := &ListJobsOutput{}
	resp.Body.Success = true
	resp.Body.Items = items
	resp.Body.Count = len(items)
	return resp, nil
}

// JobIDInput carries a job ID path parameter.
type JobIDInput struct {
	ID string `path:"id" required:"true"`
}

// GetJobOutput is the output for fetching a single job.
type GetJobOutput struct {
	Body struct {
		Success bool        `json:"success"`
		Data    JobResponse `json:"data"`
	}
}

// GetJob returns a specific job by ID.
func (h *JobsHandler) GetJob(ctx context.Context, input *JobIDInput) (*GetJobOutput, error) {
	job, err := h.findJob(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	resp := &GetJobOutput{}
	resp.Body.Success = true
	resp.Body.Data = JobFromModel(job)
	return resp, nil
}

// CancelJob cancels a queued or running job.
func (h *JobsHandler) CancelJob(ctx context.Context, input *JobIDInput) (*GetJobOutput, error) {
	job, err := h.findJob(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if !job.CanCancel() {
		return nil, huma.Error400BadRequest("Completed jobs cannot be canceled")
	}

	if !job.IsFinished() {
		job.MarkCanceled()
		if err := h.jobs.Update(ctx, job); err != nil {
			h.logger.Error("persisting cancellation", slog.String("error", err.Error()))
			return nil, huma.Error500InternalServerError("Failed to cancel job")
		}
		if err := h.audits.Record(ctx, models.AuditActionUpdate, "job", job.ID, "job canceled by request"); err != nil {
			h.logger.Warn("recording audit entry", slog.String("error", err.Error()))
		}

		// The status is persisted before the signal so the scheduler
		// sees the cancellation regardless of which one lands first.
		if h.registry.Cancel(job.ID.String()) {
			h.logger.Info("terminated running process", slog.String("job_id", job.ID.String()))
		}
	}

	resp := &GetJobOutput{}
	resp.Body.Success = true
	resp.Body.Data = JobFromModel(job)
	return resp, nil
}

// RetryJob re-queues a failed or canceled job.
func (h *JobsHandler) RetryJob(ctx context.Context, input *JobIDInput) (*GetJobOutput, error) {
	job, err := h.findJob(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if !job.CanRetry() {
		return nil, huma.Error400BadRequest(fmt.Sprintf("Jobs in status %q cannot be retried", job.Status))
	}

	job.ResetForRetry()
	if err := h.jobs.Update(ctx, job); err != nil {
		h.logger.Error("persisting retry", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("Failed to retry job")
	}
	if err := h.audits.Record(ctx, models.AuditActionUpdate, "job", job.ID, "job re-queued"); err != nil {
		h.logger.Warn("recording audit entry", slog.String("error", err.Error()))
	}

	resp := &GetJobOutput{}
	resp.Body.Success = true
	resp.Body.Data = JobFromModel(job)
	return resp, nil
}

// DeleteJobOutput is the output for deleting a job.
type DeleteJobOutput struct {
	Body struct {
		Success bool `json:"success"`
	}
}

// DeleteJob removes a job record.
func (h *JobsHandler) DeleteJob(ctx context.Context, input *JobIDInput) (*DeleteJobOutput, error) {
	job, err := h.findJob(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	if job.IsRunning() {
		return nil, huma.Error400BadRequest("Running jobs cannot be deleted; cancel first")
	}

	if err := h.jobs.Delete(ctx, job.ID); err != nil {
		h.logger.Error("deleting job", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("Failed to delete job")
	}
	if err := h.audits.Record(ctx, models.AuditActionDelete, "job", job.ID, "job deleted"); err != nil {
		h.logger.Warn("recording audit entry", slog.String("error", err.Error()))
	}

	resp := &DeleteJobOutput{}
	resp.Body.Success = true
	return resp, nil
}

// AuditEntryResponse is the API representation of an audit entry.
type AuditEntryResponse struct {
	Action    models.AuditAction `json:"action"`
	Detail    string             `json:"detail,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// GetJobAuditOutput is the output for fetching a job's audit trail.
type GetJobAuditOutput struct {
	Body struct {
		Success bool                 `json:"success"`
		Items   []AuditEntryResponse `json:"items"`
	}
}

// GetJobAudit returns a job's audit trail, newest first.
func (h *JobsHandler) GetJobAudit(ctx context.Context, input *JobIDInput) (*GetJobAuditOutput, error) {
	job, err := h.findJob(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	entries, err := h.audits.GetByEntity(ctx, "job", job.ID)
	if err != nil {
		h.logger.Error("fetching audit trail", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("Failed to fetch audit trail")
	}

	resp := &GetJobAuditOutput{}
	resp.Body.Success = true
	resp.Body.Items = make([]AuditEntryResponse, len(entries))
	for i, e := range entries {
		resp.Body.Items[i] = AuditEntryResponse{
			Action:    e.Action,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt,
		}
	}
	return resp, nil
}

// findJob parses the ID and loads the job, translating the usual errors.
func (h *JobsHandler) findJob(ctx context.Context, id string) (*models.Job, error) {
	jobID, err := models.ParseULID(id)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity("Invalid job ID")
	}

	job, err := h.jobs.GetByID(ctx, jobID)
	if err != nil {
		h.logger.Error("fetching job", slog.String("error", err.Error()))
		return nil, huma.Error500InternalServerError("Failed to fetch job")
	}
	if job == nil {
		return nil, huma.Error404NotFound("Job not found")
	}
	return job, nil
}

// outputPathWithID suffixes the requested output name with the job ID:
// movie.mp4 becomes movie-01ARZ....mp4.
func outputPathWithID(outputPath string, id models.ULID) string {
	ext := filepath.Ext(outputPath)
	base := strings.TrimSuffix(outputPath, ext)
	return base + "-" + id.String() + ext
}
