package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/job-orchestrator/internal/api/dto"
	"github.com/cuongbtq/job-orchestrator/internal/api/storage"
	"github.com/cuongbtq/job-orchestrator/internal/worker/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateJob handles POST /api/v1/jobs
// Stores a QUEUED job, attaches the requested tasks and submits it
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if !h.jobTypes.IsValidJobType(req.JobType) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Unknown job type",
			"job_type":  req.JobType,
			"job_types": h.jobTypes.GetAllJobTypes(),
		})
		return
	}

	taskIDs, ok := uniqueUUIDs(req.TaskIDs)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "task_ids must be valid UUIDs",
		})
		return
	}

	now := time.Now().UTC()
	job := domain.Job{
		ID:          uuid.New().String(),
		JobType:     req.JobType,
		Status:      domain.JobStatusQueued,
		ScheduledAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	ctx := c.Request.Context()
	if err := h.storage.CreateJob(ctx, &job, taskIDs); err != nil {
		if errors.Is(err, storage.ErrTaskNotAttachable) {
			c.JSON(http.StatusConflict, gin.H{
				"error": err.Error(),
			})
			return
		}
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	// the job is stored, so startup recovery submits it later if this fails
	if err := h.scheduler.ScheduleJob(ctx, &job); err != nil {
		h.logger.Warn("Failed to schedule job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	h.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.Int("task_count", len(taskIDs)),
	)

	c.JSON(http.StatusAccepted, toJobDTO(&job))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.storage.GetJob(c.Request.Context(), jobID)
	if err != nil {
		h.respondLookupError(c, jobID, err)
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.storage.ListJobs(c.Request.Context(), storage.JobFilter{
		JobType:  req.JobType,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = toJobDTO(&jobs[i])
	}

	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.ID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// GetJobReport handles GET /api/v1/jobs/:job_id/report
// Returns the generated report and marks it downloaded
func (h *JobHandler) GetJobReport(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	report, err := h.storage.GetReportForDownload(c.Request.Context(), jobID)
	if err != nil {
		h.respondLookupError(c, jobID, err)
		return
	}

	c.JSON(http.StatusOK, dto.ReportDTO{
		ReportID:    report.ID,
		JobID:       report.JobID,
		FileName:    report.FileName,
		ContentType: report.ContentType,
		Status:      report.Status,
		Content:     report.Content,
		CreatedAt:   report.CreatedAt.Format(time.RFC3339),
	})
}

// ListJobTypes handles GET /api/v1/job-types
func (h *JobHandler) ListJobTypes(c *gin.Context) {
	c.JSON(http.StatusOK, dto.JobTypesResponse{JobTypes: h.jobTypes.GetAllJobTypes()})
}

// CleanupJob handles POST /api/v1/jobs/:job_id/cleanup
// Only finished jobs can be cleaned up
func (h *JobHandler) CleanupJob(c *gin.Context) {
	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	job, err := h.storage.GetJob(ctx, jobID)
	if err != nil {
		h.respondLookupError(c, jobID, err)
		return
	}

	if !domain.IsTerminalJobStatus(job.Status) {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "Job is not finished",
			"status": job.Status,
		})
		return
	}

	if err := h.cleanup.CleanupCompletedJob(ctx, jobID); err != nil {
		h.logger.Error("Failed to clean up job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to clean up job",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// CleanupCompletedJobs handles POST /api/v1/jobs/cleanup
// Runs a cleanup sweep over every COMPLETED job
func (h *JobHandler) CleanupCompletedJobs(c *gin.Context) {
	result, err := h.cleanup.CleanupAllCompletedJobs(c.Request.Context())
	if err != nil {
		h.logger.Error("Cleanup sweep failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Cleanup sweep failed",
		})
		return
	}

	c.JSON(http.StatusOK, dto.CleanupResponse{
		Attempted: result.Attempted,
		Failed:    result.Failed,
		Deleted:   result.Deleted,
	})
}

func (h *JobHandler) jobIDParam(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return "", false
	}
	return jobID, true
}

func (h *JobHandler) respondLookupError(c *gin.Context, jobID string, err error) {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, domain.ErrReportNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
	default:
		h.logger.Error("Lookup failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func toJobDTO(job *domain.Job) dto.JobDTO {
	out := dto.JobDTO{
		JobID:        job.ID,
		JobType:      job.JobType,
		Status:       job.Status,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
	}
	if job.CompletedAt != nil {
		out.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return out
}

// uniqueUUIDs drops duplicates and reports false on any invalid id
func uniqueUUIDs(ids []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return nil, false
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, true
}
