package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quangbt/jobpulse/internal/api/dto"
	"github.com/quangbt/jobpulse/internal/api/storage"
)

const statsCacheKey = "jobpulse:stats:by_source"

// ListJobs handles GET /api/v1/jobs
// Lists active jobs with optional filtering, newest posting first
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid query parameters",
		})
		return
	}

	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if req.Limit > 100 {
		req.Limit = 100
	}

	filter := storage.JobFilter{
		Category: req.Category,
		Source:   req.Source,
		Search:   req.Search,
		Limit:    req.Limit,
		Offset:   (req.Page - 1) * req.Limit,
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to list jobs",
		})
		return
	}

	total, err := h.jobs.CountJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to count jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to count jobs",
		})
		return
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i, job := range jobs {
		jobResponse[i] = dto.JobDTO{
			ID:          job.ID,
			Title:       job.Title,
			Description: job.Description,
			Company:     job.Company,
			Location:    job.Location,
			JobType:     job.JobType,
			Category:    job.Category,
			Salary:      job.Salary,
			Link:        job.Link,
			Source:      job.Source,
			PostedDate:  job.PostedDate.Format(time.RFC3339),
			CreatedAt:   job.CreatedAt.Format(time.RFC3339),
			UpdatedAt:   job.UpdatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": dto.JobListData{
			Jobs:       jobResponse,
			Total:      total,
			Page:       req.Page,
			TotalPages: totalPages(total, req.Limit),
		},
	})
}

// GetStats handles GET /api/v1/jobs/stats
// Aggregates the run log per source, served from Redis when fresh
func (h *JobHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	var stats []dto.SourceStatsDTO
	if h.cache != nil && h.cache.GetJSON(ctx, statsCacheKey, &stats) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    stats,
		})
		return
	}

	rows, err := h.runs.StatsBySource(ctx)
	if err != nil {
		h.logger.Error("Failed to aggregate stats", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to aggregate stats",
		})
		return
	}

	stats = make([]dto.SourceStatsDTO, len(rows))
	for i, row := range rows {
		stats[i] = dto.SourceStatsDTO{
			Source:        row.Source,
			TotalImports:  row.TotalImports,
			TotalJobs:     row.TotalJobs,
			NewJobs:       row.NewJobs,
			UpdatedJobs:   row.UpdatedJobs,
			FailedJobs:    row.FailedJobs,
			AvgDurationMs: row.AvgDurationMs,
		}
	}

	if h.cache != nil {
		if err := h.cache.SetJSON(ctx, statsCacheKey, stats); err != nil {
			// A cold cache is fine; the response already has the data
			h.logger.Warn("Failed to cache stats", slog.String("error", err.Error()))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}
