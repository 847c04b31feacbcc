package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quangbt/jobpulse/internal/api/dto"
)

// ImportHistory handles GET /api/v1/jobs/import-history
// Pages through the run log, newest run first
func (h *JobHandler) ImportHistory(c *gin.Context) {
	var req dto.ImportHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid pagination parameters",
		})
		return
	}

	if req.Page == 0 {
		req.Page = 1
	}
	if req.Limit == 0 {
		req.Limit = 20
	}

	if req.Page < 1 || req.Limit < 1 || req.Limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid pagination parameters",
		})
		return
	}

	offset := (req.Page - 1) * req.Limit

	runs, err := h.runs.ListImportRuns(c.Request.Context(), req.Limit, offset)
	if err != nil {
		h.logger.Error("Failed to list import runs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to list import runs",
		})
		return
	}

	total, err := h.runs.CountImportRuns(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to count import runs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to count import runs",
		})
		return
	}

	logs := make([]dto.ImportRunDTO, len(runs))
	for i, run := range runs {
		details := make([]dto.FailedRecordDTO, len(run.FailedDetails))
		for j, f := range run.FailedDetails {
			details[j] = dto.FailedRecordDTO{
				SourceID: f.SourceID,
				Reason:   f.Reason,
			}
		}

		logs[i] = dto.ImportRunDTO{
			ID:            run.ID,
			Source:        run.Source,
			URL:           run.URL,
			StartedAt:     run.StartedAt.Format(time.RFC3339),
			TotalFetched:  run.TotalFetched,
			TotalImported: run.TotalImported,
			NewJobs:       run.NewJobs,
			UpdatedJobs:   run.UpdatedJobs,
			FailedJobs:    run.FailedJobs,
			FailedDetails: details,
			DurationMs:    run.DurationMs,
			Status:        run.Status,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": dto.ImportHistoryData{
			Logs:       logs,
			Total:      total,
			Page:       req.Page,
			TotalPages: totalPages(total, req.Limit),
		},
	})
}
