package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quangbt/jobpulse/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "jobpulse-api",
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes (read-only; all writes happen through the pipeline)
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List active jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/import-history - Page through the import run log
			jobs.GET("/import-history", jobHandler.ImportHistory)

			// GET /api/v1/jobs/stats - Per-source aggregation over the run log
			jobs.GET("/stats", jobHandler.GetStats)
		}
	}

	return r
}
