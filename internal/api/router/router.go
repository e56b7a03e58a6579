package router

import (
	"net/http"

	"github.com/cuongbtq/job-orchestrator/internal/api/handler"
	"github.com/cuongbtq/job-orchestrator/internal/telemetry"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger, "/health", "/metrics"))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "job-api-service",
		})
	})
	r.GET("/metrics", gin.WrapH(telemetry.Handler()))

	jobHandler := handler.NewJobHandler(deps)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/job-types", jobHandler.ListJobTypes)

		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.POST("/cleanup", jobHandler.CleanupCompletedJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.GET("/:job_id/report", jobHandler.GetJobReport)
			jobs.POST("/:job_id/cleanup", jobHandler.CleanupJob)
		}
	}

	return r
}
