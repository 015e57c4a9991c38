package api

import (
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler, logger *log.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(Logger(logger))

	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		orgs := v1.Group("/orgs/:org")
		{
			orgs.GET("/runs", handler.GetRuns)
			orgs.GET("/runs/latest", handler.GetLatestReport)
		}

		runs := v1.Group("/runs/:id")
		{
			runs.GET("", handler.GetRun)
			runs.GET("/rows", handler.GetRows)
			runs.GET("/report.csv", handler.GetReportCSV)
		}
	}

	return router
}
