package http

import (
	"github.com/gin-gonic/gin"

	"github.com/shelflens/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = cfg.Server.MaxUploadMB << 20

	// Global middleware
	router.Use(RequestIDMiddleware())
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	v1.Use(BodyLimitMiddleware(cfg.Server.MaxUploadMB << 20))
	{
		shelf := v1.Group("/shelf")
		{
			shelf.POST("/analyze", handler.AnalyzeImage)
			shelf.POST("/analyze/batch", handler.AnalyzeImages)
		}
	}

	return router
}
