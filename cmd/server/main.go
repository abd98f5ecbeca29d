package main

import (
	"fmt"
	"os"

	"github.com/shelflens/backend/config"
	httpDelivery "github.com/shelflens/backend/internal/delivery/http"
	"github.com/shelflens/backend/internal/infrastructure/gateway"
	"github.com/shelflens/backend/internal/logger"
	"github.com/shelflens/backend/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLog := logger.New(logger.Config{Env: cfg.Server.Environment, Level: cfg.Log.Level})

	appLog.Info().
		Str("version", "1.0.0").
		Str("environment", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Msg("Starting ShelfLens Backend")

	// Enable gateway debug logging in development environment
	inference, err := gateway.New(cfg.Gateway, cfg.Server.Environment == "development")
	if err != nil {
		appLog.Fatal().Err(err).Msg("Failed to configure inference gateway")
	}

	// Initialize usecase layer
	analysisService := usecase.NewShelfAnalysisService(
		inference,
		usecase.ShelfAnalysisServiceConfig{
			StrictRecords: cfg.Normalizer.StrictRecords,
		},
	)

	appLog.Info().
		Bool("strict_records", cfg.Normalizer.StrictRecords).
		Int("rate_limit_per_ip", cfg.RateLimit.PerIP).
		Int64("max_upload_mb", cfg.Server.MaxUploadMB).
		Msg("Shelf analysis ready")

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(analysisService)

	// Setup router
	router := httpDelivery.SetupRouter(cfg, handler)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	appLog.Info().Str("addr", addr).Msg("Server listening")

	if err := router.Run(addr); err != nil {
		appLog.Fatal().Err(err).Msg("Failed to start server")
	}
}
