package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/pcr-tracker-go/internal/api"
	"github.com/irfndi/pcr-tracker-go/internal/app"
	"github.com/irfndi/pcr-tracker-go/internal/config"
	"github.com/irfndi/pcr-tracker-go/internal/logging"
	"github.com/irfndi/pcr-tracker-go/internal/middleware"
	"github.com/irfndi/pcr-tracker-go/internal/services"
	"github.com/irfndi/pcr-tracker-go/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logOpts := loggingOptions(cfg)
	stdLogger := logging.New(logOpts)
	defer func() { _ = stdLogger.Close() }()
	svcLogger := logging.NewServiceLogger(logOpts)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logging.ParseLogrusLevel(cfg.LogLevel))

	otlpLogger, err := stdLogger.AttachOTLP(logging.OTLPConfig{
		Enabled:        cfg.Telemetry.Enabled && cfg.Telemetry.ExportLogs,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize log export: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otlpLogger.Shutdown(ctx)
	}()

	logger := stdLogger.WithService(cfg.Telemetry.ServiceName)

	// Initialize telemetry first
	if err := telemetry.InitTelemetry(telemetryConfig(cfg)); err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetry.Shutdown(); err != nil {
			logger.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := app.Build(ctx, cfg, logger, svcLogger, app.Options{})
	if err != nil {
		return fmt.Errorf("failed to build update pipeline: %w", err)
	}
	defer pipeline.Close()

	scheduler := services.NewScheduler(ctx, pipeline.Controller, pipeline.Location, logger)
	if cfg.Schedule.Enabled {
		if _, err := scheduler.ScheduleUpdates(cfg.Schedule.Cron); err != nil {
			return err
		}
		if cfg.Schedule.ResetCron != "" {
			if _, err := scheduler.ScheduleReset(cfg.Schedule.ResetCron); err != nil {
				return err
			}
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info("Update schedule active",
			"cron", cfg.Schedule.Cron,
			"window", pipeline.Window.String(),
			"backend", cfg.Sheet.Backend)
	} else {
		logger.Warn("Scheduled updates disabled, only manual triggers will run")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	admin := middleware.NewAdminMiddleware(cfg.Server.AdminAPIKey, cfg.Environment)
	if !admin.Enabled() {
		logger.Warn("ADMIN_API_KEY not set, operator endpoints are locked")
	}
	codec := pipeline.Codec
	api.SetupRoutes(router, api.RouteDeps{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     cfg.Telemetry.ServiceVersion,
		Controller:  pipeline.Controller,
		Codec:       &codec,
		Admin:       admin,
		Health:      pipeline.HealthChecks(),
		Logger:      stdLogger.WithComponent("http"),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		stdLogger.LogStartup(cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	reason := "signal"
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			reason = "server error"
			logger.Error("HTTP server failed", "error", err)
		}
	}
	stdLogger.LogShutdown(cfg.Telemetry.ServiceName, reason)

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exited")
	return nil
}

func loggingOptions(cfg *config.Config) logging.Options {
	return logging.Options{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		Format:      cfg.Logging.Format,
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
	}
}

func telemetryConfig(cfg *config.Config) telemetry.TelemetryConfig {
	return telemetry.TelemetryConfig{
		Enabled:        cfg.Telemetry.Enabled,
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		SampleRate:     cfg.Telemetry.SampleRate,
		LogLevel:       cfg.LogLevel,
	}
}
