package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yepShinjo/ml-forecasting/internal/api"
	"github.com/yepShinjo/ml-forecasting/internal/config"
	"github.com/yepShinjo/ml-forecasting/internal/repository"
	"github.com/yepShinjo/ml-forecasting/internal/scheduler"
	"github.com/yepShinjo/ml-forecasting/internal/service"
	"github.com/yepShinjo/ml-forecasting/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.SetLevel(logger.LevelForMode(cfg.LogLevel, cfg.Server.Mode))
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize services
	svc, closeFn, err := service.NewFromConfig(ctx, cfg, repository.SalesFilter{})
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to initialize services")
	}
	defer func() {
		if err := closeFn(); err != nil {
			logger.Log.Error().Err(err).Msg("failed to close connections")
		}
	}()

	schedule := scheduler.NewForecastRuns(scheduler.Config{
		Enabled:  cfg.Forecast.ScheduleEnabled,
		Cron:     cfg.Forecast.Cron,
		Target:   cfg.Forecast.ScheduleTarget,
		Parallel: cfg.Forecast.ParallelSources,
		Location: cfg.Forecast.Location(),
	}, svc.RunDatabases)
	if err := schedule.Start(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	// Initialize HTTP server
	router := api.NewRouter(&api.Services{Replenishment: svc, Schedule: schedule}, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	<-ctx.Done()
	logger.Log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Log.Info().Msg("server exiting")
}
