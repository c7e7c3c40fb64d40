package service

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/yepShinjo/ml-forecasting/internal/cache"
	"github.com/yepShinjo/ml-forecasting/internal/config"
	"github.com/yepShinjo/ml-forecasting/internal/forecast"
	"github.com/yepShinjo/ml-forecasting/internal/pipeline"
	"github.com/yepShinjo/ml-forecasting/internal/repository"
	"github.com/yepShinjo/ml-forecasting/internal/repository/postgres"
	"github.com/yepShinjo/ml-forecasting/internal/storage"
)

// NewFromConfig wires the service and its collaborators. The returned closer
// releases database and redis connections.
func NewFromConfig(ctx context.Context, cfg *config.Config, filter repository.SalesFilter) (*ReplenishmentService, func() error, error) {
	var closers []func() error

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		client, err := cache.NewRedisClient(cfg.Cache)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, caching disabled")
		} else {
			redisClient = client
			closers = append(closers, client.Close)
		}
	}

	var forecaster forecast.Forecaster = forecast.Unavailable{}
	if cfg.Forecast.ForecasterURL != "" {
		forecaster = forecast.NewHTTPClient(cfg.Forecast.ForecasterURL, cfg.Forecast.ForecasterTimeout())
		if redisClient != nil {
			forecaster = forecast.NewCached(forecaster, cache.NewForecastCache(redisClient, cfg.Cache.ForecastTTLSeconds))
		}
	} else {
		log.Warn().Msg("FORECASTER_URL not set, keys with enough history will use the fallback")
	}

	var store storage.ObjectStorage
	if cfg.Storage.Enabled {
		client, err := storage.NewMinioClient(ctx, cfg.Storage)
		if err != nil {
			return nil, closeAll(closers), err
		}
		store = client
	}

	pool := postgres.NewPool(cfg.Database)
	closers = append(closers, pool.Close)

	engineOpts := cfg.Forecast.EngineOptions()
	pipelineCfg := pipeline.DefaultPipelineConfig("replenishment")
	pipelineCfg.OutputDir = cfg.Forecast.OutputDir
	if engineOpts.WorkerCount > 0 {
		pipelineCfg.WorkerCount = engineOpts.WorkerCount
	}
	if cfg.Forecast.ParallelSources > 0 {
		pipelineCfg.SourceParallel = cfg.Forecast.ParallelSources
	}

	svc := NewReplenishmentService(
		forecaster,
		NewPostgresBackends(pool, filter, cfg.Database.ExcludedDatabases),
		cache.NewLevelsCache(redisClient, cfg.Cache.LevelsTTLSeconds),
		store,
		Options{
			Engine:        engineOpts,
			Pipeline:      pipelineCfg,
			UpsertLevels:  cfg.Forecast.UpsertLevels,
			StoragePrefix: cfg.Storage.Prefix,
		},
	)

	return svc, closeAll(closers), nil
}

func closeAll(closers []func() error) func() error {
	return func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
}
