package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/yepShinjo/ml-forecasting/internal/forecast"
)

const forecastKeyPrefix = "forecast:predictions"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ForecastCache stores forecaster responses by request fingerprint.
type ForecastCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ forecast.PredictionCache = (*ForecastCache)(nil)

func NewForecastCache(client *redis.Client, ttlSeconds int) *ForecastCache {
	return &ForecastCache{client: client, ttl: ttlFromSeconds(ttlSeconds)}
}

func (c *ForecastCache) GetPredictions(ctx context.Context, fingerprint string) ([]forecast.Prediction, bool, error) {
	payload, err := c.client.Get(ctx, forecastKey(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var preds []forecast.Prediction
	if err := json.Unmarshal(payload, &preds); err != nil {
		return nil, false, fmt.Errorf("decode forecast cache: %w", err)
	}

	return preds, true, nil
}

func (c *ForecastCache) SetPredictions(ctx context.Context, fingerprint string, preds []forecast.Prediction) error {
	payload, err := json.Marshal(preds)
	if err != nil {
		return fmt.Errorf("encode forecast cache: %w", err)
	}

	if err := c.client.Set(ctx, forecastKey(fingerprint), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// InvalidateAll drops every cached forecast.
func (c *ForecastCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, forecastKeyPrefix, scanBatchSize)
}

func forecastKey(fingerprint string) string {
	return fmt.Sprintf("%s:%s", forecastKeyPrefix, fingerprint)
}
