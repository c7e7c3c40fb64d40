package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
)

const levelsKeyPrefix = "levels"

// LevelsCache caches current-level queries per database and filter.
type LevelsCache interface {
	GetLevels(ctx context.Context, database string, filter domain.LevelsFilter) ([]domain.CurrentLevel, bool, error)
	SetLevels(ctx context.Context, database string, filter domain.LevelsFilter, levels []domain.CurrentLevel) error
	InvalidateDatabase(ctx context.Context, database string) error
}

type redisLevelsCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopLevelsCache struct{}

// NewLevelsCache returns a redis-backed cache, or a noop cache when client is nil.
func NewLevelsCache(client *redis.Client, ttlSeconds int) LevelsCache {
	if client == nil {
		return &noopLevelsCache{}
	}
	return &redisLevelsCache{client: client, ttl: ttlFromSeconds(ttlSeconds)}
}

func NewNoopLevelsCache() LevelsCache {
	return &noopLevelsCache{}
}

func (c *redisLevelsCache) GetLevels(ctx context.Context, database string, filter domain.LevelsFilter) ([]domain.CurrentLevel, bool, error) {
	payload, err := c.client.Get(ctx, buildLevelsKey(database, filter)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var levels []domain.CurrentLevel
	if err := json.Unmarshal(payload, &levels); err != nil {
		return nil, false, fmt.Errorf("decode levels cache: %w", err)
	}

	return levels, true, nil
}

func (c *redisLevelsCache) SetLevels(ctx context.Context, database string, filter domain.LevelsFilter, levels []domain.CurrentLevel) error {
	payload, err := json.Marshal(levels)
	if err != nil {
		return fmt.Errorf("encode levels cache: %w", err)
	}

	if err := c.client.Set(ctx, buildLevelsKey(database, filter), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisLevelsCache) InvalidateDatabase(ctx context.Context, database string) error {
	return deleteKeysWithPrefix(ctx, c.client, levelsPrefix(database), scanBatchSize)
}

func (n *noopLevelsCache) GetLevels(context.Context, string, domain.LevelsFilter) ([]domain.CurrentLevel, bool, error) {
	return nil, false, nil
}

func (n *noopLevelsCache) SetLevels(context.Context, string, domain.LevelsFilter, []domain.CurrentLevel) error {
	return nil
}

func (n *noopLevelsCache) InvalidateDatabase(context.Context, string) error {
	return nil
}

func levelsPrefix(database string) string {
	return fmt.Sprintf("%s:%s:", levelsKeyPrefix, database)
}

func buildLevelsKey(database string, filter domain.LevelsFilter) string {
	return levelsPrefix(database) + levelsFilterHash(filter)
}

func levelsFilterHash(filter domain.LevelsFilter) string {
	var parts []string
	if len(filter.LocationIDs) > 0 {
		parts = append(parts, "location_ids="+joinInt64s(filter.LocationIDs))
	}
	if len(filter.ItemIDs) > 0 {
		parts = append(parts, "item_ids="+joinInt64s(filter.ItemIDs))
	}
	if filter.Limit > 0 {
		parts = append(parts, "limit="+strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		parts = append(parts, "offset="+strconv.Itoa(filter.Offset))
	}

	return hashParts(parts)
}
