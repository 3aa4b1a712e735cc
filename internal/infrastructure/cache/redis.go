package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"elevation_service/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

const profileKeyPrefix = "elevation:profile:"

// RedisProfileCache keeps finished road profiles keyed by segment id.
type RedisProfileCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisProfileCache(rdb *redis.Client, ttl time.Duration) *RedisProfileCache {
	return &RedisProfileCache{rdb: rdb, ttl: ttl}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return rdb, nil
}

func (c *RedisProfileCache) Get(ctx context.Context, segmentID string) (*model.RoadElevationProfile, bool, error) {
	data, err := c.rdb.Get(ctx, profileKeyPrefix+segmentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached profile %s: %w", segmentID, err)
	}

	var p model.RoadElevationProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached profile %s: %w", segmentID, err)
	}
	return &p, true, nil
}

func (c *RedisProfileCache) Set(ctx context.Context, p *model.RoadElevationProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile %s: %w", p.SegmentID, err)
	}
	if err := c.rdb.Set(ctx, profileKeyPrefix+p.SegmentID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache profile %s: %w", p.SegmentID, err)
	}
	return nil
}
