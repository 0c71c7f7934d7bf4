package performance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hvac_dispatch/backend/internal/models"
)

const keyPrefix = "dispatch:performance:"

// CachedSource puts a Redis cache in front of another Source. Cache failures fall
// through to the wrapped source.
type CachedSource struct {
	Next   Source
	Redis  redis.Cmdable
	TTL    time.Duration
	Logger zerolog.Logger
}

func (c CachedSource) Metrics(ctx context.Context, technicianID string) (models.PerformanceMetrics, error) {
	key := keyPrefix + technicianID
	if raw, err := c.Redis.Get(ctx, key).Bytes(); err == nil {
		var m models.PerformanceMetrics
		if err := json.Unmarshal(raw, &m); err == nil {
			return m, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.Logger.Warn().Err(err).Str("technician_id", technicianID).Msg("performance cache read failed")
	}

	m, err := c.Next.Metrics(ctx, technicianID)
	if err != nil {
		return models.PerformanceMetrics{}, err
	}
	data, _ := json.Marshal(m)
	if err := c.Redis.Set(ctx, key, data, c.TTL).Err(); err != nil {
		c.Logger.Warn().Err(err).Str("technician_id", technicianID).Msg("performance cache write failed")
	}
	return m, nil
}
