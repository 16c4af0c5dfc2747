// internal/store/narrativecache/cache.go
package narrativecache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"orgdiag-pipeline/internal/common/logger"
)

// Keys carry a prefix so narrative entries are recognizable next to whatever
// else shares the Redis database.
const keyPrefix = "narrative:"

const defaultTTL = 24 * time.Hour

// Cache stores generated narratives in Redis, keyed by team identifier plus
// the hash of the team's aggregate. A miss or an unreachable Redis surfaces
// as a miss to the interpretation stage, which then calls the provider.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCache(client *redis.Client, ttl time.Duration, log logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "narrativecache"}),
	}
}

// Get returns the cached narrative and whether it was present. Only real
// transport errors are returned; an absent key is (not found, nil).
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

// Set stores the narrative under the configured TTL.
func (c *Cache) Set(ctx context.Context, key, text string) error {
	if err := c.client.Set(ctx, keyPrefix+key, text, c.ttl).Err(); err != nil {
		return err
	}
	c.logger.Debug("narrative cached", map[string]interface{}{
		"key": key,
		"ttl": c.ttl.String(),
	})
	return nil
}

// TTL exposes the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
