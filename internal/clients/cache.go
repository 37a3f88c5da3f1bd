package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"novafreight-system/internal/validator"
)

const (
	LOOKUP_CACHE_PREFIX = "lookup:"
	LOOKUP_CACHE_TTL    = 5 * time.Minute
)

// CachedDirectory layers redis over a Directory. Only positive answers are
// cached: a missing entity may be created at any moment, and an error from
// the underlying lookup must reach the breaker untouched.
//
// The cache sits under the breaker, so a half-open probe that lands on a
// warm entry closes the breaker without contacting the backend. A cached
// answer is at most LOOKUP_CACHE_TTL old, which bounds how long an unhealthy
// backend can look healthy this way.
type CachedDirectory struct {
	dir    validator.Directory
	redis  *redis.Client
	entity string
}

func NewCachedDirectory(dir validator.Directory, redisClient *redis.Client, entity string) *CachedDirectory {
	return &CachedDirectory{dir: dir, redis: redisClient, entity: entity}
}

func (c *CachedDirectory) ExistsByID(ctx context.Context, id int64) (bool, error) {
	cacheKey := fmt.Sprintf("%s%s:%d", LOOKUP_CACHE_PREFIX, c.entity, id)

	if val, err := c.redis.Get(ctx, cacheKey).Result(); err == nil && val == "1" {
		return true, nil
	}

	exists, err := c.dir.ExistsByID(ctx, id)
	if err != nil {
		return false, err
	}

	if exists {
		_ = c.redis.Set(ctx, cacheKey, "1", LOOKUP_CACHE_TTL)
	}
	return exists, nil
}
