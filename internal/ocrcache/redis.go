package ocrcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the Redis connection settings for the OCR cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache is a Redis-backed OCRCache, keyed "ocr:{msg_id}". Grounded on
// the teacher's RedisSkillsCache construction pattern
// (internal/skills/redis_cache.go), adapted to a read-only lookup with no
// writer in this module — OCR text is expected to be populated out of band.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache connects to Redis and verifies reachability.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ocrcache: redis ping: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) key(msgID string) string {
	return fmt.Sprintf("ocr:%s", msgID)
}

// Lookup implements formatter.OCRCache. A cache miss and a connection error
// both resolve to (_, false): OCR enrichment is best-effort and must never
// fail the pipeline (spec §4.3).
func (c *RedisCache) Lookup(msgID string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	text, err := c.client.Get(ctx, c.key(msgID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return "", false
		}
		return "", false
	}
	return text, text != ""
}

// Close releases the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
