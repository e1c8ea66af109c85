// Package cache is a best-effort read-through layer over Redis. Every
// operation here is fire-and-forget: failures are logged and swallowed,
// and a nil client disables caching entirely. The database stays the
// source of truth; nothing in the core may depend on a cache hit.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type Cache struct {
	client *redis.Client
	logger *log.Entry
}

func New(addr string) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return &Cache{
		client: client,
		logger: log.WithField("component", "cache"),
	}
}

// Disabled returns a cache whose operations are all no-ops.
func Disabled() *Cache {
	return &Cache{logger: log.WithField("component", "cache")}
}

func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Get unmarshals the cached value into dest and reports whether there
// was a usable hit.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) bool {
	if c.client == nil {
		return false
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).WithField("key", key).Warn("cache get failed")
		}
		return false
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache value corrupt, dropping")
		c.Delete(ctx, key)
		return false
	}

	return true
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if c.client == nil {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache marshal failed")
		return
	}

	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache set failed")
	}
}

func (c *Cache) Delete(ctx context.Context, key string) {
	if c.client == nil {
		return
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache delete failed")
	}
}
