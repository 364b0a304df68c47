// Package cache keeps parsed-ready checklist templates in Redis so checklist
// reads do not hit Postgres for the template body every time.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a template is not cached.
var ErrMiss = errors.New("cache miss")

// RedisTemplateCache stores raw template JSON keyed by template name.
type RedisTemplateCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisTemplateCache connects to redisURL and verifies the connection.
func NewRedisTemplateCache(redisURL string, ttl time.Duration) (*RedisTemplateCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisTemplateCacheWithClient(client, ttl), nil
}

func NewRedisTemplateCacheWithClient(client *redis.Client, ttl time.Duration) *RedisTemplateCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisTemplateCache{
		client: client,
		prefix: "checklist-template:",
		ttl:    ttl,
	}
}

func (c *RedisTemplateCache) key(name string) string {
	return c.prefix + name
}

// Get returns the cached body or ErrMiss.
func (c *RedisTemplateCache) Get(ctx context.Context, name string) ([]byte, error) {
	body, err := c.client.Get(ctx, c.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", name, err)
	}
	return body, nil
}

func (c *RedisTemplateCache) Set(ctx context.Context, name string, body []byte) error {
	if err := c.client.Set(ctx, c.key(name), body, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache template %s: %w", name, err)
	}
	return nil
}

func (c *RedisTemplateCache) Invalidate(ctx context.Context, name string) error {
	if err := c.client.Del(ctx, c.key(name)).Err(); err != nil {
		return fmt.Errorf("invalidate template %s: %w", name, err)
	}
	return nil
}

func (c *RedisTemplateCache) Close() error {
	return c.client.Close()
}

func (c *RedisTemplateCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
