// Package redis provides a Redis page-cache tier in front of the relational page cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

// Config controls the Redis connection and entry lifetime.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

type client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// PageCache reads through Redis to the next cache and writes to both.
// Redis failures degrade to the next tier.
type PageCache struct {
	client client
	next   discovery.PageCache
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewClient opens a go-redis client from cfg.
func NewClient(cfg Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewPageCache wraps next with a Redis tier.
func NewPageCache(c client, next discovery.PageCache, cfg Config, logger *zap.Logger) (*PageCache, error) {
	if c == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if next == nil {
		return nil, fmt.Errorf("next page cache is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "discovery:page:"
	}
	return &PageCache{client: c, next: next, ttl: cfg.TTL, prefix: prefix, logger: logger}, nil
}

type entry struct {
	URL       string    `json:"url"`
	HTML      string    `json:"html"`
	FetchedAt time.Time `json:"fetched_at"`
}

// GetPage checks Redis first and backfills it from the next tier on a miss.
func (c *PageCache) GetPage(ctx context.Context, key string) (discovery.CachedPage, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Result()
	switch {
	case err == nil:
		var e entry
		if jsonErr := json.Unmarshal([]byte(raw), &e); jsonErr == nil {
			return discovery.CachedPage{Key: key, URL: e.URL, HTML: e.HTML, FetchedAt: e.FetchedAt}, true, nil
		}
		c.logger.Warn("discarding malformed redis page entry", zap.String("key", key))
	case !errors.Is(err, goredis.Nil):
		c.logger.Warn("redis page lookup failed", zap.String("key", key), zap.Error(err))
	}

	page, ok, err := c.next.GetPage(ctx, key)
	if err != nil || !ok {
		return page, ok, err
	}
	c.store(ctx, page)
	return page, true, nil
}

// PutPage writes to the next tier, then to Redis.
func (c *PageCache) PutPage(ctx context.Context, page discovery.CachedPage) error {
	if err := c.next.PutPage(ctx, page); err != nil {
		return err
	}
	c.store(ctx, page)
	return nil
}

func (c *PageCache) store(ctx context.Context, page discovery.CachedPage) {
	payload, err := json.Marshal(entry{URL: page.URL, HTML: page.HTML, FetchedAt: page.FetchedAt})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+page.Key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("redis page write failed", zap.String("key", page.Key), zap.Error(err))
	}
}
