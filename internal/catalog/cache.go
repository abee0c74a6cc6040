package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/mixtape/internal/metrics"
)

// Cached puts a Redis read-through cache in front of another Catalog.
//
// Redis trouble never fails a request: a broken cache read falls through to
// the upstream catalog and a broken write is only logged. Upstream errors
// are not cached.
type Cached struct {
	next   Catalog
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCached(next Catalog, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Cached {
	return &Cached{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func searchKey(query string, limit int) string {
	return fmt.Sprintf("catalog:search:v1:%d:%s", ClampLimit(limit), strings.ToLower(strings.TrimSpace(query)))
}

func videoKey(videoID string) string {
	return "catalog:video:v1:" + videoID
}

func (c *Cached) Search(ctx context.Context, query string, limit int) ([]Video, error) {
	key := searchKey(query, limit)

	var hit []Video
	if c.load(ctx, key, &hit) {
		return hit, nil
	}

	out, err := c.next.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, out)
	return out, nil
}

func (c *Cached) Video(ctx context.Context, videoID string) (*Video, error) {
	key := videoKey(videoID)

	var hit Video
	if c.load(ctx, key, &hit) {
		return &hit, nil
	}

	v, err := c.next.Video(ctx, videoID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, v)
	return v, nil
}

// load reports whether key was found and decoded into dst.
func (c *Cached) load(ctx context.Context, key string, dst any) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		metrics.CatalogCache.WithLabelValues("miss").Inc()
		return false
	case err != nil:
		metrics.CatalogCache.WithLabelValues("error").Inc()
		c.logger.Warn("catalog cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		metrics.CatalogCache.WithLabelValues("error").Inc()
		c.logger.Warn("catalog cache entry unreadable", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}

	metrics.CatalogCache.WithLabelValues("hit").Inc()
	return true
}

func (c *Cached) store(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("catalog cache encode failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("catalog cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}
