package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shutter/internal/middleware"
	"shutter/internal/observability"

	"github.com/redis/go-redis/v9"
)

const postImageURLKeyPrefix = "post:%d:image_url"

// PostImageURLKey is where the signed URL for a post's image is cached.
func PostImageURLKey(postID uint) string {
	return fmt.Sprintf(postImageURLKeyPrefix, postID)
}

// URLCache caches signed image URLs. A nil client disables caching.
type URLCache struct {
	client *redis.Client
}

// NewURLCache wraps client; client may be nil.
func NewURLCache(client *redis.Client) *URLCache {
	return &URLCache{client: client}
}

// Get returns the cached URL for postID, if present.
func (c *URLCache) Get(ctx context.Context, postID uint) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	url, err := c.client.Get(ctx, PostImageURLKey(postID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			middleware.Logger.WarnContext(ctx, "signed url cache read failed",
				slog.Uint64("post_id", uint64(postID)), slog.String("error", err.Error()))
		}
		observability.SignedURLCache.WithLabelValues("miss").Inc()
		return "", false
	}
	observability.SignedURLCache.WithLabelValues("hit").Inc()
	return url, true
}

// Set stores url for postID. Failures are logged and otherwise ignored.
func (c *URLCache) Set(ctx context.Context, postID uint, url string, ttl time.Duration) {
	if c == nil || c.client == nil || ttl <= 0 {
		return
	}
	if err := c.client.Set(ctx, PostImageURLKey(postID), url, ttl).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "signed url cache write failed",
			slog.Uint64("post_id", uint64(postID)), slog.String("error", err.Error()))
	}
}
