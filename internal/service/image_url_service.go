package service

import (
	"context"
	"strings"
	"time"

	"shutter/internal/cache"
	"shutter/internal/models"
	"shutter/internal/repository"
	"shutter/internal/storage"
)

// ImageURLService turns a post's stored image path into a URL a browser can
// fetch.
type ImageURLService struct {
	posts repository.PostRepository
	store storage.ObjectStore
	urls  *cache.URLCache
	ttl   time.Duration
}

// NewImageURLService builds the resolver; urls may be nil to disable caching.
func NewImageURLService(posts repository.PostRepository, store storage.ObjectStore, urls *cache.URLCache, ttl time.Duration) *ImageURLService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ImageURLService{posts: posts, store: store, urls: urls, ttl: ttl}
}

// Resolve returns absolute http(s) paths unchanged and signs bucket keys.
// Signed URLs are cached for half their lifetime so a cached URL is never
// close to expiry when served.
func (s *ImageURLService) Resolve(ctx context.Context, postID uint) (string, error) {
	if postID == 0 {
		return "", models.NewValidationError("Invalid post ID")
	}

	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return "", asServiceError(models.StageDatabase, "Failed to load post", err)
	}

	if IsAbsoluteURL(post.ImagePath) {
		return post.ImagePath, nil
	}

	if url, ok := s.urls.Get(ctx, postID); ok {
		return url, nil
	}

	url, err := s.store.PresignGet(ctx, post.ImagePath, s.ttl)
	if err != nil {
		return "", models.NewServiceError(models.StageSigning, "Failed to sign image URL", err)
	}
	s.urls.Set(ctx, postID, url, s.ttl/2)
	return url, nil
}

// IsAbsoluteURL reports whether path is already a fetchable http(s) URL.
func IsAbsoluteURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}
