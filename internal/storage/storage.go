// Package storage puts post images into an S3-compatible bucket and signs
// read URLs for them.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"shutter/internal/config"
	"shutter/internal/observability"
)

// ObjectStore is the bucket the upload pipeline writes to.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	EnsureBucket(ctx context.Context) error
	Driver() string
}

// New builds the ObjectStore selected by STORAGE_DRIVER, wrapped with
// tracing and latency metrics.
func New(ctx context.Context, cfg *config.Config) (ObjectStore, error) {
	var (
		store ObjectStore
		err   error
	)
	switch cfg.StorageDriver {
	case "s3":
		store, err = NewS3Store(ctx, S3Config{
			Endpoint:       cfg.StorageEndpoint,
			Region:         cfg.StorageRegion,
			Bucket:         cfg.StorageBucket,
			AccessKey:      cfg.StorageAccessKey,
			SecretKey:      cfg.StorageSecretKey,
			UseSSL:         cfg.StorageUseSSL,
			ForcePathStyle: cfg.StorageForcePathStyle,
		})
	case "", "minio":
		store, err = NewMinioStore(MinioConfig{
			Endpoint:  cfg.StorageEndpoint,
			Region:    cfg.StorageRegion,
			Bucket:    cfg.StorageBucket,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			UseSSL:    cfg.StorageUseSSL,
		})
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(store), nil
}

// ObjectKey is the bucket key for an uploaded image: user_<profileId>/<name>.
func ObjectKey(profileID uint, name string) string {
	return fmt.Sprintf("user_%d/%s", profileID, name)
}

func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return strings.TrimPrefix(endpoint, "https://")
}

type instrumented struct {
	next ObjectStore
}

// Instrument wraps store so every call is traced and timed.
func Instrument(store ObjectStore) ObjectStore {
	if _, ok := store.(*instrumented); ok {
		return store
	}
	return &instrumented{next: store}
}

func (s *instrumented) Put(ctx context.Context, key, contentType string, data []byte) error {
	ctx, span := observability.StartStorageSpan(ctx, s.next.Driver(), "put", key)
	done := observability.TrackStorage(s.next.Driver(), "put")
	err := s.next.Put(ctx, key, contentType, data)
	done(err)
	observability.EndSpan(span, err)
	return err
}

func (s *instrumented) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	ctx, span := observability.StartStorageSpan(ctx, s.next.Driver(), "presign_get", key)
	done := observability.TrackStorage(s.next.Driver(), "presign_get")
	url, err := s.next.PresignGet(ctx, key, ttl)
	done(err)
	observability.EndSpan(span, err)
	return url, err
}

func (s *instrumented) EnsureBucket(ctx context.Context) error {
	ctx, span := observability.StartStorageSpan(ctx, s.next.Driver(), "ensure_bucket", "")
	err := s.next.EnsureBucket(ctx)
	observability.EndSpan(span, err)
	return err
}

func (s *instrumented) Driver() string {
	return s.next.Driver()
}
