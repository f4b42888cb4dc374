package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shutter/internal/events"
	"shutter/internal/imaging"
	"shutter/internal/middleware"
	"shutter/internal/models"
	"shutter/internal/observability"
	"shutter/internal/repository"
	"shutter/internal/storage"
	"shutter/internal/validation"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UploadInput is one multipart upload after transport decoding.
type UploadInput struct {
	Subject     string
	Filename    string
	ContentType string
	Content     []byte
	Caption     string
	Location    json.RawMessage
	UserData    *models.ProfileMetadata
}

// UploadService runs the upload pipeline: profile, normalize, store, insert.
type UploadService struct {
	posts     repository.PostRepository
	profiles  *ProfileService
	store     storage.ObjectStore
	processor *imaging.Processor
	publisher events.Publisher
	maxBytes  int64
	timeout   time.Duration
}

// UploadOptions bounds a single upload.
type UploadOptions struct {
	MaxBytes int64
	Timeout  time.Duration
}

func NewUploadService(
	posts repository.PostRepository,
	profiles *ProfileService,
	store storage.ObjectStore,
	processor *imaging.Processor,
	publisher events.Publisher,
	opts UploadOptions,
) *UploadService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 << 20
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &UploadService{
		posts:     posts,
		profiles:  profiles,
		store:     store,
		processor: processor,
		publisher: publisher,
		maxBytes:  opts.MaxBytes,
		timeout:   opts.Timeout,
	}
}

// MaxBytes is the largest accepted upload.
func (s *UploadService) MaxBytes() int64 { return s.maxBytes }

// Upload stores the normalized image and inserts the post. An object already
// written when the insert fails is left in the bucket.
func (s *UploadService) Upload(ctx context.Context, in UploadInput) (_ *models.Post, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "UploadService", "Upload")
	defer func() {
		observability.EndSpan(span, err)
		recordUpload(err)
	}()

	if in.Subject == "" {
		return nil, models.NewUnauthorizedError("Unauthorized")
	}
	if err := validation.ValidateUpload(int64(len(in.Content)), s.maxBytes); err != nil {
		return nil, err
	}
	caption, err := validation.ValidateCaption(in.Caption)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.Sync(ctx, in.Subject, in.UserData)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	img, err := s.processor.Normalize(ctx, in.Content, in.ContentType)
	if err != nil {
		return nil, models.NewInternalError(fmt.Errorf("normalize image: %w", err))
	}

	key := storage.ObjectKey(profile.ID, uuid.NewString()+"."+s.processor.Extension())
	if err := s.store.Put(ctx, key, img.ContentType, img.Data); err != nil {
		return nil, models.NewServiceError(models.StageStorage, "Storage upload failed", err)
	}

	post := &models.Post{
		ProfileID: profile.ID,
		ImagePath: key,
		Caption:   caption,
	}
	if len(in.Location) > 0 {
		post.Location = datatypes.JSON(in.Location)
	}
	if err := s.posts.Create(ctx, post); err != nil {
		middleware.Logger.ErrorContext(ctx, "post insert failed after object write",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, models.NewServiceError(models.StageDatabase, "Failed to save post", err)
	}
	post.Profile = *profile

	middleware.Logger.InfoContext(ctx, "post uploaded",
		slog.Uint64("post_id", uint64(post.ID)),
		slog.String("key", key),
		slog.Int("width", img.Width),
		slog.Int("height", img.Height),
		slog.Bool("processed", img.Processed),
	)
	events.Emit(ctx, s.publisher, events.NewEvent(events.TypePostCreated, post.ID, profile.ID))
	return post, nil
}

func recordUpload(err error) {
	if err == nil {
		observability.UploadsTotal.WithLabelValues("success", "").Inc()
		return
	}
	stage := "validation"
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		switch {
		case appErr.Stage != "":
			stage = appErr.Stage
		case appErr.Code == models.CodeUnauthorized:
			stage = "auth"
		case appErr.Code == models.CodeInternal:
			stage = "processing"
		}
	}
	observability.UploadsTotal.WithLabelValues("failure", stage).Inc()
}
