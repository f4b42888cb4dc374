package service

import (
	"context"

	"shutter/internal/database"
	"shutter/internal/events"
	"shutter/internal/models"
	"shutter/internal/repository"
)

// LikeService adds and removes the caller's like on a post. Both
// operations are idempotent.
type LikeService struct {
	posts     repository.PostRepository
	profiles  *ProfileService
	publisher events.Publisher
}

func NewLikeService(posts repository.PostRepository, profiles *ProfileService, publisher events.Publisher) *LikeService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &LikeService{posts: posts, profiles: profiles, publisher: publisher}
}

// Add records a like. Liking twice is a no-op.
func (s *LikeService) Add(ctx context.Context, postID uint, subject string) error {
	profile, err := s.resolve(ctx, postID, subject)
	if err != nil {
		return err
	}

	exists, err := s.posts.Exists(ctx, postID)
	if err != nil {
		return asServiceError(models.StageDatabase, "Failed to load post", err)
	}
	if !exists {
		return models.NewNotFoundError("Post", postID)
	}

	if err := s.posts.Like(ctx, profile.ID, postID); err != nil {
		// The post can disappear between the check and the insert.
		if database.IsForeignKeyViolation(err) {
			return models.NewNotFoundError("Post", postID)
		}
		return asServiceError(models.StageDatabase, "Failed to like post", err)
	}

	events.Emit(ctx, s.publisher, events.NewEvent(events.TypePostLiked, postID, profile.ID))
	return nil
}

// Remove deletes the caller's like if present.
func (s *LikeService) Remove(ctx context.Context, postID uint, subject string) error {
	profile, err := s.resolve(ctx, postID, subject)
	if err != nil {
		return err
	}

	if err := s.posts.Unlike(ctx, profile.ID, postID); err != nil {
		return asServiceError(models.StageDatabase, "Failed to unlike post", err)
	}

	events.Emit(ctx, s.publisher, events.NewEvent(events.TypePostUnliked, postID, profile.ID))
	return nil
}

func (s *LikeService) resolve(ctx context.Context, postID uint, subject string) (*models.Profile, error) {
	if subject == "" {
		return nil, models.NewUnauthorizedError("Unauthorized")
	}
	if postID == 0 {
		return nil, models.NewValidationError("postId required")
	}
	return s.profiles.Ensure(ctx, subject)
}
