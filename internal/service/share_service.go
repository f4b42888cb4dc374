package service

import (
	"context"

	"shutter/internal/events"
	"shutter/internal/models"
	"shutter/internal/repository"
)

// ShareService counts shares. Every call increments; there is no
// per-viewer dedup.
type ShareService struct {
	posts     repository.PostRepository
	publisher events.Publisher
}

func NewShareService(posts repository.PostRepository, publisher events.Publisher) *ShareService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &ShareService{posts: posts, publisher: publisher}
}

// Share atomically adds one to the post's share count.
func (s *ShareService) Share(ctx context.Context, postID uint) error {
	if postID == 0 {
		return models.NewValidationError("postId required")
	}
	if err := s.posts.IncrementShareCount(ctx, postID); err != nil {
		return asServiceError(models.StageDatabase, "Failed to record share", err)
	}
	events.Emit(ctx, s.publisher, events.NewEvent(events.TypePostShared, postID, 0))
	return nil
}
