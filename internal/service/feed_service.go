package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"shutter/internal/models"
	"shutter/internal/observability"
	"shutter/internal/repository"
)

// ListFeedInput is one feed page request.
type ListFeedInput struct {
	Cursor        string
	Limit         int
	ViewerSubject string
}

// FeedService reads the reverse-chronological feed with like counts and the
// viewer's liked flags.
type FeedService struct {
	posts        repository.PostRepository
	profiles     *ProfileService
	defaultLimit int
	maxLimit     int
}

func NewFeedService(posts repository.PostRepository, profiles *ProfileService, defaultLimit, maxLimit int) *FeedService {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &FeedService{posts: posts, profiles: profiles, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// List returns one page of posts strictly older than the cursor. NextCursor
// is nil when no older posts remain.
func (s *FeedService) List(ctx context.Context, in ListFeedInput) (_ *models.FeedPage, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "FeedService", "List")
	defer func() { observability.EndSpan(span, err) }()

	limit := s.clampLimit(in.Limit)
	cursor, err := ParseCursor(in.Cursor)
	if err != nil {
		return nil, err
	}

	posts, err := s.posts.ListPage(ctx, cursor, limit+1)
	if err != nil {
		return nil, asServiceError(models.StageDatabase, "Failed to load feed", err)
	}

	page := &models.FeedPage{Items: posts}
	if len(posts) > limit {
		next := posts[limit]
		page.Items = posts[:limit]
		last := page.Items[limit-1]
		nc := EncodeCursor(last, next.CreatedAt.Equal(last.CreatedAt))
		page.NextCursor = &nc
	}
	if len(page.Items) == 0 {
		page.Items = []*models.Post{}
		return page, nil
	}

	ids := make([]uint, len(page.Items))
	for i, p := range page.Items {
		ids[i] = p.ID
	}

	counts, err := s.posts.CountLikes(ctx, ids)
	if err != nil {
		return nil, asServiceError(models.StageDatabase, "Failed to count likes", err)
	}

	liked := map[uint]bool{}
	viewer, err := s.profiles.Lookup(ctx, in.ViewerSubject)
	if err != nil {
		return nil, err
	}
	if viewer != nil {
		likedIDs, err := s.posts.GetLikedPostIDs(ctx, viewer.ID, ids)
		if err != nil {
			return nil, asServiceError(models.StageDatabase, "Failed to load likes", err)
		}
		for _, id := range likedIDs {
			liked[id] = true
		}
	}

	for _, p := range page.Items {
		p.LikeCount = counts[p.ID]
		p.Liked = liked[p.ID]
	}
	return page, nil
}

func (s *FeedService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}

// EncodeCursor renders the position after p. The id suffix is added only
// when another post shares p's timestamp.
func EncodeCursor(p *models.Post, withID bool) string {
	ts := p.CreatedAt.UTC().Format(time.RFC3339Nano)
	if !withID {
		return ts
	}
	return ts + "_" + strconv.FormatUint(uint64(p.ID), 10)
}

// ParseCursor accepts "<RFC3339 timestamp>" or "<RFC3339 timestamp>_<id>".
// An empty cursor means the newest page.
func ParseCursor(raw string) (*repository.FeedCursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	// A '+' offset arrives as a space when the client did not escape it.
	raw = strings.ReplaceAll(raw, " ", "+")

	tsPart, idPart, hasID := strings.Cut(raw, "_")
	ts, err := time.Parse(time.RFC3339Nano, tsPart)
	if err != nil {
		return nil, models.NewValidationError("Invalid cursor")
	}

	cursor := &repository.FeedCursor{CreatedAt: ts.UTC()}
	if hasID {
		id, err := strconv.ParseUint(idPart, 10, 32)
		if err != nil || id == 0 {
			return nil, models.NewValidationError("Invalid cursor")
		}
		cursor.ID = uint(id)
	}
	return cursor, nil
}
