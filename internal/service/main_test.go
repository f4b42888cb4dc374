package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"shutter/internal/events"
	"shutter/internal/models"
	"shutter/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postRepoStub is a stub for repository.PostRepository. Nil fields fall back
// to a zero result.
type postRepoStub struct {
	createFn              func(context.Context, *models.Post) error
	getByIDFn             func(context.Context, uint) (*models.Post, error)
	existsFn              func(context.Context, uint) (bool, error)
	listPageFn            func(context.Context, *repository.FeedCursor, int) ([]*models.Post, error)
	countLikesFn          func(context.Context, []uint) (map[uint]int64, error)
	getLikedPostIDsFn     func(context.Context, uint, []uint) ([]uint, error)
	likeFn                func(context.Context, uint, uint) error
	unlikeFn              func(context.Context, uint, uint) error
	incrementShareCountFn func(context.Context, uint) error
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, post)
}
func (s *postRepoStub) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	if s.getByIDFn == nil {
		return nil, models.NewNotFoundError("Post", id)
	}
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) Exists(ctx context.Context, id uint) (bool, error) {
	if s.existsFn == nil {
		return true, nil
	}
	return s.existsFn(ctx, id)
}
func (s *postRepoStub) ListPage(ctx context.Context, cursor *repository.FeedCursor, limit int) ([]*models.Post, error) {
	if s.listPageFn == nil {
		return nil, nil
	}
	return s.listPageFn(ctx, cursor, limit)
}
func (s *postRepoStub) CountLikes(ctx context.Context, ids []uint) (map[uint]int64, error) {
	if s.countLikesFn == nil {
		return map[uint]int64{}, nil
	}
	return s.countLikesFn(ctx, ids)
}
func (s *postRepoStub) GetLikedPostIDs(ctx context.Context, profileID uint, ids []uint) ([]uint, error) {
	if s.getLikedPostIDsFn == nil {
		return nil, nil
	}
	return s.getLikedPostIDsFn(ctx, profileID, ids)
}
func (s *postRepoStub) Like(ctx context.Context, profileID, postID uint) error {
	if s.likeFn == nil {
		return nil
	}
	return s.likeFn(ctx, profileID, postID)
}
func (s *postRepoStub) Unlike(ctx context.Context, profileID, postID uint) error {
	if s.unlikeFn == nil {
		return nil
	}
	return s.unlikeFn(ctx, profileID, postID)
}
func (s *postRepoStub) IncrementShareCount(ctx context.Context, postID uint) error {
	if s.incrementShareCountFn == nil {
		return nil
	}
	return s.incrementShareCountFn(ctx, postID)
}

// profileRepoStub keeps profiles in memory keyed by subject.
type profileRepoStub struct {
	mu        sync.Mutex
	bySubject map[string]*models.Profile
	nextID    uint

	getErr    error
	ensureErr error
	updateErr error
	updates   int
}

func newProfileRepoStub(existing ...*models.Profile) *profileRepoStub {
	s := &profileRepoStub{bySubject: map[string]*models.Profile{}, nextID: 1}
	for _, p := range existing {
		s.bySubject[p.Subject] = p
		if p.ID >= s.nextID {
			s.nextID = p.ID + 1
		}
	}
	return s
}

func (s *profileRepoStub) GetBySubject(_ context.Context, subject string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	p, ok := s.bySubject[subject]
	if !ok {
		return nil, models.NewNotFoundError("Profile", subject)
	}
	cp := *p
	return &cp, nil
}

func (s *profileRepoStub) EnsureBySubject(_ context.Context, profile *models.Profile) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensureErr != nil {
		return nil, s.ensureErr
	}
	if p, ok := s.bySubject[profile.Subject]; ok {
		cp := *p
		return &cp, nil
	}
	stored := *profile
	stored.ID = s.nextID
	s.nextID++
	s.bySubject[stored.Subject] = &stored
	cp := stored
	return &cp, nil
}

func (s *profileRepoStub) UpdateMetadata(_ context.Context, id uint, username, displayName, avatarURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErr != nil {
		return s.updateErr
	}
	for _, p := range s.bySubject {
		if p.ID == id {
			p.Username, p.DisplayName, p.AvatarURL = username, displayName, avatarURL
			return nil
		}
	}
	return models.NewNotFoundError("Profile", id)
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// awaitTypes waits for n events to arrive and returns their types in
// arrival order.
func (p *recordingPublisher) awaitTypes(t *testing.T, n int) []string {
	t.Helper()
	assert.Eventually(t, func() bool { return len(p.types()) >= n }, time.Second, 5*time.Millisecond)
	return p.types()
}

// stalledPublisher holds every publish until its context ends.
type stalledPublisher struct {
	ctxs chan context.Context
}

func (p *stalledPublisher) Publish(ctx context.Context, _ events.Event) error {
	p.ctxs <- ctx
	<-ctx.Done()
	return ctx.Err()
}

func (p *stalledPublisher) Close() error { return nil }

// memoryFeed serves ListPage from a fixed slice with keyset semantics.
func memoryFeed(posts []*models.Post) func(context.Context, *repository.FeedCursor, int) ([]*models.Post, error) {
	sorted := append([]*models.Post(nil), posts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return func(_ context.Context, c *repository.FeedCursor, limit int) ([]*models.Post, error) {
		var out []*models.Post
		for _, p := range sorted {
			if c != nil {
				older := p.CreatedAt.Before(c.CreatedAt)
				tieBreak := c.ID != 0 && p.CreatedAt.Equal(c.CreatedAt) && p.ID < c.ID
				if !older && !tieBreak {
					continue
				}
			}
			cp := *p
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
		return out, nil
	}
}

func makePosts(n int, base time.Time) []*models.Post {
	posts := make([]*models.Post, n)
	for i := range posts {
		posts[i] = &models.Post{
			ID:        uint(i + 1),
			ProfileID: 1,
			ImagePath: "user_1/x.jpg",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return posts
}

func assertAppError(t *testing.T, err error, code string) *models.AppError {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
	return appErr
}
