package repository

import (
	"context"
	"errors"
	"time"

	"shutter/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FeedCursor is the keyset position after which a feed page starts. A zero
// ID means "strictly older than CreatedAt".
type FeedCursor struct {
	CreatedAt time.Time
	ID        uint
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	Exists(ctx context.Context, id uint) (bool, error)
	// ListPage returns up to limit posts ordered newest first, starting
	// after cursor when it is non-nil.
	ListPage(ctx context.Context, cursor *FeedCursor, limit int) ([]*models.Post, error)
	CountLikes(ctx context.Context, postIDs []uint) (map[uint]int64, error)
	GetLikedPostIDs(ctx context.Context, profileID uint, postIDs []uint) ([]uint, error)
	Like(ctx context.Context, profileID, postID uint) error
	Unlike(ctx context.Context, profileID, postID uint) error
	IncrementShareCount(ctx context.Context, postID uint) error
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) (err error) {
	ctx, end := startQuery(ctx, r.db, "Create", "posts")
	defer func() { end(err) }()

	return r.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (_ *models.Post, err error) {
	ctx, end := startQuery(ctx, r.db, "GetByID", "posts")
	defer func() { end(err) }()

	var post models.Post
	if err := r.db.WithContext(ctx).Preload("Profile").First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) Exists(ctx context.Context, id uint) (_ bool, err error) {
	ctx, end := startQuery(ctx, r.db, "Exists", "posts")
	defer func() { end(err) }()

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *postRepository) ListPage(ctx context.Context, cursor *FeedCursor, limit int) (_ []*models.Post, err error) {
	ctx, end := startQuery(ctx, r.db, "ListPage", "posts")
	defer func() { end(err) }()

	query := r.db.WithContext(ctx).Preload("Profile")
	if cursor != nil {
		before := cursor.CreatedAt.UTC()
		if cursor.ID == 0 {
			query = query.Where("posts.created_at < ?", before)
		} else {
			query = query.Where("posts.created_at < ? OR (posts.created_at = ? AND posts.id < ?)",
				before, before, cursor.ID)
		}
	}

	var posts []*models.Post
	err = query.
		Order("posts.created_at DESC").
		Order("posts.id DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

type likeCount struct {
	PostID uint
	Count  int64
}

func (r *postRepository) CountLikes(ctx context.Context, postIDs []uint) (_ map[uint]int64, err error) {
	counts := make(map[uint]int64, len(postIDs))
	if len(postIDs) == 0 {
		return counts, nil
	}

	ctx, end := startQuery(ctx, r.db, "CountLikes", "likes")
	defer func() { end(err) }()

	var rows []likeCount
	err = r.db.WithContext(ctx).
		Model(&models.Like{}).
		Select("post_id, COUNT(*) AS count").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.PostID] = row.Count
	}
	return counts, nil
}

func (r *postRepository) GetLikedPostIDs(ctx context.Context, profileID uint, postIDs []uint) (_ []uint, err error) {
	if len(postIDs) == 0 {
		return nil, nil
	}

	ctx, end := startQuery(ctx, r.db, "GetLikedPostIDs", "likes")
	defer func() { end(err) }()

	var likedPostIDs []uint
	err = r.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("profile_id = ? AND post_id IN ?", profileID, postIDs).
		Pluck("post_id", &likedPostIDs).Error
	return likedPostIDs, err
}

func (r *postRepository) Like(ctx context.Context, profileID, postID uint) (err error) {
	ctx, end := startQuery(ctx, r.db, "Like", "likes")
	defer func() { end(err) }()

	// ON CONFLICT DO NOTHING keeps repeated and racing likes idempotent.
	like := &models.Like{PostID: postID, ProfileID: profileID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(like).Error
}

func (r *postRepository) Unlike(ctx context.Context, profileID, postID uint) (err error) {
	ctx, end := startQuery(ctx, r.db, "Unlike", "likes")
	defer func() { end(err) }()

	return r.db.WithContext(ctx).
		Where("profile_id = ? AND post_id = ?", profileID, postID).
		Delete(&models.Like{}).Error
}

// IncrementShareCount adds one to the post's share counter in a single
// statement. On Postgres this goes through the increment_share_count
// function installed by migrations.
func (r *postRepository) IncrementShareCount(ctx context.Context, postID uint) (err error) {
	ctx, end := startQuery(ctx, r.db, "IncrementShareCount", "posts")
	defer func() { end(err) }()

	if isPostgres(r.db) {
		var found bool
		if err := r.db.WithContext(ctx).Raw("SELECT increment_share_count(?)", postID).Row().Scan(&found); err != nil {
			return err
		}
		if !found {
			return models.NewNotFoundError("Post", postID)
		}
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", postID).
		UpdateColumn("share_count", gorm.Expr("share_count + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Post", postID)
	}
	return nil
}
