// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Post is a single uploaded photo in the feed.
type Post struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	ProfileID uint    `gorm:"not null;index" json:"profile_id"`
	Profile   Profile `gorm:"foreignKey:ProfileID" json:"author"`
	// ImagePath is either an object key in the bucket or an absolute URL.
	ImagePath  string         `gorm:"not null" json:"image_path"`
	Caption    string         `gorm:"type:text" json:"caption"`
	Location   datatypes.JSON `json:"location"`
	ShareCount int64          `gorm:"not null;default:0" json:"share_count"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
	// LikeCount is not persisted; computed per page
	LikeCount int64 `gorm:"-" json:"like_count"`
	// Liked indicates whether the requesting viewer liked this post (computed)
	Liked bool `gorm:"-" json:"liked"`
}

// BeforeCreate pins created_at to microsecond precision in UTC so the value
// handed out as a cursor round-trips through every supported database.
func (p *Post) BeforeCreate(_ *gorm.DB) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.CreatedAt = p.CreatedAt.UTC().Truncate(time.Microsecond)
	return nil
}

// Like records that a profile liked a post. Existence is the whole signal.
type Like struct {
	PostID    uint      `gorm:"primaryKey;autoIncrement:false" json:"post_id"`
	ProfileID uint      `gorm:"primaryKey;autoIncrement:false;index" json:"profile_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedPage is one page of the reverse-chronological feed.
type FeedPage struct {
	Items      []*Post `json:"items"`
	NextCursor *string `json:"nextCursor"`
}
