package repository

import (
	"path/filepath"
	"testing"
	"time"

	"shutter/internal/database"
	"shutter/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupTestDB opens a file-backed SQLite database so concurrent tests share
// one schema across goroutines.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "shutter.db") + "?_busy_timeout=5000"
	db, err := database.OpenSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func seedProfile(t *testing.T, db *gorm.DB, subject string) *models.Profile {
	t.Helper()
	p := &models.Profile{Subject: subject, Username: subject}
	require.NoError(t, db.Create(p).Error)
	return p
}

// seedPosts creates n posts one minute apart; the last one is the newest.
func seedPosts(t *testing.T, db *gorm.DB, profileID uint, n int, base time.Time) []*models.Post {
	t.Helper()
	posts := make([]*models.Post, 0, n)
	for i := 0; i < n; i++ {
		p := &models.Post{
			ProfileID: profileID,
			ImagePath: "user_1/seed.jpg",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Omit("Profile").Create(p).Error)
		posts = append(posts, p)
	}
	return posts
}
