package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"shutter/internal/cache"
	"shutter/internal/config"
	"shutter/internal/database"
	"shutter/internal/imaging"
	"shutter/internal/middleware"
	"shutter/internal/models"
	"shutter/internal/realtime"
	"shutter/internal/repository"
	"shutter/internal/service"
	"shutter/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	app   *fiber.App
	srv   *Server
	db    *gorm.DB
	store *testutil.MemoryStore
	mr    *miniredis.Miniredis
}

func testConfig() *config.Config {
	return &config.Config{
		Port:                 "0",
		Env:                  "test",
		AllowedOrigins:       "http://localhost:3000",
		AuthJWTSecret:        testutil.SessionSecret,
		AuthIssuer:           testutil.SessionIssuer,
		AuthAudience:         testutil.SessionAudience,
		ImageMaxDimension:    2048,
		ImageMaxUploadSizeMB: 10,
		FeedDefaultLimit:     10,
		FeedMaxLimit:         50,
		RateLimitMax:         1000,
		SignedURLTTLMinutes:  60,
	}
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "api.db") + "?_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := testutil.NewMemoryStore()
	posts := repository.NewPostRepository(db)
	profiles := service.NewProfileService(repository.NewProfileRepository(db))
	hub := realtime.NewHub()
	processor := imaging.NewProcessor(imaging.Options{MaxDimension: cfg.ImageMaxDimension})

	srv, err := NewServerWithDeps(cfg, Deps{
		DB:       db,
		Redis:    rdb,
		Verifier: middleware.NewIdentityVerifier(cfg),
		Feed:     service.NewFeedService(posts, profiles, cfg.FeedDefaultLimit, cfg.FeedMaxLimit),
		Likes:    service.NewLikeService(posts, profiles, hub),
		Uploads: service.NewUploadService(posts, profiles, store, processor, hub, service.UploadOptions{
			MaxBytes: int64(cfg.ImageMaxUploadSizeMB) << 20,
			Timeout:  10 * time.Second,
		}),
		Shares:    service.NewShareService(posts, hub),
		Images:    service.NewImageURLService(posts, store, cache.NewURLCache(rdb), cfg.SignedURLTTL()),
		Profiles:  profiles,
		Hub:       hub,
		Publisher: hub,
		Capabilities: UploadCapabilities{
			OutputFormat: imaging.FormatJPEG,
			MaxDimension: cfg.ImageMaxDimension,
			MaxUploadMB:  cfg.ImageMaxUploadSizeMB,
			Accepts:      []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
			Storage:      store.Driver(),
		},
	})
	require.NoError(t, err)

	app := srv.NewApp()
	srv.SetupMiddleware(app)
	srv.SetupRoutes(app)
	return &testEnv{app: app, srv: srv, db: db, store: store, mr: mr}
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func jsonRequest(method, target string, body any) *http.Request {
	var buf io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		buf = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func authed(t *testing.T, req *http.Request, subject string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testutil.SessionToken(t, subject))
	return req
}

type uploadForm struct {
	fileName    string
	contentType string
	content     []byte
	fields      map[string]string
}

func multipartRequest(t *testing.T, form uploadForm) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if form.content != nil {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+form.fileName+`"`)
		h.Set("Content-Type", form.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(form.content)
		require.NoError(t, err)
	}
	for k, v := range form.fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeError(t *testing.T, body []byte) models.ErrorResponse {
	t.Helper()
	var out models.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func seedPost(t *testing.T, db *gorm.DB, subject, imagePath string, createdAt time.Time) *models.Post {
	t.Helper()
	var profile models.Profile
	require.NoError(t, db.Where(models.Profile{Subject: subject}).
		Attrs(models.Profile{Username: service.DefaultUsername(subject)}).
		FirstOrCreate(&profile).Error)
	post := &models.Post{ProfileID: profile.ID, ImagePath: imagePath, CreatedAt: createdAt}
	require.NoError(t, db.Omit("Profile").Create(post).Error)
	return post
}
