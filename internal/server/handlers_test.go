package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"shutter/internal/models"
	"shutter/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feedResponse struct {
	Items []struct {
		ID        uint   `json:"id"`
		ImagePath string `json:"image_path"`
		LikeCount int64  `json:"like_count"`
		Liked     bool   `json:"liked"`
		Author    struct {
			Username string `json:"username"`
		} `json:"author"`
	} `json:"items"`
	NextCursor *string `json:"nextCursor"`
}

func TestGetPosts_Pagination(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	var posts []*models.Post
	for i := range 15 {
		posts = append(posts, seedPost(t, env.db, "author_1", fmt.Sprintf("user_1/%02d.jpg", i), base.Add(time.Duration(i)*time.Hour)))
	}

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/posts?limit=10", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var first feedResponse
	require.NoError(t, json.Unmarshal(body, &first))
	require.Len(t, first.Items, 10)
	require.NotNil(t, first.NextCursor)
	assert.Equal(t, posts[14].ID, first.Items[0].ID)
	assert.Equal(t, posts[5].CreatedAt.UTC().Format(time.RFC3339Nano), *first.NextCursor)
	assert.Equal(t, "user_thor_1", first.Items[0].Author.Username)

	resp, body = env.do(t, httptest.NewRequest(http.MethodGet, "/api/posts?limit=10&cursor="+*first.NextCursor, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var second feedResponse
	require.NoError(t, json.Unmarshal(body, &second))
	assert.Len(t, second.Items, 5)
	assert.Nil(t, second.NextCursor)
	assert.Equal(t, posts[4].ID, second.Items[0].ID)
}

func TestGetPosts_EmptyAndInvalidCursor(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/posts", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"items":[],"nextCursor":null}`, string(body))

	resp, body = env.do(t, httptest.NewRequest(http.MethodGet, "/api/posts?cursor=not-a-time", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, models.CodeValidation, decodeError(t, body).Code)
}

func TestLikes(t *testing.T) {
	env := newTestEnv(t)
	post := seedPost(t, env.db, "author_1", "user_1/a.jpg", time.Now())
	body := map[string]any{"postId": post.ID}

	t.Run("requires session and creates nothing", func(t *testing.T) {
		resp, raw := env.do(t, jsonRequest(http.MethodPost, "/api/likes", body))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, models.CodeUnauthorized, decodeError(t, raw).Code)

		var count int64
		require.NoError(t, env.db.Model(&models.Like{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("idempotent add", func(t *testing.T) {
		for range 2 {
			resp, raw := env.do(t, authed(t, jsonRequest(http.MethodPost, "/api/likes", body), "viewer_42"))
			require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
			assert.JSONEq(t, `{"ok":true}`, string(raw))
		}

		req := authed(t, httptest.NewRequest(http.MethodGet, "/api/posts", nil), "viewer_42")
		_, raw := env.do(t, req)
		var page feedResponse
		require.NoError(t, json.Unmarshal(raw, &page))
		require.Len(t, page.Items, 1)
		assert.Equal(t, int64(1), page.Items[0].LikeCount)
		assert.True(t, page.Items[0].Liked)
	})

	t.Run("remove twice", func(t *testing.T) {
		for range 2 {
			resp, raw := env.do(t, authed(t, jsonRequest(http.MethodDelete, "/api/likes", body), "viewer_42"))
			require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
		}
		var count int64
		require.NoError(t, env.db.Model(&models.Like{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("bad requests", func(t *testing.T) {
		tests := []struct {
			name   string
			body   any
			status int
		}{
			{name: "malformed json", body: `{"postId":`, status: http.StatusBadRequest},
			{name: "missing id", body: `{}`, status: http.StatusBadRequest},
			{name: "non numeric", body: `{"postId":"abc"}`, status: http.StatusBadRequest},
			{name: "negative", body: `{"postId":-3}`, status: http.StatusBadRequest},
			{name: "unknown post", body: `{"postId":9999}`, status: http.StatusNotFound},
			{name: "numeric string", body: fmt.Sprintf(`{"postId":"%d","extra":true}`, post.ID), status: http.StatusOK},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp, raw := env.do(t, authed(t, jsonRequest(http.MethodPost, "/api/likes", tt.body), "viewer_42"))
				assert.Equal(t, tt.status, resp.StatusCode, string(raw))
			})
		}
	})
}

var storedKey = regexp.MustCompile(`^user_\d+/[0-9a-f-]{36}\.jpg$`)

func TestUpload(t *testing.T) {
	env := newTestEnv(t)

	req := authed(t, multipartRequest(t, uploadForm{
		fileName:    "wide.jpg",
		contentType: "image/jpeg",
		content:     testutil.SizedJPEG(t, 4000, 3000),
		fields: map[string]string{
			"caption":  "Sunrise over the ridge",
			"location": `{"name":"Dolomites","lat":46.41}`,
			"userData": `{"username":"mountain_explorer","displayName":"Alex Rivera"}`,
		},
	}), "idp_user_000777")

	resp, body := env.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out struct {
		Post struct {
			ID        uint            `json:"id"`
			ImagePath string          `json:"image_path"`
			Caption   string          `json:"caption"`
			Location  json.RawMessage `json:"location"`
			Author    models.Profile  `json:"author"`
		} `json:"post"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Regexp(t, storedKey, out.Post.ImagePath)
	assert.Equal(t, "Sunrise over the ridge", out.Post.Caption)
	assert.JSONEq(t, `{"name":"Dolomites","lat":46.41}`, string(out.Post.Location))
	assert.Equal(t, "mountain_explorer", out.Post.Author.Username)
	assert.Equal(t, "Alex Rivera", out.Post.Author.DisplayName)

	obj, err := env.store.Get(out.Post.ImagePath)
	require.NoError(t, err)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(obj.Data))
	require.NoError(t, err)
	assert.LessOrEqual(t, cfg.Width, 2048)
	assert.LessOrEqual(t, cfg.Height, 2048)
	assert.Equal(t, 2048, cfg.Width)
}

func TestUpload_Rejections(t *testing.T) {
	env := newTestEnv(t)
	png := testutil.TinyPNG(t, 8, 8)

	tests := []struct {
		name    string
		subject string
		form    uploadForm
		status  int
		code    string
	}{
		{name: "no session", form: uploadForm{fileName: "a.png", contentType: "image/png", content: png}, status: http.StatusUnauthorized, code: models.CodeUnauthorized},
		{name: "no file", subject: "s1", form: uploadForm{fields: map[string]string{"caption": "x"}}, status: http.StatusBadRequest, code: models.CodeValidation},
		{name: "bad location", subject: "s1", form: uploadForm{fileName: "a.png", contentType: "image/png", content: png, fields: map[string]string{"location": "{oops"}}, status: http.StatusBadRequest, code: models.CodeValidation},
		{name: "bad userData", subject: "s1", form: uploadForm{fileName: "a.png", contentType: "image/png", content: png, fields: map[string]string{"userData": "[1,2]"}}, status: http.StatusBadRequest, code: models.CodeValidation},
		{name: "long caption", subject: "s1", form: uploadForm{fileName: "a.png", contentType: "image/png", content: png, fields: map[string]string{"caption": strings.Repeat("é", 2201)}}, status: http.StatusBadRequest, code: models.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := multipartRequest(t, tt.form)
			if tt.subject != "" {
				req = authed(t, req, tt.subject)
			}
			resp, body := env.do(t, req)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			assert.Equal(t, tt.code, decodeError(t, body).Code)
		})
	}
	assert.Empty(t, env.store.Keys())
}

func TestUpload_StorageFailureReportsStage(t *testing.T) {
	env := newTestEnv(t)
	env.store.PutErr = errors.New("bucket offline")

	req := authed(t, multipartRequest(t, uploadForm{fileName: "a.png", contentType: "image/png", content: testutil.TinyPNG(t, 8, 8)}), "s1")
	resp, body := env.do(t, req)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	out := decodeError(t, body)
	assert.Equal(t, models.CodeService, out.Code)
	assert.Equal(t, models.StageStorage, out.Stage)
	assert.Equal(t, "bucket offline", out.Details)

	var posts int64
	require.NoError(t, env.db.Model(&models.Post{}).Count(&posts).Error)
	assert.Zero(t, posts)
}

func TestUploadStatus(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/upload", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Status       string             `json:"status"`
		Capabilities UploadCapabilities `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, 2048, out.Capabilities.MaxDimension)
	assert.Equal(t, "memory", out.Capabilities.Storage)
}

func TestShare(t *testing.T) {
	env := newTestEnv(t)
	post := seedPost(t, env.db, "author_1", "user_1/a.jpg", time.Now())

	for range 3 {
		resp, body := env.do(t, jsonRequest(http.MethodPost, "/api/share", map[string]any{"postId": post.ID}))
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	}
	var stored models.Post
	require.NoError(t, env.db.First(&stored, post.ID).Error)
	assert.Equal(t, int64(3), stored.ShareCount)

	resp, _ := env.do(t, jsonRequest(http.MethodPost, "/api/share", map[string]any{"postId": 9999}))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, jsonRequest(http.MethodPost, "/api/share", `{"postId":0}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetPostImage(t *testing.T) {
	env := newTestEnv(t)
	remote := seedPost(t, env.db, "author_1", "https://images.unsplash.com/photo-1506905925346-21bda4d32df4?w=1200", time.Now())
	stored := seedPost(t, env.db, "author_1", "user_1/b.jpg", time.Now())

	tests := []struct {
		name   string
		target string
		status int
		check  func(t *testing.T, url string)
	}{
		{name: "absolute passthrough", target: fmt.Sprintf("/api/posts/%d/image", remote.ID), status: http.StatusOK, check: func(t *testing.T, url string) {
			assert.Equal(t, remote.ImagePath, url)
		}},
		{name: "signed key", target: fmt.Sprintf("/api/posts/%d/image", stored.ID), status: http.StatusOK, check: func(t *testing.T, url string) {
			assert.True(t, strings.HasPrefix(url, "https://storage.test/posts/user_1/b.jpg"))
			assert.Contains(t, url, "X-Amz-Expires=3600")
		}},
		{name: "missing post", target: "/api/posts/9999/image", status: http.StatusNotFound},
		{name: "bad id", target: "/api/posts/abc/image", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, httptest.NewRequest(http.MethodGet, tt.target, nil))
			require.Equal(t, tt.status, resp.StatusCode, string(body))
			if tt.check != nil {
				var out struct {
					URL string `json:"url"`
				}
				require.NoError(t, json.Unmarshal(body, &out))
				tt.check(t, out.URL)
			}
		})
	}
}

func TestProfileRoutes(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/api/profile/me", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := env.do(t, authed(t, jsonRequest(http.MethodPost, "/api/profile/sync", nil), "idp_abcdef999"))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"ok":true}`, string(body))

	resp, body = env.do(t, authed(t, httptest.NewRequest(http.MethodGet, "/api/profile/me", nil), "idp_abcdef999"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var profile models.Profile
	require.NoError(t, json.Unmarshal(body, &profile))
	assert.Equal(t, "user_def999", profile.Username)
	assert.NotContains(t, string(body), "idp_abcdef999", "subject is never serialized")

	resp, _ = env.do(t, authed(t, jsonRequest(http.MethodPost, "/api/profile/sync", map[string]string{"username": "city_nights"}), "idp_abcdef999"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, body = env.do(t, authed(t, httptest.NewRequest(http.MethodGet, "/api/profile/me", nil), "idp_abcdef999"))
	require.NoError(t, json.Unmarshal(body, &profile))
	assert.Equal(t, "city_nights", profile.Username)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"status":"healthy"`)

	env.mr.Close()
	resp, body = env.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"degraded"`)
}

func TestWebsocketFeed_RequiresUpgrade(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/api/ws/feed", nil))
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
