package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shutter/internal/config"
	"shutter/internal/models"
	"shutter/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServerWithDeps_RequiresServices(t *testing.T) {
	_, err := NewServerWithDeps(&config.Config{}, Deps{})
	assert.Error(t, err)

	_, err = NewServerWithDeps(nil, Deps{})
	assert.Error(t, err)
}

func TestSetupMiddleware_RateLimitPerIP(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.RateLimitMax = 3 })

	send := func(ip string) *http.Response {
		req := jsonRequest(http.MethodPost, "/api/share", `{"postId":0}`)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("X-Forwarded-For", ip)
		resp, _ := env.do(t, req)
		return resp
	}

	for range 3 {
		assert.Equal(t, http.StatusBadRequest, send("203.0.113.7").StatusCode)
	}
	limited := send("203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
	assert.Equal(t, "http://localhost:3000", limited.Header.Get("Access-Control-Allow-Origin"))

	// Another address has its own budget.
	assert.Equal(t, http.StatusBadRequest, send("198.51.100.4").StatusCode)
}

func TestSetupMiddleware_RateLimitedBody(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.RateLimitMax = 1 })

	_, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/api/upload", nil))
	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/upload", nil))
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, models.CodeRateLimited, decodeError(t, body).Code)

	// Probes sit outside /api and are never limited.
	resp, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSetupMiddleware_PreflightBypassesLimiter(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.RateLimitMax = 1 })

	for range 3 {
		req := httptest.NewRequest(http.MethodOptions, "/api/likes", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, _ := env.do(t, req)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
}

func TestSetupMiddleware_FeedPageWithImagesFitsDefaultLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.RateLimitMax = 10 })
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := range 12 {
		seedPost(t, env.db, "author_1", fmt.Sprintf("user_1/%02d.jpg", i), base.Add(time.Duration(i)*time.Minute))
	}

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/posts", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var page feedResponse
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Items, 10)

	for _, item := range page.Items {
		resp, body := env.do(t, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/posts/%d/image", item.ID), nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	}

	// The feed itself is still metered.
	for range 9 {
		_, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/api/posts", nil))
	}
	resp, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/api/posts", nil))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestUnmetered(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/api/posts/12/image", true},
		{"/api/posts/12/image/", true},
		{"/api/ws/feed", true},
		{"/api/posts", false},
		{"/api/posts/", false},
		{"/api/likes", false},
		{"/api/share", false},
		{"/api/upload", false},
		{"/posts/12/image", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, unmetered(tt.path), tt.path)
	}
}

func TestUploadLimiter_ProductionRefusesWithoutRedis(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.Env = "production" })
	t.Setenv("APP_ENV", "production")
	env.mr.Close()

	req := authed(t, multipartRequest(t, uploadForm{fileName: "a.png", contentType: "image/png", content: testutil.TinyPNG(t, 8, 8)}), "s1")
	resp, body := env.do(t, req)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, string(body))
	assert.Equal(t, models.CodeService, decodeError(t, body).Code)
	assert.Empty(t, env.store.Keys())
}

func TestUploadLimiter_DevelopmentLetsUploadsThroughWithoutRedis(t *testing.T) {
	env := newTestEnv(t)
	env.mr.Close()

	req := authed(t, multipartRequest(t, uploadForm{fileName: "a.png", contentType: "image/png", content: testutil.TinyPNG(t, 8, 8)}), "s1")
	resp, body := env.do(t, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.NotEmpty(t, resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
