package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"shutter/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func captureLogger(t *testing.T, env string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger
	Logger = NewLogger(env, &buf)
	t.Cleanup(func() { Logger = prev })
	return &buf
}

func TestNewLogger_AddsContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("production", &buf)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, SubjectKey, "clerk_a")
	l.With("component", "test").InfoContext(ctx, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "clerk_a", rec["subject"])
	assert.Equal(t, "test", rec["component"])
	assert.NotContains(t, rec, "trace_id")
}

func TestNewLogger_TestEnvIsQuiet(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("test", &buf)
	l.Info("chatty")
	assert.Empty(t, buf.String())
	l.Warn("important")
	assert.Contains(t, buf.String(), "important")
}

func TestStructuredLogger_LevelsByStatus(t *testing.T) {
	buf := captureLogger(t, "production")

	app := fiber.New()
	app.Use(requestid.New(), ContextMiddleware(), StructuredLogger())
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("fine") })
	app.Get("/missing", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNotFound) })

	for _, tc := range []struct {
		path  string
		level string
	}{
		{"/ok", "INFO"},
		{"/missing", "WARN"},
	} {
		buf.Reset()
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, tc.path, nil))
		require.NoError(t, err)
		_ = resp.Body.Close()

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec), buf.String())
		assert.Equal(t, tc.level, rec["level"], tc.path)
		assert.Equal(t, tc.path, rec["path"])
		assert.Equal(t, resp.Header.Get("X-Request-ID"), rec["request_id"])
	}
}

func TestTracingMiddleware_NamesSpanAfterRoute(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := observability.Tracer
	observability.Tracer = tp.Tracer("test")
	t.Cleanup(func() { observability.Tracer = prev })

	app := fiber.New()
	app.Use(TracingMiddleware())
	app.Get("/api/posts/:id/image", func(c *fiber.Ctx) error {
		if c.Params("id") == "9" {
			return c.SendStatus(fiber.StatusBadGateway)
		}
		return c.SendString("ok")
	})

	for _, path := range []string{"/api/posts/1/image", "/api/posts/9/image"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Len(t, resp.Header.Get("X-Trace-ID"), 32)
	}

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /api/posts/:id/image", spans[0].Name())
	assert.Equal(t, "Unset", spans[0].Status().Code.String())
	assert.Equal(t, "Error", spans[1].Status().Code.String())
}
