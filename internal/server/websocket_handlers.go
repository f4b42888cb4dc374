package server

import (
	"encoding/json"
	"errors"
	"log/slog"

	"shutter/internal/middleware"
	"shutter/internal/models"
	"shutter/internal/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// FeedUpgrade admits websocket upgrades to the feed relay. A valid session
// is optional; anonymous viewers receive the same events.
func (s *Server) FeedUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return models.RespondWithError(c, fiber.StatusUpgradeRequired,
			models.NewValidationError("websocket upgrade required"))
	}
	if s.hub == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewServiceError("realtime", "Feed relay unavailable", errors.New("hub not configured")))
	}
	s.optionalSubject(c)
	return c.Next()
}

// FeedWebsocketHandler handles GET /api/ws/feed. The relay is one-way:
// clients receive post_created, post_liked, post_unliked and post_shared
// events and refetch what they display.
func (s *Server) FeedWebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		subject, _ := conn.Locals(middleware.LocalSubject).(string)

		client, err := s.hub.Register(conn, subject)
		if err != nil {
			if errors.Is(err, realtime.ErrTooManyConnections) {
				middleware.Logger.Warn("feed relay full, rejecting connection")
			}
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		if hello, err := json.Marshal(fiber.Map{"type": "connected"}); err == nil {
			client.TrySend(hello)
		}
		middleware.Logger.Debug("feed relay client connected",
			slog.Bool("authenticated", client.Subject() != ""),
			slog.Int("clients", s.hub.Count()),
		)

		client.Serve()
	})
}
