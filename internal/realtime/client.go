package realtime

import (
	"log/slog"
	"sync"
	"time"

	"shutter/internal/middleware"
	"shutter/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingInterval = idleTimeout * 9 / 10

	// Viewers never send data frames, only control traffic.
	inboundLimit = 512

	sendBuffer = 64
)

var droppedNotice = []byte(`{"type":"messages_dropped","reason":"buffer_full"}`)

// Conn is the part of a websocket connection the relay uses.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one feed viewer. Only the hub closes its send queue, and only
// Serve's writer goroutine writes to the connection.
type Client struct {
	hub     *Hub
	conn    Conn
	subject string
	send    chan []byte

	stopOnce   sync.Once
	closeFrame []byte
}

func newClient(hub *Hub, conn Conn, subject string) *Client {
	return &Client{hub: hub, conn: conn, subject: subject, send: make(chan []byte, sendBuffer)}
}

// Subject is the viewer's identity, empty for anonymous viewers.
func (c *Client) Subject() string { return c.subject }

// Serve relays queued messages until the viewer disconnects or the hub
// stops the client. It blocks.
func (c *Client) Serve() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeLoop()
	}()
	c.readLoop()
	c.hub.Unregister(c)
	<-done
}

func (c *Client) readLoop() {
	c.conn.SetReadLimit(inboundLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				middleware.Logger.Debug("feed viewer read failed", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		var (
			kind = websocket.TextMessage
			data []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				_ = c.conn.WriteMessage(websocket.CloseMessage, c.closeFrame)
				return
			}
			data = msg
		case <-ping.C:
			kind = websocket.PingMessage
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(kind, data); err != nil {
			return
		}
	}
}

// TrySend queues message without blocking. When the queue is full the
// message is dropped and the viewer is told to refetch, if there is room.
// Callers hold the hub's read lock so the queue cannot close underneath.
func (c *Client) TrySend(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
	}
	observability.WebSocketBackpressureDrops.WithLabelValues("full").Inc()
	select {
	case c.send <- droppedNotice:
	default:
	}
	return false
}

// stop closes the send queue; the writer then sends closeFrame and hangs up.
func (c *Client) stop(closeFrame []byte) {
	c.stopOnce.Do(func() {
		c.closeFrame = closeFrame
		close(c.send)
	})
}
