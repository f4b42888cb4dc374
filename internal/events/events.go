// Package events publishes post activity to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"shutter/internal/config"
	"shutter/internal/middleware"
	"shutter/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Event types.
const (
	TypePostCreated = "post_created"
	TypePostLiked   = "post_liked"
	TypePostUnliked = "post_unliked"
	TypePostShared  = "post_shared"
)

// Event is one piece of post activity.
type Event struct {
	Type       string    `json:"type"`
	PostID     uint      `json:"postId"`
	ProfileID  uint      `json:"profileId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType string, postID, profileID uint) Event {
	return Event{Type: eventType, PostID: postID, ProfileID: profileID, OccurredAt: time.Now().UTC()}
}

// Key partitions events by post.
func (e Event) Key() string {
	return strconv.FormatUint(uint64(e.PostID), 10)
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// New builds the publisher selected by EVENTS_DRIVER. rdb may be nil when
// the driver is not redis.
func New(cfg *config.Config, rdb *redis.Client) (Publisher, error) {
	switch cfg.EventsDriver {
	case "", "none":
		return Nop{}, nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("EVENTS_DRIVER=redis requires a reachable REDIS_URL")
		}
		return NewRedisPublisher(rdb, cfg.EventsTopic), nil
	case "kafka":
		brokers := cfg.KafkaBrokerList()
		if len(brokers) == 0 {
			return nil, errors.New("EVENTS_DRIVER=kafka requires KAFKA_BROKERS")
		}
		return NewKafkaPublisher(brokers, cfg.EventsTopic), nil
	default:
		return nil, fmt.Errorf("unsupported events driver %q", cfg.EventsDriver)
	}
}

// emitTimeout bounds delivery of one event once the request has answered.
const emitTimeout = 5 * time.Second

// Emit hands e to p in the background and logs delivery failures. The
// request that produced the event neither waits on nor fails with delivery.
// Delivery keeps the request's values but not its cancellation.
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	go func() {
		defer cancel()
		if err := p.Publish(ctx, e); err != nil {
			middleware.Logger.WarnContext(ctx, "event publish failed",
				slog.String("type", e.Type),
				slog.Uint64("post_id", uint64(e.PostID)),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Multi fans an event out to several publishers and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return payload, nil
}

func record(driver, eventType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.EventsPublished.WithLabelValues(driver, eventType, status).Inc()
}
