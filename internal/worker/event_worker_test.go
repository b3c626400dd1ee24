package worker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/webdesk/internal/config"
	"github.com/spec-kit/webdesk/internal/events"
	"github.com/spec-kit/webdesk/internal/realtime"
	"github.com/spec-kit/webdesk/internal/service"
)

type recordingConn struct {
	got chan []byte
}

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	c.got <- data
	return nil
}

func (c *recordingConn) Close() error { return nil }

func TestStartEventSubscribersFeedsHub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := zap.NewNop()
	dispatcher := events.NewInMemoryDispatcher()
	hub := realtime.NewHub(logger)

	StartEventSubscribers(ctx, dispatcher, Subscribers{
		Notifications: service.NewNotificationService(dispatcher, logger, config.NotificationConfig{}),
		Redis:         events.NewRedisPublisher(nil, ""),
		Hub:           hub,
	}, logger)

	conn := &recordingConn{got: make(chan []byte, 1)}
	if _, err := hub.Register(ctx, conn, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := dispatcher.Publish(ctx, events.Event{ID: "e1", Type: events.EventTicketDeleted, TicketID: "t1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-conn.got:
	case <-time.After(2 * time.Second):
		t.Fatalf("hub did not receive the event")
	}
}
