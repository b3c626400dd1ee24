package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/webdesk/internal/events"
	"github.com/spec-kit/webdesk/internal/realtime"
	"github.com/spec-kit/webdesk/internal/service"
)

// Subscribers lists the consumers of ticket events. Nil members are skipped.
type Subscribers struct {
	Notifications *service.NotificationService
	Redis         *events.RedisPublisher
	Hub           *realtime.Hub
}

// StartEventSubscribers registers every subscriber on the dispatcher and
// starts the realtime hub loop, which stops with ctx.
func StartEventSubscribers(ctx context.Context, dispatcher events.Dispatcher, subs Subscribers, logger *zap.Logger) {
	if dispatcher == nil {
		return
	}
	if subs.Notifications != nil {
		subs.Notifications.RegisterHandlers()
	}
	if subs.Redis != nil {
		events.SubscribeAll(dispatcher, logFailures(logger, "redis", subs.Redis.Handle))
	}
	if subs.Hub != nil {
		go subs.Hub.Run(ctx)
		events.SubscribeAll(dispatcher, subs.Hub.Handle)
	}
}

// logFailures keeps a flaky sink from surfacing as a publish error.
func logFailures(logger *zap.Logger, sink string, handler events.EventHandler) events.EventHandler {
	return func(ctx context.Context, event events.Event) error {
		if err := handler(ctx, event); err != nil {
			logger.Warn("event sink failed",
				zap.String("sink", sink),
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
		return nil
	}
}
