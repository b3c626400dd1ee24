package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/webdesk/internal/config"
	"github.com/spec-kit/webdesk/internal/domain"
	"github.com/spec-kit/webdesk/internal/events"
)

// Notification channels.
const (
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
)

// Notification is one outbound message derived from a ticket event.
type Notification struct {
	Channel    string
	Recipients []string
	Subject    string
	TicketID   string
	EventType  events.EventType
}

// NotificationSender delivers a notification.
type NotificationSender func(ctx context.Context, n Notification) error

// NotificationService tells the people on a ticket about its progress:
// validators when work is handed in, developers when it is assigned or sent
// back, and the reporter once it is resolved. Every event also goes to the
// webhook when one is configured.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	send       NotificationSender
}

// NewNotificationService creates the service. Delivery is logged until a
// real sender is plugged in with WithSender.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
	n.send = n.logDelivery
	return n
}

// WithSender replaces the delivery function.
func (n *NotificationService) WithSender(send NotificationSender) *NotificationService {
	n.send = send
	return n
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketDeleted, n.handleTicketDeleted)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	subject := "New ticket"
	if payload, ok := event.Payload.(events.TicketCreatedPayload); ok {
		subject = "New " + strings.ToLower(string(payload.Priority)) + " ticket: " + payload.Title
	}
	return n.webhook(ctx, event, subject)
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return nil
	}
	subject := "Ticket moved from " + string(payload.OldStatus) + " to " + string(payload.NewStatus)
	if err := n.webhook(ctx, event, subject); err != nil {
		return err
	}

	switch payload.NewStatus {
	case domain.TicketStatusInReview:
		return n.email(ctx, event, "Ticket ready for review", payload.ValidatorID)
	case domain.TicketStatusRejected:
		return n.email(ctx, event, "Changes requested: "+payload.Reason, payload.AssignedTo)
	case domain.TicketStatusResolved:
		return n.email(ctx, event, "Your ticket was resolved", &payload.CreatedBy)
	}
	return nil
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return nil
	}
	if err := n.webhook(ctx, event, "Ticket assignment changed"); err != nil {
		return err
	}
	return n.email(ctx, event, "You were added to a ticket", payload.AssignedTo, payload.ValidatorID)
}

func (n *NotificationService) handleTicketDeleted(ctx context.Context, event events.Event) error {
	return n.webhook(ctx, event, "Ticket deleted by "+event.Actor.UserID)
}

// email skips unset recipients and the actor who caused the event.
func (n *NotificationService) email(ctx context.Context, event events.Event, subject string, to ...*string) error {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return nil
	}
	recipients := []string{}
	for _, id := range to {
		if id == nil || *id == "" || *id == event.Actor.UserID {
			continue
		}
		recipients = append(recipients, *id)
	}
	if len(recipients) == 0 {
		return nil
	}
	return n.send(ctx, Notification{
		Channel:    ChannelEmail,
		Recipients: recipients,
		Subject:    subject,
		TicketID:   event.TicketID,
		EventType:  event.Type,
	})
}

func (n *NotificationService) webhook(ctx context.Context, event events.Event, subject string) error {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return nil
	}
	return n.send(ctx, Notification{
		Channel:    ChannelWebhook,
		Recipients: []string{n.cfg.WebhookURL},
		Subject:    subject,
		TicketID:   event.TicketID,
		EventType:  event.Type,
	})
}

func (n *NotificationService) logDelivery(_ context.Context, msg Notification) error {
	n.logger.Info("notification",
		zap.String("channel", msg.Channel),
		zap.String("from", n.cfg.EmailFrom),
		zap.Strings("to", msg.Recipients),
		zap.String("subject", msg.Subject),
		zap.String("ticket_id", msg.TicketID),
		zap.String("event_type", string(msg.EventType)))
	return nil
}
