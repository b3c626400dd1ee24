package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/webdesk/internal/events"
)

const (
	broadcastBuffer = 64
	clientBuffer    = 16
	writeTimeout    = 10 * time.Second
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// deadlineConn is implemented by real websocket connections.
type deadlineConn interface {
	SetWriteDeadline(t time.Time) error
}

// Client is one subscribed connection. An empty ticketID follows every ticket.
// Its writer goroutine drains send, so a slow peer never stalls the hub.
type Client struct {
	conn     Conn
	ticketID string
	send     chan []byte
}

type message struct {
	ticketID string
	body     []byte
}

// Hub fans ticket events out to websocket subscribers. All client
// bookkeeping happens on the Run goroutine.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	clients    map[*Client]struct{}
	done       chan struct{}
	logger     *zap.Logger
}

// ErrHubStopped is returned once Run has exited.
var ErrHubStopped = errors.New("realtime hub stopped")

// NewHub creates an idle hub; call Run to start it.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, broadcastBuffer),
		clients:    make(map[*Client]struct{}),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every remaining connection. It never blocks on a client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			go h.write(c)
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				if c.ticketID != "" && c.ticketID != msg.ticketID {
					continue
				}
				select {
				case c.send <- msg.body:
				default:
					h.logger.Warn("dropping slow websocket client", zap.String("ticket_id", c.ticketID))
					h.drop(c)
				}
			}
		}
	}
}

// drop must run on the Run goroutine.
func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	_ = c.conn.Close()
}

func (h *Hub) write(c *Client) {
	for body := range c.send {
		if dc, ok := c.conn.(deadlineConn); ok {
			_ = dc.SetWriteDeadline(time.Now().Add(writeTimeout))
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			h.Unregister(context.Background(), c)
			return
		}
	}
}

// Register subscribes conn, optionally to a single ticket.
func (h *Hub) Register(ctx context.Context, conn Conn, ticketID string) (*Client, error) {
	c := &Client{conn: conn, ticketID: ticketID, send: make(chan []byte, clientBuffer)}
	select {
	case h.register <- c:
		return c, nil
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unregister removes the client and closes its connection.
func (h *Hub) Unregister(ctx context.Context, c *Client) {
	if c == nil {
		return
	}
	select {
	case h.unregister <- c:
	case <-h.done:
	case <-ctx.Done():
	}
}

// Handle is an events.EventHandler that queues the event for broadcast. It
// never waits: when the queue is full the event is dropped for realtime
// subscribers only.
func (h *Hub) Handle(_ context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.broadcast <- message{ticketID: event.TicketID, body: body}:
	default:
		h.logger.Warn("realtime queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
	}
	return nil
}
