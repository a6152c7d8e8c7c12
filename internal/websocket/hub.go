package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"crm/internal/metrics"
	"crm/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event types published on quote and approval transitions.
const (
	EventQuoteSent           = "quote.sent"
	EventQuoteConverted      = "quote.converted"
	EventApprovalRequested   = "approval.requested"
	EventApprovalApproved    = "approval.approved"
	EventApprovalRejected    = "approval.rejected"
	EventApprovalResubmitted = "approval.resubmitted"
)

const sinkName = "notification"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for dev simplicity
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is the payload pushed to subscribers of an organization.
type Event struct {
	Type           string    `json:"type"`
	OrganizationID uuid.UUID `json:"organization_id"`
	QuoteID        uuid.UUID `json:"quote_id"`
	Number         string    `json:"number,omitempty"`
	Status         string    `json:"status,omitempty"`
	Role           string    `json:"role,omitempty"`
	ActorID        uuid.UUID `json:"actor_id"`
	At             time.Time `json:"at"`
}

// Client represents a single connected WebSocket client
type Client struct {
	Hub            *Hub
	Conn           *websocket.Conn
	Send           chan []byte
	OrganizationID uuid.UUID
}

// Hub maintains the set of active clients and fans events out to the
// clients of the event's organization.
type Hub struct {
	clients    map[*Client]bool
	events     chan Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	log     *zap.Logger
	metrics *metrics.Recorder
}

// NewHub initializes a new WS Hub instance. buffer bounds the number of
// undelivered events; Publish drops events once it is full.
func NewHub(buffer int, log *zap.Logger, rec *metrics.Recorder) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		events:     make(chan Event, buffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		log:        log,
		metrics:    rec,
	}
}

// Publish queues ev for delivery. It never blocks.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case h.events <- ev:
	default:
		h.log.Warn("notification dropped: hub buffer full",
			zap.String("type", ev.Type),
			zap.String("quote_id", ev.QuoteID.String()))
		h.metrics.SinkDropped(sinkName)
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run starts the core dispatch loop for WebSocket events. It returns when
// ctx is done, closing every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("websocket client connected", zap.String("organization_id", client.OrganizationID.String()))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.log.Debug("websocket client disconnected")
			}
			h.mu.Unlock()
		case ev := <-h.events:
			h.dispatch(ev)
		}
	}
}

func (h *Hub) dispatch(ev Event) {
	message, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("failed to encode notification", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.OrganizationID != ev.OrganizationID {
			continue
		}
		select {
		case client.Send <- message:
		default:
			close(client.Send)
			delete(h.clients, client)
		}
	}
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		_ = c.Conn.Close()
	}()
	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-ctx.Done():
		}
		_ = c.Conn.Close()
	}()
	for {
		// Reads only keep the connection alive; clients do not send commands.
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

// ServeWs authenticates the token query parameter and subscribes the
// connection to its organization's events.
func ServeWs(ctx context.Context, hub *Hub, c *gin.Context, secret []byte) {
	tokenString := c.Query("token")
	if tokenString == "" {
		hub.log.Debug("websocket connection rejected: missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	claims, err := middleware.ParseToken(secret, tokenString)
	if err != nil {
		hub.log.Debug("websocket connection rejected", zap.Error(err))
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if claims.OrganizationID == uuid.Nil {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{Hub: hub, Conn: conn, Send: make(chan []byte, 256), OrganizationID: claims.OrganizationID}
	select {
	case hub.register <- client:
	case <-ctx.Done():
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(ctx)
}
