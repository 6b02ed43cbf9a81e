package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"

	"diveops/internal/infrastructure"
	"diveops/pkg/contracts/events"
)

const broadcastBuffer = 256

type outbound struct {
	msgType string
	subject string
	data    []byte
}

// HubStats is a point-in-time view of hub activity
type HubStats struct {
	ActiveClients    int   `json:"active_clients"`
	TotalConnections int64 `json:"total_connections"`
	MessagesSent     int64 `json:"messages_sent"`
	MessagesDropped  int64 `json:"messages_dropped"`
}

// Hub maintains the set of active clients and fans messages out to them.
// A message with a subject only reaches clients watching that subject or
// watching everything.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	running bool
	quit    chan struct{}
	done    chan struct{}

	logger  *slog.Logger
	metrics *hubMetrics

	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	messagesDropped  atomic.Int64
}

// NewHub creates a hub. A nil meter uses the global meter provider.
func NewHub(logger *slog.Logger, meter metric.Meter) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = logger.With(slog.String("component", "websocket.hub"))

	metrics, err := newHubMetrics(meter)
	if err != nil {
		logger.Warn("websocket_metrics_unavailable", slog.String("error", err.Error()))
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    metrics,
	}
}

// Start runs the hub loop in a goroutine. It is idempotent.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

// Run is the hub loop. It returns after Stop.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			h.logger.Info("hub_stopped")
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client, "unregistered")

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.totalConnections.Add(1)

	ctx := client.context()
	h.metrics.connected(ctx)
	h.logger.InfoContext(ctx, "client_registered",
		slog.String("client_id", client.id),
		slog.String("subject", client.subject),
		slog.String("remote_addr", client.remoteAddr),
		slog.Int("total_clients", count))

	greeting := events.NewMessage(events.MessageTypeConnection, client.subject, "", events.ConnectionData{
		Status:   "connected",
		ClientID: client.id,
		Subject:  client.subject,
		Message:  "Connected to the dive operations feed",
	})
	greeting.TraceID = client.traceID
	data, err := json.Marshal(greeting)
	if err != nil {
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.WarnContext(ctx, "client_buffer_full", slog.String("client_id", client.id))
	}
}

func (h *Hub) removeClient(client *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	ctx := client.context()
	h.metrics.disconnected(ctx)
	h.logger.InfoContext(ctx, "client_unregistered",
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", client.connectedFor()),
		slog.Int("total_clients", count))
}

func (h *Hub) deliver(msg outbound) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.wants(msg.subject) {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	sent, dropped := 0, 0
	for _, client := range targets {
		select {
		case client.send <- msg.data:
			sent++
		default:
			// a client that cannot keep up is disconnected
			dropped++
			h.removeClient(client, "buffer_full")
		}
	}
	h.messagesSent.Add(int64(sent))
	h.messagesDropped.Add(int64(dropped))
	h.metrics.delivered(context.Background(), msg.msgType, sent, dropped)

	h.logger.Debug("message_broadcast",
		slog.String("type", msg.msgType),
		slog.String("subject", msg.subject),
		slog.Int("recipients", sent),
		slog.Int("dropped", dropped))
}

// BroadcastMessage queues msg for every interested client. Messages sent
// while the hub is stopped are discarded.
func (h *Hub) BroadcastMessage(msg events.WebSocketMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("message_marshal_failed",
			slog.String("type", string(msg.Type)),
			slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		h.logger.Debug("broadcast_discarded_hub_stopped", slog.String("type", string(msg.Type)))
		return
	}

	select {
	case h.broadcast <- outbound{msgType: string(msg.Type), subject: msg.Subject, data: data}:
	case <-h.quit:
	}
}

// BroadcastUpdate builds a message and broadcasts it
func (h *Hub) BroadcastUpdate(msgType events.MessageType, subject, action string, data any) {
	h.BroadcastMessage(events.NewMessage(msgType, subject, action, data))
}

// Register adds a client. It returns false if the hub is not running.
func (h *Hub) Register(client *Client) bool {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return false
	}
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

// Unregister removes a client and closes its send channel
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns hub counters
func (h *Hub) Stats() HubStats {
	return HubStats{
		ActiveClients:    h.ClientCount(),
		TotalConnections: h.totalConnections.Load(),
		MessagesSent:     h.messagesSent.Load(),
		MessagesDropped:  h.messagesDropped.Load(),
	}
}

// Stop ends the hub loop and disconnects every client
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	<-h.done

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}
