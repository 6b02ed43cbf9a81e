package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"diveops/internal/config"
	"diveops/internal/infrastructure"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
	sendBuffer     = 256
)

// ClientOptions configures a Client
type ClientOptions struct {
	// Subject restricts the client to messages about one wizard session.
	Subject    string
	TraceID    string
	PingPeriod time.Duration
	PongWait   time.Duration
	Logger     *slog.Logger
}

// Client is a middleman between one connection and the hub
type Client struct {
	hub  *Hub
	conn Connection
	send chan []byte

	id          string
	subject     string
	traceID     string
	remoteAddr  string
	connectedAt time.Time
	pingPeriod  time.Duration
	pongWait    time.Duration

	logger *slog.Logger
}

// NewClient creates a client for conn
func NewClient(hub *Hub, conn Connection, opts ClientOptions) *Client {
	if opts.Logger == nil {
		opts.Logger = infrastructure.GetLogger()
	}
	if opts.PongWait <= 0 {
		opts.PongWait = config.WebSocketPongWait
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}

	id := uuid.NewString()
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		id:          id,
		subject:     opts.Subject,
		traceID:     opts.TraceID,
		remoteAddr:  conn.RemoteAddr(),
		connectedAt: time.Now(),
		pingPeriod:  opts.PingPeriod,
		pongWait:    opts.PongWait,
		logger: opts.Logger.With(
			slog.String("component", "websocket.client"),
			slog.String("client_id", id)),
	}
}

// ID returns the client id
func (c *Client) ID() string {
	return c.id
}

func (c *Client) wants(subject string) bool {
	return c.subject == "" || subject == "" || subject == c.subject
}

func (c *Client) context() context.Context {
	ctx := context.Background()
	if c.traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, c.traceID)
	}
	return ctx
}

func (c *Client) connectedFor() time.Duration {
	return time.Since(c.connectedAt)
}

// ReadPump drains the connection until it fails, then unregisters the
// client. Clients only send heartbeats; other input is ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WarnContext(c.context(), "client_closed_unexpectedly", slog.String("error", err.Error()))
			}
			return
		}
		c.logger.Debug("client_message_ignored", slog.Int("size", len(message)))
	}
}

// WritePump sends queued messages and periodic pings until the hub closes
// the send channel or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.WarnContext(c.context(), "client_write_failed", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.DebugContext(c.context(), "client_ping_failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// NewUpgrader returns an upgrader sized from cfg
func NewUpgrader(cfg config.WebSocketConfig) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		// the console is served from the same origin; other checks belong in a proxy
		CheckOrigin: func(*http.Request) bool { return true },
	}
}

// ServeWS upgrades the request and attaches a client to the hub. The
// optional "session" query parameter scopes the client to one session.
func ServeWS(hub *Hub, upgrader *websocket.Upgrader, cfg config.WebSocketConfig, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response
			logger.WarnContext(r.Context(), "websocket_upgrade_failed", slog.String("error", err.Error()))
			return
		}

		client := NewClient(hub, WrapConn(conn), ClientOptions{
			Subject:    r.URL.Query().Get("session"),
			TraceID:    infrastructure.GetTraceID(r.Context()),
			PingPeriod: cfg.PingPeriod,
			PongWait:   cfg.PongWait,
			Logger:     logger,
		})
		if !hub.Register(client) {
			_ = conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
