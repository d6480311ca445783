// Package wsapi streams committed board changes to websocket subscribers.
package wsapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/domain"
)

// writeWait bounds one write to a single client.
const writeWait = 5 * time.Second

// sendBuffer is the number of frames queued per client before it is dropped.
const sendBuffer = 32

// ActionBoardChanged tags messages carrying a board event.
const ActionBoardChanged = "board.changed"

// Message is the frame sent to subscribers.
type Message struct {
	Action string            `json:"action"`
	Event  domain.BoardEvent `json:"event"`
}

// Logger receives hub lifecycle logs.
type Logger interface {
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
}

// client is one subscriber with an optional scope filter and its outbound queue.
// send is closed when the client leaves the registry.
type client struct {
	conn  *websocket.Conn
	scope domain.FunnelScope
	send  chan Message
}

// Hub fans board events out to connected websocket clients.
type Hub struct {
	upgrader websocket.Upgrader
	logger   Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

var _ app.Notifier = (*Hub)(nil)

// NewHub constructs an empty hub. logger may be nil.
func NewHub(logger Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it disconnects.
// An optional scope query parameter limits events to project or subproject funnels.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var scope domain.FunnelScope
	if raw := r.URL.Query().Get("scope"); raw != "" {
		parsed, err := domain.ParseFunnelScope(raw)
		if err != nil {
			http.Error(w, "invalid scope", http.StatusBadRequest)
			return
		}
		scope = parsed
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn, scope: scope, send: make(chan Message, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.info("websocket client connected", "remote_addr", r.RemoteAddr, "scope", string(scope), "clients", total)

	written := make(chan struct{})
	go func() {
		defer close(written)
		h.writeLoop(c)
	}()

	// Clients only listen; reading detects the close frame.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	h.removeLocked(c)
	total = len(h.clients)
	h.mu.Unlock()
	<-written
	h.info("websocket client disconnected", "remote_addr", r.RemoteAddr, "clients", total)
}

// writeLoop drains c.send onto the connection and closes it once the queue is closed.
func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			h.warn("websocket write failed; dropping client", "err", err)
			h.mu.Lock()
			h.removeLocked(c)
			h.mu.Unlock()
			return
		}
	}
}

// Publish queues ev for every matching client without waiting on any connection.
// A client whose queue is full is dropped.
func (h *Hub) Publish(ev domain.BoardEvent) {
	msg := Message{Action: ActionBoardChanged, Event: ev}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.scope != "" && c.scope != ev.Scope {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.warn("websocket client too slow; dropping client", "queued", len(c.send))
			h.removeLocked(c)
		}
	}
}

// removeLocked unregisters c and closes its queue. Callers hold h.mu.
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
		h.removeLocked(c)
	}
}

func (h *Hub) info(msg string, keyvals ...any) {
	if h.logger != nil {
		h.logger.Info(msg, keyvals...)
	}
}

func (h *Hub) warn(msg string, keyvals ...any) {
	if h.logger != nil {
		h.logger.Warn(msg, keyvals...)
	}
}
