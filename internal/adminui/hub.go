// Package adminui serves a small operator websocket observability feed: an
// HTTP server that upgrades connections and streams session-state
// transition events to whatever operator tooling is watching, grounded on
// fw/face/web-socket-listener.go's upgrade-then-serve shape.
package adminui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Unidata/LDM-sub009/internal/ldmlog"
)

// Event is one observability record: a session-state transition, a
// subscription granted/denied, a gap-fill outcome, and so on.
type Event struct {
	Time      time.Time      `json:"time"`
	Component string         `json:"component"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Hub is the admin websocket server: one HTTP listener broadcasting every
// published Event to all currently-connected clients.
type Hub struct {
	server   http.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan Event
}

// New constructs a Hub bound to addr ("host:port"), not yet listening.
func New(addr string) *Hub {
	h := &Hub{
		server: http.Server{Addr: addr},
		upgrader: websocket.Upgrader{
			WriteBufferPool: &sync.Pool{},
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan Event),
	}
	h.server.Handler = http.HandlerFunc(h.handler)
	return h
}

// String identifies this hub in log lines.
func (h *Hub) String() string { return "admin-ui(" + h.server.Addr + ")" }

// Run starts the HTTP server and blocks until it is closed.
func (h *Hub) Run() error {
	err := h.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close shuts the server down, disconnecting every client.
func (h *Hub) Close() error {
	return h.server.Shutdown(context.Background())
}

// Publish broadcasts ev to every connected client. Slow clients are
// dropped rather than allowed to block the publishing session.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			ldmlog.Log.Warn(h, "admin client too slow, dropping", "remote", conn.RemoteAddr())
			delete(h.clients, conn)
			close(ch)
			conn.Close()
		}
	}
}

func (h *Hub) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ch := make(chan Event, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	ldmlog.Log.Info(h, "admin client connected", "remote", conn.RemoteAddr())

	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.disconnect(conn)
			return
		}
	}
}

func (h *Hub) disconnect(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()
	conn.Close()
}
