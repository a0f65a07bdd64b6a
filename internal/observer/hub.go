// Package observer fans conductor lifecycle events out to connected
// WebSocket clients (the hopline dashboard or `hopline watch`). The
// broadcast shape is grounded on the teacher's internal/relay.PTYRoutes:
// a registry of live connections guarded by a mutex, with best-effort
// writes. Writes happen synchronously on the notifying goroutine, each
// bounded by a 2-second timeout, so a stalled browser delays the conductor
// by up to that long per event but cannot stop it.
package observer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/hopline/conductor/internal/conductor"
)

// Hub tracks every WebSocket client currently watching any session, and
// implements conductor.Observer so a tree of conductors can be pointed at
// it directly.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	log     *slog.Logger
}

type client struct {
	conn   *websocket.Conn
	filter string // ClientUniqueID to restrict to, "" for all
}

// NewHub creates an empty Hub. log may be nil, in which case slog.Default
// is used, matching internal/logger's convention elsewhere in the tree.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{clients: map[string]*client{}, log: log}
}

// Notify implements conductor.Observer by broadcasting the event, as JSON,
// to every connected client whose filter matches (or is empty).
func (h *Hub) Notify(ev conductor.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("observer: marshal event", "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		if c.filter != "" && c.filter != ev.ClientUniqueID {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			h.log.Warn("observer: dropping stalled client", "client", id, "error", err)
		}
	}
}

var _ conductor.Observer = (*Hub)(nil)

// ServeHTTP upgrades the request to a WebSocket and registers the
// connection until the client disconnects. A "client_unique_id" query
// param restricts the feed to a single conductor tree.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Error("observer: accept websocket", "error", err)
		return
	}
	defer conn.CloseNow()

	id := uuid.NewString()
	c := &client{conn: conn, filter: r.URL.Query().Get("client_unique_id")}
	h.add(id, c)
	defer h.remove(id)

	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (h *Hub) add(id string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[id] = c
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
