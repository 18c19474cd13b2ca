package alert

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub pushes alerts to connected WebSocket clients (the admin dashboard and
// any open mobile sessions). Slow clients get dropped rather than blocking
// the engine.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]chan Alert
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger.With("module", "alert_hub"),
		clients: map[string]chan Alert{},
	}
}

// Alert implements Alerter by fanning the alert out to every connected
// client without blocking.
func (h *Hub) Alert(ctx context.Context, a Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.clients {
		select {
		case ch <- a:
		default:
			h.logger.Warn("dropping alert for slow client", "client", id)
		}
	}
}

func (h *Hub) subscribe() (string, chan Alert) {
	id := uuid.NewString()
	ch := make(chan Alert, 16)

	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()

	return id, ch
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	// The agent serves a local dashboard; origin enforcement happens at the
	// reverse proxy if one is deployed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request to a WebSocket and streams alerts as JSON
// frames until the client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	con, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	id, ch := h.subscribe()
	h.logger.Info("alert client connected", "client", id)

	defer func() {
		h.unsubscribe(id)
		con.Close()
		h.logger.Info("alert client disconnected", "client", id)
	}()

	// Reader goroutine only exists to notice the peer closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := con.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return nil
		case a := <-ch:
			con.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := con.WriteJSON(a); err != nil {
				return err
			}
		}
	}
}
