package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	pdfjobs "github.com/alnah/go-pdfjobs"
)

// Compile-time interface check
var _ pdfjobs.EventSink = (*Hub)(nil)

const (
	broadcastBuffer = 256
	writeWait       = 5 * time.Second
)

// Hub fans terminal events out to websocket subscribers. A single Run loop
// owns every connection write.
type Hub struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	done       chan struct{}
}

// NewHub creates a hub; call Run before serving subscribers. Browsers may
// subscribe from the server's own host or from one of allowedOrigins
// ("https://app.example.com", or "*" for any origin).
func NewHub(logger zerolog.Logger, allowedOrigins ...string) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan []byte, broadcastBuffer),
		done:       make(chan struct{}),
	}
}

// Run delivers broadcasts until ctx ends, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug().Int("clients", n).Msg("event subscriber connected")

		case conn := <-h.unregister:
			h.drop(conn)

		case msg := <-h.broadcast:
			for _, conn := range h.snapshot() {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.logger.Warn().Err(err).Msg("dropping event subscriber")
					h.drop(conn)
				}
			}

		case <-ctx.Done():
			for _, conn := range h.snapshot() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				h.drop(conn)
			}
			return
		}
	}
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	return conns
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		_ = conn.Close()
		h.logger.Debug().Int("clients", n).Msg("event subscriber disconnected")
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Emit queues evt for every subscriber. When subscribers fall too far
// behind the event is dropped rather than blocking the worker.
func (h *Hub) Emit(_ context.Context, evt pdfjobs.Event) {
	msg, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error().Err(err).Str("request_id", evt.RequestID).Msg("encoding event")
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		h.logger.Warn().Str("request_id", evt.RequestID).Msg("event buffer full, event not streamed")
	}
}

// ServeWS upgrades the request and keeps the subscriber until it hangs up.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		_ = conn.Close()
		return
	}

	// Subscribers only listen; reading detects the hang-up.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// originChecker accepts requests without an Origin header (non-browser
// clients), same-host origins, and listed origins.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
				return true
			}
		}
		return false
	}
}
