package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/topabomb/BatteryMaster/internal/model"
)

const (
	wsBroadcastBuffer = 256
	wsChannelBuffer   = 10
	wsWriteDeadline   = 10 * time.Second
	wsReadDeadline    = 60 * time.Second
	wsPingInterval    = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// No Origin header means a non-browser client.
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Event is one message on the change feed.
type Event struct {
	Reading model.Reading   `json:"reading"`
	Changes model.ChangeSet `json:"changes"`
}

// Hub fans ingested readings out to websocket clients.
type Hub struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	done       chan struct{} // closed when Run returns

	mu sync.RWMutex
}

// NewHub creates a new websocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn, wsChannelBuffer),
		unregister: make(chan *websocket.Conn, wsChannelBuffer),
		broadcast:  make(chan []byte, wsBroadcastBuffer),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It closes all clients when ctx is done.
// Run must be called at most once.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return ctx.Err()
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			count := len(h.clients)
			h.mu.Unlock()
			slog.Debug("websocket client connected", "clients", count)
		case conn := <-h.unregister:
			h.drop(conn)
		case message := <-h.broadcast:
			h.mu.RLock()
			var failed []*websocket.Conn
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					slog.Debug("websocket write failed", "error", err)
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()

			for _, conn := range failed {
				h.drop(conn)
			}
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	count := len(h.clients)
	h.mu.Unlock()
	slog.Debug("websocket client disconnected", "clients", count)
}

// release hands conn back to Run for removal. Once Run has stopped, or its
// queue is full, the conn is removed and closed here.
func (h *Hub) release(conn *websocket.Conn) {
	select {
	case <-h.done:
	default:
		select {
		case h.unregister <- conn:
			return
		default:
		}
	}
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Broadcast sends v as JSON to all connected clients. When the broadcast
// queue is full the message is dropped.
func (h *Hub) Broadcast(v any) error {
	message, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- message:
	default:
		slog.Warn("websocket broadcast queue full, dropping message")
	}
	return nil
}

// Observe publishes an ingested reading. Its signature matches the ingest
// sink so the hub can be registered directly.
func (h *Hub) Observe(r model.Reading, cs model.ChangeSet) {
	if !h.HasClients() {
		return
	}
	if err := h.Broadcast(Event{Reading: r, Changes: cs}); err != nil {
		slog.Error("encoding websocket event", "error", err)
	}
}

// HasClients reports whether any client is connected.
func (h *Hub) HasClients() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) > 0
}

// @Summary Change feed
// @Description Upgrades to a websocket that streams every ingested reading with its change set
// @Success 101 {object} Event
// @Router /ws [get]
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		h.release(conn)
	}()

	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// WriteControl may be called concurrently with WriteMessage.
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteDeadline)); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read failed", "error", err)
			}
			return
		}
	}
}
