package watch

import (
	"encoding/json"
	"sync"
	"time"

	"gemini-console/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	readTimeout  = 120 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
)

// Event is one progress message sent to websocket clients.
type Event struct {
	Type       string   `json:"type"`
	RunID      string   `json:"run_id"`
	Model      string   `json:"model,omitempty"`
	Total      int      `json:"total,omitempty"`
	Key        string   `json:"key,omitempty"`
	Status     string   `json:"status,omitempty"`
	Message    string   `json:"message,omitempty"`
	DurationMs int64    `json:"duration_ms,omitempty"`
	Checked    int      `json:"checked,omitempty"`
	Valid      int      `json:"valid,omitempty"`
	Invalid    []string `json:"invalid,omitempty"`
}

// Hub fans check progress out to connected websocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
	last    []byte
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*sync.Mutex)}
}

// Register adds a connection, replays the latest event and keeps the
// connection alive until the client goes away.
func (h *Hub) Register(conn *websocket.Conn) {
	writeMu := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = writeMu
	last := h.last
	h.mu.Unlock()
	logger.Sugar.Debugf("[WS] Client connected (%d total)", h.ClientCount())

	if last != nil {
		h.write(conn, writeMu, last)
	}

	// Reads only serve to notice the disconnect and process pongs.
	go func() {
		defer h.unregister(conn)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(readTimeout))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for range ticker.C {
			if !h.registered(conn) {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				h.unregister(conn)
				return
			}
		}
	}()
}

func (h *Hub) registered(conn *websocket.Conn) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[conn]
	return ok
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		conn.Close()
		logger.Sugar.Debugf("[WS] Client disconnected (%d remaining)", h.ClientCount())
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends ev to every client and drops the ones that fail.
func (h *Hub) Broadcast(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Sugar.Warnf("[WS] Failed to marshal %s event: %v", ev.Type, err)
		return
	}

	h.mu.Lock()
	h.last = payload
	targets := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, mu := range h.clients {
		targets[conn] = mu
	}
	h.mu.Unlock()

	for conn, mu := range targets {
		h.write(conn, mu, payload)
	}
}

func (h *Hub) write(conn *websocket.Conn, mu *sync.Mutex, payload []byte) {
	mu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteMessage(websocket.TextMessage, payload)
	mu.Unlock()
	if err != nil {
		logger.Sugar.Warnf("[WS] Write error, removing client: %v", err)
		h.unregister(conn)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*websocket.Conn]*sync.Mutex)
	h.mu.Unlock()
	for conn := range clients {
		conn.Close()
	}
}
