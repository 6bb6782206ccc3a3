package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/manumagallanes/STransmision/internal/sim"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope of every pushed message.
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// SweepProgress reports one finished sweep point.
type SweepProgress struct {
	SweepID  string         `json:"sweep_id"`
	Point    sim.SweepPoint `json:"point"`
	Done     int            `json:"done"`
	Total    int            `json:"total"`
	Progress float64        `json:"progress"` // 0.0 to 1.0
}

// WSHub fans messages out to the connected websocket clients.
type WSHub struct {
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
}

// NewWSHub creates an empty hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients: make(map[*websocket.Conn]bool),
	}
}

// AddClient registers a connection.
func (h *WSHub) AddClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
	log.Printf("WebSocket client connected (%d total)", len(h.clients))
}

// RemoveClient unregisters and closes a connection.
func (h *WSHub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[conn] {
		return
	}
	delete(h.clients, conn)
	conn.Close()
	log.Printf("WebSocket client disconnected (%d remaining)", len(h.clients))
}

// NumClients returns the number of connected clients.
func (h *WSHub) NumClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends msg to every client. Writes are serialized because a
// websocket connection supports one writer at a time.
func (h *WSHub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("WebSocket marshal error: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("WebSocket write error: %v", err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// BroadcastSweepPoint reports sweep progress.
func (h *WSHub) BroadcastSweepPoint(sweepID string, p sim.SweepPoint, done, total int) {
	h.Broadcast(WSMessage{
		Type: "sweep_point",
		Payload: SweepProgress{
			SweepID:  sweepID,
			Point:    p,
			Done:     done,
			Total:    total,
			Progress: float64(done) / float64(total),
		},
	})
}

// BroadcastStatus sends a status update.
func (h *WSHub) BroadcastStatus(status, message string) {
	h.Broadcast(WSMessage{
		Type: "status",
		Payload: map[string]string{
			"status":  status,
			"message": message,
		},
	})
}

// BroadcastLog sends a log line.
func (h *WSHub) BroadcastLog(level, message string) {
	h.Broadcast(WSMessage{
		Type: "log",
		Payload: map[string]string{
			"level":   level,
			"message": message,
		},
	})
}
