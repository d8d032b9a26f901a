package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/heartsync/internal/app"
	"github.com/ayusman/heartsync/internal/log"
)

// Message types pushed to display clients.
const (
	MessageStateUpdate = "state_update"
	MessageCommentary  = "commentary"
)

const (
	writeWait     = 2 * time.Second
	clientBacklog = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message is the envelope of every websocket frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Commentary is the payload of a commentary message.
type Commentary struct {
	Text string `json:"text"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub pushes state updates and commentary to every connected display.
// A client that cannot keep up loses messages instead of slowing the
// scoring loop.
type Hub struct {
	app     *app.App
	clients map[*client]bool
	mu      sync.RWMutex
}

// NewHub creates a Hub. When a is not nil the hub subscribes to its ticks
// and commentary and greets new clients with the current state.
func NewHub(a *app.App) *Hub {
	h := &Hub{
		app:     a,
		clients: make(map[*client]bool),
	}
	if a != nil {
		a.OnState(h.BroadcastState)
		a.OnCommentary(h.BroadcastCommentary)
	}
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBacklog)}
	if h.app != nil {
		if msg, err := encode(MessageStateUpdate, h.app.State()); err == nil {
			c.send <- msg
		}
	}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	log.Debug("display connected", "remote", r.RemoteAddr)

	go h.writePump(c)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(c)
	log.Debug("display disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// Clients returns the number of connected displays.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastState sends a state_update to every client.
func (h *Hub) BroadcastState(st app.State) {
	h.broadcast(MessageStateUpdate, st)
}

// BroadcastCommentary sends a commentary line to every client.
func (h *Hub) BroadcastCommentary(text string) {
	h.broadcast(MessageCommentary, Commentary{Text: text})
}

func (h *Hub) broadcast(msgType string, data any) {
	msg, err := encode(msgType, data)
	if err != nil {
		log.Warn("failed to encode websocket message", "type", msgType, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			log.Debug("display too slow, dropping message", "type", msgType)
		}
	}
}

func encode(msgType string, data any) ([]byte, error) {
	return json.Marshal(Message{Type: msgType, Data: data})
}
