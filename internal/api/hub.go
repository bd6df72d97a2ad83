package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/position.report/internal/fingerprint/storage/sqlite"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// The feed is one-way; inbound frames are only pongs and close.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of connected websocket clients and broadcasts each
// stored estimate to them.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]bool),
		done:       make(chan struct{}),
	}
}

// Run owns the client set. It exits when ctx is cancelled, closing every
// client's send channel so their write pumps drain and hang up.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Slow consumer: drop it rather than stall the hub.
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// BroadcastEstimate queues an estimate for delivery to every connected
// client. It never blocks; with the queue full the estimate is dropped
// (clients catch up from /api/estimates/recent).
func (h *Hub) BroadcastEstimate(est *sqlite.Estimate) {
	payload, err := json.Marshal(est)
	if err != nil {
		log.Printf("Error marshalling estimate for broadcast: %v", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
	}
}

// client is one websocket connection serviced by the hub.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump discards inbound frames and unregisters the client when the
// connection drops. Reading is required to process pongs and close frames.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards broadcasts to the peer and keeps the connection alive
// with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebsocket handles GET /ws, upgrading the connection and attaching
// it to the hub.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	serveWs(s.Hub, w, r)
}

func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading websocket: %v", err)
		return
	}
	c := &client{hub: hub, conn: conn, send: make(chan []byte, 16)}
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
