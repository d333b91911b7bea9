package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/mschirtzinger/taskboard/internal/remote"
)

// MessageTypeReady is sent once to every socket after it is registered.
const MessageTypeReady = "ready"

// ownedChange is a change addressed to one user's sockets.
type ownedChange struct {
	ownerID string
	change  remote.Change
}

// Hub tracks realtime sockets per user and fans row changes out to them.
type Hub struct {
	// WebSocket client management, keyed by connection, valued by owner id
	clients   map[*websocket.Conn]string
	clientsMu sync.RWMutex

	broadcast chan ownedChange

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

func newHub(logger *log.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:   make(map[*websocket.Conn]string),
		broadcast: make(chan ownedChange, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

func (h *Hub) start() {
	h.wg.Add(1)
	go h.broadcastLoop()
}

// stop closes every socket and waits for the hub's goroutines.
func (h *Hub) stop() {
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()

	h.wg.Wait()
}

// Publish queues change for the sockets of ownerID.
func (h *Hub) Publish(ownerID string, change remote.Change) {
	if change.Type == "" {
		change.Type = "change"
	}
	select {
	case h.broadcast <- ownedChange{ownerID: ownerID, change: change}:
	case <-h.ctx.Done():
	default:
		h.logger.Println("Warning: broadcast channel full, dropping change")
	}
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg := <-h.broadcast:
			if msg.change.Timestamp.IsZero() {
				msg.change.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg.change)
			if err != nil {
				h.logger.Printf("Failed to marshal change: %v", err)
				continue
			}

			h.clientsMu.RLock()
			targets := make([]*websocket.Conn, 0, len(h.clients))
			for conn, owner := range h.clients {
				if owner == msg.ownerID {
					targets = append(targets, conn)
				}
			}
			h.clientsMu.RUnlock()

			for _, conn := range targets {
				ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					h.logger.Printf("Failed to send to client: %v", err)
					h.removeClient(conn)
				}
			}
		}
	}
}

// serve upgrades the request and registers the socket for ownerID.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, ownerID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = ownerID
	clientCount := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Printf("Realtime client connected (total: %d)", clientCount)

	ready, _ := json.Marshal(remote.Change{Type: MessageTypeReady, Timestamp: time.Now()})
	ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
	_ = conn.Write(ctx, websocket.MessageText, ready)
	cancel()

	go h.readLoop(conn)
}

// readLoop notices client disconnects; client messages are ignored.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, exists := h.clients[conn]; exists {
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Printf("Realtime client disconnected (total: %d)", clientCount)
	} else {
		h.clientsMu.Unlock()
	}
}

// ClientCount returns the number of connected sockets.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
