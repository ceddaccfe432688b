package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/grabfrom/core/internal/logger"
	"github.com/grabfrom/core/internal/metrics"
)

// Hub maintains the set of active clients and broadcasts events to them.
// The daemon serves one local UI, so clients form a flat set with no
// per-user routing.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Broadcast channel for events
	broadcast chan Event

	// Closed when the hub shuts down
	done chan struct{}

	log *logger.Logger
	mu  sync.RWMutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 256),
		done:       make(chan struct{}),
		log:        logger.Default().WithComponent("notify"),
	}
}

// Run starts the hub's main loop and blocks until ctx is cancelled. On
// shutdown every client connection is closed.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		metrics.Default().SetWSConnections(0)
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			metrics.Default().SetWSConnections(int64(len(h.clients)))
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			metrics.Default().SetWSConnections(int64(len(h.clients)))
			h.mu.Unlock()

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.log.Error(context.Background(), "failed to marshal event", err)
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Client's buffer is full, close the connection
					close(client.send)
					delete(h.clients, client)
				}
			}
			metrics.Default().SetWSConnections(int64(len(h.clients)))
			h.mu.Unlock()
		}
	}
}

// Publish queues an event for broadcast. It never blocks; when the hub is
// saturated or already stopped the event is dropped.
func (h *Hub) Publish(event Event) {
	select {
	case h.broadcast <- event:
	default:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
