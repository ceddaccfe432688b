package notify

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/grabfrom/core/internal/logger"
)

// Handler upgrades HTTP requests to WebSocket connections and attaches
// them to the hub.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewHandler creates a WebSocket handler. allowedOrigins lists the Origin
// header values accepted on upgrade; requests without an Origin header
// (non-browser shells) are always accepted.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return origins[origin] || origins["*"]
			},
		},
		log: logger.Default().WithComponent("notify"),
	}
}

// ServeWS handles WebSocket requests from the UI.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	client := NewClient(h.hub, conn)
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	// Start the client's read and write pumps
	go client.WritePump()
	go client.ReadPump()
}

// Hub returns the hub instance for external access.
func (h *Handler) Hub() *Hub {
	return h.hub
}
