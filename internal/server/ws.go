package server

import (
	"net/http"
	"time"

	"github.com/ayusman/posetrace/internal/logger"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// ProgressHandler streams pipeline progress as JSON text messages.
type ProgressHandler struct {
	hub *Hub
}

// NewProgressHandler creates a new ProgressHandler reading from hub.
func NewProgressHandler(hub *Hub) *ProgressHandler {
	return &ProgressHandler{hub: hub}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *ProgressHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("server")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	ch := h.hub.register(conn)
	defer h.hub.unregister(conn)

	// Reads only detect the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case msg := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}
