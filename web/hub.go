package web

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"guestbook/logger"
	"guestbook/metrics"
	"guestbook/models"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Hub tracks websocket clients watching the live feed and pushes each new
// record to all of them. Clients never send records; the socket exists only
// so the browser can receive.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
}

func NewHub() *Hub { return &Hub{clients: make(map[*websocket.Conn]struct{})} }

func (h *Hub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	metrics.IncWSConnections()
	logger.Info("feed client connected", logger.FieldKV("remote_addr", conn.RemoteAddr().String()))
}

// Remove drops and closes the conn. The connection gauge is owned here:
// both the broadcast eviction path and the reader goroutine call Remove, and
// only the call that actually found the conn decrements.
func (h *Hub) Remove(conn *websocket.Conn) bool {
	h.mu.Lock()
	_, present := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
	if present {
		metrics.DecWSConnections()
		logger.Info("feed client disconnected", logger.FieldKV("remote_addr", conn.RemoteAddr().String()))
	}
	return present
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends the record to every connected client. A write error drops
// that client only.
func (h *Hub) Broadcast(rec models.Record) {
	h.mu.RLock()
	var failed []*websocket.Conn
	for c := range h.clients {
		if err := c.WriteJSON(rec); err != nil {
			logger.Error("feed write error", err, logger.FieldKV("remote_addr", c.RemoteAddr().String()))
			failed = append(failed, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range failed {
		h.Remove(c)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", err)
		return
	}
	s.hub.Add(conn)
	go func() {
		defer s.hub.Remove(conn)
		// Drain until the peer goes away; inbound frames are ignored.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
