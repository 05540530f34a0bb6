// Package realtime is the in-app notification channel: one websocket per user session.
package realtime

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrNoSession = errors.New("realtime: user has no open connection")

type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(v)
}

// Hub tracks open connections per user.
type Hub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[*session]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &Hub{
		sessions: make(map[uuid.UUID]map[*session]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		log: log.With(zap.String("component", "realtime")),
	}
}

// Serve upgrades the request and keeps the connection registered until the client leaves.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", zap.Error(err), zap.String("user_id", userID.String()))
		return
	}

	s := &session{conn: conn}
	h.add(userID, s)
	defer func() {
		h.remove(userID, s)
		conn.Close()
	}()

	// reads only detect disconnects; clients do not send anything meaningful
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Push sends v to every open connection of userID.
func (h *Hub) Push(userID uuid.UUID, v any) error {
	h.mu.RLock()
	targets := make([]*session, 0, len(h.sessions[userID]))
	for s := range h.sessions[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return ErrNoSession
	}

	var firstErr error
	for _, s := range targets {
		if err := s.send(v); err != nil {
			h.log.Warn("Websocket send failed", zap.Error(err), zap.String("user_id", userID.String()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (h *Hub) add(userID uuid.UUID, s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[*session]struct{})
	}
	h.sessions[userID][s] = struct{}{}
}

func (h *Hub) remove(userID uuid.UUID, s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions[userID], s)
	if len(h.sessions[userID]) == 0 {
		delete(h.sessions, userID)
	}
}
