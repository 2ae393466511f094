// Package ws implements spec §4's transport layer: the authenticated
// bidirectional event channel between a client and the server. Grounded on
// the read-pump/write-pump client idiom from the pack's multi-room chat
// reference (other_examples/.../rooms-client.go) and the event-envelope
// marshalling shape from the teacher's
// internal/handler/marshaller/ws/marshaller.go, retargeted at spec §6's
// closed event vocabulary instead of a generic WSEvent wrapper.
package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/webitel/chat-core/internal/domain/event"
	"github.com/webitel/chat-core/internal/domain/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 256
)

// Session is one connected client; it implements model.Session so every
// domain package can address it without importing this transport package.
type Session struct {
	conn     *websocket.Conn
	handle   model.SessionHandle
	userID   string
	username string
	logger   *slog.Logger

	send      chan event.Envelope
	closeOnce sync.Once
	closeMu   sync.RWMutex
	closed    bool
}

func newSession(conn *websocket.Conn, userID, username string, logger *slog.Logger) *Session {
	return &Session{
		conn:     conn,
		handle:   model.SessionHandle(uuid.NewString()),
		userID:   userID,
		username: username,
		logger:   logger,
		send:     make(chan event.Envelope, sendBuffer),
	}
}

// Handle returns the session's opaque runtime identifier.
func (s *Session) Handle() model.SessionHandle { return s.handle }

// UserID returns the authenticated user this session belongs to.
func (s *Session) UserID() string { return s.userID }

// Deliver enqueues e for the write pump, dropping it under backpressure
// rather than blocking the caller (spec §5). After Close it drops e.
func (s *Session) Deliver(e event.Envelope) bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- e:
		return true
	default:
		return false
	}
}

// Close shuts the session down idempotently; safe to call from both the
// read pump (on disconnect) and the Presence Registry (on replacement).
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closed = true
		close(s.send)
		s.closeMu.Unlock()
	})
}

// writePump owns the connection's write side exclusively (spec: "at most
// one writer per connection"), fanning out queued envelopes and periodic
// pings until send is closed.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case e, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := e.Marshal()
			if err != nil {
				s.logger.Error("ws: marshal outbound event failed", slog.Any("err", err))
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
