package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/webitel/chat-core/internal/domain/identitygate"
	"github.com/webitel/chat-core/internal/domain/lifecycle"
	"github.com/webitel/chat-core/internal/domain/presence"
	"github.com/webitel/chat-core/internal/domain/room"
	"github.com/webitel/chat-core/internal/domain/typing"
)

// UsernameResolver is the narrow slice of the Store Adapter the handler
// needs to expand a verified principal's display name.
type UsernameResolver interface {
	FindUsernameByID(ctx context.Context, userID string) (string, error)
}

// Handler upgrades HTTP connections to the chat event channel (spec §6
// "Connection handshake") and wires a Session into every domain component.
type Handler struct {
	gate      *identitygate.Gate
	presence  *presence.Registry
	room      *room.Router
	typing    *typing.Tracker
	lifecycle *lifecycle.Engine
	usernames UsernameResolver
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

// NewHandler builds a Handler.
func NewHandler(
	gate *identitygate.Gate,
	presenceRegistry *presence.Registry,
	roomRouter *room.Router,
	typingTracker *typing.Tracker,
	lifecycleEngine *lifecycle.Engine,
	usernames UsernameResolver,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		gate:      gate,
		presence:  presenceRegistry,
		room:      roomRouter,
		typing:    typingTracker,
		lifecycle: lifecycleEngine,
		usernames: usernames,
		logger:    logger,
		upgrader: websocket.Upgrader{
			// Origin checking is delegated to the HTTP layer in front of
			// this handler (spec treats CORS policy as a transport
			// concern external to the core).
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ")
}

// ServeHTTP implements spec §4.1's handshake: verify, then upgrade only on
// success. A rejection never upgrades the connection (spec: "On rejection
// the connection MUST NOT be upgraded").
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, err := h.gate.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		h.logger.Debug("ws: handshake rejected", slog.Any("err", err))
		http.Error(w, identitygate.ErrAuthentication.Error(), http.StatusUnauthorized)
		return
	}

	username, err := h.usernames.FindUsernameByID(r.Context(), principal.UserID)
	if err != nil {
		h.logger.Warn("ws: could not resolve username at handshake", slog.Any("err", err))
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.Any("err", err))
		return
	}

	session := newSession(conn, principal.UserID, username, h.logger)
	h.presence.Attach(r.Context(), session)

	// spec §4.5 "On recipient connect": catch up any message that went
	// unacknowledged while this user was offline.
	if err := h.lifecycle.OnConnect(context.Background(), principal.UserID); err != nil {
		h.logger.Warn("ws: reconnect catch-up failed", slog.String("user_id", principal.UserID), slog.Any("err", err))
	}

	go session.writePump()
	h.readPump(session)
}

// readPump owns the connection's read side exclusively until it errors or
// closes, then runs every disconnect cleanup spec §4.3/§4.4/§5 require.
func (h *Handler) readPump(s *Session) {
	defer h.onDisconnect(s)

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("ws: unexpected close", slog.String("user_id", s.userID), slog.Any("err", err))
			}
			return
		}
		h.dispatch(s, data)
	}
}

func (h *Handler) onDisconnect(s *Session) {
	ctx := context.Background()
	h.presence.Detach(ctx, s.userID, s.handle)
	h.room.PurgeSession(s.handle)
	h.typing.StopAll(s.userID, s.username, s.handle)
	h.lifecycle.OnSessionDisconnect(s.userID)
	s.Close()
	h.logger.Debug("ws: session closed", slog.String("user_id", s.userID))
}
