package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/webitel/chat-core/internal/domain/identitygate"
	"github.com/webitel/chat-core/internal/transport/ws"
)

// NewRouter assembles the full HTTP surface: the WebSocket upgrade route
// (delegated to wsHandler) and the REST companion endpoints of spec §6,
// both authenticated through the same Identity Gate.
func NewRouter(gate *identitygate.Gate, store ConversationStore, usernames UsernameResolver, presence PresenceChecker, wsHandler *ws.Handler, logger *slog.Logger) http.Handler {
	h := newHandlers(store, usernames, presence, logger)
	auth := authMiddleware(gate, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// The WebSocket handshake authenticates itself (bearer token carried as
	// a query parameter, since browsers cannot set headers on the upgrade
	// request), so it is mounted outside the REST auth middleware.
	r.Get("/ws", wsHandler.ServeHTTP)

	r.Route("/conversations", func(r chi.Router) {
		r.Use(auth)
		r.Post("/", h.CreateConversation)
		r.Get("/{id}/messages", h.Messages)
	})

	return r
}
