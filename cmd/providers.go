package cmd

import (
	"log/slog"
	"os"

	"github.com/webitel/chat-core/config"
	"github.com/webitel/chat-core/internal/domain/identitygate"
	"github.com/webitel/chat-core/internal/domain/lifecycle"
	"github.com/webitel/chat-core/internal/domain/presence"
	"github.com/webitel/chat-core/internal/domain/room"
	"github.com/webitel/chat-core/internal/domain/typing"
	"github.com/webitel/chat-core/internal/store"
	httptransport "github.com/webitel/chat-core/internal/transport/http"
	"github.com/webitel/chat-core/internal/transport/ws"
)

// ProvideLogger builds the process-wide structured logger, grounded on the
// teacher's log/slog usage throughout cmd/fx.go.
func ProvideLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// ProvideTokenVerifier builds the Identity Gate's JWT verifier from
// config-sourced secret material. It lives at the composition root, not in
// identitygate/module.go, since the gate's own package must stay ignorant
// of where its secret comes from.
func ProvideTokenVerifier(cfg *config.Config) identitygate.TokenVerifier {
	return identitygate.NewJWTVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer)
}

// interfaceAdapters narrows the Store Adapter and binds concrete domain
// components to the narrow interfaces their sibling packages declare for
// themselves. Every domain package intentionally avoids importing another
// domain package directly (spec's package-isolation convention); the
// composition root is where those edges are actually drawn.
var interfaceAdapters = []any{
	func(s store.Store) identitygate.UserLookup { return s },
	func(s store.Store) presence.UserStore { return s },
	func(s store.Store) room.ConversationStore { return s },
	func(s store.Store) lifecycle.Store { return s },
	func(s store.Store) ws.UsernameResolver { return s },
	func(s store.Store) httptransport.ConversationStore { return s },
	func(s store.Store) httptransport.UsernameResolver { return s },
	func(r *room.Router) lifecycle.RoomEmitter { return r },
	func(r *room.Router) typing.Emitter { return r },
	func(p *presence.Registry) room.UserLocator { return p },
	func(p *presence.Registry) lifecycle.PresenceChecker { return p },
	func(p *presence.Registry) httptransport.PresenceChecker { return p },
}
