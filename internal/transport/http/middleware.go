// Package http assembles the REST companion surface spec §6 names
// alongside the realtime core: the conversation bootstrap endpoint and the
// message history read endpoint, both sharing the Store Adapter with the
// WebSocket transport. Grounded on the teacher's internal/handler/lp's use
// of chi.URLParam for path extraction; no router-assembly file survives in
// the retrieved source, so the mounting itself follows chi's own
// idiomatic chi.NewRouter()/r.Route() convention (documented in DESIGN.md).
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/webitel/chat-core/internal/domain/identitygate"
)

type principalKey struct{}

// principalFrom extracts the authenticated principal a prior middleware
// stored on the request context.
func principalFrom(ctx context.Context) (identitygate.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(identitygate.Principal)
	return p, ok
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ")
}

// authMiddleware runs every REST request through the same Identity Gate the
// WebSocket handshake uses, so the two transports never diverge on who
// counts as authenticated (spec §4.1).
func authMiddleware(gate *identitygate.Gate, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := gate.Authenticate(r.Context(), bearerToken(r))
			if err != nil {
				logger.Debug("http: rejected", slog.Any("err", err))
				http.Error(w, identitygate.ErrAuthentication.Error(), http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
