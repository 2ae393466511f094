package cmd

import (
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/webitel/chat-core/config"
	"github.com/webitel/chat-core/internal/domain/identitygate"
	"github.com/webitel/chat-core/internal/domain/lifecycle"
	"github.com/webitel/chat-core/internal/domain/presence"
	"github.com/webitel/chat-core/internal/domain/room"
	"github.com/webitel/chat-core/internal/domain/typing"
	"github.com/webitel/chat-core/internal/eventbus"
	"github.com/webitel/chat-core/internal/store"
	httptransport "github.com/webitel/chat-core/internal/transport/http"
	"github.com/webitel/chat-core/internal/transport/ws"
)

// NewApp assembles the full composition root, mirroring the teacher's
// cmd/fx.go: a flat fx.New listing every domain module plus the
// composition-root-only providers (logger, token verifier, and the
// cross-package interface adapters).
func NewApp(cfg *config.Config, v *viper.Viper) *fx.App {
	return fx.New(
		fx.Provide(func() *config.Config { return cfg }),
		fx.Provide(ProvideLogger, ProvideTokenVerifier),
		fx.Provide(interfaceAdapters...),

		store.Module,
		identitygate.Module,
		presence.Module,
		room.Module,
		typing.Module,
		eventbus.Module,
		lifecycle.Module,
		ws.Module,
		httptransport.Module,

		fx.Invoke(func(engine *lifecycle.Engine) {
			config.WatchLifecycle(v, func(lc config.LifecycleConfig) {
				engine.SetTunables(lc.DeliverDelay, lc.MaxContentRunes)
			})
		}),
	)
}
