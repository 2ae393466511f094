package typing

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/chat-core/config"
)

func newTracker(room Emitter, cfg *config.Config, logger *slog.Logger) *Tracker {
	return New(room, logger, WithIdleTimeout(cfg.Lifecycle.TypingIdle))
}

// Module wires the Typing Tracker for Fx composition.
var Module = fx.Module("typing",
	fx.Provide(newTracker),
	fx.Invoke(func(lc fx.Lifecycle, t *Tracker) {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				t.Shutdown()
				return nil
			},
		})
	}),
)
