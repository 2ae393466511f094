package lifecycle

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/chat-core/config"
	"github.com/webitel/chat-core/internal/eventbus"
)

// newEngine wires the audit-event bus into the engine as a Publisher and
// applies the configured timing knobs at construction, keeping the
// package's own New constructor free of a config import.
func newEngine(store Store, room RoomEmitter, presence PresenceChecker, bus *eventbus.Bus, cfg *config.Config, logger *slog.Logger) *Engine {
	return New(store, room, presence, logger,
		WithPublisher(bus),
		WithDeliverDelay(cfg.Lifecycle.DeliverDelay),
		WithMaxContentRunes(cfg.Lifecycle.MaxContentRunes),
	)
}

// Module wires the Message Lifecycle Engine for Fx composition.
var Module = fx.Module("lifecycle",
	fx.Provide(newEngine),
)
