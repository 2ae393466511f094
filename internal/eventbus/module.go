package eventbus

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
)

// Module wires the in-process audit event bus and its router lifecycle,
// matching the teacher's NewWatermillRouter OnStart/OnStop shape.
var Module = fx.Module("eventbus",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, bus *Bus, logger *slog.Logger) {
		RegisterAuditLogger(bus, logger)
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := bus.Run(context.Background()); err != nil {
						logger.Error("eventbus: router run error", slog.Any("err", err))
					}
				}()
				return nil
			},
			OnStop: func(context.Context) error {
				return bus.Close()
			},
		})
	}),
)
