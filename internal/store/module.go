package store

import (
	"context"

	"go.uber.org/fx"

	"github.com/webitel/chat-core/config"
)

// Module wires the Store Adapter for Fx composition: a SQLite-backed store,
// wrapped in a circuit breaker, wrapped in a read-through cache.
var Module = fx.Module("store",
	fx.Provide(func(cfg *config.Config) (Store, error) {
		sqlite, err := NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return NewCachedStore(NewResilientStore(sqlite)), nil
	}),
	fx.Invoke(func(lc fx.Lifecycle, s Store) {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return s.Close()
			},
		})
	}),
)
