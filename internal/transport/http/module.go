package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"go.uber.org/fx"

	"github.com/webitel/chat-core/config"
)

// Module wires the HTTP transport (REST companions + WebSocket upgrade
// mount) and its listener lifecycle for Fx composition.
var Module = fx.Module("transport-http",
	fx.Provide(NewRouter),
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, router http.Handler, logger *slog.Logger) {
		srv := &http.Server{
			Addr:         cfg.Server.ListenAddr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				ln, err := net.Listen("tcp", srv.Addr)
				if err != nil {
					return err
				}
				go func() {
					if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
						logger.Error("http: server exited", slog.Any("err", err))
					}
				}()
				logger.Info("http: listening", slog.String("addr", srv.Addr))
				return nil
			},
			OnStop: func(ctx context.Context) error {
				shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			},
		})
	}),
)
