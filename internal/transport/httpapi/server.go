package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/flywheel-gateway/control-plane/config"
	"github.com/flywheel-gateway/control-plane/internal/transport/ws"
)

// NewServer composes the chi router with the WebSocket upgrade handler
// mounted at /ws (spec §6.1) into a single http.Server.
func NewServer(cfg config.Config, router *Router, wsHandler *ws.Handler) *http.Server {
	mux := router.Mux()
	mux.Handle("/ws", wsHandler)

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: mux,
	}
}

// RegisterLifecycle starts srv in the background on fx start and shuts
// it down gracefully on fx stop, the same ListenAndServe-in-goroutine
// shape the teacher's fx.Hook wiring uses for the gRPC server.
func RegisterLifecycle(lc fx.Lifecycle, logger *slog.Logger, srv *http.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("httpapi: server error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
