package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"mining-economy/internal/config"
	"mining-economy/internal/constants"
	fxmodules "mining-economy/internal/fx"
	"mining-economy/internal/middleware"
	"mining-economy/internal/notify"
	"mining-economy/internal/server"
	"mining-economy/internal/service"

	"github.com/jmoiron/sqlx"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runWorkers, runServer),
	).Run()
}

// runWorkers owns the background loops: the websocket hub, the market ticker and reconciliation.
func runWorkers(
	lc fx.Lifecycle,
	cfg *config.Config,
	hub *notify.Hub,
	market *service.MarketService,
	reconcile *service.ReconcileService,
	notifier *notify.Multi,
	db *sqlx.DB,
	logger zerolog.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	var g errgroup.Group

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if err := market.Load(startCtx); err != nil {
				logger.Error().Err(err).Msg("failed to load market state")
				return fmt.Errorf("failed to load market state: %w", err)
			}
			g.Go(func() error { hub.Run(ctx); return nil })
			g.Go(func() error { market.Run(ctx, cfg.MarketTickInterval); return nil })
			g.Go(func() error { reconcile.Schedule(ctx, cfg.ReconcileInterval); return nil })
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			_ = g.Wait()
			notifier.Wait(constants.ShutdownTimeout)

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			logger.Info().Msg("workers stopped")
			return nil
		},
	})
}

func runServer(
	lc fx.Lifecycle,
	economyServer *server.EconomyServer,
	hub *notify.Hub,
	cfg *config.Config,
	logger zerolog.Logger,
) {
	mux := http.NewServeMux()

	path, handler := economyServer.Handler()

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-ID", "Grpc-Status", "Grpc-Message"},
	})

	mux.Handle(path, c.Handler(handler))
	mux.HandleFunc("/ws", hub.ServeWS)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: middleware.RequestID(logger)(mux),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
				return err
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
