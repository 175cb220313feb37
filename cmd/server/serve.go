package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/cache"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/config"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/handlers"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/ledger"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/logger"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/middleware"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/monitoring"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/repository"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/stream"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(load loadFunc) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, log, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger, migrate bool) error {
	metrics := monitoring.NewMetrics("papertrade")
	health := monitoring.NewHealthChecker(30 * time.Second)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		health.RegisterCheck("database", monitoring.DatabaseCheck(db.DB))

		if migrate {
			if err := repository.Migrate(ctx, db); err != nil {
				return err
			}
		}
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	var snapshots cache.SnapshotStore
	if cfg.Redis.Enabled {
		client, rs, err := newRedisStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		snapshots = rs
		health.RegisterCheck("redis", monitoring.PingCheck("redis", rs.Ping))
	}

	quotes := cache.NewQuoteCache(provider, cache.Options{
		FetchTimeout:      cfg.MarketData.FetchTimeout,
		ServeStaleOnError: cfg.QuoteCache.ServeStaleOnError,
		Store:             snapshots,
		Logger:            log,
		Metrics:           metrics,
	})

	var (
		observer ledger.TradeObserver
		streamer http.Handler
	)
	if cfg.Stream.Enabled {
		hub := stream.NewHub(quotes, stream.Config{
			PushInterval:   cfg.Stream.PushInterval,
			MaxSymbols:     cfg.Stream.MaxSymbols,
			SendBuffer:     cfg.Stream.SendBuffer,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			Logger:         log,
			Metrics:        metrics,
		})
		go hub.Run(ctx)
		observer, streamer = hub, hub
	}

	l := ledger.New(newStore(db), quotes, ledger.Config{
		StartingBalance: cfg.StartingBalance(),
		Currency:        cfg.Ledger.Currency,
		LockTimeout:     cfg.Ledger.LockTimeout,
		MaxRetries:      cfg.Ledger.MaxRetries,
		Observer:        observer,
		Logger:          log,
		Metrics:         metrics,
	})

	warmer := cache.NewWarmer(quotes, cfg.QuoteCache.WarmSymbols, cfg.QuoteCache.WarmInterval, log)
	go warmer.Start(ctx)
	defer warmer.Stop()

	limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.Burst)
	go limiter.Cleanup(ctx, time.Minute, 3*time.Minute)

	health.StartChecks(ctx)
	metrics.StartMetricsCollection(15*time.Second, ctx.Done())

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.App.Port),
		Handler: handlers.NewRouter(handlers.RouterConfig{
			Ledger:         l,
			Quotes:         quotes,
			Auth:           middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
			RateLimiter:    limiter,
			Health:         health,
			Metrics:        metrics,
			Logger:         log,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
			Stream:         streamer,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("Server starting",
			"port", cfg.App.Port,
			"env", cfg.App.Env,
			"store", cfg.Database.Driver,
			"market_data", provider.Name(),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
