package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/logger"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/middleware"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/monitoring"
)

type RouterConfig struct {
	Ledger      PortfolioService
	Quotes      QuoteService
	Auth        *middleware.AuthMiddleware
	RateLimiter *middleware.RateLimiter
	Health      *monitoring.HealthChecker
	Metrics     *monitoring.Metrics
	Logger      *logger.Logger

	// Stream serves websocket upgrades at /api/v1/stream when set.
	Stream http.Handler

	AllowedOrigins []string
	MaxBodyBytes   int64
}

// NewRouter assembles the public API. Everything under /api/v1 requires a
// bearer token; /healthz and /metrics do not.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	router := mux.NewRouter()
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log, cfg.Metrics))
	router.Use(middleware.SecureHeaders)

	if cfg.Health != nil {
		router.Handle("/healthz", cfg.Health.HTTPHandler()).Methods(http.MethodGet)
	}
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics.MetricsHandler()).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	if cfg.RateLimiter != nil {
		api.Use(cfg.RateLimiter.RateLimit)
	}
	if cfg.MaxBodyBytes > 0 {
		api.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))
	}
	api.Use(middleware.ContentTypeJSON)
	api.Use(cfg.Auth.Authenticate)

	NewPortfolioHandler(cfg.Ledger, log).Register(api)
	NewQuoteHandler(cfg.Quotes).Register(api)
	if cfg.Stream != nil {
		api.Handle("/stream", cfg.Stream).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	})
	return c.Handler(router)
}
