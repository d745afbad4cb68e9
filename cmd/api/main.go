// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tradepost/marketplace-messaging/internal/config"
	"github.com/tradepost/marketplace-messaging/internal/handler"
	"github.com/tradepost/marketplace-messaging/internal/messaging"
	"github.com/tradepost/marketplace-messaging/internal/middleware"
	"github.com/tradepost/marketplace-messaging/internal/realtime"
	"github.com/tradepost/marketplace-messaging/internal/store"
	"github.com/tradepost/marketplace-messaging/pkg/logger"
	"github.com/tradepost/marketplace-messaging/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "marketplace-messaging", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to Postgres
	pool, err := store.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("failed to connect to Postgres", zap.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		log.Error("failed to run migrations", zap.Error(err))
		os.Exit(1)
	}

	// Connect to NATS
	natsClient, err := realtime.Connect(realtime.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	bus := realtime.NewBus(natsClient, log)

	// Record collections; profile reads go through Redis when configured.
	conversations := store.NewConversations(pool)
	messages := store.NewMessages(pool, bus, log)
	listings := store.NewListings(pool)

	var profiles messaging.ProfileDirectory = store.NewProfiles(pool)
	if cfg.RedisURL != "" {
		redisClient, err := store.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("failed to connect to Redis, profile cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			profiles = store.NewCachedProfiles(profiles, redisClient, cfg.ProfileCacheTTL, log)
		}
	}

	deps := messaging.Deps{
		Conversations: conversations,
		Messages:      messages,
		Profiles:      profiles,
		Listings:      listings,
		Feed:          bus,
		Logger:        log,
	}

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient, pool)
	conversationHandler := handler.NewConversationHandler(deps, log)
	messageHandler := handler.NewMessageHandler(deps, log)
	streamHandler := handler.NewStreamHandler(deps, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Get("/resolve", conversationHandler.Resolve)
			r.Get("/{id}/messages", messageHandler.List)
		})

		r.Post("/messages", messageHandler.Send)
		r.Get("/stream", streamHandler.Stream)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
