// Command widgetd serves the customer support widget API: the visitor
// widget surface, the agent console surface, and the realtime feeds that
// keep both in sync.
package main

import (
	"context"
	"errors"
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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helplane/support-widget/internal/brand"
	"github.com/helplane/support-widget/internal/config"
	"github.com/helplane/support-widget/internal/flow"
	"github.com/helplane/support-widget/internal/handler"
	"github.com/helplane/support-widget/internal/middleware"
	"github.com/helplane/support-widget/internal/model"
	"github.com/helplane/support-widget/internal/navstate"
	"github.com/helplane/support-widget/internal/realtime"
	"github.com/helplane/support-widget/internal/service"
	"github.com/helplane/support-widget/internal/session"
	"github.com/helplane/support-widget/internal/store/supabase"
	"github.com/helplane/support-widget/pkg/logger"
	"github.com/helplane/support-widget/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "widgetd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting widgetd",
		zap.String("port", cfg.ServerPort),
		zap.String("store_driver", cfg.StoreDriver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "widgetd", cfg.TracingEndpoint)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	// Persistence.
	db, err := supabase.New(supabase.Config{
		URL:    cfg.SupabaseURL,
		APIKey: cfg.SupabaseAPIKey,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create supabase client: %w", err)
	}

	// Realtime feed.
	rt, err := realtime.Connect(realtime.Config{
		URL:   cfg.NATSURL,
		Token: cfg.NATSToken,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer rt.Close()

	feed := realtime.NewFeed(rt)
	if err := feed.EnsureStream(ctx); err != nil {
		return fmt.Errorf("failed to ensure stream: %w", err)
	}

	// Session cache and navigation state.
	var (
		sessions session.Store
		nav      navstate.Store
	)
	switch cfg.StoreDriver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		sessions, err = session.NewStore(session.DriverRedis,
			session.WithRedisClient(rdb),
			session.WithTTL(cfg.SessionTTL),
		)
		if err != nil {
			return fmt.Errorf("failed to create session store: %w", err)
		}
		nav = navstate.NewRedis(rdb, cfg.NavStateTTL, log)
	default:
		sessions, _ = session.NewStore(session.DriverMemory)
		nav = navstate.NewMemory()
	}
	defer sessions.Close()

	// Services.
	brandProvider := brand.NewProvider(db, log)
	messages := service.NewMessages(db, db, feed, log)

	registry := flow.NewRegistry(func() *flow.Engine {
		return flow.New(flow.Options{
			Messages:   messages,
			Presets:    db,
			Feed:       feed,
			Nav:        nav,
			Texts:      brandProvider,
			ReplyDelay: cfg.AutoReplyDelay,
			Logger:     log,
		})
	})
	defer registry.Shutdown()

	// Handlers.
	widgetHandler := handler.NewWidgetHandler(registry, messages, db, sessions, brandProvider, feed, log)
	agentHandler := handler.NewAgentHandler(db, messages, feed, log)
	defer agentHandler.Shutdown()
	healthHandler := handler.NewHealthHandler(rt)

	// Router.
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-ID", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/widget", func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

			r.Get("/brand", widgetHandler.Brand)
			r.Post("/chats", widgetHandler.StartChat)
			r.Route("/chats/{id}", func(r chi.Router) {
				r.Get("/messages", widgetHandler.ListMessages)
				r.Post("/messages", widgetHandler.SendMessage)
				r.Post("/presets/{presetID}", widgetHandler.SelectPreset)
				r.Get("/stream", widgetHandler.Stream)
			})
		})

		r.Route("/agent", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Use(middleware.RequireRole(model.RoleAgent, model.RoleAdmin))
			r.Use(middleware.AgentRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

			r.Get("/chats", agentHandler.ListChats)
			r.Get("/stream", agentHandler.Stream)
			r.Route("/chats/{id}", func(r chi.Router) {
				r.Post("/assign", agentHandler.Assign)
				r.Post("/resolve", agentHandler.Resolve)
				r.Post("/messages", agentHandler.SendMessage)
				r.Post("/read", agentHandler.MarkRead)
			})
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}
