package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-chat-realtime/internal/auth"
	"go-chat-realtime/internal/chat"
	"go-chat-realtime/internal/config"
	"go-chat-realtime/internal/metrics"
	"go-chat-realtime/internal/presence"
	"go-chat-realtime/internal/redis"
	"go-chat-realtime/internal/store"
	"go-chat-realtime/internal/store/mongostore"
	"go-chat-realtime/internal/store/sqlstore"
	"go-chat-realtime/internal/typing"
	"go-chat-realtime/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable presence/typing backend. Probed once; on failure the process
	// runs on the local stores until restart.
	var (
		durablePresence presence.Store
		durableTyping   typing.Store
	)
	redisClient, err := redis.Probe(ctx, cfg.RedisURL, cfg.RedisProbeAttempts, cfg.RedisProbeTimeout)
	if err != nil {
		slog.Warn("[REDIS] Durable backend unavailable, using in-process stores", "error", err)
	} else {
		defer redisClient.Close()
		durablePresence = presence.NewRedisStore(redisClient.Redis())
		durableTyping = typing.NewRedisStore(redisClient.Redis(), cfg.TypingTTL, time.Now)
	}
	presenceStore := presence.NewResilient(durablePresence, presence.NewLocalStore())
	typingStore := typing.NewResilient(durableTyping, typing.NewLocalStore(cfg.TypingTTL, time.Now))

	docs, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to open document store: ", err)
	}
	defer docs.Close()

	hub := ws.NewHub()
	svc := chat.NewService(docs, typingStore, hub)
	gate := ws.NewGate(hub, auth.NewVerifier(cfg.JWTSecret), docs, presenceStore, svc, ws.GateConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		EventRate:      cfg.EventRate,
		EventBurst:     cfg.EventBurst,
	})

	// Routes
	mux := http.NewServeMux()
	mux.Handle("/ws", gate)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("WebSocket server starting", "addr", srv.Addr, "store", cfg.StoreDriver, "durable", presenceStore.Durable())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down", "sessions", hub.ClientCount())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}

func setupLogger(cfg *config.Config) {
	var level slog.Level
	_ = level.UnmarshalText([]byte(cfg.LogLevel))

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "mongo":
		slog.Info("[STORE] Using MongoDB", "database", cfg.MongoDatabase)
		return mongostore.Open(ctx, mongostore.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
	default:
		slog.Info("[STORE] Using SQLite", "path", cfg.SQLitePath)
		return sqlstore.Open(cfg.SQLitePath)
	}
}
