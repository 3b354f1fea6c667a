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

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"gemchat-backend/internal/config"
	"gemchat-backend/internal/database"
	"gemchat-backend/internal/handlers"
	"gemchat-backend/internal/logger"
	"gemchat-backend/internal/middleware"
	"gemchat-backend/internal/repository"
	"gemchat-backend/internal/router"
	"gemchat-backend/internal/services"
	"gemchat-backend/internal/transcription"
	"gemchat-backend/internal/websocket"
	"gemchat-backend/migrations"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("🚀 Starting GemChat Backend...", zap.String("env", cfg.Env))

	var closers []func() error

	// ──── Step 2: Initialize Message Store ────
	var store services.MessageStore
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("✗ PostgreSQL connection failed", zap.Error(err))
		}
		closers = append(closers, func() error { pool.Close(); return nil })

		if err := database.RunMigrations(context.Background(), pool, migrations.FS, log); err != nil {
			log.Fatal("✗ Database migration failed", zap.Error(err))
		}
		store = repository.NewMessageRepo(pool)

	case config.StoreDriverSQLite:
		db, err := database.NewSQLiteDB(cfg.SQLitePath, cfg.IsDevelopment(), &repository.MessageRecord{})
		if err != nil {
			log.Fatal("✗ SQLite open failed", zap.Error(err))
		}
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatal("✗ SQLite handle unavailable", zap.Error(err))
		}
		closers = append(closers, sqlDB.Close)
		store = repository.NewSQLiteMessageRepo(db)

	case config.StoreDriverMemory:
		store = repository.NewMemoryMessageRepo()

	default:
		log.Fatal("✗ Unknown STORE_DRIVER", zap.String("driver", cfg.StoreDriver))
	}
	log.Info("✓ Message store ready", zap.String("driver", cfg.StoreDriver))

	// ──── Step 3: Initialize Redis Clients ────
	redisClients := &database.RedisClients{}
	if cfg.RedisURL != "" {
		redisClients, err = database.NewRedisClients(cfg.RedisURL)
		if err != nil {
			log.Fatal("✗ Redis connection failed", zap.Error(err))
		}
		closers = append(closers, redisClients.Close)
		log.Info("✓ Redis connected")
	} else {
		log.Warn("REDIS_URL not set, websocket events stay on this instance")
	}

	// ──── Step 4: Initialize Gemini Client ────
	geminiService := services.NewGeminiService(cfg.GeminiModel, log)
	closers = append(closers, geminiService.Close)

	var speechEngine transcription.Engine
	if cfg.GeminiAPIKey != "" {
		speechEngine = services.NewGeminiSpeechEngine(geminiService, cfg.GeminiAPIKey)
		log.Info("✓ Gemini speech engine enabled")
	} else {
		log.Warn("GEMINI_API_KEY not set, speech input disabled and relay calls will fail")
	}

	// ──── Step 5: Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	wsHub := websocket.NewHub(redisClients.Publish, redisClients.PubSub, jwtAuth, log)
	relayClient := services.NewRelayClient(cfg.RelayURL, cfg.RelayAnonKey, &http.Client{}, log)
	chatService := services.NewChatService(store, relayClient, wsHub, speechEngine, cfg.MaxImageBytes, log)

	evictCtx, stopEviction := context.WithCancel(context.Background())
	defer stopEviction()
	go chatService.RunEviction(evictCtx, time.Minute, cfg.SessionIdleTimeout)

	// ──── Step 6: Initialize Handlers ────
	relayHandler := handlers.NewRelayHandler(geminiService, nil, log)
	chatHandler := handlers.NewChatHandler(chatService, log)
	speechHandler := handlers.NewSpeechHandler(chatService, jwtAuth, log)

	// ──── Step 7: Start HTTP Server ────
	r := router.New(jwtAuth, chatHandler, speechHandler, relayHandler, wsHub, cfg.FrontendURL)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down...")
		stopEviction()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var result *multierror.Error
		if err := server.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("http server: %w", err))
		}
		wsHub.Close()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if err := result.ErrorOrNil(); err != nil {
			log.Error("shutdown finished with errors", zap.Error(err))
		}
	}()

	log.Info(fmt.Sprintf("✓ GemChat Backend ready on http://localhost:%s", cfg.Port),
		zap.String("api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port)),
		zap.String("ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port)),
		zap.String("relay", cfg.RelayURL),
	)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Server error", zap.Error(err))
	}
	<-done
}
