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
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"gemchat-backend/internal/config"
	"gemchat-backend/internal/handlers"
	"gemchat-backend/internal/logger"
	"gemchat-backend/internal/services"
)

// The relay runs on its own so the Gemini credential can live apart from the
// chat backend. It reads GEMINI_API_KEY on every request.
func main() {
	cfg := config.LoadRelay()

	log, err := logger.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	geminiService := services.NewGeminiService(cfg.GeminiModel, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Handle("/", handlers.NewRelayHandler(geminiService, nil, log))

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var result *multierror.Error
		if err := server.Shutdown(ctx); err != nil {
			result = multierror.Append(result, err)
		}
		if err := geminiService.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		if err := result.ErrorOrNil(); err != nil {
			log.Error("shutdown finished with errors", zap.Error(err))
		}
	}()

	log.Info("✓ gemini-chat relay ready", zap.String("addr", server.Addr), zap.String("model", cfg.GeminiModel))

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Server error", zap.Error(err))
	}
	<-done
}
