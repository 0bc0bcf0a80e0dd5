package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supportchat/backend/internal/config"
	"supportchat/backend/internal/db"
	"supportchat/backend/internal/server"
	logx "supportchat/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logx.Fatal().Err(err).Msg("load config failed")
	}
	logx.Init(logx.Options{Production: cfg.IsProduction()})
	if err := cfg.Validate(); err != nil {
		logx.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logx.Fatal().Err(err).Msg("database connect failed")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logx.Fatal().Err(err).Msg("database ping failed")
	}
	if err := db.EnsureSchema(ctx, pool); err != nil {
		logx.Fatal().Err(err).Msg("database schema setup failed")
	}

	ai, err := server.NewGeminiClient(ctx, cfg)
	if err != nil {
		logx.Fatal().Err(err).Msg("gemini client setup failed")
	}

	app := server.New(cfg, pool, ai)
	httpServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logx.Info().Str("port", cfg.AppPort).Msg("supportchat api listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("graceful shutdown failed")
	}
}
