package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geoping/internal/config"
	"geoping/internal/handlers"
	"geoping/internal/logging"
	"geoping/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("config error")
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	db, err := repository.ConnectWithRetry(repository.Options{
		Driver:    cfg.DBDriver,
		DSN:       cfg.DBDSN,
		SlowQuery: cfg.DBSlowQuery,
	}, cfg.DBConnectAttempts, cfg.DBConnectDelay)
	if err != nil {
		logging.Fatal().Err(err).Msg("db connect error")
	}

	repo := repository.NewLocationRepository(db)
	router := handlers.NewRouter(
		handlers.NewLocationHandler(repo),
		handlers.NewHealthHandler(repo),
		cfg.CORSAllowedOrigins,
	)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logging.Info().Str("addr", srv.Addr).Str("driver", cfg.DBDriver).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("shutdown error")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
