package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auth-rotation/internal/config"
	"auth-rotation/pkg/logger"
	"auth-rotation/pkg/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	backends, err := utils.OpenBackends(rootCtx, cfg, log)
	if err != nil {
		log.Error("backend init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := backends.Close(); err != nil {
			log.Error("backend close failed", "err", err)
		}
	}()

	a, err := newApp(cfg, backends, log)
	if err != nil {
		log.Error("app init failed", "err", err)
		os.Exit(1)
	}

	// Expired refresh records are dropped in the background.
	go a.records.Sweep(rootCtx, cfg.Session.SweepInterval, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening",
			"addr", srv.Addr,
			"env", cfg.App.Env,
			"reuse_policy", cfg.Session.ReusePolicy,
			"debug_endpoints", cfg.App.DebugEndpoints,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
