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

	"ytfetch/internal/bootstrap"
	"ytfetch/internal/config"
	httptransport "ytfetch/internal/transport/http"

	"github.com/rs/cors"
	"golang.org/x/time/rate"
)

func main() {
	cfg := config.Load()
	logger := bootstrap.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	app.Service.StartJanitor(ctx, cfg.JanitorInterval, cfg.JobRetention)

	handler := httptransport.NewHandler(app.Service, logger)
	router := httptransport.NewRouter(handler, rate.NewLimiter(rate.Limit(cfg.SubmitRate), cfg.SubmitBurst))

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Range"},
		ExposedHeaders: []string{"Content-Disposition", "Content-Range"},
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", "addr", cfg.ServerAddr, "backend", cfg.Backend, "job_store", cfg.JobStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := app.Close(shutdownCtx); err != nil {
		logger.Warn("download service shutdown", "error", err)
	}
}
