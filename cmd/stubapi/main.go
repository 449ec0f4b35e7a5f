package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/config"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/logger"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadStub()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	srv := server.New(server.NewMemoryStorage(), server.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL), log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(cfg.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("stub API stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("stub API gracefully stopped")
}
