package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/config"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/gateway"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/handler"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/kafka"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/lifecycle"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/logger"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/session"
)

func main() {
	ephemeral := flag.Bool("ephemeral", false, "keep the session in memory only")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	if cfg.EnvFile != "" {
		log.Info("loaded env file", zap.String("path", cfg.EnvFile))
	}

	if err := run(ctx, cfg, log, *ephemeral); err != nil {
		log.Error("dispatch client stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Client, log *zap.Logger, ephemeral bool) error {
	var store session.Store = session.NewMemoryStore()
	if !ephemeral {
		fileStore, err := session.NewFileStore(cfg.SessionFile, log)
		if err != nil {
			return err
		}
		log.Debug("session file", zap.String("path", fileStore.Path()))
		store = fileStore
	}

	var producer kafka.Producer = kafka.NewConsoleProducer(log)
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		producer = kafka.NewWriterProducer(brokers)
	}
	audit := kafka.NewPublisher(producer, cfg.AuditTopic, log)
	defer func() {
		if err := audit.Close(); err != nil {
			log.Warn("failed to close audit producer", zap.Error(err))
		}
	}()

	gw := gateway.New(gateway.Config{BaseURL: cfg.APIURL, Timeout: cfg.APITimeout}, log)

	control := lifecycle.New(gw, store, log)
	control.Subscribe(handler.AuditTransitions(audit))

	restored, err := control.Restore()
	if err != nil {
		log.Warn("could not restore the previous session", zap.Error(err))
	}

	h := handler.New(os.Stdout, gw, control, audit, log)
	if restored {
		fmt.Println("Welcome back, your previous session was restored.")
	}

	g, gctx := errgroup.WithContext(ctx)

	replDone := make(chan struct{})
	g.Go(func() error {
		defer close(replDone)
		return h.Run(gctx, os.Stdin)
	})

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-replDone:
			}
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
