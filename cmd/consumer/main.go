package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/config"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/kafka"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConsumer()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	consumer := kafka.NewConsumer(cfg.Brokers(), cfg.AuditTopic, cfg.GroupID, log)
	defer func() {
		if err := consumer.Close(); err != nil {
			log.Warn("failed to close audit reader", zap.Error(err))
		}
	}()

	log.Info("audit consumer started", zap.Strings("brokers", cfg.Brokers()), zap.String("topic", cfg.AuditTopic))

	err = consumer.Run(ctx, func(d kafka.Delivery) {
		fmt.Printf("%s  %-16s %-7s p%d/%d",
			d.Event.Timestamp.Format(time.RFC3339), d.Event.Action, d.Event.Outcome, d.Partition, d.Offset)
		if d.Event.OrderID != "" {
			fmt.Printf("  order=%s", d.Event.OrderID)
		}
		if d.Event.Detail != "" {
			fmt.Printf("  %s", d.Event.Detail)
		}
		fmt.Println()
	})
	if err != nil {
		log.Error("audit consumer stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("audit consumer stopped")
}
