package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-hardware-checkout/internal/config"
	"github.com/ariefcatur/go-hardware-checkout/internal/events"
	kafkax "github.com/ariefcatur/go-hardware-checkout/internal/kafka"
	"github.com/ariefcatur/go-hardware-checkout/internal/logger"
	"github.com/ariefcatur/go-hardware-checkout/internal/redisx"
	"github.com/ariefcatur/go-hardware-checkout/internal/stockwatch"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &stockwatch.Service{Redis: rdb, ServiceName: cfg.ServiceName + "-stockwatch", Log: log}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.StockwatchGroup, events.TopicLowStock, cfg.StockwatchWorkers, log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("stockwatch consumer started",
			zap.String("group", cfg.StockwatchGroup),
			zap.String("topic", events.TopicLowStock),
			zap.Int("workers", cfg.StockwatchWorkers))
		if err := cons.Start(ctx, svc.HandleLowStock); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("shutting down consumer")
	case <-ctx.Done():
	}
	cancel()
	<-done
}
