package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/mkurbatov/go-shop/internal/cache"
	"github.com/mkurbatov/go-shop/internal/config"
	"github.com/mkurbatov/go-shop/internal/database"
	"github.com/mkurbatov/go-shop/internal/metrics"
	"github.com/mkurbatov/go-shop/internal/queue"
	"github.com/mkurbatov/go-shop/internal/worker"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	logger := log.WithField("component", "worker-main")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("connect to database")
	}
	defer db.Close()

	var c *cache.Cache
	if cfg.Redis.Disabled {
		c = cache.Disabled()
	} else {
		c = cache.New(cfg.Redis.Addr)
	}
	defer c.Close()

	deadLetter := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.DeadLetterTopic)
	defer deadLetter.Close()

	m := metrics.New()
	w := worker.New(db, c, m)

	productConsumer := queue.NewConsumer(queue.ConsumerConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		Topic:          cfg.Kafka.ProductTopic,
		Workers:        cfg.Kafka.Workers,
		HandlerTimeout: cfg.Kafka.HandlerTimeout,
		MaxRetries:     cfg.Kafka.MaxRetries,
	}, deadLetter, worker.Retryable, m)
	orderConsumer := queue.NewConsumer(queue.ConsumerConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		Topic:          cfg.Kafka.OrderTopic,
		Workers:        cfg.Kafka.Workers,
		HandlerTimeout: cfg.Kafka.HandlerTimeout,
		MaxRetries:     cfg.Kafka.MaxRetries,
	}, deadLetter, worker.Retryable, m)

	go func() {
		logger.WithField("topic", cfg.Kafka.ProductTopic).Info("product consumer started")
		if err := productConsumer.Start(ctx, w.HandleProductMessage); err != nil {
			logger.WithError(err).Error("product consumer exited")
			cancel()
		}
	}()

	go func() {
		logger.WithField("topic", cfg.Kafka.OrderTopic).Info("order consumer started")
		if err := orderConsumer.Start(ctx, w.HandleOrderMessage); err != nil {
			logger.WithError(err).Error("order consumer exited")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		logger.Info("shutting down consumers")
	case <-ctx.Done():
	}
	cancel()
}
