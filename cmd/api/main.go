package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mkurbatov/go-shop/internal/cache"
	"github.com/mkurbatov/go-shop/internal/config"
	"github.com/mkurbatov/go-shop/internal/database"
	"github.com/mkurbatov/go-shop/internal/httpapi"
	"github.com/mkurbatov/go-shop/internal/metrics"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	logger := log.WithField("component", "api")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}

	db, err := database.NewConnection(context.Background(), &cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("connect to database")
	}
	defer db.Close()

	logger.Info("connected to database")

	var c *cache.Cache
	if cfg.Redis.Disabled {
		c = cache.Disabled()
	} else {
		c = cache.New(cfg.Redis.Addr)
	}
	defer c.Close()

	m := metrics.New()
	router := httpapi.NewRouter(db, c, m)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
}
