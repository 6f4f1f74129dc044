package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"smartattendance/internal/config"
	"smartattendance/internal/metrics"
	"smartattendance/internal/queue"
	"smartattendance/internal/store"
)

var logger = loggo.GetLogger("attendance.worker")

// Worker drains state snapshots published by the api into the state
// backend. Only one worker should run per queue so writes stay ordered.
func main() {
	cfg := config.Load()
	if err := loggo.ConfigureLoggers(cfg.LogConfig); err != nil {
		logger.Warningf("log config %q: %v", cfg.LogConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Criticalf("invalid config: %v", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		logger.Criticalf("worker failed: %v", errors.ErrorStack(err))
		os.Exit(1)
	}
}

func run(cfg config.App) error {
	if cfg.QueueBackend != "redis" {
		return errors.NotValidf("QUEUE_BACKEND %q for worker (the api drains the memory queue itself)", cfg.QueueBackend)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedisClient(cfg.RedisAddr)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warningf("redis not reachable at %s: %v", cfg.RedisAddr, err)
	}

	backend, err := store.Open(ctx, store.Settings{
		Kind:        cfg.StateBackend,
		Namespace:   cfg.StateNamespace,
		File:        cfg.StateFile,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		Redis:       redisClient,
	})
	if err != nil {
		return errors.Annotatef(err, "opening %s state backend", cfg.StateBackend)
	}
	defer backend.Close()

	m := metrics.New()
	if cfg.WorkerMetricsPort != "" {
		srv := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Infof("serving metrics on :%s", cfg.WorkerMetricsPort)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	q := queue.NewRedisQueue(redisClient, cfg.QueueKey)
	w := store.NewWriter(q, backend, m)

	logger.Infof("worker started, draining %s into %s", cfg.QueueKey, cfg.StateBackend)
	if err := w.Run(ctx); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("worker stopped")
	return nil
}
