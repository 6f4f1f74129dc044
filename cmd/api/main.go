package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"smartattendance/internal/attendance"
	"smartattendance/internal/cloudinary"
	"smartattendance/internal/config"
	"smartattendance/internal/faceclient"
	"smartattendance/internal/handler"
	"smartattendance/internal/httpmiddleware"
	"smartattendance/internal/metrics"
	"smartattendance/internal/queue"
	"smartattendance/internal/store"
)

var logger = loggo.GetLogger("attendance.api")

func main() {
	cfg := config.Load()
	if err := loggo.ConfigureLoggers(cfg.LogConfig); err != nil {
		logger.Warningf("log config %q: %v", cfg.LogConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Criticalf("invalid config: %v", err)
		os.Exit(1)
	}
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		logger.Criticalf("http server failed: %v", errors.ErrorStack(err))
		os.Exit(1)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	if cfg.StateBackend == "redis" || cfg.QueueBackend == "redis" {
		redisClient = store.NewRedisClient(cfg.RedisAddr)
		defer redisClient.Close()
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
	prometheus.MustRegister(m)

	// With the memory queue this process drains its own snapshots. With
	// redis a separate worker does.
	var (
		q       queue.Queue
		writer  *store.Writer
		drained sync.WaitGroup
	)
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
		writer = store.NewWriter(q, backend, m)
		drained.Add(1)
		go func() {
			defer drained.Done()
			if err := writer.Run(ctx); err != nil {
				logger.Errorf("snapshot writer: %v", err)
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient, cfg.QueueKey)
		writer = store.NewWriter(q, nil, m)
	}

	att := attendance.Open(ctx, attendance.Config{
		Loader:      backend,
		Saver:       writer,
		Clock:       clock.WallClock,
		Metrics:     m,
		SaveTimeout: cfg.SaveTimeout,
	})

	opts := handler.Options{
		Health:      backend,
		Clock:       clock.WallClock,
		RecentLimit: cfg.RecentLimit,
	}
	if cfg.CloudinaryConfigured() {
		opts.Images = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logger.Infof("cloudinary configured: %s", cfg.CloudinaryCloudName)
	} else {
		logger.Infof("cloudinary not configured, face images are stored inline")
	}
	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			logger.Warningf("face service not available: %v", err)
		} else {
			logger.Infof("face service connected: %s", cfg.FaceServiceURL)
		}
	}
	opts.Liveness = face

	h, err := handler.New(att, opts)
	if err != nil {
		return errors.Trace(err)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewLimiter(cfg.RateLimitPerMin, clock.WallClock).Middleware("/healthz", "/metrics"))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("starting server on :%s (state=%s queue=%s)", cfg.HTTPPort, cfg.StateBackend, cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			return errors.Annotate(err, "listening")
		}
	}
	logger.Infof("shutting down server")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warningf("server forced shutdown: %v", err)
	}

	cancel()
	drained.Wait()

	// Queued snapshots may have been dropped, so the final state goes
	// straight to the backend and, for a remote worker, through the queue.
	blob, err := attendance.Encode(att.State())
	if err != nil {
		return errors.Annotate(err, "encoding final state")
	}
	if err := writer.Flush(shutdownCtx, backend, blob); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("server exited")
	return nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        24 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
