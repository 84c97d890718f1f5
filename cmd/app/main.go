package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/blbu/vr-therapy-server-go/internal/features/progression"
	"github.com/blbu/vr-therapy-server-go/internal/features/video"
	"github.com/blbu/vr-therapy-server-go/internal/features/watch"
	"github.com/blbu/vr-therapy-server-go/internal/http/routes"
	"github.com/blbu/vr-therapy-server-go/pkg/broadcast"
	"github.com/blbu/vr-therapy-server-go/pkg/cache"
	"github.com/blbu/vr-therapy-server-go/pkg/config"
	"github.com/blbu/vr-therapy-server-go/pkg/database"
	"github.com/blbu/vr-therapy-server-go/pkg/email"
	"github.com/blbu/vr-therapy-server-go/pkg/gcs"
	"github.com/blbu/vr-therapy-server-go/pkg/jobs"
	"github.com/blbu/vr-therapy-server-go/pkg/logger"
	"github.com/blbu/vr-therapy-server-go/pkg/metrics"
	"github.com/blbu/vr-therapy-server-go/pkg/middleware"
	"github.com/blbu/vr-therapy-server-go/pkg/request"
	socketioserver "github.com/blbu/vr-therapy-server-go/pkg/socketio"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(ctx, cfg.Database, appLogger)
	if err != nil {
		appLogger.Error("database connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		if err := database.Close(db, appLogger); err != nil {
			appLogger.Error("database close failed", slog.String("error", err.Error()))
		}
	}()

	// Video storage is optional: uploads return 503 until a bucket is
	// reachable, but telemetry and progression keep working.
	var storageClient video.Storage
	gcsClient, err := gcs.NewClient(ctx, cfg.Storage.Bucket, cfg.Storage.CredentialsFile)
	if err != nil {
		appLogger.Warn("video storage unavailable", slog.String("error", err.Error()))
	} else {
		storageClient = gcsClient
		defer gcsClient.Close()
	}

	// Redis is optional too; a disabled client turns every read into a miss.
	cacheClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Error("redis connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cacheClient.Close()

	emailClient := email.NewClient(
		cfg.Email.Host,
		cfg.Email.Port,
		cfg.Email.Username,
		cfg.Email.Password,
		cfg.Email.From,
	)

	// Watch-integrity pipeline: bus fans events out to dashboard
	// subscribers, the tracker keeps furthest positions per session.
	eventBus := broadcast.New[watch.EventView](cfg.Watch.BroadcastBuffer)
	defer eventBus.Close()

	sessionTracker := watch.NewSessionTracker(cfg.Watch.SessionIdleTTL)
	go sessionTracker.Run(ctx)

	watchService := watch.NewService(db, sessionTracker, eventBus, appLogger)
	progressionEngine := progression.NewEngine(db, cacheClient, appLogger)

	// Socket.IO server streams the event feed to dashboard clients
	socketIOServer, err := socketioserver.NewServer(appLogger, cfg.JWTSecret)
	if err != nil {
		appLogger.Error("socket.io server initialization failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer socketIOServer.Close()

	socketIOServer.StreamEvents(watchService.Bus())

	appLogger.Info("socket.io server initialized")

	if cfg.Report.Enabled {
		scheduler := jobs.NewScheduler(appLogger)
		scheduler.AddJob(
			progression.NewDailyReportJob(db, emailClient, cfg.Report.Recipients, appLogger),
			cfg.Report.Interval,
		)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	router := gin.New()

	// Mount Socket.IO handler FIRST before any middleware that could interfere
	// Socket.IO needs minimal middleware - just recovery and CORS
	router.Use(middleware.Recovery(appLogger))
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	router.GET("/socket.io/*any", gin.WrapH(socketIOServer.GetHandler()))
	router.POST("/socket.io/*any", gin.WrapH(socketIOServer.GetHandler()))

	// Now apply full middleware stack for all other routes
	router.Use(middleware.RequestID())
	router.Use(middleware.Compression())
	router.Use(middleware.RequestLogger(appLogger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(10 * 1024 * 1024))
	router.Use(metrics.Middleware())
	router.Use(request.Handler(appLogger))

	// Headsets post telemetry a few times a second, so the per-IP budget
	// is generous compared to a typical API.
	rateLimiter := middleware.NewRateLimiter(600, time.Minute)
	router.Use(rateLimiter.Middleware())

	routes.Register(router, cfg, db, appLogger, watchService, progressionEngine, storageClient)

	srv := &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	go func() {
		appLogger.Info("server starting",
			slog.String("addr", cfg.ServerAddress()),
			slog.String("env", cfg.Env),
			slog.String("log_level", cfg.LogLevel),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server listen failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	appLogger.Info("server started successfully")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("server shutdown failed", slog.String("error", err.Error()))
	} else {
		appLogger.Info("server stopped gracefully")
	}
}
