// Package main runs the trivia platform HTTP server with WebSocket sessions and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trivia-app/backend/config"
	"github.com/trivia-app/backend/internal/auth"
	"github.com/trivia-app/backend/internal/middleware"
	"github.com/trivia-app/backend/internal/models"
	"github.com/trivia-app/backend/internal/organizations"
	"github.com/trivia-app/backend/internal/realtime"
	"github.com/trivia-app/backend/internal/sessionlog"
	"github.com/trivia-app/backend/internal/tenant"
	"github.com/trivia-app/backend/internal/users"
	"github.com/trivia-app/backend/internal/worker"
	"github.com/trivia-app/backend/pkg/database"
	"github.com/trivia-app/backend/pkg/queue"
	"github.com/trivia-app/backend/pkg/redis"
	"github.com/trivia-app/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	tokens, err := auth.NewTokenService(cfg.JWT.Secret, auth.WithTTL(cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL))
	if err != nil {
		logger.Fatal("jwt signing key", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Tenant-scoped stores
	userStore, err := users.NewStore(pool)
	if err != nil {
		logger.Fatal("users store", zap.Error(err))
	}
	userGuard := tenant.NewGuard[*models.User](userStore)

	activityStore, err := sessionlog.NewStore(pool)
	if err != nil {
		logger.Fatal("session log store", zap.Error(err))
	}
	activityGuard := tenant.NewGuard[*models.Participation](activityStore)

	orgRepo := organizations.NewRepository(pool)
	resolver := auth.NewResolver(tokens, userGuard, logger)

	// Realtime
	var relay realtime.Relay
	if cfg.Realtime.Relay {
		relay = realtime.NewRedisPubSub(rdb.Client, logger)
		logger.Info("realtime relay enabled")
	}
	hub := realtime.NewHub(logger, relay)

	activityQueue := queue.NewQueue(rdb.Client, logger, queue.WithPollTimeout(cfg.Worker.PollTimeout))
	var forwarder *sessionlog.ActivityForwarder
	if cfg.Realtime.ActivityLog {
		forwarder = sessionlog.NewActivityForwarder(activityQueue, logger, sessionlog.DefaultActivityBuffer)
		hub.SetActivityHandler(forwarder.Handle)
	}

	// Handlers
	authHandler := auth.NewHandler(auth.HandlerConfig{
		Directory:     auth.NewRepository(pool),
		Users:         userGuard,
		Organizations: orgRepo,
		Tokens:        tokens,
		Revocations:   auth.NewRedisRevocations(rdb.Client),
		SecureCookie:  cfg.Server.SecureCookies,
		Logger:        logger,
	})
	usersHandler := auth.NewUsersHandler(userGuard, logger)
	orgHandler := organizations.NewHandler(orgRepo, logger)
	sessionLogHandler := sessionlog.NewHandler(activityGuard, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Healthy(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok", "sessions": hub.SessionCount()})
	})

	// Public
	router.POST("/organizations", orgHandler.CreateOrganization)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		// Refresh cookie only
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// Protected API (bearer token required)
	api := router.Group("")
	api.Use(middleware.Auth(resolver, logger))
	{
		api.GET("/auth/me", authHandler.Me)

		api.GET("/organizations/current", orgHandler.Current)
		api.DELETE("/organizations/current", middleware.RequireRole(models.RoleAdmin), orgHandler.DeleteCurrent)

		api.GET("/users", usersHandler.List)
		api.GET("/users/:id", usersHandler.Get)
		api.PATCH("/users/:id", middleware.RequireRole(models.RoleAdmin), usersHandler.Update)
		api.DELETE("/users/:id", middleware.RequireRole(models.RoleAdmin), usersHandler.Delete)

		api.GET("/sessions/activity", middleware.RequireRole(models.RoleFacilitator, models.RoleAdmin), sessionLogHandler.ListActivity)
		api.GET("/sessions/:session_id/participants", realtime.Participants(hub))
	}

	// WebSocket (token in query; admission failures close with 1008)
	router.GET("/ws/:session_id", realtime.ServeWs(hub, resolver, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (session activity to Postgres)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	forwarderDone := make(chan struct{})
	if forwarder != nil {
		go func() {
			defer close(forwarderDone)
			forwarder.Run(workerCtx)
		}()
	} else {
		close(forwarderDone)
	}
	workerDone := make(chan struct{})
	if cfg.Worker.Inline && cfg.Realtime.ActivityLog {
		recorder := worker.NewActivityRecorder(activityGuard, activityQueue, logger)
		recorder.SetBackoff(cfg.Worker.RetryBackoff)
		go func() {
			defer close(workerDone)
			recorder.Run(workerCtx)
		}()
		logger.Info("session activity worker started")
	} else {
		close(workerDone)
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	// Hijacked WebSocket connections are not tracked by srv.Shutdown.
	hub.Shutdown()
	workerCancel()
	<-forwarderDone
	<-workerDone
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
