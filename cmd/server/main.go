// Package main runs the fake-live webinar HTTP server with WebSocket chat and
// graceful shutdown.
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

	"github.com/ouse-live/backend/config"
	"github.com/ouse-live/backend/internal/chat"
	"github.com/ouse-live/backend/internal/emaillogs"
	"github.com/ouse-live/backend/internal/middleware"
	"github.com/ouse-live/backend/internal/registrations"
	"github.com/ouse-live/backend/internal/room"
	"github.com/ouse-live/backend/internal/webinars"
	"github.com/ouse-live/backend/pkg/database"
	"github.com/ouse-live/backend/pkg/queue"
	"github.com/ouse-live/backend/pkg/redis"
	"github.com/ouse-live/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Chat fan-out across instances goes through Redis pub/sub.
	pubsub := chat.NewRedisPubSub(rdb.Client, logger)
	hub := chat.NewHub(logger, pubsub, pubsub)

	// Webinars
	webinarRepo := webinars.NewRepository(pool)

	// Live rooms resolve phase and offset from wall-clock time; the hub
	// receives their phase events.
	roomManager := room.NewManager(webinarRepo, hub, room.Options{
		EmbedBaseURL: cfg.Player.EmbedBaseURL,
		EvalInterval: cfg.Room.EvalInterval,
	}, logger)
	roomHandler := room.NewHandler(roomManager)

	webinarHandler := webinars.NewHandler(webinarRepo, roomManager, logger)

	// Chat
	chatRepo := chat.NewRepository(pool)
	chatHandler := chat.NewHandler(hub, roomManager, chatRepo, logger)

	// Registrations and join links
	jobQueue := queue.NewQueue(rdb.Client, logger)
	tokenIssuer := registrations.NewTokenIssuer(cfg.Token.Secret, time.Duration(cfg.Token.ExpireHours)*time.Hour)
	registrationRepo := registrations.NewRepository(pool)
	registrationHandler := registrations.NewHandler(registrationRepo, webinarRepo, tokenIssuer, jobQueue, cfg.Server.PublicBaseURL, logger)

	emailLogsRepo := emaillogs.NewRepository(pool)
	emailLogsHandler := emaillogs.NewHandler(emailLogsRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Viewer surface
	router.GET("/live/:id", roomHandler.State)
	router.GET("/live/:id/chat", chatHandler.ServeWs)

	// Setup and registration surface
	api := router.Group("")
	webinarHandler.RegisterRoutes(api)
	registrationHandler.RegisterRoutes(api)
	api.GET("/webinars/:id/emails", emailLogsHandler.ListByWebinar)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
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

	roomManager.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
