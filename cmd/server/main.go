package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mkadenge/shulelink/internal/api"
	"github.com/mkadenge/shulelink/internal/config"
	"github.com/mkadenge/shulelink/internal/db"
	"github.com/mkadenge/shulelink/internal/middleware"
	"github.com/mkadenge/shulelink/internal/models"
	"github.com/mkadenge/shulelink/internal/observ"
	"github.com/mkadenge/shulelink/internal/realtime"
	"github.com/mkadenge/shulelink/internal/repository/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// Startup has no deadline: take as long as the database needs.
	database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	pool := database.Pool()
	threadRepo := postgres.NewThreadStore(pool)
	childRepo := postgres.NewChildStore(pool)
	userRepo := postgres.NewUserStore(pool)

	// Thread-change events fan out in-process and, through Redis, to
	// every other instance serving a live feed.
	broker := realtime.NewBroker(logger)
	bus, err := realtime.NewRedisBus(context.Background(), cfg.RedisURL, broker, logger)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer bus.Close()

	authHandler := api.NewAuthHandler(userRepo, cfg.JWTSecret, logger)
	concernHandler := api.NewConcernHandler(threadRepo, childRepo, bus, logger)
	childrenHandler := api.NewChildrenHandler(childRepo, logger)
	wsHandler := api.NewWSHandler(threadRepo, childRepo, bus, logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	// Public: load balancer health checks and login.
	srv.GET("/v1/health", func(c *gin.Context) {
		if err := database.Health(c.Request.Context()); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})
	srv.POST("/v1/auth/login", authHandler.Login)

	v1 := srv.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	v1.GET("/children", childrenHandler.List)

	v1.GET("/concerns", concernHandler.List)
	v1.GET("/concerns/:id", concernHandler.GetByID)
	v1.GET("/concerns/:id/messages", concernHandler.ListMessages)
	v1.POST("/concerns/:id/messages", concernHandler.Reply)
	v1.POST("/concerns/:id/read", concernHandler.MarkRead)

	// Only parents originate concerns; only staff override status.
	v1.POST("/concerns", middleware.RequireRole(models.RoleParent), concernHandler.Create)
	v1.PATCH("/concerns/:id/status", middleware.RequireRole(models.RoleAdmin), concernHandler.UpdateStatus)

	v1.GET("/ws", wsHandler.Serve)

	logger.Info("starting shulelink concerns service",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	if err := srv.Run(":" + cfg.Port); err != nil {
		return fmt.Errorf("run server: %w", err)
	}
	return nil
}
