package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto_arena/internal/bus"
	"crypto_arena/internal/config"
	"crypto_arena/internal/http/handlers"
	"crypto_arena/internal/http/middleware"
	"crypto_arena/internal/logger"
	"crypto_arena/internal/service"
	"crypto_arena/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version устанавливается при сборке
var Version = "dev"

func main() {
	cfg := config.Load()

	// Инициализация структурированного логгера
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	log := logger.Get()

	service.InitJWT(cfg.JWTSecret)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// CORS для прода и связи фронта с бэкендом(разные домены)
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	middleware.InitRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, 0)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// шина моста хост-страница <-> игровые виджеты
	bridgeBus := bus.New(bus.Config{
		Production:   cfg.IsProduction(),
		ExtraOrigins: cfg.ExtraOrigins,
		Secret:       []byte(cfg.BridgeSecret),
	})

	// PvP-хаб; проверку балансов подключит платежный контур
	hub := ws.NewHub(nil)

	practice := service.NewPracticeService()

	h := handlers.NewHandler(cfg, hub, bridgeBus, practice)
	handlers.RegisterRoutes(r, h, Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.StartCleanup(ctx, time.Minute)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		log.Info("server started", "port", cfg.AppPort, "version", Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
