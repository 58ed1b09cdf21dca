package handlers

import (
	"net/http"

	"crypto_arena/internal/http/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes подключает все маршруты приложения
func RegisterRoutes(r *gin.Engine, h *Handler, version string) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version})
	})

	// realtime-каналы: PvP-комнаты и мост к игровым виджетам
	r.GET("/ws", h.WS())
	r.GET("/bridge", h.Bridge())

	api := r.Group("/api")
	api.Use(middleware.RateLimit())

	api.POST("/auth/guest", h.GuestToken)

	auth := api.Group("")
	auth.Use(AuthRequired())

	auth.POST("/practice/start", h.PracticeStart)
	auth.POST("/practice/choice", h.PracticeChoice)
	auth.POST("/practice/rematch", h.PracticeRematch)
	auth.GET("/practice/state", h.PracticeState)
	auth.POST("/practice/leave", h.PracticeLeave)

	// инспекция моста: журнал аудита и кольцо недавних сообщений
	auth.GET("/bridge/security-events", h.BridgeSecurityEvents)
	auth.GET("/bridge/history", h.BridgeHistory)
}
