package handlers

import (
	"net/http"
	"strings"

	"crypto_arena/internal/bus"
	"crypto_arena/internal/config"
	"crypto_arena/internal/service"
	"crypto_arena/internal/ws"

	"github.com/gin-gonic/gin"
)

// содержит зависимости HTTP-слоя
type Handler struct {
	Cfg      *config.Config
	Hub      *ws.Hub
	Bus      *bus.Bus
	Practice *service.PracticeService
}

func NewHandler(cfg *config.Config, hub *ws.Hub, b *bus.Bus, practice *service.PracticeService) *Handler {
	h := &Handler{
		Cfg:      cfg,
		Hub:      hub,
		Bus:      b,
		Practice: practice,
	}
	h.registerBridgeHandlers()
	return h
}

// достает ID пользователя, положенный в контекст middleware авторизации
func getUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// AuthRequired проверяет Bearer-токен и кладет ID пользователя в контекст
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			// запасной вариант для WebView, где заголовки недоступны
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "токен обязателен"})
			return
		}

		userID, err := service.ParseJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "неверный токен"})
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}
