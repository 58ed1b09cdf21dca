package handlers

import (
	"log"
	"net/http"
	"strconv"

	"crypto_arena/internal/service"
	"crypto_arena/internal/session"
	"crypto_arena/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func (h *Handler) WS() gin.HandlerFunc {
	return func(c *gin.Context) {
		// проверка JWT токена
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "токен обязателен"})
			return
		}

		userID, err := service.ParseJWT(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "неверный токен"})
			return
		}

		// получаем тип игры из query (по умолчанию: coin-toss)
		kindName := session.GameKind(c.Query("game"))
		if kindName == "" {
			kindName = session.KindCoinToss
		}
		if _, ok := session.KindByName(kindName); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "неизвестный тип игры"})
			return
		}

		// условия ставки — десятичные строки, обе должны быть положительными
		amount := c.DefaultQuery("bet", "1")
		odds := c.DefaultQuery("odds", "2")
		if !positiveDecimal(amount) || !positiveDecimal(odds) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "некорректная ставка"})
			return
		}
		tokenType := c.Query("token_type")
		if tokenType == "" {
			tokenType = "ton"
		}

		allowed := h.Cfg.ExtraOrigins
		upgrader := websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if !h.Cfg.IsProduction() || len(allowed) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range allowed {
					if o == origin {
						return true
					}
				}
				return false
			},
		}

		// обновление вебсокета
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Println("ошибка обновления ws:", err)
			return
		}

		// создаем клиента с типом игры и условиями ставки, запускаем
		// его обработчики и матчмейкинг
		client := ws.NewClient(userID, conn, h.Hub, kindName, amount, odds, tokenType)
		go client.Run()
	}
}

func positiveDecimal(s string) bool {
	v, err := strconv.ParseFloat(s, 64)
	return err == nil && v > 0
}
