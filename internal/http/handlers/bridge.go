package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"crypto_arena/internal/bus"
	"crypto_arena/internal/logger"
	"crypto_arena/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// bridgeFrame адаптирует WebSocket-соединение виджета под канал шины
type bridgeFrame struct {
	conn   *websocket.Conn
	origin string
	mu     sync.Mutex
}

func (f *bridgeFrame) Origin() string { return f.origin }

func (f *bridgeFrame) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

// Bridge поднимает канал между хост-страницей и встроенным игровым
// виджетом. Все кадры идут через шину: она решает, что пропустить.
func (h *Handler) Bridge() gin.HandlerFunc {
	return func(c *gin.Context) {
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

		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = c.Query("origin")
		}

		upgrader := websocket.Upgrader{
			// допуском по origin занимается сама шина
			CheckOrigin: func(r *http.Request) bool { return true },
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Println("ошибка обновления bridge:", err)
			return
		}
		defer conn.Close()

		frame := &bridgeFrame{conn: conn, origin: origin}

		// окно rate limit считается на пару origin+пользователь
		sourceKey := origin + ":" + strconv.FormatInt(userID, 10)
		sessionID := uuid.New().String()[:8]

		log.Printf("Bridge: пользователь=%d origin=%s сессия=%s подключен", userID, origin, sessionID)

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				log.Printf("Bridge: пользователь=%d соединение закрыто: %v", userID, err)
				return
			}

			if !h.Bus.Dispatch(origin, sourceKey, raw) {
				continue
			}

			// готовый виджет немедленно получает параметры инициализации
			var env bus.Envelope
			if json.Unmarshal(raw, &env) == nil && env.Type == bus.MsgGameReady {
				h.Bus.SendToGame(frame, bus.MsgInitializeGame, map[string]any{
					"sessionId": sessionID,
					"userId":    userID,
					"timestamp": time.Now().UnixMilli(),
				})
			}
		}
	}
}

// registerBridgeHandlers подписывает серверные обработчики сообщений
// виджетов. Суммы из виджетов носят рекомендательный характер — любое
// движение денег подтверждает только доверенная сторона.
func (h *Handler) registerBridgeHandlers() {
	blog := logger.With("component", "bridge")

	h.Bus.OnMessage(bus.MsgGameCompleted, func(env bus.Envelope) {
		blog.Info("игра в виджете завершена", "payload", string(env.Payload))
	})
	h.Bus.OnMessage(bus.MsgGameError, func(env bus.Envelope) {
		blog.Warn("виджет сообщил об ошибке", "payload", string(env.Payload))
	})
	h.Bus.OnMessage(bus.MsgBetRequested, func(env bus.Envelope) {
		blog.Info("виджет запросил ставку", "payload", string(env.Payload))
	})
	h.Bus.OnMessage(bus.MsgGameStateChanged, func(env bus.Envelope) {
		blog.Debug("состояние виджета изменилось")
	})
	h.Bus.OnMessage(bus.MsgResizeRequest, func(env bus.Envelope) {
		blog.Debug("виджет запросил изменение размера")
	})
}

// журнал аудита шины (до 50 последних событий)
func (h *Handler) BridgeSecurityEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": h.Bus.SecurityEvents()})
}

// кольцо недавних сообщений шины (до 100)
func (h *Handler) BridgeHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": h.Bus.MessageHistory()})
}
