package ws

import (
	"log"
	"sync"
	"time"

	"crypto_arena/internal/metrics"
	"crypto_arena/internal/session"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
)

type Client struct {
	UserID int64
	Conn   *websocket.Conn
	Send   chan []byte

	// параметры матчмейкинга
	Kind      session.GameKind
	Amount    string
	Odds      string
	TokenType string

	// назначается при матчмейкинге, до публикации комнаты не читается
	// из других горутин
	Role session.Role

	Hub  *Hub
	Done chan struct{}

	// mu защищает публикацию комнаты и буфер ранних кадров:
	// readPump стартует до матчмейкинга
	mu      sync.Mutex
	room    *Room
	pending [][]byte
}

func NewClient(userID int64, conn *websocket.Conn, hub *Hub, kind session.GameKind, amount, odds, tokenType string) *Client {
	return &Client{
		UserID:    userID,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		Kind:      kind,
		Amount:    amount,
		Odds:      odds,
		TokenType: tokenType,
		Hub:       hub,
		Done:      make(chan struct{}),
	}
}

func (c *Client) Run() {
	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	// writer стартует первым, чтобы комната могла сразу слать кадры
	go c.writePump()

	// readPump запускаем до матчмейкинга, чтобы не терять ранние кадры
	go c.readPump()

	// назначение комнаты (матчмейкинг)
	room := c.Hub.AssignClient(c)
	if room == nil {
		log.Printf("Client.Run: не удалось назначить комнату для пользователя=%d", c.UserID)
		c.Conn.Close()
		return
	}

	log.Printf("Client.Run: пользователь=%d назначен в комнату=%s", c.UserID, room.ID)
	c.setRoom(room)

	<-c.Done
}

// setRoom публикует комнату и проигрывает накопленные кадры. Кадры,
// приходящие во время проигрывания, ждут на mu — порядок кадров одного
// соединения сохраняется.
func (c *Client) setRoom(r *Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = r
	for _, raw := range c.pending {
		r.HandleMessage(c, raw)
	}
	c.pending = nil
}

func (c *Client) getRoom() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// dispatch передает кадр комнате либо буферизует его до ее публикации
func (c *Client) dispatch(msg []byte) {
	c.mu.Lock()
	room := c.room
	if room == nil {
		c.pending = append(c.pending, append([]byte(nil), msg...))
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	room.HandleMessage(c, msg)
}

func (c *Client) readPump() {
	defer func() {
		c.disconnect()
		close(c.Done)
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			log.Printf("Client.readPump: пользователь=%d ошибка чтения: %v", c.UserID, err)
			break
		}
		c.dispatch(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("Client.writePump: пользователь=%d ошибка записи: %v", c.UserID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) disconnect() {
	if c.Hub != nil {
		c.Hub.OnDisconnect(c)
	}
	_ = c.Conn.Close()
}
