package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"crypto_arena/internal/metrics"
	"crypto_arena/internal/session"

	"github.com/google/uuid"
)

// WaitingKey — ключ матчмейкинга: сводим игроков с одинаковой игрой,
// суммой и токеном ставки
type WaitingKey struct {
	Kind      session.GameKind
	Amount    string
	TokenType string
}

// waitingEntry — ожидающий хост и его комната. Комната живет в записи
// хаба, а не в полях клиента: клиент узнает о ней только через
// setRoom в собственной горутине.
type waitingEntry struct {
	client *Client
	room   *Room
}

// BalanceCheck — внешняя проверка, потянет ли челленджер новые условия
// ставки. nil означает "балансы проверяет кто-то другой" — проверка
// пропускается.
type BalanceCheck func(userID int64, amount, tokenType string) bool

// Hub владеет комнатами и очередью ожидающих хостов
type Hub struct {
	mu       sync.Mutex
	Rooms    map[string]*Room
	UserRoom map[int64]string
	Waiting  map[WaitingKey]*waitingEntry

	BalanceCheck BalanceCheck
}

func NewHub(check BalanceCheck) *Hub {
	return &Hub{
		Rooms:        make(map[string]*Room),
		UserRoom:     make(map[int64]string),
		Waiting:      make(map[WaitingKey]*waitingEntry),
		BalanceCheck: check,
	}
}

// AssignClient сводит клиента с ожидающим хостом по ключу ставки или
// создает новую комнату, где клиент сам становится хостом. Комната
// только возвращается: публикует ее клиент сам, через setRoom.
func (h *Hub) AssignClient(c *Client) *Room {
	key := WaitingKey{Kind: c.Kind, Amount: c.Amount, TokenType: c.TokenType}

	h.mu.Lock()

	// выметаем ожидающего, чье соединение уже умерло
	if e := h.Waiting[key]; e != nil && clientGone(e.client) {
		log.Printf("Hub.AssignClient: ожидающий пользователь=%d отвалился, снимаем из очереди", e.client.UserID)
		delete(h.Waiting, key)
	}

	if old, ok := h.UserRoom[c.UserID]; ok {
		// повторное подключение того же пользователя: старая комната
		// доживет сама, когда умрет старое соединение
		log.Printf("Hub.AssignClient: пользователь=%d уже числился в комнате=%s", c.UserID, old)
		delete(h.UserRoom, c.UserID)
	}

	if e := h.Waiting[key]; e != nil && e.client.UserID != c.UserID {
		room := e.room
		delete(h.Waiting, key)
		c.Role = session.RoleChallenger
		h.UserRoom[c.UserID] = room.ID
		h.mu.Unlock()

		room.Register <- c
		return room
	}

	// никто не ждет — клиент открывает комнату как хост
	room := newRoom(uuid.New().String()[:8], c, h)
	c.Role = session.RoleHost
	h.Rooms[room.ID] = room
	h.UserRoom[c.UserID] = room.ID
	h.Waiting[key] = &waitingEntry{client: c, room: room}
	h.mu.Unlock()

	metrics.ActiveRooms.Inc()
	go room.Run()

	log.Printf("Hub.AssignClient: пользователь=%d открыл комнату=%s (игра=%s ставка=%s %s)",
		c.UserID, room.ID, c.Kind, c.Amount, c.TokenType)
	return room
}

// OnDisconnect вызывается из readPump при обрыве соединения
func (h *Hub) OnDisconnect(c *Client) {
	room := c.getRoom()

	h.mu.Lock()
	key := WaitingKey{Kind: c.Kind, Amount: c.Amount, TokenType: c.TokenType}
	if e := h.Waiting[key]; e != nil && e.client == c {
		delete(h.Waiting, key)
	}
	if room != nil && h.UserRoom[c.UserID] == room.ID {
		delete(h.UserRoom, c.UserID)
	}
	h.mu.Unlock()

	if room == nil {
		return
	}
	select {
	case room.Disconnect <- c:
	case <-room.done:
	}
}

// removeRoom снимает комнату с учета хаба
func (h *Hub) removeRoom(r *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.Rooms[r.ID]; !ok {
		return
	}
	delete(h.Rooms, r.ID)
	for uid, rid := range h.UserRoom {
		if rid == r.ID {
			delete(h.UserRoom, uid)
		}
	}
	for key, e := range h.Waiting {
		if e.room == r {
			delete(h.Waiting, key)
		}
	}
	metrics.ActiveRooms.Dec()
}

// StartCleanup периодически выметает из очереди ожидания мертвые
// соединения
func (h *Hub) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.mu.Lock()
				for key, e := range h.Waiting {
					if clientGone(e.client) {
						log.Printf("Hub.StartCleanup: снимаем мертвого ожидающего пользователя=%d", e.client.UserID)
						delete(h.Waiting, key)
					}
				}
				h.mu.Unlock()
			}
		}
	}()
}

func clientGone(c *Client) bool {
	select {
	case <-c.Done:
		return true
	default:
		return false
	}
}
