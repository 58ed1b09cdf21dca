package ws

import (
	"crypto/rand"
	"encoding/json"
	"log"
	"math/big"
	"sync"
	"time"

	"crypto_arena/internal/metrics"
	"crypto_arena/internal/session"
)

// Room — авторитетная сторона одной PvP-сессии. Комната владеет
// таймером раунда, сверяет ходы и объявляет результат; клиентские
// машины состояний только следуют за ее событиями.
type Room struct {
	ID    string
	kind  session.Kind
	stake session.Stake

	host       *Client
	challenger *Client

	choices     map[session.Role]string
	rematchWant map[session.Role]bool
	pendingBet  *session.BetProposal

	round       int
	timeLeft    int
	roundActive bool

	Register   chan *Client
	Disconnect chan *Client
	done       chan struct{}
	closed     bool

	hub *Hub
	mu  sync.Mutex
}

func newRoom(id string, host *Client, hub *Hub) *Room {
	kind, ok := session.KindByName(host.Kind)
	if !ok {
		// неизвестная игра не должна доходить сюда: хендлер /ws
		// валидирует параметры до апгрейда
		log.Printf("newRoom: неизвестная игра %q, ставим coin-toss", host.Kind)
		kind, _ = session.KindByName(session.KindCoinToss)
	}

	return &Room{
		ID:   id,
		kind: kind,
		stake: session.Stake{
			Amount:         host.Amount,
			TokenType:      host.TokenType,
			OddsMultiplier: host.Odds,
		},
		host:        host,
		choices:     make(map[session.Role]string),
		rematchWant: make(map[session.Role]bool),
		Register:    make(chan *Client),
		Disconnect:  make(chan *Client, 2),
		done:        make(chan struct{}),
		hub:         hub,
	}
}

// Run — цикл жизни комнаты: регистрация челленджера, секундный тик
// таймера, обрывы соединений
func (r *Room) Run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case c := <-r.Register:
			r.addChallenger(c)

		case c := <-r.Disconnect:
			r.handleDisconnect(c)

		case <-ticker.C:
			r.tick()

		case <-r.done:
			return
		}
	}
}

func (r *Room) addChallenger(c *Client) {
	r.mu.Lock()
	if r.challenger != nil {
		r.mu.Unlock()
		log.Printf("Room[%s]: место челленджера уже занято, пользователь=%d отклонен", r.ID, c.UserID)
		r.sendTo(c, MsgError, map[string]any{"message": "комната уже заполнена"})
		return
	}
	r.challenger = c
	r.mu.Unlock()

	log.Printf("Room[%s]: пользователь=%d вошел как челленджер, начинаем раунд", r.ID, c.UserID)
	r.startRound(nil)
}

// startRound открывает новый раунд. preseed подсказывает игрокам их
// прошлые ходы (стороны монеты переживают реванш), но ход все равно
// подтверждается явным playerChoice.
func (r *Room) startRound(preseed map[session.Role]string) {
	r.mu.Lock()
	r.round++
	r.timeLeft = r.kind.DefaultTimer
	r.roundActive = true
	r.choices = make(map[session.Role]string)
	r.rematchWant = make(map[session.Role]bool)
	round := r.round
	r.mu.Unlock()

	log.Printf("Room[%s]: раунд %d, таймер %d сек", r.ID, round, r.kind.DefaultTimer)

	r.eachClient(func(c *Client, role session.Role) {
		payload := map[string]any{
			"gameId":    r.ID,
			"role":      string(role),
			"kind":      string(r.kind.Name),
			"timer":     r.kind.DefaultTimer,
			"betAmount": r.stake.Amount,
			"odds":      r.stake.OddsMultiplier,
			"tokenType": r.stake.TokenType,
		}
		if assigned := preseed[role]; assigned != "" {
			payload["assignedChoice"] = assigned
		}
		r.sendTo(c, MsgGameStarted, payload)
	})
}

// tick уходит раз в секунду; комната — единственный владелец таймера
func (r *Room) tick() {
	r.mu.Lock()
	if !r.roundActive {
		r.mu.Unlock()
		return
	}
	r.timeLeft--
	left := r.timeLeft
	if left <= 0 {
		// раунд закрывается здесь же: второй тик не должен разрешить
		// его повторно
		r.roundActive = false
	}
	r.mu.Unlock()

	if left <= 0 {
		r.timeout()
		return
	}
	r.broadcast(MsgTimerUpdate, map[string]any{"gameId": r.ID, "timeLeft": left})
}

// timeout разрешает раунд по истечении таймера: единственный успевший
// сходить побеждает технической победой. Нулевой тик перед результатом
// не рассылается — на нем клиентская машина состояний завершается
// безусловно и результата уже не покажет.
func (r *Room) timeout() {
	r.mu.Lock()
	hostChoice := r.choices[session.RoleHost]
	chChoice := r.choices[session.RoleChallenger]
	r.mu.Unlock()

	var winner session.Role
	switch {
	case hostChoice != "" && chChoice == "":
		winner = session.RoleHost
	case chChoice != "" && hostChoice == "":
		winner = session.RoleChallenger
	default:
		log.Printf("Room[%s]: таймаут без ходов, закрываем комнату", r.ID)
		r.broadcast(MsgTimerUpdate, map[string]any{"gameId": r.ID, "timeLeft": 0})
		r.cleanup()
		return
	}

	log.Printf("Room[%s]: таймаут, техническая победа %s", r.ID, winner)
	r.broadcast(MsgGameResult, map[string]any{
		"gameId":           r.ID,
		"winner":           string(winner),
		"creatorChoice":    hostChoice,
		"challengerChoice": chChoice,
		"forfeit":          true,
	})
	metrics.GamesFinished.WithLabelValues(string(r.kind.Name)).Inc()
	r.cleanup()
}

// HandleMessage обрабатывает кадр клиента. Вызывается из readPump
// обоих игроков конкурентно.
func (r *Room) HandleMessage(c *Client, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("Room[%s]: битый кадр от пользователя=%d: %v", r.ID, c.UserID, err)
		r.sendTo(c, MsgError, map[string]any{"message": "неразборчивое сообщение"})
		return
	}

	switch msg.Type {
	case MsgPlayerChoice:
		choice, _ := msg.Payload["choice"].(string)
		r.handleChoice(c, choice)

	case MsgRematch:
		r.handleRematch(c)

	case MsgLeaveGame:
		log.Printf("Room[%s]: пользователь=%d покинул игру", r.ID, c.UserID)
		r.notifyOther(c, MsgPlayerLeft, map[string]any{"gameId": r.ID})
		r.cleanup()

	case MsgRequestBetUpdate:
		r.handleBetProposal(c, msg.Payload)

	case MsgAcceptBetChange:
		r.handleBetResponse(c, true)

	case MsgRejectBetChange:
		r.handleBetResponse(c, false)

	default:
		log.Printf("Room[%s]: неизвестный тип сообщения %q от пользователя=%d", r.ID, msg.Type, c.UserID)
	}
}

func (r *Room) handleChoice(c *Client, choice string) {
	if !r.kind.ValidAction(choice) {
		r.sendTo(c, MsgError, map[string]any{"message": "нелегальный ход"})
		return
	}

	r.mu.Lock()
	if !r.roundActive || r.challenger == nil {
		r.mu.Unlock()
		log.Printf("Room[%s]: ход вне раунда от пользователя=%d, игнорируем", r.ID, c.UserID)
		return
	}
	if _, done := r.choices[c.Role]; done {
		r.mu.Unlock()
		return
	}

	// в подбросе монеты стороны эксклюзивны: опоздавший на занятую
	// сторону получает противоположную
	if opp := r.kind.OppositeAction(choice); opp != "" {
		other := session.RoleChallenger
		if c.Role == session.RoleChallenger {
			other = session.RoleHost
		}
		if r.choices[other] == choice {
			choice = opp
		}
	}
	r.choices[c.Role] = choice
	both := len(r.choices) == 2
	r.mu.Unlock()

	log.Printf("Room[%s]: пользователь=%d (%s) сходил", r.ID, c.UserID, c.Role)
	if both {
		r.resolve()
	}
}

// resolve сверяет ходы и объявляет результат раунда
func (r *Room) resolve() {
	r.mu.Lock()
	r.roundActive = false
	hostChoice := r.choices[session.RoleHost]
	chChoice := r.choices[session.RoleChallenger]
	r.mu.Unlock()

	payload := map[string]any{
		"gameId":           r.ID,
		"creatorChoice":    hostChoice,
		"challengerChoice": chChoice,
	}

	// ничья в КНБ: результат не объявляется, раунд перезапускается
	if r.kind.DrawPossible && hostChoice == chChoice {
		log.Printf("Room[%s]: ничья (%s), перезапускаем раунд", r.ID, hostChoice)
		r.broadcast(MsgGameResult, payload)
		r.startRound(nil)
		return
	}

	var winner session.Role
	switch r.kind.Name {
	case session.KindCoinToss:
		toss := r.kind.Actions[secureRandInt(int64(len(r.kind.Actions)))]
		payload["toss"] = toss
		winner = session.RoleChallenger
		if hostChoice == toss {
			winner = session.RoleHost
		}
	default:
		winner = session.RoleChallenger
		if winsRPS(hostChoice, chChoice) {
			winner = session.RoleHost
		}
	}
	payload["winner"] = string(winner)

	log.Printf("Room[%s]: результат раунда — победил %s (%s против %s)", r.ID, winner, hostChoice, chChoice)
	r.broadcast(MsgGameResult, payload)
	metrics.GamesFinished.WithLabelValues(string(r.kind.Name)).Inc()
}

func (r *Room) handleRematch(c *Client) {
	r.mu.Lock()
	if r.roundActive || r.challenger == nil {
		// реванш имеет смысл только после показанного результата;
		// запросы во время перезапущенного после ничьей раунда
		// поглощаются молча
		r.mu.Unlock()
		return
	}
	r.rematchWant[c.Role] = true
	both := r.rematchWant[session.RoleHost] && r.rematchWant[session.RoleChallenger]

	// стороны монеты закрепляются за игроками на весь матч
	var preseed map[session.Role]string
	if both && r.kind.Name == session.KindCoinToss {
		preseed = map[session.Role]string{
			session.RoleHost:       r.choices[session.RoleHost],
			session.RoleChallenger: r.choices[session.RoleChallenger],
		}
	}
	r.mu.Unlock()

	if both {
		log.Printf("Room[%s]: обе стороны согласились на реванш", r.ID)
		r.startRound(preseed)
	}
}

// handleBetProposal принимает от хоста запрос новых условий ставки и
// пересылает его челленджеру. Одновременно открыто не больше одного
// предложения.
func (r *Room) handleBetProposal(c *Client, payload map[string]any) {
	if c.Role != session.RoleHost {
		r.sendTo(c, MsgError, map[string]any{"message": "менять ставку может только создатель игры"})
		return
	}

	amount, _ := payload["betAmount"].(string)
	odds, _ := payload["odds"].(string)
	tokenType, _ := payload["tokenType"].(string)
	if tokenType == "" {
		tokenType = r.stake.TokenType
	}

	r.mu.Lock()
	if r.challenger == nil {
		r.mu.Unlock()
		r.sendTo(c, MsgError, map[string]any{"message": "противник еще не подключился"})
		return
	}
	if r.pendingBet != nil {
		r.mu.Unlock()
		r.sendTo(c, MsgError, map[string]any{"message": "предыдущее предложение еще не закрыто"})
		return
	}
	r.pendingBet = &session.BetProposal{Amount: amount, Odds: odds, TokenType: tokenType}
	challenger := r.challenger
	r.mu.Unlock()

	log.Printf("Room[%s]: хост предложил новую ставку %s %s x%s", r.ID, amount, tokenType, odds)
	r.sendTo(challenger, MsgBetRequest, map[string]any{
		"gameId": r.ID,
		"game": map[string]any{
			"betAmount": amount,
			"odds":      odds,
			"tokenType": tokenType,
		},
	})
}

// handleBetResponse закрывает открытое предложение вердиктом
// челленджера. Ставка комнаты меняется атомарно и только здесь.
func (r *Room) handleBetResponse(c *Client, accept bool) {
	if c.Role != session.RoleChallenger {
		r.sendTo(c, MsgError, map[string]any{"message": "отвечать на предложение может только противник"})
		return
	}

	r.mu.Lock()
	pending := r.pendingBet
	if pending == nil {
		r.mu.Unlock()
		log.Printf("Room[%s]: ответ на несуществующее предложение от пользователя=%d", r.ID, c.UserID)
		return
	}
	r.pendingBet = nil

	status := session.BetStatusRejected
	if accept {
		status = session.BetStatusAccepted
		if r.hub.BalanceCheck != nil && !r.hub.BalanceCheck(c.UserID, pending.Amount, pending.TokenType) {
			status = session.BetStatusInsufficient
		}
	}
	if status == session.BetStatusAccepted {
		r.stake.Amount = pending.Amount
		r.stake.OddsMultiplier = pending.Odds
		r.stake.TokenType = pending.TokenType
	}
	amount, odds := r.stake.Amount, r.stake.OddsMultiplier
	r.mu.Unlock()

	log.Printf("Room[%s]: предложение ставки закрыто со статусом %s", r.ID, status)
	r.broadcast(MsgBetUpdated, map[string]any{
		"gameId": r.ID,
		"status": status,
		"game": map[string]any{
			"betAmount": amount,
			"odds":      odds,
		},
	})
}

func (r *Room) handleDisconnect(c *Client) {
	log.Printf("Room[%s]: пользователь=%d отключился", r.ID, c.UserID)
	r.notifyOther(c, MsgPlayerLeft, map[string]any{"gameId": r.ID})
	r.cleanup()
}

// cleanup закрывает комнату и оба соединения. Идемпотентен.
func (r *Room) cleanup() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	host, challenger := r.host, r.challenger
	r.mu.Unlock()

	close(r.done)
	// закрываем сами соединения, а не каналы Send: в них могут
	// конкурентно писать хвосты рассылки
	for _, c := range []*Client{host, challenger} {
		if c != nil && c.Conn != nil {
			_ = c.Conn.Close()
		}
	}
	r.hub.removeRoom(r)
	log.Printf("Room[%s]: комната закрыта", r.ID)
}

// eachClient вызывает fn для каждого подключенного игрока
func (r *Room) eachClient(fn func(c *Client, role session.Role)) {
	r.mu.Lock()
	host, challenger := r.host, r.challenger
	r.mu.Unlock()

	if host != nil {
		fn(host, session.RoleHost)
	}
	if challenger != nil {
		fn(challenger, session.RoleChallenger)
	}
}

func (r *Room) broadcast(typ string, payload map[string]any) {
	r.eachClient(func(c *Client, _ session.Role) {
		r.sendTo(c, typ, payload)
	})
}

func (r *Room) notifyOther(c *Client, typ string, payload map[string]any) {
	r.mu.Lock()
	other := r.challenger
	if c.Role == session.RoleChallenger {
		other = r.host
	}
	r.mu.Unlock()

	if other != nil {
		r.sendTo(other, typ, payload)
	}
}

// sendTo пишет кадр в канал клиента без блокировки: медленный
// потребитель теряет кадры, а не стопорит комнату
func (r *Room) sendTo(c *Client, typ string, payload map[string]any) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}

	select {
	case c.Send <- encode(typ, payload):
	default:
		log.Printf("Room[%s]: канал пользователя=%d переполнен, кадр %s отброшен", r.ID, c.UserID, typ)
	}
}

func winsRPS(a, b string) bool {
	switch a {
	case session.ActionRock:
		return b == session.ActionScissors
	case session.ActionPaper:
		return b == session.ActionRock
	case session.ActionScissors:
		return b == session.ActionPaper
	}
	return false
}

// secureRandInt возвращает криптостойкое случайное число в [0, max)
func secureRandInt(max int64) int64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(max))
	return n.Int64()
}
