package session

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"crypto_arena/internal/logger"
)

type Role string

const (
	RoleHost       Role = "host"
	RoleChallenger Role = "challenger"
)

type State string

const (
	StateIdle             State = "idle"
	StateWaiting          State = "waiting-for-opponent"
	StateChoosing         State = "choosing"
	StateRevealing        State = "revealing"
	StateResult           State = "result"
	StateRematchRequested State = "rematch-requested"
	StateTerminated       State = "terminated"
)

type Result string

const (
	ResultWin  Result = "win"
	ResultLose Result = "lose"
	ResultDraw Result = "draw"
)

// Условия ставки. Суммы — десятичные строки, как их отдает сервер.
type Stake struct {
	Amount         string `json:"amount"`
	TokenType      string `json:"token_type"`
	OddsMultiplier string `json:"odds_multiplier"`
}

// Предложение новых условий ставки. Либо целиком есть, либо его нет —
// отдельных nullable-полей не бывает.
type BetProposal struct {
	Amount    string `json:"amount"`
	Odds      string `json:"odds"`
	TokenType string `json:"token_type"`
}

var (
	ErrInvalidStake = errors.New("ставка должна быть положительной")
	ErrUnknownRole  = errors.New("неизвестная роль")
)

// Engine — машина состояний одной сессии ставочной игры.
// Владеет ею ровно один потребитель (одно соединение или тест);
// внутренней синхронизации нет, вся логика работает на колбэках
// событий и никогда не блокирует.
type Engine struct {
	gameID string
	role   Role
	kind   Kind
	state  State

	stake      Stake
	timeLeft   int
	selected   string
	lastResult Result // "" пока результата нет
	pending    *BetProposal

	// одиночный (тренировочный) режим: таймер идет локально,
	// выбор разрешается немедленно без пира
	practice bool
	deadline time.Time

	emitter Emitter
	notify  func(msg string)
	log     *slog.Logger
}

// New создает сессию сетевой игры. Роль назначается при создании и
// не меняется. Движок сразу ждет противника.
func New(gameID string, role Role, kind Kind, stake Stake, emitter Emitter) (*Engine, error) {
	if role != RoleHost && role != RoleChallenger {
		return nil, ErrUnknownRole
	}
	if err := validateStake(stake); err != nil {
		return nil, err
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}

	return &Engine{
		gameID:   gameID,
		role:     role,
		kind:     kind,
		state:    StateWaiting,
		stake:    stake,
		timeLeft: kind.DefaultTimer,
		emitter:  emitter,
		log:      logger.With("component", "session", "game_id", gameID, "role", string(role)),
	}, nil
}

// NewPractice создает одиночную тренировочную сессию: противника нет,
// раунд начинается сразу, таймер свободно идет локально.
func NewPractice(gameID string, kind Kind, stake Stake) (*Engine, error) {
	e, err := New(gameID, RoleHost, kind, stake, nil)
	if err != nil {
		return nil, err
	}
	e.practice = true
	e.startRound("")
	return e, nil
}

// SetNotify устанавливает колбэк пользовательских уведомлений (тост).
// Ошибки переговоров и таймауты приходят сюда, никогда как паника.
func (e *Engine) SetNotify(fn func(msg string)) {
	e.notify = fn
}

func (e *Engine) GameID() string { return e.gameID }
func (e *Engine) Role() Role { return e.role }
func (e *Engine) Kind() Kind { return e.kind }
func (e *Engine) State() State { return e.state }
func (e *Engine) Stake() Stake { return e.stake }
func (e *Engine) Selected() string { return e.selected }
func (e *Engine) LastResult() Result { return e.lastResult }

// TimeLeft возвращает остаток секунд раунда
func (e *Engine) TimeLeft() int { return e.timeLeft }

// Pending возвращает копию незакрытого предложения смены ставки
func (e *Engine) Pending() *BetProposal {
	if e.pending == nil {
		return nil
	}
	p := *e.pending
	return &p
}

// HandleEvent применяет входящее событие транспорта. Событие, не
// подходящее текущему состоянию, логируется и игнорируется — движок
// никогда не ломает состояние на неожиданном входе.
func (e *Engine) HandleEvent(ev Event) {
	if e.state == StateTerminated {
		// terminated — поглощающее состояние
		e.log.Debug("событие после завершения сессии проигнорировано", "event", eventName(ev))
		return
	}

	switch v := ev.(type) {
	case TimerUpdate:
		e.handleTimer(v.TimeLeft)

	case GameStarted:
		if e.state != StateWaiting && e.state != StateRematchRequested {
			e.ignored(ev)
			return
		}
		e.startRound(v.AssignedChoice)

	case GameResult:
		if e.state != StateRevealing {
			e.ignored(ev)
			return
		}
		e.applyResult(v)

	case PlayerLeft:
		e.toast("противник покинул игру")
		e.terminate()

	case BetUpdated:
		e.applyBetUpdate(v)

	case BetRequest:
		if e.role != RoleChallenger {
			e.ignored(ev)
			return
		}
		if e.pending != nil {
			// одновременно допустимо только одно предложение
			e.log.Warn("повторный bet request при незакрытом предложении, игнорируем")
			return
		}
		e.pending = &BetProposal{Amount: v.Amount, Odds: v.Odds, TokenType: v.TokenType}

	default:
		e.ignored(ev)
	}
}

// handleTimer применяет авторитетное значение таймера. Ноль
// безусловно завершает сессию из любого состояния — зависший пир не
// должен блокировать UI бесконечно.
func (e *Engine) handleTimer(timeLeft int) {
	if timeLeft <= 0 {
		e.timeLeft = 0
		e.forceLeave()
		return
	}
	if timeLeft > e.timeLeft {
		// между тиками счетчик не растет; сброс делает только новый раунд
		e.log.Debug("рост таймера между тиками проигнорирован", "got", timeLeft, "have", e.timeLeft)
		return
	}
	e.timeLeft = timeLeft
}

func (e *Engine) startRound(assigned string) {
	e.state = StateChoosing
	e.timeLeft = e.kind.DefaultTimer
	e.lastResult = ""
	e.selected = ""
	if assigned != "" && e.kind.ValidAction(assigned) {
		e.selected = assigned
	}
	if e.practice {
		e.deadline = time.Now().Add(time.Duration(e.kind.DefaultTimer) * time.Second)
	}
}

func (e *Engine) applyResult(v GameResult) {
	// ничья в КНБ не показывается как результат: раунд тихо
	// перезапускается запросом реванша
	if e.kind.DrawPossible && v.CreatorChoice != "" && v.CreatorChoice == v.ChallengerChoice {
		e.selected = ""
		e.emit(EvtRematch, map[string]any{"gameId": e.gameID})
		e.state = StateWaiting
		return
	}

	switch {
	case v.Winner == "":
		e.lastResult = ResultDraw
	case v.Winner == e.role:
		e.lastResult = ResultWin
	default:
		e.lastResult = ResultLose
	}
	e.state = StateResult
}

// SubmitChoice фиксирует ход локального игрока и отправляет его пиру.
// В тренировочном режиме раунд разрешается немедленно на клиенте.
func (e *Engine) SubmitChoice(action string) bool {
	if e.state != StateChoosing {
		e.log.Warn("ход вне фазы выбора отклонен", "state", string(e.state), "action", action)
		return false
	}
	if !e.kind.ValidAction(action) {
		e.log.Warn("нелегальный ход отклонен", "action", action)
		return false
	}

	e.selected = action
	e.emit(EvtPlayerChoice, map[string]any{"gameId": e.gameID, "choice": action})

	if e.practice {
		e.resolvePractice()
		return true
	}

	e.state = StateRevealing
	return true
}

// RequestRematch запрашивает реванш после показанного результата
func (e *Engine) RequestRematch() bool {
	if e.state != StateResult {
		e.log.Warn("реванш вне состояния результата отклонен", "state", string(e.state))
		return false
	}
	e.emit(EvtRematch, map[string]any{"gameId": e.gameID})
	if e.practice {
		// пира нет — следующий раунд начинается сразу
		e.startRound("")
		return true
	}
	e.state = StateRematchRequested
	return true
}

// Leave явно завершает сессию. Доступно из любого состояния.
func (e *Engine) Leave() {
	if e.state == StateTerminated {
		return
	}
	e.emit(EvtLeaveGame, map[string]any{"gameId": e.gameID})
	e.terminate()
}

// Tick пересчитывает локальный таймер тренировочного режима.
// Возвращает false, если время вышло и сессия завершена.
func (e *Engine) Tick() bool {
	if !e.practice || e.state == StateTerminated {
		return e.state != StateTerminated
	}
	left := int(time.Until(e.deadline).Seconds())
	if e.state != StateChoosing {
		return true
	}
	if left <= 0 {
		e.timeLeft = 0
		e.forceLeave()
		return false
	}
	if left < e.timeLeft {
		e.timeLeft = left
	}
	return true
}

// forceLeave — единственный переход, который разрешено форсировать из
// любого состояния, включая незакрытые переговоры по ставке
func (e *Engine) forceLeave() {
	e.toast("время истекло, игра завершена")
	e.emit(EvtLeaveGame, map[string]any{"gameId": e.gameID})
	e.terminate()
}

func (e *Engine) terminate() {
	e.state = StateTerminated
	e.pending = nil
}

// resolvePractice разыгрывает раунд против "дома" криптослучайным ходом
func (e *Engine) resolvePractice() {
	house := e.kind.Actions[secureRandInt(int64(len(e.kind.Actions)))]

	if e.kind.DrawPossible && house == e.selected {
		// ничья — тихий перезапуск раунда без видимого результата
		e.startRound("")
		return
	}

	var win bool
	switch e.kind.Name {
	case KindCoinToss:
		// подброс монеты: выигрывает совпавшая сторона
		toss := e.kind.Actions[secureRandInt(2)]
		win = toss == e.selected
	default:
		win = decideRPS(e.selected, house) == ResultWin
	}

	if win {
		e.lastResult = ResultWin
	} else {
		e.lastResult = ResultLose
	}
	e.state = StateResult
}

// Snapshot сериализует состояние сессии для клиента
func (e *Engine) Snapshot() map[string]any {
	snap := map[string]any{
		"game_id":     e.gameID,
		"kind":        string(e.kind.Name),
		"role":        string(e.role),
		"state":       string(e.state),
		"time_left":   e.timeLeft,
		"stake":       e.stake,
		"selected":    e.selected,
		"last_result": string(e.lastResult),
	}
	if e.pending != nil {
		snap["pending_bet_change"] = *e.pending
	}
	return snap
}

func (e *Engine) emit(event string, payload map[string]any) {
	e.emitter.Emit(event, payload)
}

func (e *Engine) toast(msg string) {
	if e.notify != nil {
		e.notify(msg)
	}
}

func (e *Engine) ignored(ev Event) {
	e.log.Warn("событие не подходит текущему состоянию, игнорируем",
		"event", eventName(ev), "state", string(e.state))
}

func eventName(ev Event) string {
	switch ev.(type) {
	case TimerUpdate:
		return "timerUpdate"
	case GameStarted:
		return "gameStarted"
	case GameResult:
		return "gameResult"
	case PlayerLeft:
		return "playerLeft"
	case BetUpdated:
		return "betUpdated"
	case BetRequest:
		return "betRequest"
	}
	return "unknown"
}

func validateStake(s Stake) error {
	amount, err := strconv.ParseFloat(s.Amount, 64)
	if err != nil || amount <= 0 {
		return ErrInvalidStake
	}
	odds, err := strconv.ParseFloat(s.OddsMultiplier, 64)
	if err != nil || odds <= 0 {
		return ErrInvalidStake
	}
	return nil
}

// decideRPS определяет исход раунда камень-ножницы-бумага для moveA
func decideRPS(moveA, moveB string) Result {
	if moveA == moveB {
		return ResultDraw
	}

	switch moveA {
	case ActionRock:
		if moveB == ActionScissors {
			return ResultWin
		}
	case ActionPaper:
		if moveB == ActionRock {
			return ResultWin
		}
	case ActionScissors:
		if moveB == ActionPaper {
			return ResultWin
		}
	}

	return ResultLose
}

// secureRandInt возвращает криптостойкое случайное число в [0, max)
func secureRandInt(max int64) int64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(max))
	return n.Int64()
}
