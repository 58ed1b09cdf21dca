package session

// Входящие события сокет-транспорта. Типизированная сумма вместо
// map-нагрузок: невалидные комбинации полей непредставимы.
type Event interface{ isEvent() }

// TimerUpdate — авторитетный остаток времени раунда, пушится сервером.
// TimeLeft <= 0 принудительно завершает сессию из любого состояния.
type TimerUpdate struct {
	TimeLeft int
}

// GameStarted — раунд начался. AssignedChoice опционально предзаполняет
// ход (конвенция "проигравший выбирает следующим").
type GameStarted struct {
	AssignedChoice string
}

// GameResult — итог раунда. Winner — роль победителя, пустая при ничьей.
type GameResult struct {
	Winner           Role
	CreatorChoice    string
	ChallengerChoice string
}

// PlayerLeft — противник покинул игру
type PlayerLeft struct{}

// BetUpdated — серверный вердикт по запросу смены ставки
type BetUpdated struct {
	Status string
	Amount string
	Odds   string
}

// BetRequest — хост предложил новые условия ставки
type BetRequest struct {
	Amount    string
	Odds      string
	TokenType string
}

func (TimerUpdate) isEvent() {}
func (GameStarted) isEvent() {}
func (GameResult) isEvent()  {}
func (PlayerLeft) isEvent()  {}
func (BetUpdated) isEvent()  {}
func (BetRequest) isEvent()  {}

// Статусы BetUpdated
const (
	BetStatusAccepted     = "accepted"
	BetStatusRejected     = "rejected"
	BetStatusInsufficient = "insufficient_balance"
)

// Исходящие события движка
const (
	EvtPlayerChoice     = "playerChoice"
	EvtRematch          = "rematch"
	EvtLeaveGame        = "leaveGame"
	EvtRequestBetUpdate = "requestBetUpdate"
	EvtAcceptBetChange  = "acceptBetChangeRequest"
	EvtRejectBetChange  = "rejectBetChangeRequest"
)

// Emitter доставляет исходящие события движка транспорту.
// Вызовы не блокируют: доставка подтверждается более поздним
// входящим событием, а не ожиданием пира.
type Emitter interface {
	Emit(event string, payload map[string]any)
}

// EmitterFunc адаптирует функцию под Emitter
type EmitterFunc func(event string, payload map[string]any)

func (f EmitterFunc) Emit(event string, payload map[string]any) {
	f(event, payload)
}

type nopEmitter struct{}

func (nopEmitter) Emit(string, map[string]any) {}
