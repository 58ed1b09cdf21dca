package session

import "slices"

type GameKind string

const (
	KindCoinToss GameKind = "coin-toss"
	KindRPS      GameKind = "rock-paper-scissors"
)

// Ходы
const (
	ActionHeads    = "heads"
	ActionTails    = "tails"
	ActionRock     = "rock"
	ActionPaper    = "paper"
	ActionScissors = "scissors"
)

// Kind описывает параметры конкретной игры: легальные ходы,
// таймер раунда по умолчанию и возможность ничьей.
// Одна параметризованная машина состояний вместо копии движка на игру.
type Kind struct {
	Name         GameKind
	Actions      []string
	DefaultTimer int // секунды на раунд
	DrawPossible bool
}

var kinds = map[GameKind]Kind{
	KindCoinToss: {
		Name:         KindCoinToss,
		Actions:      []string{ActionHeads, ActionTails},
		DefaultTimer: 30,
		DrawPossible: false,
	},
	KindRPS: {
		Name:         KindRPS,
		Actions:      []string{ActionRock, ActionPaper, ActionScissors},
		DefaultTimer: 10,
		DrawPossible: true,
	},
}

// KindByName возвращает дескриптор игры по имени
func KindByName(name GameKind) (Kind, bool) {
	k, ok := kinds[name]
	return k, ok
}

// ValidAction проверяет, легален ли ход для этой игры
func (k Kind) ValidAction(action string) bool {
	return slices.Contains(k.Actions, action)
}

// OppositeAction возвращает противоположную сторону монеты.
// Для игр без парных ходов возвращает пустую строку.
func (k Kind) OppositeAction(action string) string {
	if k.Name != KindCoinToss {
		return ""
	}
	switch action {
	case ActionHeads:
		return ActionTails
	case ActionTails:
		return ActionHeads
	}
	return ""
}
