package session

import "strconv"

// Переговоры о смене ставки. Хост предлагает новые условия, челленджер
// явно принимает или отклоняет; локальная ставка меняется только по
// серверному betUpdated — переговоры НЕ оптимистичные.

// ProposeBetChange отправляет пиру запрос новых условий ставки.
// Только для хоста. Пока предложение не закрыто, второе отклоняется
// локально и не отправляется вовсе.
func (e *Engine) ProposeBetChange(amount, odds, tokenType string) bool {
	if e.role != RoleHost {
		e.log.Warn("смена ставки доступна только хосту")
		return false
	}
	if e.state == StateTerminated {
		return false
	}
	if e.pending != nil {
		e.log.Warn("предложение смены ставки уже ожидает ответа")
		return false
	}
	if !positiveDecimal(amount) || !positiveDecimal(odds) {
		e.log.Warn("некорректные условия ставки отклонены", "amount", amount, "odds", odds)
		return false
	}

	e.pending = &BetProposal{Amount: amount, Odds: odds, TokenType: tokenType}
	e.emit(EvtRequestBetUpdate, map[string]any{
		"gameId":    e.gameID,
		"betAmount": amount,
		"odds":      odds,
		"tokenType": tokenType,
	})
	return true
}

// RespondBetChange отвечает на предложение хоста. Только для
// челленджера и только пока предложение открыто. Принятие не трогает
// ставку — условия применит подтверждающий betUpdated от сервера.
func (e *Engine) RespondBetChange(accept bool) bool {
	if e.role != RoleChallenger {
		e.log.Warn("ответ на смену ставки доступен только челленджеру")
		return false
	}
	if e.pending == nil {
		e.log.Warn("нет открытого предложения смены ставки")
		return false
	}

	if accept {
		e.emit(EvtAcceptBetChange, map[string]any{"gameId": e.gameID})
		return true
	}

	e.emit(EvtRejectBetChange, map[string]any{"gameId": e.gameID})
	e.pending = nil
	e.toast("предложение смены ставки отклонено")
	return true
}

// applyBetUpdate применяет серверный вердикт по предложению.
// Либо обе стороны получают новые условия целиком, либо ставка
// остается прежней — промежуточных состояний не бывает.
func (e *Engine) applyBetUpdate(v BetUpdated) {
	switch v.Status {
	case BetStatusAccepted:
		amount, odds := v.Amount, v.Odds
		if e.pending != nil {
			if amount == "" {
				amount = e.pending.Amount
			}
			if odds == "" {
				odds = e.pending.Odds
			}
			if e.pending.TokenType != "" {
				e.stake.TokenType = e.pending.TokenType
			}
		}
		if !positiveDecimal(amount) || !positiveDecimal(odds) {
			e.log.Warn("betUpdated с некорректными условиями проигнорирован", "amount", amount, "odds", odds)
			return
		}
		e.stake.Amount = amount
		e.stake.OddsMultiplier = odds
		e.pending = nil
		e.toast("условия ставки обновлены")

	case BetStatusRejected:
		e.pending = nil
		e.toast("предложение смены ставки отклонено")

	case BetStatusInsufficient:
		// у челленджера не хватает баланса — ставка не меняется
		e.pending = nil
		e.toast("недостаточно средств для новых условий")

	default:
		e.log.Warn("неизвестный статус betUpdated проигнорирован", "status", v.Status)
	}
}

func positiveDecimal(s string) bool {
	v, err := strconv.ParseFloat(s, 64)
	return err == nil && v > 0
}
