package session

import "testing"

func startedEngine(t *testing.T, role Role) (*Engine, *captureEmitter) {
	t.Helper()
	e, em := newTestEngine(t, role, KindCoinToss)
	e.HandleEvent(GameStarted{})
	return e, em
}

func TestProposeBetChangeHostOnly(t *testing.T) {
	e, em := startedEngine(t, RoleChallenger)
	if e.ProposeBetChange("5", "3", "ton") {
		t.Fatalf("челленджер не может предлагать смену ставки")
	}
	if len(em.events) != 0 {
		t.Fatalf("отклоненное предложение не должно ничего отправлять")
	}
}

func TestProposeBetChangeSingleOutstanding(t *testing.T) {
	e, em := startedEngine(t, RoleHost)

	if !e.ProposeBetChange("5", "3", "ton") {
		t.Fatalf("первое предложение должно приниматься")
	}
	sent := len(em.events)

	// второе предложение при незакрытом первом отклоняется локально
	if e.ProposeBetChange("9", "4", "ton") {
		t.Fatalf("второе предложение при открытом первом должно отклоняться")
	}
	if len(em.events) != sent {
		t.Fatalf("отклоненное предложение не должно уходить пиру")
	}

	p := e.Pending()
	if p == nil || p.Amount != "5" || p.Odds != "3" {
		t.Fatalf("открытое предложение не должно меняться: %+v", p)
	}
}

func TestProposeBetChangeValidatesTerms(t *testing.T) {
	e, _ := startedEngine(t, RoleHost)

	bad := [][2]string{
		{"0", "2"},
		{"-5", "2"},
		{"abc", "2"},
		{"5", "0"},
		{"5", "-1"},
	}
	for _, terms := range bad {
		if e.ProposeBetChange(terms[0], terms[1], "ton") {
			t.Fatalf("условия %v должны отклоняться", terms)
		}
	}
	if e.Pending() != nil {
		t.Fatalf("невалидные условия не должны открывать предложение")
	}
}

func TestRespondBetChangeChallengerOnly(t *testing.T) {
	e, _ := startedEngine(t, RoleHost)
	e.ProposeBetChange("5", "3", "ton")

	if e.RespondBetChange(true) {
		t.Fatalf("хост не может отвечать на собственное предложение")
	}
}

func TestAcceptKeepsStakeUntilServerConfirms(t *testing.T) {
	e, em := startedEngine(t, RoleChallenger)
	e.HandleEvent(BetRequest{Amount: "5", Odds: "3", TokenType: "ton"})

	if !e.RespondBetChange(true) {
		t.Fatalf("принятие открытого предложения должно проходить")
	}
	if em.last() != EvtAcceptBetChange {
		t.Fatalf("принятие должно уходить на сервер, последнее событие %q", em.last())
	}

	// ставка НЕ меняется до betUpdated — переговоры не оптимистичные
	if e.Stake().Amount != "1" || e.Stake().OddsMultiplier != "2" {
		t.Fatalf("ставка изменилась до подтверждения сервера: %+v", e.Stake())
	}
	if e.Pending() == nil {
		t.Fatalf("предложение остается открытым до вердикта сервера")
	}

	// подтверждение применяет новые условия целиком
	e.HandleEvent(BetUpdated{Status: BetStatusAccepted, Amount: "5", Odds: "3"})
	if e.Stake().Amount != "5" || e.Stake().OddsMultiplier != "3" {
		t.Fatalf("подтвержденные условия не применились: %+v", e.Stake())
	}
	if e.Pending() != nil {
		t.Fatalf("вердикт сервера должен закрывать предложение")
	}
}

// сценарий из жизни: ставка 1 ton x2, хост предлагает 2 ton x3
func TestBetNegotiationEndToEnd(t *testing.T) {
	host, hostEm := startedEngine(t, RoleHost)
	challenger, _ := startedEngine(t, RoleChallenger)

	if !host.ProposeBetChange("2", "3", "sol") {
		t.Fatalf("предложение хоста должно приниматься")
	}
	if hostEm.last() != EvtRequestBetUpdate {
		t.Fatalf("предложение должно уходить пиру")
	}

	// сервер транслирует запрос челленджеру
	challenger.HandleEvent(BetRequest{Amount: "2", Odds: "3", TokenType: "sol"})
	if challenger.Pending() == nil {
		t.Fatalf("челленджер должен видеть открытое предложение")
	}

	challenger.RespondBetChange(true)

	// сервер подтверждает обеим сторонам
	verdict := BetUpdated{Status: BetStatusAccepted, Amount: "2", Odds: "3"}
	host.HandleEvent(verdict)
	challenger.HandleEvent(verdict)

	for _, e := range []*Engine{host, challenger} {
		s := e.Stake()
		if s.Amount != "2" || s.OddsMultiplier != "3" || s.TokenType != "sol" {
			t.Fatalf("условия применились не целиком: %+v", s)
		}
		if e.Pending() != nil {
			t.Fatalf("предложение должно быть закрыто")
		}
	}
}

func TestRejectLeavesStakeUntouched(t *testing.T) {
	e, em := startedEngine(t, RoleChallenger)
	var toasts []string
	e.SetNotify(func(msg string) { toasts = append(toasts, msg) })

	e.HandleEvent(BetRequest{Amount: "5", Odds: "3", TokenType: "ton"})
	if !e.RespondBetChange(false) {
		t.Fatalf("отклонение открытого предложения должно проходить")
	}
	if em.last() != EvtRejectBetChange {
		t.Fatalf("отклонение должно уходить на сервер")
	}
	if e.Pending() != nil {
		t.Fatalf("отклонение закрывает предложение сразу")
	}
	if e.Stake().Amount != "1" || e.Stake().OddsMultiplier != "2" {
		t.Fatalf("отклонение не должно трогать ставку: %+v", e.Stake())
	}
	if len(toasts) == 0 {
		t.Fatalf("отклонение должно показывать уведомление")
	}
}

func TestInsufficientBalanceLeavesStake(t *testing.T) {
	e, _ := startedEngine(t, RoleHost)
	e.ProposeBetChange("100", "3", "ton")

	e.HandleEvent(BetUpdated{Status: BetStatusInsufficient})

	if e.Stake().Amount != "1" || e.Stake().OddsMultiplier != "2" {
		t.Fatalf("нехватка баланса не должна менять ставку: %+v", e.Stake())
	}
	if e.Pending() != nil {
		t.Fatalf("вердикт должен закрывать предложение")
	}
}

func TestRespondWithoutProposal(t *testing.T) {
	e, em := startedEngine(t, RoleChallenger)
	if e.RespondBetChange(true) {
		t.Fatalf("ответ без открытого предложения должен отклоняться")
	}
	if len(em.events) != 0 {
		t.Fatalf("пустой ответ не должен ничего отправлять")
	}
}

func TestDuplicateBetRequestIgnored(t *testing.T) {
	e, _ := startedEngine(t, RoleChallenger)
	e.HandleEvent(BetRequest{Amount: "5", Odds: "3", TokenType: "ton"})
	e.HandleEvent(BetRequest{Amount: "9", Odds: "4", TokenType: "ton"})

	p := e.Pending()
	if p == nil || p.Amount != "5" {
		t.Fatalf("повторный запрос при открытом предложении должен игнорироваться: %+v", p)
	}
}

func TestUnknownBetStatusIgnored(t *testing.T) {
	e, _ := startedEngine(t, RoleHost)
	e.ProposeBetChange("5", "3", "ton")

	e.HandleEvent(BetUpdated{Status: "pending", Amount: "5", Odds: "3"})

	if e.Stake().Amount != "1" {
		t.Fatalf("неизвестный статус не должен менять ставку")
	}
	if e.Pending() == nil {
		t.Fatalf("неизвестный статус не должен закрывать предложение")
	}
}
