package bus

import (
	"encoding/json"
	"fmt"
	"testing"
)

// фрейм-заглушка, собирающий все записанные кадры
type fakeFrame struct {
	origin    string
	written   [][]byte
	failWrite bool
}

func (f *fakeFrame) Origin() string { return f.origin }

func (f *fakeFrame) WriteMessage(data []byte) error {
	if f.failWrite {
		return fmt.Errorf("соединение закрыто")
	}
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func validRaw(t *testing.T, typ string) []byte {
	t.Helper()
	data, err := json.Marshal(Envelope{
		Type:      typ,
		Payload:   json.RawMessage(`{"ok":true}`),
		Source:    SourceGame,
		Timestamp: 1700000000000,
		MessageID: "m1",
	})
	if err != nil {
		t.Fatalf("сборка конверта: %v", err)
	}
	return data
}

func countEvents(events []SecurityEvent, kind string) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func TestDispatchMalformedVariants(t *testing.T) {
	b := New(Config{})

	invoked := 0
	b.OnMessage(MsgGameReady, func(Envelope) { invoked++ })

	cases := [][]byte{
		[]byte(`not json at all`),
		[]byte(`{"payload":{"a":1},"source":"game"}`),                      // нет type
		[]byte(`{"type":"GAME_READY","source":"game"}`),                    // нет payload
		[]byte(`{"type":"GAME_READY","payload":{},"source":"attacker"}`),   // левый source
		[]byte(`{"type":"GAME_READY","payload":null,"source":"game"}`),     // пустой payload
	}

	for i, raw := range cases {
		if b.Dispatch("http://localhost", "src", raw) {
			t.Fatalf("вариант %d: битый кадр не должен проходить", i)
		}
	}

	if invoked != 0 {
		t.Fatalf("обработчики не должны вызываться для битых кадров, вызваны %d раз", invoked)
	}
	if got := countEvents(b.SecurityEvents(), SecMalformedMessage); got != len(cases) {
		t.Fatalf("ожидалось %d событий malformed_message, получили %d", len(cases), got)
	}
	if len(b.MessageHistory()) != 0 {
		t.Fatalf("битые кадры не должны попадать в историю")
	}
}

func TestProductionOriginAllowList(t *testing.T) {
	prod := New(Config{Production: true, ExtraOrigins: []string{"https://staging.example"}})

	invoked := 0
	prod.OnMessage(MsgGameReady, func(Envelope) { invoked++ })

	if prod.Dispatch("https://evil.example", "src", validRaw(t, MsgGameReady)) {
		t.Fatalf("неразрешенный origin должен отклоняться в продакшене")
	}
	if invoked != 0 {
		t.Fatalf("обработчик не должен вызываться для чужого origin")
	}
	if countEvents(prod.SecurityEvents(), SecUnauthorizedOrigin) != 1 {
		t.Fatalf("отказ по origin должен попадать в журнал аудита")
	}

	// фиксированный продакшен-набор и настроенные дополнения проходят
	for _, origin := range []string{"https://cryptoarena.games", "https://staging.example"} {
		if !prod.Dispatch(origin, "src-"+origin, validRaw(t, MsgGameReady)) {
			t.Fatalf("origin %s должен проходить", origin)
		}
	}

	// вне продакшена allow-list выключен
	dev := New(Config{Production: false})
	if !dev.Dispatch("http://localhost:5173", "src", validRaw(t, MsgGameReady)) {
		t.Fatalf("вне продакшена любой origin должен проходить")
	}
}

func TestSendOversizedPayload(t *testing.T) {
	b := New(Config{})
	frame := &fakeFrame{origin: "http://localhost"}

	big := make([]byte, MaxPayloadBytes+1)
	for i := range big {
		big[i] = 'x'
	}

	if b.SendToGame(frame, MsgGameAction, string(big)) {
		t.Fatalf("слишком большой payload должен отклоняться")
	}
	if len(frame.written) != 0 {
		t.Fatalf("отклоненный кадр не должен писаться во фрейм")
	}
	if len(b.MessageHistory()) != 0 {
		t.Fatalf("отклоненный кадр не должен попадать в историю")
	}
	if countEvents(b.SecurityEvents(), SecOversizedPayload) != 1 {
		t.Fatalf("превышение размера должно попадать в журнал аудита")
	}
}

func TestSendWritesSignedEnvelope(t *testing.T) {
	secret := []byte("bridge-secret")
	b := New(Config{Secret: secret})
	frame := &fakeFrame{origin: "http://localhost"}

	if !b.SendToGame(frame, MsgInitializeGame, map[string]any{"sessionId": "s1"}) {
		t.Fatalf("отправка должна проходить")
	}
	if len(frame.written) != 1 {
		t.Fatalf("ожидался один записанный кадр, получили %d", len(frame.written))
	}

	var env Envelope
	if err := json.Unmarshal(frame.written[0], &env); err != nil {
		t.Fatalf("кадр должен быть валидным конвертом: %v", err)
	}
	if env.Type != MsgInitializeGame || env.Source != SourceParent {
		t.Fatalf("неверная шапка конверта: %+v", env)
	}
	if env.MessageID == "" || env.Nonce == "" {
		t.Fatalf("конверт должен нести messageId и nonce")
	}
	if !verifySignature(secret, env) {
		t.Fatalf("подпись конверта не сходится")
	}
	if len(b.MessageHistory()) != 1 {
		t.Fatalf("отправленный кадр должен попадать в историю")
	}
}

func TestDispatchRejectsTamperedSignature(t *testing.T) {
	secret := []byte("bridge-secret")
	b := New(Config{Secret: secret})
	frame := &fakeFrame{origin: "http://localhost"}
	b.SendToGame(frame, MsgGameAction, map[string]any{"move": "rock"})

	var env Envelope
	if err := json.Unmarshal(frame.written[0], &env); err != nil {
		t.Fatalf("разбор конверта: %v", err)
	}

	// подменяем payload, подпись остается старой
	env.Payload = json.RawMessage(`{"move":"paper"}`)
	env.Source = SourceGame
	tampered, _ := json.Marshal(env)

	invoked := 0
	b.OnMessage(MsgGameAction, func(Envelope) { invoked++ })

	if b.Dispatch("http://localhost", "src", tampered) {
		t.Fatalf("кадр с битой подписью должен отклоняться")
	}
	if invoked != 0 {
		t.Fatalf("обработчик не должен вызываться для подмененного кадра")
	}
	if countEvents(b.SecurityEvents(), SecInvalidSignature) != 1 {
		t.Fatalf("битая подпись должна попадать в журнал аудита")
	}

	// кадр вовсе без подписи проходит: подпись — метка, а не допуск
	if !b.Dispatch("http://localhost", "src", validRaw(t, MsgGameAction)) {
		t.Fatalf("неподписанный кадр должен проходить")
	}
}

func TestWriteFailureRecorded(t *testing.T) {
	b := New(Config{})
	frame := &fakeFrame{origin: "http://localhost", failWrite: true}

	if b.SendToGame(frame, MsgEndGame, map[string]any{}) {
		t.Fatalf("ошибка записи должна возвращать false")
	}
	if countEvents(b.SecurityEvents(), SecSendError) != 1 {
		t.Fatalf("ошибка записи должна попадать в журнал аудита")
	}
}

func TestHandlerPanicIsolation(t *testing.T) {
	b := New(Config{})

	second := 0
	b.OnMessage(MsgGameReady, func(Envelope) { panic("сбойный слушатель") })
	b.OnMessage(MsgGameReady, func(Envelope) { second++ })

	if !b.Dispatch("http://localhost", "src", validRaw(t, MsgGameReady)) {
		t.Fatalf("кадр должен проходить несмотря на панику обработчика")
	}
	if second != 1 {
		t.Fatalf("паника одного обработчика не должна ломать остальных")
	}
	if countEvents(b.SecurityEvents(), SecHandlerPanic) != 1 {
		t.Fatalf("паника должна попадать в журнал аудита")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New(Config{})

	first, second := 0, 0
	unsub := b.OnMessage(MsgGameReady, func(Envelope) { first++ })
	b.OnMessage(MsgGameReady, func(Envelope) { second++ })

	b.Dispatch("http://localhost", "src", validRaw(t, MsgGameReady))
	unsub()
	b.Dispatch("http://localhost", "src", validRaw(t, MsgGameReady))

	if first != 1 {
		t.Fatalf("отписанный обработчик вызван %d раз, ожидался 1", first)
	}
	if second != 2 {
		t.Fatalf("оставшийся обработчик вызван %d раз, ожидалось 2", second)
	}

	// повторная отписка безопасна
	unsub()
}

func TestRemoveHandlers(t *testing.T) {
	b := New(Config{})

	invoked := 0
	b.OnMessage(MsgGameError, func(Envelope) { invoked++ })
	b.OnMessage(MsgGameError, func(Envelope) { invoked++ })
	b.RemoveHandlers(MsgGameError)

	b.Dispatch("http://localhost", "src", validRaw(t, MsgGameError))
	if invoked != 0 {
		t.Fatalf("снятые обработчики не должны вызываться")
	}
}

func TestHistoryRingCapped(t *testing.T) {
	b := New(Config{})

	for i := 0; i < maxHistory+20; i++ {
		// разные источники, чтобы не упереться в rate limit
		if !b.Dispatch("http://localhost", fmt.Sprintf("src-%d", i), validRaw(t, MsgGameReady)) {
			t.Fatalf("кадр %d должен проходить", i)
		}
	}

	if got := len(b.MessageHistory()); got != maxHistory {
		t.Fatalf("история должна быть ограничена %d записями, получили %d", maxHistory, got)
	}
}

func TestSecurityEventsCapped(t *testing.T) {
	b := New(Config{})

	for i := 0; i < maxSecurityEvents+10; i++ {
		b.Dispatch("http://localhost", "src", []byte(`broken`))
	}

	if got := len(b.SecurityEvents()); got != maxSecurityEvents {
		t.Fatalf("журнал аудита должен быть ограничен %d записями, получили %d", maxSecurityEvents, got)
	}
}
