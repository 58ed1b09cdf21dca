package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crypto_arena/internal/logger"
	"crypto_arena/internal/metrics"

	"github.com/google/uuid"
)

const (
	// потолок сериализованного payload — защита от DoS огромными кадрами
	MaxPayloadBytes = 100_000

	maxHistory        = 100
	maxSecurityEvents = 50

	rateWindow = 60 * time.Second
	rateLimit  = 100
)

// Фиксированный продакшен-набор разрешенных origins
var productionOrigins = []string{
	"https://cryptoarena.games",
	"https://app.cryptoarena.games",
	"https://widgets.cryptoarena.games",
}

// Frame — один канал к встроенному игровому виджету (или к хост-странице).
// Origin — конкретный разрешенный origin адресата: доставка всегда идет
// по нему, а не по wildcard, чтобы скомпрометированный фрейм не мог
// перехватывать или внедрять сообщения через чужой origin.
type Frame interface {
	Origin() string
	WriteMessage(data []byte) error
}

// Handler получает прошедший все проверки конверт
type Handler func(env Envelope)

type handlerEntry struct {
	id uint64
	fn Handler
}

type sourceWindow struct {
	start time.Time
	count int
}

// Config — параметры шины при конструировании
type Config struct {
	// Production включает проверку allow-list. Вне продакшена проверка
	// отключена для удобства разработки — это осознанное и
	// задокументированное ослабление, а не безопасный дефолт.
	Production bool

	// дополнительные origins поверх фиксированного продакшен-набора
	ExtraOrigins []string

	// ключ подписи конвертов; пустой — подпись не ставится и не проверяется
	Secret []byte
}

// Bus — единственный доверенный канал между хост-страницей и встроенным
// игровым iframe. Создается явно и передается зависимостью, чтобы тесты
// могли поднимать изолированные экземпляры; процессный singleton — это
// решение владельца, а не пакета.
type Bus struct {
	mu sync.Mutex

	cfg     Config
	allowed map[string]bool

	handlers map[string][]handlerEntry
	nextID   uint64

	rates   map[string]*sourceWindow
	history []Envelope
	events  []SecurityEvent

	now func() time.Time // подменяется в тестах
	log *slog.Logger
}

// New собирает шину с allow-list из фиксированного набора и настроенных
// дополнений
func New(cfg Config) *Bus {
	allowed := make(map[string]bool, len(productionOrigins)+len(cfg.ExtraOrigins))
	for _, o := range productionOrigins {
		allowed[o] = true
	}
	for _, o := range cfg.ExtraOrigins {
		allowed[o] = true
	}

	return &Bus{
		cfg:      cfg,
		allowed:  allowed,
		handlers: make(map[string][]handlerEntry),
		rates:    make(map[string]*sourceWindow),
		now:      time.Now,
		log:      logger.With("component", "bridge_bus"),
	}
}

// SendToGame отправляет конверт вниз, во встроенный игровой фрейм
func (b *Bus) SendToGame(frame Frame, typ string, payload any) bool {
	return b.send(frame, typ, payload, SourceParent)
}

// SendToParent отправляет конверт вверх, хост-странице
func (b *Bus) SendToParent(frame Frame, typ string, payload any) bool {
	return b.send(frame, typ, payload, SourceGame)
}

// send собирает, подписывает и доставляет конверт. Никогда не
// паникует: любой отказ — это false плюс запись в журнал аудита.
func (b *Bus) send(frame Frame, typ string, payload any, source Source) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.mu.Lock()
		b.recordSecurity(SecSendError, frame.Origin(), fmt.Sprintf("marshal %s: %v", typ, err))
		b.mu.Unlock()
		metrics.BusDropped.WithLabelValues(SecSendError).Inc()
		return false
	}

	if len(raw) > MaxPayloadBytes {
		b.mu.Lock()
		b.recordSecurity(SecOversizedPayload, frame.Origin(), fmt.Sprintf("%s: %d bytes", typ, len(raw)))
		b.mu.Unlock()
		metrics.BusDropped.WithLabelValues(SecOversizedPayload).Inc()
		return false
	}

	// доставка только по конкретному целевому origin
	target := frame.Origin()
	if target == "" || (b.cfg.Production && !b.allowed[target]) {
		b.mu.Lock()
		b.recordSecurity(SecUnauthorizedOrigin, target, "send target not allowed")
		b.mu.Unlock()
		metrics.BusDropped.WithLabelValues(SecUnauthorizedOrigin).Inc()
		return false
	}

	env := Envelope{
		Type:      typ,
		Payload:   raw,
		Source:    source,
		Timestamp: b.now().UnixMilli(),
		MessageID: uuid.New().String(),
		Nonce:     uuid.New().String(),
	}
	if len(b.cfg.Secret) > 0 {
		env.Signature = sign(b.cfg.Secret, env.Type, env.Payload, env.Source, env.Timestamp)
	}

	data, err := json.Marshal(env)
	if err != nil {
		b.mu.Lock()
		b.recordSecurity(SecSendError, target, fmt.Sprintf("marshal envelope %s: %v", typ, err))
		b.mu.Unlock()
		metrics.BusDropped.WithLabelValues(SecSendError).Inc()
		return false
	}

	if err := frame.WriteMessage(data); err != nil {
		b.mu.Lock()
		b.recordSecurity(SecSendError, target, fmt.Sprintf("write %s: %v", typ, err))
		b.mu.Unlock()
		metrics.BusDropped.WithLabelValues(SecSendError).Inc()
		return false
	}

	b.mu.Lock()
	b.appendHistory(env)
	b.mu.Unlock()
	metrics.BusSent.Inc()
	return true
}

// Dispatch валидирует входящий кадр и раздает его обработчикам.
// Порядок допуска: структура -> origin -> rate limit. Любой отказ —
// молчаливый для отправителя, обработчики не вызываются вовсе.
// sourceKey — логический источник для окна rate limit (origin+user).
func (b *Bus) Dispatch(origin, sourceKey string, raw []byte) bool {
	env, ok := b.validate(origin, raw)
	if !ok {
		return false
	}

	b.mu.Lock()
	if !b.admit(sourceKey) {
		// превышение бюджета не сообщается отправителю: лимит защищает
		// конвейер обработчиков, а не информирует атакующего. В журнал
		// аудита отказ при этом попадает.
		b.recordSecurity(SecRateLimited, origin, "source "+sourceKey)
		b.mu.Unlock()
		metrics.BusDropped.WithLabelValues(SecRateLimited).Inc()
		return false
	}

	b.appendHistory(env)
	entries := make([]handlerEntry, len(b.handlers[env.Type]))
	copy(entries, b.handlers[env.Type])
	b.mu.Unlock()

	for _, entry := range entries {
		b.invoke(entry, env, origin)
	}
	metrics.BusDispatched.Inc()
	return true
}

// validate — структурная проверка, allow-list и подпись
func (b *Bus) validate(origin string, raw []byte) (Envelope, bool) {
	var env Envelope
	malformed := ""

	if err := json.Unmarshal(raw, &env); err != nil {
		malformed = "not an object"
	} else if env.Type == "" {
		malformed = "missing type"
	} else if len(env.Payload) == 0 || string(env.Payload) == "null" {
		malformed = "missing payload"
	} else if env.Source != SourceParent && env.Source != SourceGame {
		malformed = "invalid source"
	}

	if malformed != "" {
		b.mu.Lock()
		b.recordSecurity(SecMalformedMessage, origin, malformed)
		b.mu.Unlock()
		metrics.BusDropped.WithLabelValues(SecMalformedMessage).Inc()
		return Envelope{}, false
	}

	// в журнал пишется сам origin для аудита, но не payload
	if b.cfg.Production && !b.allowed[origin] {
		b.mu.Lock()
		b.recordSecurity(SecUnauthorizedOrigin, origin, "inbound "+env.Type)
		b.mu.Unlock()
		metrics.BusDropped.WithLabelValues(SecUnauthorizedOrigin).Inc()
		return Envelope{}, false
	}

	// подпись — только метка подмены; формально допуск решают
	// структура, origin и rate limit
	if len(b.cfg.Secret) > 0 && env.Signature != "" && !verifySignature(b.cfg.Secret, env) {
		b.mu.Lock()
		b.recordSecurity(SecInvalidSignature, origin, env.Type)
		b.mu.Unlock()
		metrics.BusDropped.WithLabelValues(SecInvalidSignature).Inc()
		return Envelope{}, false
	}

	return env, true
}

// admit проверяет окно rate limit источника: не больше rateLimit
// сообщений за rateWindow, счетчик сбрасывается по истечении окна.
// Вызывающий должен удерживать b.mu.
func (b *Bus) admit(sourceKey string) bool {
	now := b.now()
	w := b.rates[sourceKey]
	if w == nil || now.Sub(w.start) >= rateWindow {
		b.rates[sourceKey] = &sourceWindow{start: now, count: 1}
		return true
	}
	if w.count >= rateLimit {
		return false
	}
	w.count++
	return true
}

// invoke вызывает один обработчик; паника ловится и логируется, чтобы
// один сбойный слушатель не ломал доставку остальным
func (b *Bus) invoke(entry handlerEntry, env Envelope, origin string) {
	defer func() {
		if r := recover(); r != nil {
			b.mu.Lock()
			b.recordSecurity(SecHandlerPanic, origin, fmt.Sprintf("%s: %v", env.Type, r))
			b.mu.Unlock()
			b.log.Error("обработчик сообщения упал", "type", env.Type, "panic", fmt.Sprint(r))
		}
	}()
	entry.fn(env)
}

// OnMessage регистрирует обработчик типа и возвращает функцию отписки.
// Обработчики хранятся упорядоченным списком: fan-out, не
// single-dispatch.
func (b *Bus) OnMessage(typ string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[typ] = append(b.handlers[typ], handlerEntry{id: id, fn: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.handlers[typ]
		for i, e := range entries {
			if e.id == id {
				b.handlers[typ] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// RemoveHandlers снимает все обработчики типа
func (b *Bus) RemoveHandlers(typ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, typ)
}

// SecurityEvents возвращает копию журнала аудита (до 50 записей)
func (b *Bus) SecurityEvents() []SecurityEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]SecurityEvent, len(b.events))
	copy(out, b.events)
	return out
}

// MessageHistory возвращает копию кольца недавних сообщений (до 100)
func (b *Bus) MessageHistory() []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Envelope, len(b.history))
	copy(out, b.history)
	return out
}

// appendHistory добавляет конверт в кольцо истории.
// Вызывающий должен удерживать b.mu.
func (b *Bus) appendHistory(env Envelope) {
	b.history = append(b.history, env)
	if len(b.history) > maxHistory {
		b.history = b.history[len(b.history)-maxHistory:]
	}
}
