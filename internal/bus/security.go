package bus

import "time"

// Виды событий безопасности
const (
	SecUnauthorizedOrigin = "unauthorized_origin"
	SecMalformedMessage   = "malformed_message"
	SecOversizedPayload   = "oversized_payload"
	SecInvalidSignature   = "invalid_signature"
	SecRateLimited        = "rate_limited"
	SecSendError          = "send_error"
	SecHandlerPanic       = "handler_panic"
)

// SecurityEvent — запись аудита отклоненного или сбойного сообщения.
// Журнал хранит origin и детали, но не payload.
type SecurityEvent struct {
	Kind      string    `json:"kind"`
	Origin    string    `json:"origin,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// recordSecurity добавляет событие в капированный журнал аудита.
// Журнал намеренно отделен от кольца истории сообщений.
// Вызывающий должен удерживать b.mu.
func (b *Bus) recordSecurity(kind, origin, detail string) {
	ev := SecurityEvent{
		Kind:      kind,
		Origin:    origin,
		Detail:    detail,
		Timestamp: b.now(),
	}
	b.events = append(b.events, ev)
	if len(b.events) > maxSecurityEvents {
		b.events = b.events[len(b.events)-maxSecurityEvents:]
	}
}
