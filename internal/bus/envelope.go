package bus

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

// Сторона доверительной границы, породившая сообщение
type Source string

const (
	SourceParent Source = "parent"
	SourceGame   Source = "game"
)

// Envelope — обертка каждого сообщения через границу фреймов
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Source    Source          `json:"source"`
	Timestamp int64           `json:"timestamp"`
	MessageID string          `json:"messageId"`
	Nonce     string          `json:"nonce,omitempty"`
	Signature string          `json:"signature,omitempty"`
}

// Типы сообщений хост -> игра
const (
	MsgInitializeGame   = "INITIALIZE_GAME"
	MsgBetConfirmed     = "BET_CONFIRMED"
	MsgGameAction       = "GAME_ACTION"
	MsgRequestGameState = "REQUEST_GAME_STATE"
	MsgPauseGame        = "PAUSE_GAME"
	MsgResumeGame       = "RESUME_GAME"
	MsgEndGame          = "END_GAME"
)

// Типы сообщений игра -> хост
const (
	MsgGameReady        = "GAME_READY"
	MsgGameStateChanged = "GAME_STATE_CHANGED"
	MsgGameCompleted    = "GAME_COMPLETED"
	MsgGameError        = "GAME_ERROR"
	MsgBetRequested     = "BET_REQUESTED"
	MsgResizeRequest    = "RESIZE_REQUEST"
)

// sign считает HMAC-SHA256 по type+payload+source+timestamp.
// Это метка для обнаружения подмены, НЕ криптографическая
// аутентификация: любые меняющие состояние суммы сервер обязан
// перепроверить по доверенному источнику.
func sign(secret []byte, typ string, payload []byte, source Source, timestamp int64) string {
	parts := []string{
		typ,
		string(payload),
		string(source),
		strconv.FormatInt(timestamp, 10),
	}
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}

// verifySignature сверяет подпись конверта в постоянное время
func verifySignature(secret []byte, env Envelope) bool {
	expected := sign(secret, env.Type, env.Payload, env.Source, env.Timestamp)
	provided, err := hex.DecodeString(env.Signature)
	if err != nil {
		return false
	}
	calculated, _ := hex.DecodeString(expected)
	return hmac.Equal(calculated, provided)
}
