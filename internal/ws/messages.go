package ws

import "encoding/json"

// Message — кадр клиентского протокола комнаты
type Message struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Типы сообщений сервер -> клиент
const (
	MsgGameStarted = "gameStarted"
	MsgTimerUpdate = "timerUpdate"
	MsgGameResult  = "gameResult"
	MsgPlayerLeft  = "playerLeft"
	MsgBetRequest  = "betRequest"
	MsgBetUpdated  = "betUpdated"
	MsgError       = "error"
)

// Типы сообщений клиент -> сервер
const (
	MsgPlayerChoice     = "playerChoice"
	MsgRematch          = "rematch"
	MsgLeaveGame        = "leaveGame"
	MsgRequestBetUpdate = "requestBetUpdate"
	MsgAcceptBetChange  = "acceptBetChangeRequest"
	MsgRejectBetChange  = "rejectBetChangeRequest"
)

func encode(typ string, payload map[string]any) []byte {
	data, _ := json.Marshal(Message{Type: typ, Payload: payload})
	return data
}
