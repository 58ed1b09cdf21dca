package ws

import (
	"testing"

	"crypto_arena/internal/session"
)

func TestClientBuffersEarlyFramesInOrder(t *testing.T) {
	_, room, host, challenger := pairedRoom(t, session.KindRPS)

	// кадры до публикации комнаты копятся в буфере
	challenger.dispatch(encode(MsgPlayerChoice, map[string]any{"choice": session.ActionRock}))
	challenger.dispatch(encode(MsgPlayerChoice, map[string]any{"choice": session.ActionPaper}))
	if challenger.getRoom() != nil {
		t.Fatalf("комната не должна быть видна до setRoom")
	}

	// публикация проигрывает буфер: первый ход регистрируется, второй
	// гасится как повторный
	challenger.setRoom(room)
	host.setRoom(room)
	host.dispatch(encode(MsgPlayerChoice, map[string]any{"choice": session.ActionScissors}))

	msg := recvFrame(t, host, true)
	if msg.Type != MsgGameResult {
		t.Fatalf("ожидался gameResult, получили %s", msg.Type)
	}
	if msg.Payload["challengerChoice"] != session.ActionRock {
		t.Fatalf("ранние кадры должны проигрываться в порядке прихода, получили %v", msg.Payload["challengerChoice"])
	}
	if msg.Payload["winner"] != string(session.RoleChallenger) {
		t.Fatalf("камень бьет ножницы, получили %v", msg.Payload["winner"])
	}
}

func TestClientRoomPublishDuringReads(t *testing.T) {
	_, room, host, _ := pairedRoom(t, session.KindCoinToss)

	// кадры сыплются параллельно с публикацией комнаты
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			host.dispatch(encode(MsgRematch, nil))
		}
	}()
	host.setRoom(room)
	<-done

	if host.getRoom() != room {
		t.Fatalf("комната должна быть опубликована")
	}
}
