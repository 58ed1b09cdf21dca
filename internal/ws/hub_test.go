package ws

import (
	"testing"

	"crypto_arena/internal/session"
)

func TestHubMatchesOnlyEqualStakes(t *testing.T) {
	hub := NewHub(nil)

	a := fakeClient(1, session.KindCoinToss, "1")
	roomA := hub.AssignClient(a)

	// другая сумма ставки — другая комната
	b := fakeClient(2, session.KindCoinToss, "5")
	roomB := hub.AssignClient(b)
	if roomA == roomB {
		t.Fatalf("разные ставки не должны сводиться в одну комнату")
	}
	if b.Role != session.RoleHost {
		t.Fatalf("игрок с другой ставкой должен открыть свою комнату")
	}

	// другая игра — тоже другая комната
	c := fakeClient(3, session.KindRPS, "1")
	roomC := hub.AssignClient(c)
	if roomC == roomA || roomC == roomB {
		t.Fatalf("разные игры не должны сводиться в одну комнату")
	}

	// совпавший ключ попадает к ожидающему хосту
	d := fakeClient(4, session.KindCoinToss, "1")
	roomD := hub.AssignClient(d)
	if roomD != roomA {
		t.Fatalf("совпавшая ставка должна сводить с ожидающим хостом")
	}
}

func TestHubSkipsDeadWaitingClient(t *testing.T) {
	hub := NewHub(nil)

	a := fakeClient(1, session.KindCoinToss, "1")
	roomA := hub.AssignClient(a)

	// ожидающий умер до прихода пары
	close(a.Done)

	b := fakeClient(2, session.KindCoinToss, "1")
	roomB := hub.AssignClient(b)
	if roomB == roomA {
		t.Fatalf("мертвый ожидающий не должен получать противника")
	}
	if b.Role != session.RoleHost {
		t.Fatalf("новый игрок должен открыть свежую комнату")
	}
}

func TestHubNeverMatchesUserWithSelf(t *testing.T) {
	hub := NewHub(nil)

	a := fakeClient(7, session.KindCoinToss, "1")
	roomA := hub.AssignClient(a)

	// то же самый пользователь со второго устройства
	a2 := fakeClient(7, session.KindCoinToss, "1")
	roomA2 := hub.AssignClient(a2)

	if roomA2 == roomA {
		t.Fatalf("пользователь не должен играть сам с собой")
	}
	if a2.Role != session.RoleHost {
		t.Fatalf("вторая сессия пользователя должна открыть свою комнату")
	}
}

func TestHubRemoveRoomClearsIndexes(t *testing.T) {
	hub, room, host, _ := pairedRoom(t, session.KindCoinToss)

	room.HandleMessage(host, encode(MsgLeaveGame, nil))
	<-room.done

	hub.mu.Lock()
	defer hub.mu.Unlock()
	if len(hub.Rooms) != 0 {
		t.Fatalf("комнаты должны сниматься с учета")
	}
	if len(hub.UserRoom) != 0 {
		t.Fatalf("привязки пользователей должны очищаться, осталось %d", len(hub.UserRoom))
	}
}
