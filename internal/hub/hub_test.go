package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seungmin-w/molip-backend/internal/game"
	"github.com/seungmin-w/molip-backend/internal/protocol"
	"github.com/seungmin-w/molip-backend/internal/room"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, game.DefaultRules(), zap.NewNop(), nil)
}

func create(t *testing.T, h *Hub, name string) CreateResult {
	t.Helper()
	reply := make(chan CreateResult, 1)
	h.Inbox() <- CreateRoom{RoomName: name, Reply: reply}
	select {
	case res := <-reply:
		return res
	case <-time.After(time.Second):
		t.Fatal("timed out creating room")
		return CreateResult{} // unreachable
	}
}

func TestHub_CreateThenGetSamePointer(t *testing.T) {
	h := newTestHub(t)

	res := create(t, h, "my room")
	require.NoError(t, res.Err)
	require.NotNil(t, res.Room)

	reply := make(chan *room.Room, 1)
	h.Inbox() <- GetRoom{RoomID: res.Room.ID, Reply: reply}
	require.Same(t, res.Room, <-reply)
}

func TestHub_GetUnknownRoomIsNil(t *testing.T) {
	h := newTestHub(t)
	reply := make(chan *room.Room, 1)
	h.Inbox() <- GetRoom{RoomID: "NOPE", Reply: reply}
	require.Nil(t, <-reply)
}

func TestHub_CreateValidation(t *testing.T) {
	h := newTestHub(t)

	res := create(t, h, "   ")
	require.ErrorIs(t, res.Err, ErrInvalidName)

	first := create(t, h, "dance floor")
	require.NoError(t, first.Err)

	dup := create(t, h, "dance floor")
	require.ErrorIs(t, dup.Err, ErrNameTaken)
}

func TestHub_ListRoomsIsStableSnapshot(t *testing.T) {
	h := newTestHub(t)
	create(t, h, "room one")
	create(t, h, "room two")

	reply := make(chan []protocol.RoomSummary, 1)
	h.Inbox() <- ListRooms{Reply: reply}
	list := <-reply
	require.Len(t, list, 2)
	require.LessOrEqual(t, list[0].RoomID, list[1].RoomID)
}

func TestHub_WatcherReceivesRoomListUpdates(t *testing.T) {
	h := newTestHub(t)

	out := make(chan protocol.ServerMessage, 8)
	h.Inbox() <- Watch{ClientID: "w1", Outbox: out}

	// subscription primes the watcher with the current (empty) list
	first := recvList(t, out)
	require.Empty(t, first)

	create(t, h, "fresh room")
	next := recvList(t, out)
	require.Len(t, next, 1)
	require.Equal(t, "fresh room", next[0].RoomName)
}

func recvList(t *testing.T, ch <-chan protocol.ServerMessage) []protocol.RoomSummary {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case msg := <-ch:
			if msg.Type == protocol.EvtRoomList {
				return msg.Data.([]protocol.RoomSummary)
			}
		case <-deadline:
			t.Fatal("timed out waiting for roomList")
			return nil // unreachable
		}
	}
}
