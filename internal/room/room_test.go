package room

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seungmin-w/molip-backend/internal/archive"
	"github.com/seungmin-w/molip-backend/internal/game"
	"github.com/seungmin-w/molip-backend/internal/protocol"
)

// helper: receive one message with a timeout so tests never hang
func recvMsg(t *testing.T, ch <-chan protocol.ServerMessage, within time.Duration) protocol.ServerMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return protocol.ServerMessage{} // unreachable
	}
}

// helper: drain until a message of the wanted type arrives
func recvType(t *testing.T, ch <-chan protocol.ServerMessage, typ string, within time.Duration) protocol.ServerMessage {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case msg := <-ch:
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", typ)
			return protocol.ServerMessage{} // unreachable
		}
	}
}

func recvNoType(t *testing.T, ch <-chan protocol.ServerMessage, typ string, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case msg := <-ch:
			if msg.Type == typ {
				t.Fatalf("expected no %q, got %+v", typ, msg)
			}
		case <-deadline:
			return
		}
	}
}

func recvView(t *testing.T, r *Room, within time.Duration) View {
	t.Helper()
	reply := make(chan View, 1)
	r.Inbox() <- GetView{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func testRules() game.Rules {
	rules := game.DefaultRules()
	rules.ManagerMinSec = 3600 // keep the manager out of scripted tests
	rules.ManagerMaxSec = 3601
	return rules
}

func newTestRoom(t *testing.T, rules game.Rules, sink archive.Sink) *Room {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, "R1", "test room", rules, rand.New(rand.NewSource(1)), zap.NewNop(), sink)
}

func join(t *testing.T, r *Room, clientID, username string, created bool) chan protocol.ServerMessage {
	t.Helper()
	out := make(chan protocol.ServerMessage, 64)
	reply := make(chan error, 1)
	r.Inbox() <- Join{ClientID: clientID, Username: username, Created: created, Outbox: out, Reply: reply}
	if err := <-reply; err != nil {
		t.Fatalf("join %s: %v", clientID, err)
	}
	return out
}

type recordingSink struct {
	mu   sync.Mutex
	recs []*archive.MatchRecord
}

func (s *recordingSink) Archive(_ context.Context, rec *archive.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func TestRoom_JoinBroadcastsRoomState(t *testing.T) {
	r := newTestRoom(t, testRules(), nil)

	alice := join(t, r, "alice", "alice", true)
	created := recvMsg(t, alice, time.Second)
	if created.Type != protocol.EvtRoomCreated {
		t.Fatalf("creator wants roomCreated, got %s", created.Type)
	}

	bob := join(t, r, "bob", "bob", false)
	joined := recvMsg(t, bob, time.Second)
	if joined.Type != protocol.EvtJoinedRoom {
		t.Fatalf("joiner wants joinedRoom, got %s", joined.Type)
	}

	// alice sees playerJoined for bob with the updated member list
	pj := recvType(t, alice, protocol.EvtPlayerJoined, time.Second)
	state, ok := pj.Data.(protocol.RoomState)
	if !ok {
		t.Fatalf("playerJoined payload is %T", pj.Data)
	}
	if len(state.Players) != 2 || state.HostID != "alice" {
		t.Fatalf("bad room state: %+v", state)
	}
}

func TestRoom_FullMatchFlow(t *testing.T) {
	// Scenario: create, join, start, ready both, run to a winner.
	sink := &recordingSink{}
	r := newTestRoom(t, testRules(), sink)

	alice := join(t, r, "alice", "alice", true)
	bob := join(t, r, "bob", "bob", false)

	r.Inbox() <- FromClient{ClientID: "alice", Msg: protocol.ClientMessage{Type: protocol.CmdStartGame}}

	recvType(t, alice, protocol.EvtGameStarted, time.Second)
	recvType(t, bob, protocol.EvtGameStarted, time.Second)

	// skill assignment is private: each side sees exactly its own
	aSkill := recvType(t, alice, protocol.EvtSkillAssigned, time.Second)
	bSkill := recvType(t, bob, protocol.EvtSkillAssigned, time.Second)
	if aSkill.Data.(protocol.SkillAssigned).Skill == "" || bSkill.Data.(protocol.SkillAssigned).Skill == "" {
		t.Fatalf("empty skill assignment")
	}

	r.Inbox() <- FromClient{ClientID: "alice", Msg: protocol.ClientMessage{Type: protocol.CmdSkillReady}}
	rc := recvType(t, bob, protocol.EvtSkillReadyCount, time.Second)
	for rc.Data.(protocol.SkillReadyCount).Ready == 0 {
		rc = recvType(t, bob, protocol.EvtSkillReadyCount, time.Second)
	}
	if got := rc.Data.(protocol.SkillReadyCount); got.Ready != 1 || got.Total != 2 {
		t.Fatalf("want 1/2, got %+v", got)
	}

	r.Inbox() <- FromClient{ClientID: "bob", Msg: protocol.ClientMessage{Type: protocol.CmdSkillReady}}
	recvType(t, alice, protocol.EvtAllSkillReady, time.Second)
	recvType(t, alice, protocol.EvtStartGameLoop, time.Second)

	view := recvView(t, r, time.Second)
	if view.Phase != game.PhaseRunning {
		t.Fatalf("want Running, got %s", view.Phase)
	}

	// ticking broadcasts snapshots
	upd := recvType(t, bob, protocol.EvtGameStateUpdate, 2*time.Second)
	if gs := upd.Data.(protocol.GameState); len(gs.Players) != 2 {
		t.Fatalf("bad snapshot: %+v", gs)
	}

	// bob disconnects: alice is sole survivor, match ends, result archived
	r.Inbox() <- Leave{ClientID: "bob"}
	ended := recvType(t, alice, protocol.EvtGameEnded, time.Second)
	res := ended.Data.(protocol.GameEnded)
	if res.WinnerSocketID != "alice" {
		t.Fatalf("want winner alice, got %+v", res)
	}

	// terminal: no gameStateUpdate after gameEnded
	recvNoType(t, alice, protocol.EvtGameStateUpdate, 600*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("want 1 archived record, got %d", sink.count())
	}
}

func TestRoom_DuplicateSkillReadyCountsOnce(t *testing.T) {
	r := newTestRoom(t, testRules(), nil)
	alice := join(t, r, "alice", "alice", true)
	join(t, r, "bob", "bob", false)

	r.Inbox() <- FromClient{ClientID: "alice", Msg: protocol.ClientMessage{Type: protocol.CmdStartGame}}
	r.Inbox() <- FromClient{ClientID: "alice", Msg: protocol.ClientMessage{Type: protocol.CmdSkillReady}}
	r.Inbox() <- FromClient{ClientID: "alice", Msg: protocol.ClientMessage{Type: protocol.CmdSkillReady}}

	// both acks processed; counter must still read 1
	last := protocol.SkillReadyCount{}
	deadline := time.After(time.Second)
	got := 0
	for got < 3 { // initial 0/2 plus two acks
		select {
		case msg := <-alice:
			if msg.Type == protocol.EvtSkillReadyCount {
				last = msg.Data.(protocol.SkillReadyCount)
				got++
			}
		case <-deadline:
			t.Fatalf("missing skillReadyCount broadcasts (got %d)", got)
		}
	}
	if last.Ready != 1 {
		t.Fatalf("duplicate ready double-counted: %+v", last)
	}

	view := recvView(t, r, time.Second)
	if view.Phase != game.PhaseStarting {
		t.Fatalf("phase advanced on duplicate ack: %s", view.Phase)
	}
}

func TestRoom_SkillUseRejectionGoesToSenderOnly(t *testing.T) {
	r := newTestRoom(t, testRules(), nil)
	alice := join(t, r, "alice", "alice", true)
	bob := join(t, r, "bob", "bob", false)

	// skillUse in the lobby phase is a stale-phase intent
	r.Inbox() <- FromClient{ClientID: "bob", Msg: protocol.ClientMessage{Type: protocol.CmdSkillUse}}

	errMsg := recvType(t, bob, protocol.EvtError, time.Second)
	if errMsg.Data.(protocol.ErrorPayload).Message == "" {
		t.Fatalf("empty error message")
	}
	recvNoType(t, alice, protocol.EvtError, 200*time.Millisecond)
}

func TestRoom_HostDisconnectTransfersHost(t *testing.T) {
	// Scenario: host leaves mid-lobby with two members remaining.
	r := newTestRoom(t, testRules(), nil)
	join(t, r, "alice", "alice", true)
	bob := join(t, r, "bob", "bob", false)
	join(t, r, "carol", "carol", false)

	r.Inbox() <- Leave{ClientID: "alice"}
	recvType(t, bob, protocol.EvtPlayerLeft, time.Second)

	view := recvView(t, r, time.Second)
	if view.HostID != "bob" {
		t.Fatalf("want host bob (earliest remaining), got %s", view.HostID)
	}
	if view.NumPlayers != 2 {
		t.Fatalf("room should survive with 2 members, got %d", view.NumPlayers)
	}
}

func TestRoom_EmptyRoomShutsDownAndNotifies(t *testing.T) {
	r := newTestRoom(t, testRules(), nil)

	emptied := make(chan string, 1)
	r.OnEmpty = func(id string) { emptied <- id }

	join(t, r, "alice", "alice", true)
	r.Inbox() <- Leave{ClientID: "alice"}

	select {
	case id := <-emptied:
		if id != "R1" {
			t.Fatalf("want R1, got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("OnEmpty never fired")
	}

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatalf("actor did not stop")
	}
}

func TestRoom_GetRoomStateIsPrivate(t *testing.T) {
	r := newTestRoom(t, testRules(), nil)
	alice := join(t, r, "alice", "alice", true)
	bob := join(t, r, "bob", "bob", false)

	// drain the join traffic on alice's side
	recvType(t, alice, protocol.EvtPlayerJoined, time.Second)

	r.Inbox() <- FromClient{ClientID: "bob", Msg: protocol.ClientMessage{Type: protocol.CmdGetRoomState}}
	rs := recvType(t, bob, protocol.EvtRoomState, time.Second)
	if got := rs.Data.(protocol.RoomState); got.RoomID != "R1" || len(got.Players) != 2 {
		t.Fatalf("bad room state: %+v", got)
	}
	recvNoType(t, alice, protocol.EvtRoomState, 200*time.Millisecond)
}

func TestRoom_SlowClientIsDropped(t *testing.T) {
	r := newTestRoom(t, testRules(), nil)
	join(t, r, "alice", "alice", true)

	// bob's outbox has no capacity to spare
	out := make(chan protocol.ServerMessage, 1)
	reply := make(chan error, 1)
	r.Inbox() <- Join{ClientID: "bob", Username: "bob", Outbox: out, Reply: reply}
	if err := <-reply; err != nil {
		t.Fatalf("join: %v", err)
	}

	// a burst of state requests overflows bob's outbox
	for i := 0; i < 5; i++ {
		r.Inbox() <- FromClient{ClientID: "bob", Msg: protocol.ClientMessage{Type: protocol.CmdGetRoomState}}
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if v := recvView(t, r, time.Second); v.NumClients == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("slow client was never dropped")
}

func TestRoom_EvictedClientIntentGetsError(t *testing.T) {
	// An evicted client can still hold an open connection; its next intent
	// must come back as an error, not vanish.
	r := newTestRoom(t, testRules(), nil)
	join(t, r, "alice", "alice", true)

	out := make(chan protocol.ServerMessage, 1)
	reply := make(chan error, 1)
	r.Inbox() <- Join{ClientID: "bob", Username: "bob", Outbox: out, Reply: reply}
	if err := <-reply; err != nil {
		t.Fatalf("join: %v", err)
	}
	for i := 0; i < 5; i++ {
		r.Inbox() <- FromClient{ClientID: "bob", Msg: protocol.ClientMessage{Type: protocol.CmdGetRoomState}}
	}
	deadline := time.Now().Add(time.Second)
	for recvView(t, r, time.Second).NumClients != 1 {
		if !time.Now().Before(deadline) {
			t.Fatalf("slow client was never dropped")
		}
		time.Sleep(10 * time.Millisecond)
	}

	for len(out) > 0 {
		<-out
	}
	r.Inbox() <- FromClient{ClientID: "bob", Msg: protocol.ClientMessage{Type: protocol.CmdSkillReady}, Outbox: out}
	errMsg := recvType(t, out, protocol.EvtError, time.Second)
	if errMsg.Data.(protocol.ErrorPayload).Message == "" {
		t.Fatalf("empty error message")
	}
}

func TestRoom_JoinRacingShutdownIsRejected(t *testing.T) {
	r := newTestRoom(t, testRules(), nil)
	join(t, r, "alice", "alice", true)
	r.Inbox() <- Leave{ClientID: "alice"}
	<-r.Done()

	// A join queued behind the teardown must never be seated.
	out := make(chan protocol.ServerMessage, 4)
	reply := make(chan error, 1)
	r.Inbox() <- Join{ClientID: "bob", Username: "bob", Outbox: out, Reply: reply}
	select {
	case err := <-reply:
		if !errors.Is(err, ErrRoomClosed) {
			t.Fatalf("want ErrRoomClosed, got %v", err)
		}
	case <-time.After(200 * time.Millisecond):
		// actor exited without draining the inbox; callers guard on Done
	}
}
