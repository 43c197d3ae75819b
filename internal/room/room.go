// Package room runs one actor goroutine per room. Every mutation of the
// authoritative state goes through the actor's inbox, so concurrent intents
// from different connections are applied one at a time and every member
// observes broadcasts in mutation order.
package room

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seungmin-w/molip-backend/internal/archive"
	"github.com/seungmin-w/molip-backend/internal/game"
	"github.com/seungmin-w/molip-backend/internal/protocol"
)

const archiveTimeout = 5 * time.Second

// ErrRoomClosed rejects joins that race with the room's teardown: the
// actor may still drain its inbox after the context is cancelled.
var ErrRoomClosed = errors.New("room closed")

type Room struct {
	ID   string
	Name string

	// OnEmpty fires after the last member leaves and the actor has stopped.
	// OnUpdate fires on membership/phase changes so the registry can
	// rebroadcast its room list. Both are called from the actor goroutine.
	OnEmpty  func(id string)
	OnUpdate func()

	inbox   chan Msg
	state   *game.State
	clients map[string]chan protocol.ServerMessage
	evicted []string

	ticker *time.Ticker
	tickC  <-chan time.Time

	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
	sink   archive.Sink

	infoMu sync.RWMutex
	info   protocol.RoomSummary
}

func New(parent context.Context, id, name string, rules game.Rules, rng *rand.Rand, log *zap.Logger, sink archive.Sink) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		ID:      id,
		Name:    name,
		inbox:   make(chan Msg, 64),
		state:   game.NewState(id, name, rules, rng),
		clients: make(map[string]chan protocol.ServerMessage),
		ctx:     ctx,
		cancel:  cancel,
		log:     log.With(zap.String("room", id)),
		sink:    sink,
	}
	r.updateInfo()
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done closes when the actor has stopped; senders must select against it
// so intents to a dead room fail instead of blocking.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Summary is safe to call from any goroutine.
func (r *Room) Summary() protocol.RoomSummary {
	r.infoMu.RLock()
	defer r.infoMu.RUnlock()
	return r.info
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-r.tickC:
			r.handleTick()
			r.reapEvicted()

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)
			case Leave:
				r.handleLeave(msg.ClientID)
			case FromClient:
				r.handleClient(msg)
			case GetView:
				msg.Reply <- r.view()
			case Shutdown:
				r.shutdown()
				return
			}
			r.reapEvicted()
		}
	}
}

func (r *Room) shutdown() {
	r.stopTicker()
	clear(r.clients)
	r.cancel()
}

func (r *Room) handleJoin(msg Join) {
	if r.ctx.Err() != nil {
		msg.Reply <- ErrRoomClosed
		return
	}
	events, err := game.Apply(r.state, game.Command{
		Type:     game.CmdJoin,
		PlayerID: msg.ClientID,
		Username: msg.Username,
	})
	if err != nil {
		msg.Reply <- err
		return
	}
	r.clients[msg.ClientID] = msg.Outbox
	msg.Reply <- nil

	welcome := protocol.EvtJoinedRoom
	if msg.Created {
		welcome = protocol.EvtRoomCreated
	}
	r.sendTo(msg.ClientID, protocol.Msg(welcome, r.roomStatePayload()))
	r.routeEvents(events)
	r.log.Info("player joined", zap.String("client", msg.ClientID), zap.String("username", msg.Username))
}

func (r *Room) handleLeave(clientID string) {
	if _, ok := r.clients[clientID]; !ok {
		return
	}
	delete(r.clients, clientID)
	r.removePlayer(clientID)
}

func (r *Room) removePlayer(clientID string) {
	events, err := game.Apply(r.state, game.Command{Type: game.CmdLeave, PlayerID: clientID})
	if err != nil {
		return
	}
	r.routeEvents(events)
	r.broadcastGameState()
	r.log.Info("player left", zap.String("client", clientID))

	if len(r.state.Players) == 0 {
		r.shutdownEmpty()
	}
}

func (r *Room) shutdownEmpty() {
	r.stopTicker()
	r.cancel()
	if r.OnEmpty != nil {
		r.OnEmpty(r.ID)
	}
}

func (r *Room) handleClient(msg FromClient) {
	if _, ok := r.clients[msg.ClientID]; !ok {
		// Evicted but still connected; tell the sender instead of going mute.
		if msg.Outbox != nil {
			select {
			case msg.Outbox <- protocol.ErrorMsg("not in this room"):
			default:
			}
		}
		return
	}

	switch msg.Msg.Type {
	case protocol.CmdGetRoomState:
		r.sendTo(msg.ClientID, protocol.Msg(protocol.EvtRoomState, r.roomStatePayload()))
		return
	case protocol.CmdGetGameState, protocol.CmdGameReady:
		r.sendTo(msg.ClientID, protocol.Msg(protocol.EvtGameStateUpdate, r.gameStatePayload()))
		return
	}

	cmd, ok := toCommand(msg.ClientID, msg.Msg)
	if !ok {
		r.sendTo(msg.ClientID, protocol.ErrorMsg("unknown message type"))
		return
	}

	events, err := game.Apply(r.state, cmd)
	if err != nil {
		// Rejections go to the sender only; shared state is untouched.
		r.sendTo(msg.ClientID, protocol.ErrorMsg(err.Error()))
		return
	}
	r.routeEvents(events)
	r.broadcastGameState()
}

func toCommand(clientID string, m protocol.ClientMessage) (game.Command, bool) {
	switch m.Type {
	case protocol.CmdStartGame:
		return game.Command{Type: game.CmdStartGame, PlayerID: clientID}, true
	case protocol.CmdSkillReady:
		return game.Command{Type: game.CmdSkillReady, PlayerID: clientID}, true
	case protocol.CmdSkillUse:
		return game.Command{Type: game.CmdUseSkill, PlayerID: clientID}, true
	case protocol.CmdPlayerAction:
		return game.Command{
			Type:      game.CmdAction,
			PlayerID:  clientID,
			Action:    game.ActionType(m.Action),
			TargetID:  m.TargetID,
			DanceType: m.DanceType,
		}, true
	case protocol.CmdAnimationComplete:
		return game.Command{Type: game.CmdAnimationDone, PlayerID: clientID, Motion: game.Motion(m.Animation)}, true
	default:
		return game.Command{}, false
	}
}

func (r *Room) handleTick() {
	events := game.Tick(r.state)
	r.routeEvents(events)
	r.broadcastGameState()
}

// routeEvents turns engine events into wire messages. skillAssigned stays
// private to its player; everything else fans out to the whole room.
func (r *Room) routeEvents(events []game.Event) {
	for _, ev := range events {
		switch ev.Type {
		case game.EvtPlayerJoined:
			r.broadcast(protocol.Msg(protocol.EvtPlayerJoined, r.roomStatePayload()))
			r.updateInfo()
		case game.EvtPlayerLeft:
			r.broadcast(protocol.Msg(protocol.EvtPlayerLeft, r.roomStatePayload()))
			r.updateInfo()
		case game.EvtHostChanged:
			r.broadcast(protocol.Msg(protocol.EvtRoomState, r.roomStatePayload()))
			r.updateInfo()
		case game.EvtGameStarted:
			r.broadcast(protocol.Msg(protocol.EvtGameStarted, nil))
			r.updateInfo()
		case game.EvtSkillAssigned:
			r.sendTo(ev.PlayerID, protocol.Msg(protocol.EvtSkillAssigned, protocol.SkillAssigned{Skill: string(ev.Skill)}))
		case game.EvtSkillReadyCount:
			r.broadcast(protocol.Msg(protocol.EvtSkillReadyCount, protocol.SkillReadyCount{Ready: ev.Ready, Total: ev.Total}))
		case game.EvtAllSkillReady:
			r.broadcast(protocol.Msg(protocol.EvtAllSkillReady, nil))
			r.broadcast(protocol.Msg(protocol.EvtStartGameLoop, nil))
			r.startTicker()
		case game.EvtSkillUsed:
			r.broadcast(protocol.Msg(protocol.EvtSkillUsed, protocol.SkillUsed{By: ev.PlayerID, Skill: string(ev.Skill)}))
			r.broadcast(protocol.Msg(protocol.EvtPlaySkillSfx, protocol.PlaySkillSfx{Type: string(ev.Skill)}))
		case game.EvtDanceStarted:
			r.broadcast(protocol.Msg(protocol.EvtPlayDanceBgm, protocol.DanceBgm{DanceType: ev.DanceType}))
		case game.EvtDanceStopped:
			r.broadcast(protocol.Msg(protocol.EvtStopDanceBgm, protocol.DanceBgm{DanceType: ev.DanceType}))
		case game.EvtManagerAppeared:
			r.broadcast(protocol.Msg(protocol.EvtManagerAppeared, nil))
		case game.EvtManagerLeft:
			// no dedicated wire event; the next snapshot clears the flag
		case game.EvtPlayerDied:
			r.broadcast(protocol.Msg(protocol.EvtPlayerDied, protocol.PlayerDied{SocketID: ev.PlayerID, Reason: ev.Reason}))
		case game.EvtGameEnded:
			r.finishMatch(ev.Result)
		}
	}
}

func (r *Room) finishMatch(res *game.Result) {
	r.stopTicker()
	r.broadcast(protocol.Msg(protocol.EvtGameEnded, protocol.GameEnded{
		WinnerSocketID: res.WinnerID,
		Winner:         res.Winner,
		CommitCount:    res.CommitCount,
		Skill:          string(res.Skill),
		Time:           res.DurationMS,
	}))
	r.log.Info("game ended",
		zap.String("winner", res.Winner),
		zap.Int("commits", res.CommitCount),
		zap.Int64("durationMs", res.DurationMS))

	if r.sink == nil {
		return
	}
	rec := &archive.MatchRecord{
		RoomID:      r.ID,
		RoomName:    r.Name,
		Winner:      res.Winner,
		WinnerSkill: string(res.Skill),
		CommitCount: res.CommitCount,
		DurationMS:  res.DurationMS,
		EndedAt:     time.Now(),
	}
	// Fire and forget: persistence must not stall the actor.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := r.sink.Archive(ctx, rec); err != nil {
			r.log.Warn("archive failed", zap.Error(err))
		}
	}()
}

func (r *Room) startTicker() {
	hz := r.state.Rules.TickHz
	if hz <= 0 {
		hz = 1
	}
	r.ticker = time.NewTicker(time.Second / time.Duration(hz))
	r.tickC = r.ticker.C
	r.updateInfo()
}

func (r *Room) stopTicker() {
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
		r.tickC = nil
	}
}

func (r *Room) broadcastGameState() {
	if r.state.Phase != game.PhaseRunning {
		// Ended is terminal: gameEnded is the last word on the match.
		return
	}
	r.broadcast(protocol.Msg(protocol.EvtGameStateUpdate, r.gameStatePayload()))
}

func (r *Room) broadcast(msg protocol.ServerMessage) {
	for id, ch := range r.clients {
		select {
		case ch <- msg:
		default:
			// Slow consumer: cut its feed now, reap membership after the
			// current batch so routing never re-enters itself.
			delete(r.clients, id)
			r.evicted = append(r.evicted, id)
		}
	}
}

func (r *Room) sendTo(clientID string, msg protocol.ServerMessage) {
	ch, ok := r.clients[clientID]
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		delete(r.clients, clientID)
		r.evicted = append(r.evicted, clientID)
	}
}

func (r *Room) reapEvicted() {
	for len(r.evicted) > 0 {
		id := r.evicted[0]
		r.evicted = r.evicted[1:]
		r.log.Warn("dropping slow client", zap.String("client", id))
		r.removePlayer(id)
	}
}

func (r *Room) roomStatePayload() protocol.RoomState {
	players := make([]protocol.PlayerInfo, 0, len(r.state.Players))
	for _, p := range r.state.Players {
		players = append(players, protocol.PlayerInfo{SocketID: p.ID, Username: p.Username})
	}
	return protocol.RoomState{
		RoomID:        r.ID,
		RoomName:      r.Name,
		HostID:        r.state.HostID,
		Players:       players,
		IsGameStarted: r.state.Phase != game.PhaseLobby,
	}
}

func (r *Room) gameStatePayload() protocol.GameState {
	players := make([]protocol.PlayerState, 0, len(r.state.Players))
	for _, p := range r.state.Players {
		ps := protocol.PlayerState{
			SocketID:    p.ID,
			Username:    p.Username,
			IsAlive:     p.Alive,
			Motion:      string(p.Motion),
			FlowGauge:   p.Flow,
			MuscleCount: p.Muscle,
		}
		if p.Skill != "" {
			ps.SkillUsesRemaining = protocol.UsesRemaining(p.UsesLeft)
		}
		for skill, left := range p.Cooldown {
			if left > 0 {
				if ps.Cooldowns == nil {
					ps.Cooldowns = map[string]int{}
				}
				ps.Cooldowns[string(skill)] = left
			}
		}
		players = append(players, ps)
	}
	return protocol.GameState{
		RoomID:            r.ID,
		Players:           players,
		IsManagerAppeared: r.state.Manager,
	}
}

func (r *Room) updateInfo() {
	host := ""
	if h := r.state.FindPlayer(r.state.HostID); h != nil {
		host = h.Username
	}
	r.infoMu.Lock()
	r.info = protocol.RoomSummary{
		RoomID:   r.ID,
		RoomName: r.Name,
		Host:     host,
		Players:  len(r.state.Players),
	}
	r.infoMu.Unlock()

	if r.OnUpdate != nil {
		r.OnUpdate()
	}
}

func (r *Room) view() View {
	players := make([]game.Player, 0, len(r.state.Players))
	for _, p := range r.state.Players {
		players = append(players, *p)
	}
	return View{
		Phase:      r.state.Phase,
		HostID:     r.state.HostID,
		NumClients: len(r.clients),
		NumPlayers: len(r.state.Players),
		Players:    players,
		Manager:    r.state.Manager,
		Result:     r.state.Result,
	}
}
