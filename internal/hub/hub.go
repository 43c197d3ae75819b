// Package hub is the room registry: one actor owning the room map, the
// lobby watcher list, and room code allocation.
package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	mrand "math/rand"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/seungmin-w/molip-backend/internal/archive"
	"github.com/seungmin-w/molip-backend/internal/game"
	"github.com/seungmin-w/molip-backend/internal/protocol"
	"github.com/seungmin-w/molip-backend/internal/room"
)

var ErrInvalidName = errors.New("invalid room name")
var ErrNameTaken = errors.New("room name already taken")
var ErrRoomNotFound = errors.New("room not found")

const maxRoomNameLen = 30

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	RoomName string
	Reply    chan CreateResult
}

type CreateResult struct {
	Room *room.Room
	Err  error
}

type GetRoom struct {
	RoomID string
	Reply  chan *room.Room
}

type ListRooms struct {
	Reply chan []protocol.RoomSummary
}

// Watch subscribes a lobby-connected client to room list broadcasts.
type Watch struct {
	ClientID string
	Outbox   chan protocol.ServerMessage
}

type Unwatch struct{ ClientID string }

type roomEmpty struct{ roomID string }

type roomChanged struct{}

type Shutdown struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (ListRooms) isHubMsg()   {}
func (Watch) isHubMsg()       {}
func (Unwatch) isHubMsg()     {}
func (roomEmpty) isHubMsg()   {}
func (roomChanged) isHubMsg() {}
func (Shutdown) isHubMsg()    {}

type Hub struct {
	inbox    chan HubMsg
	rooms    map[string]*room.Room
	watchers map[string]chan protocol.ServerMessage
	rules    game.Rules
	log      *zap.Logger
	sink     archive.Sink
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, rules game.Rules, log *zap.Logger, sink archive.Sink) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		rooms:    make(map[string]*room.Room),
		watchers: make(map[string]chan protocol.ServerMessage),
		rules:    rules,
		log:      log.Named("hub"),
		sink:     sink,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				msg.Reply <- h.createRoom(msg.RoomName)

			case GetRoom:
				msg.Reply <- h.rooms[msg.RoomID] // may be nil

			case ListRooms:
				msg.Reply <- h.list()

			case Watch:
				h.watchers[msg.ClientID] = msg.Outbox
				h.sendList(msg.ClientID, msg.Outbox)

			case Unwatch:
				delete(h.watchers, msg.ClientID)

			case roomEmpty:
				delete(h.rooms, msg.roomID)
				h.log.Info("room removed", zap.String("room", msg.roomID))
				h.broadcastList()

			case roomChanged:
				h.broadcastList()

			case Shutdown:
				for _, r := range h.rooms {
					r.Inbox() <- room.Shutdown{}
				}
				clear(h.rooms)
				clear(h.watchers)
				h.cancel()
			}
		}
	}
}

func (h *Hub) createRoom(name string) CreateResult {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxRoomNameLen {
		return CreateResult{Err: ErrInvalidName}
	}
	for _, r := range h.rooms {
		if r.Name == name {
			return CreateResult{Err: ErrNameTaken}
		}
	}

	var id string
	for {
		id = generateCode(6)
		if _, exists := h.rooms[id]; !exists {
			break
		}
	}

	r := room.New(h.ctx, id, name, h.rules, mrand.New(mrand.NewSource(seed())), h.log.Named("room"), h.sink)
	r.OnEmpty = func(roomID string) { h.inbox <- roomEmpty{roomID: roomID} }
	r.OnUpdate = func() {
		select {
		case h.inbox <- roomChanged{}:
		default:
			// A pending refresh already covers this change.
		}
	}
	h.rooms[id] = r
	h.log.Info("room created", zap.String("room", id), zap.String("name", name))
	h.broadcastList()
	return CreateResult{Room: r}
}

// list builds one stable snapshot of the lobby, ordered by room ID.
func (h *Hub) list() []protocol.RoomSummary {
	out := make([]protocol.RoomSummary, 0, len(h.rooms))
	for _, r := range h.rooms {
		out = append(out, r.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

func (h *Hub) broadcastList() {
	msg := protocol.Msg(protocol.EvtRoomList, h.list())
	for id, ch := range h.watchers {
		select {
		case ch <- msg:
		default:
			delete(h.watchers, id)
		}
	}
}

func (h *Hub) sendList(clientID string, ch chan protocol.ServerMessage) {
	select {
	case ch <- protocol.Msg(protocol.EvtRoomList, h.list()):
	default:
		delete(h.watchers, clientID)
	}
}

const codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateCode(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(codeChars)))
	for i := range b {
		idx, _ := rand.Int(rand.Reader, max)
		b[i] = codeChars[idx.Int64()]
	}
	return string(b)
}

func seed() int64 {
	v, _ := rand.Int(rand.Reader, big.NewInt(1<<62))
	return v.Int64()
}
