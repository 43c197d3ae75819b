package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seungmin-w/molip-backend/internal/hub"
	"github.com/seungmin-w/molip-backend/internal/protocol"
	"github.com/seungmin-w/molip-backend/internal/room"
)

const (
	outboxSize   = 32
	writeTimeout = 3 * time.Second
)

// Handler upgrades each client to a persistent socket. A connection starts
// lobby-scoped (room list, create/join); once a join succeeds its messages
// are routed into that room's actor until disconnect.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := &client{
			id:     uuid.New().String(),
			outbox: make(chan protocol.ServerMessage, outboxSize),
			hub:    h,
		}
		c.log = log.Named("ws").With(zap.String("client", c.id))

		h.Inbox() <- hub.Watch{ClientID: c.id, Outbox: c.outbox}
		defer func() {
			if c.room != nil {
				c.sendRoom(room.Leave{ClientID: c.id})
			}
			h.Inbox() <- hub.Unwatch{ClientID: c.id}
		}()

		// Writer goroutine: sole writer on the connection, drains the
		// outbox in order. The outbox is shared by the hub and the room
		// actor, so it is never closed; the context ends the writer.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case msg := <-c.outbox:
					payload, err := json.Marshal(msg)
					if err != nil {
						continue
					}
					ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
					_ = conn.Write(ctx, websocket.MessageText, payload)
					cancel()
				}
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm protocol.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				c.reply(protocol.ErrorMsg("bad json"))
				continue
			}
			c.handle(cm)
		}
	}
}

type client struct {
	id     string
	outbox chan protocol.ServerMessage
	hub    *hub.Hub
	room   *room.Room
	log    *zap.Logger
}

func (c *client) handle(cm protocol.ClientMessage) {
	switch cm.Type {
	case protocol.CmdCreateRoom:
		c.createRoom(cm)

	case protocol.CmdJoinRoom:
		c.joinRoom(cm)

	case protocol.CmdGetRoomList:
		reply := make(chan []protocol.RoomSummary, 1)
		c.hub.Inbox() <- hub.ListRooms{Reply: reply}
		c.reply(protocol.Msg(protocol.EvtRoomList, <-reply))

	default:
		if c.room == nil {
			c.reply(protocol.ErrorMsg("not in a room"))
			return
		}
		c.sendRoom(room.FromClient{ClientID: c.id, Msg: cm, Outbox: c.outbox})
	}
}

func (c *client) createRoom(cm protocol.ClientMessage) {
	if c.room != nil {
		c.reply(protocol.ErrorMsg("already in a room"))
		return
	}
	reply := make(chan hub.CreateResult, 1)
	c.hub.Inbox() <- hub.CreateRoom{RoomName: cm.RoomName, Reply: reply}
	res := <-reply
	if res.Err != nil {
		c.reply(protocol.ErrorMsg(res.Err.Error()))
		return
	}
	c.enter(res.Room, cm.Username, true)
}

func (c *client) joinRoom(cm protocol.ClientMessage) {
	if c.room != nil {
		c.reply(protocol.ErrorMsg("already in a room"))
		return
	}
	reply := make(chan *room.Room, 1)
	c.hub.Inbox() <- hub.GetRoom{RoomID: cm.RoomID, Reply: reply}
	r := <-reply
	if r == nil {
		c.reply(protocol.ErrorMsg(hub.ErrRoomNotFound.Error()))
		return
	}
	c.enter(r, cm.Username, false)
}

func (c *client) enter(r *room.Room, username string, created bool) {
	if username == "" {
		username = "player-" + c.id[:8]
	}
	joinReply := make(chan error, 1)
	join := room.Join{
		ClientID: c.id,
		Username: username,
		Created:  created,
		Outbox:   c.outbox,
		Reply:    joinReply,
	}
	select {
	case r.Inbox() <- join:
	case <-r.Done():
		c.reply(protocol.ErrorMsg(hub.ErrRoomNotFound.Error()))
		return
	}
	select {
	case err := <-joinReply:
		if err != nil {
			c.reply(protocol.ErrorMsg(err.Error()))
			return
		}
	case <-r.Done():
		c.reply(protocol.ErrorMsg(hub.ErrRoomNotFound.Error()))
		return
	}
	c.room = r
	// Room members stop watching the lobby list.
	c.hub.Inbox() <- hub.Unwatch{ClientID: c.id}
	c.log.Info("joined room", zap.String("room", r.ID), zap.String("username", username))
}

// sendRoom guards against a room whose actor already stopped; intents to a
// dead room must fail fast, not block the read loop.
func (c *client) sendRoom(msg room.Msg) {
	select {
	case c.room.Inbox() <- msg:
	case <-c.room.Done():
		c.room = nil
		c.reply(protocol.ErrorMsg("room closed"))
	}
}

func (c *client) reply(msg protocol.ServerMessage) {
	select {
	case c.outbox <- msg:
	default:
		// Writer is saturated; the room-side eviction policy will deal
		// with this connection.
	}
}
