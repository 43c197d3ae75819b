package room

import (
	"github.com/seungmin-w/molip-backend/internal/game"
	"github.com/seungmin-w/molip-backend/internal/protocol"
)

type Msg interface{ isRoomMsg() }

// Join registers a client, seats the player, and reports the outcome on
// Reply. Created marks the room creator so they get roomCreated instead of
// joinedRoom.
type Join struct {
	ClientID string
	Username string
	Created  bool
	Outbox   chan protocol.ServerMessage
	Reply    chan error
}

func (Join) isRoomMsg() {}

// Leave covers both explicit leaves and disconnects.
type Leave struct{ ClientID string }

func (Leave) isRoomMsg() {}

// FromClient carries an in-room intent. Outbox lets the actor answer a
// sender it has already evicted from its member set.
type FromClient struct {
	ClientID string
	Msg      protocol.ClientMessage
	Outbox   chan protocol.ServerMessage
}

func (FromClient) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// GetView reflects internal state without data races; used by tests.
type GetView struct {
	Reply chan View
}

func (GetView) isRoomMsg() {}

type View struct {
	Phase      game.Phase
	HostID     string
	NumClients int
	NumPlayers int
	Players    []game.Player
	Manager    bool
	Result     *game.Result
}
