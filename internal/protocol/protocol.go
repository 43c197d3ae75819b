// Package protocol defines the JSON messages exchanged over each client's
// persistent socket. Every message is {"type": "...", ...payload}; server
// payloads ride under "data". Delivery order to one client always matches
// the server-side mutation order for that room.
package protocol

import "encoding/json"

// Client -> server message types.
const (
	CmdCreateRoom        = "createRoom"
	CmdJoinRoom          = "joinRoom"
	CmdGetRoomList       = "getRoomList"
	CmdStartGame         = "startGame"
	CmdGetRoomState      = "getRoomState"
	CmdGetGameState      = "getGameState"
	CmdGameReady         = "gameReady"
	CmdSkillUse          = "skillUse"
	CmdSkillReady        = "skillReady"
	CmdPlayerAction      = "playerAction"
	CmdAnimationComplete = "animationComplete"
)

// Server -> client message types.
const (
	EvtRoomCreated     = "roomCreated"
	EvtJoinedRoom      = "joinedRoom"
	EvtRoomList        = "roomList"
	EvtRoomState       = "roomState"
	EvtPlayerJoined    = "playerJoined"
	EvtPlayerLeft      = "playerLeft"
	EvtGameStarted     = "gameStarted"
	EvtStartGameLoop   = "startGameLoop"
	EvtSkillAssigned   = "skillAssigned" // private: sent only to the assignee
	EvtSkillReadyCount = "skillReadyCount"
	EvtAllSkillReady   = "allSkillReady"
	EvtGameStateUpdate = "gameStateUpdate"
	EvtPlayerDied      = "playerDied"
	EvtManagerAppeared = "managerAppeared"
	EvtSkillUsed       = "skillUsed"
	EvtPlaySkillSfx    = "playSkillSfx"
	EvtPlayDanceBgm    = "playDanceBgm"
	EvtStopDanceBgm    = "stopDanceBgm"
	EvtGameEnded       = "gameEnded"
	EvtError           = "error"
)

type ClientMessage struct {
	Type      string `json:"type"`
	Username  string `json:"username,omitempty"`
	RoomName  string `json:"roomName,omitempty"`
	RoomID    string `json:"roomId,omitempty"`
	Action    string `json:"action,omitempty"`
	TargetID  string `json:"targetId,omitempty"`
	DanceType string `json:"danceType,omitempty"`
	Animation string `json:"animation,omitempty"`
}

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func Msg(typ string, data any) ServerMessage {
	return ServerMessage{Type: typ, Data: data}
}

func ErrorMsg(message string) ServerMessage {
	return ServerMessage{Type: EvtError, Data: ErrorPayload{Message: message}}
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type PlayerInfo struct {
	SocketID string `json:"socketId"`
	Username string `json:"username"`
}

type RoomState struct {
	RoomID        string       `json:"roomId"`
	RoomName      string       `json:"roomName"`
	HostID        string       `json:"hostId"`
	Players       []PlayerInfo `json:"players"`
	IsGameStarted bool         `json:"isGameStarted"`
}

type RoomSummary struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
	Host     string `json:"host"`
	Players  int    `json:"players"`
}

type SkillAssigned struct {
	Skill string `json:"skill"`
}

type SkillReadyCount struct {
	Ready int `json:"ready"`
	Total int `json:"total"`
}

type PlayerState struct {
	SocketID    string  `json:"socketId"`
	Username    string  `json:"username"`
	IsAlive     bool    `json:"isAlive"`
	Motion      string  `json:"currentMotion"`
	FlowGauge   float64 `json:"flowGauge"`
	MuscleCount int     `json:"muscleCount"`
	// "unlimited" or an integer; the wire shape predates this server.
	SkillUsesRemaining json.RawMessage `json:"skillUsesRemaining,omitempty"`
	Cooldowns          map[string]int  `json:"cooldowns,omitempty"`
}

type GameState struct {
	RoomID            string        `json:"roomId"`
	Players           []PlayerState `json:"players"`
	IsManagerAppeared bool          `json:"isManagerAppeared"`
}

type PlayerDied struct {
	SocketID string `json:"socketId"`
	Reason   string `json:"reason"`
}

type SkillUsed struct {
	By    string `json:"by"`
	Skill string `json:"skill"`
}

type PlaySkillSfx struct {
	Type string `json:"type"`
}

type DanceBgm struct {
	DanceType string `json:"danceType"`
}

type GameEnded struct {
	WinnerSocketID string `json:"winnerSocketId,omitempty"`
	Winner         string `json:"winner,omitempty"`
	CommitCount    int    `json:"commitCount"`
	Skill          string `json:"skill,omitempty"`
	Time           int64  `json:"time"`
}

// UsesRemaining renders the integer-or-"unlimited" union for PlayerState.
func UsesRemaining(n int) json.RawMessage {
	if n < 0 {
		return json.RawMessage(`"unlimited"`)
	}
	b, _ := json.Marshal(n)
	return b
}
