package game

type CommandType string

const (
	CmdJoin          CommandType = "Join"
	CmdLeave         CommandType = "Leave"
	CmdStartGame     CommandType = "StartGame"
	CmdSkillReady    CommandType = "SkillReady"
	CmdUseSkill      CommandType = "UseSkill"
	CmdAction        CommandType = "Action"
	CmdAnimationDone CommandType = "AnimationDone"
)

type ActionType string

const (
	ActionStartDancing ActionType = "startDancing"
	ActionStopDancing  ActionType = "stopDancing"
	ActionPush         ActionType = "push"
)

type Command struct {
	Type      CommandType
	PlayerID  string
	Username  string
	Action    ActionType
	TargetID  string
	DanceType string
	Motion    Motion // AnimationDone: which one-shot animation finished
}

type EventType string

const (
	EvtPlayerJoined    EventType = "PlayerJoined"
	EvtPlayerLeft      EventType = "PlayerLeft"
	EvtHostChanged     EventType = "HostChanged"
	EvtGameStarted     EventType = "GameStarted"
	EvtSkillAssigned   EventType = "SkillAssigned" // private to PlayerID
	EvtSkillReadyCount EventType = "SkillReadyCount"
	EvtAllSkillReady   EventType = "AllSkillReady"
	EvtSkillUsed       EventType = "SkillUsed"
	EvtDanceStarted    EventType = "DanceStarted"
	EvtDanceStopped    EventType = "DanceStopped"
	EvtManagerAppeared EventType = "ManagerAppeared"
	EvtManagerLeft     EventType = "ManagerLeft"
	EvtPlayerDied      EventType = "PlayerDied"
	EvtGameEnded       EventType = "GameEnded"
)

type Event struct {
	Type      EventType
	PlayerID  string
	Skill     Skill
	DanceType string
	Reason    string
	Ready     int
	Total     int
	Result    *Result
}
