package game

import (
	"errors"
	"math/rand"
)

var ErrRoomFull = errors.New("room is full")
var ErrAlreadyStarted = errors.New("game already started")
var ErrNotHost = errors.New("only the host can start the game")
var ErrNotEnoughPlayers = errors.New("not enough players")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrAlreadyJoined = errors.New("player already in room")
var ErrWrongPhase = errors.New("not allowed in this phase")
var ErrPlayerDead = errors.New("player is dead")
var ErrNoSkillUses = errors.New("no skill uses remaining")
var ErrSkillCooldown = errors.New("skill is on cooldown")
var ErrUnknownTarget = errors.New("unknown target player")
var ErrUnsupportedCommand = errors.New("unsupported command")

// MuscleToWin is a shared protocol constant; the client renders progress
// against the same value. Changing it requires a synchronized deploy.
const MuscleToWin = 5

const FullFlow = 100.0

type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
	PhaseEnded    Phase = "ended"
)

type Motion string

const (
	MotionCoding     Motion = "coding"
	MotionDancing    Motion = "dancing"
	MotionExercising Motion = "exercising"
	MotionCoffee     Motion = "drinking-coffee"
	MotionShotgun    Motion = "using-shotgun"
	MotionBumpercar  Motion = "bumpercar"
	MotionGaming     Motion = "gaming"
	MotionDead       Motion = "dead"
)

type Skill string

const (
	SkillBumpercar Skill = "bumpercar"
	SkillCoffee    Skill = "coffee"
	SkillExercise  Skill = "exercise"
	SkillShotgun   Skill = "shotgun"
	SkillGame      Skill = "game"
)

// AllSkills is the deal order before shuffling.
var AllSkills = []Skill{SkillBumpercar, SkillCoffee, SkillExercise, SkillShotgun, SkillGame}

// UnlimitedUses marks a skill with no usage cap.
const UnlimitedUses = -1

type skillSpec struct {
	Uses        int // UnlimitedUses or a hard cap
	CooldownSec int // applied after each use
}

var skillSpecs = map[Skill]skillSpec{
	SkillBumpercar: {Uses: 1, CooldownSec: 5},
	SkillShotgun:   {Uses: 2, CooldownSec: 0},
	SkillCoffee:    {Uses: UnlimitedUses, CooldownSec: 0},
	SkillExercise:  {Uses: UnlimitedUses, CooldownSec: 0},
	SkillGame:      {Uses: UnlimitedUses, CooldownSec: 0},
}

type Player struct {
	ID        string
	Username  string
	Alive     bool
	Motion    Motion
	DanceType string
	Flow      float64
	Muscle    int
	Skill     Skill
	UsesLeft  int
	Cooldown  map[Skill]int // seconds remaining, floored at 0

	// CoffeeTicks suppresses flow decay while > 0.
	CoffeeTicks int
}

// Rules are per-match tuning knobs. Caught decides which motions the manager
// punishes; it is a policy hook, not something clients can observe directly.
type Rules struct {
	MaxPlayers       int
	TickHz           int
	DecayPerSec      float64
	DanceRegenPerSec float64
	GameRegenPerSec  float64
	BumpercarHit     float64
	CoffeeSec        int
	ExercisePct      int
	ManagerSec       int
	ManagerMinSec    int
	ManagerMaxSec    int
	Caught           func(Motion) bool
}

func DefaultRules() Rules {
	return Rules{
		MaxPlayers:       6,
		TickHz:           4,
		DecayPerSec:      10,
		DanceRegenPerSec: 22,
		GameRegenPerSec:  8,
		BumpercarHit:     20,
		CoffeeSec:        5,
		ExercisePct:      60,
		ManagerSec:       3,
		ManagerMinSec:    8,
		ManagerMaxSec:    20,
		Caught:           DefaultCaught,
	}
}

// DefaultCaught punishes visibly slacking motions. Gaming is deliberately
// safe: the game skill's pitch is that alt-tab hides it from the manager.
func DefaultCaught(m Motion) bool {
	switch m {
	case MotionDancing, MotionBumpercar, MotionExercising:
		return true
	default:
		return false
	}
}

// State is the authoritative room state. It is owned by exactly one room
// actor; nothing here is safe for concurrent use.
type State struct {
	RoomID   string
	RoomName string
	HostID   string
	Phase    Phase
	Players  []*Player // seat order = join order
	Ready    map[string]bool

	Manager         bool
	ManagerTicks    int
	NextManagerTick int

	Tick  int // ticks since Running began
	Rules Rules
	Rand  *rand.Rand

	Result *Result
}

// Result is the terminal match payload. WinnerID is empty when everyone
// was eliminated at once.
type Result struct {
	WinnerID    string
	Winner      string
	Skill       Skill
	CommitCount int
	DurationMS  int64
}

func NewState(roomID, roomName string, rules Rules, rng *rand.Rand) *State {
	if rules.Caught == nil {
		rules.Caught = DefaultCaught
	}
	if rules.TickHz < 1 {
		rules.TickHz = 1
	}
	return &State{
		RoomID:   roomID,
		RoomName: roomName,
		Phase:    PhaseLobby,
		Ready:    map[string]bool{},
		Rules:    rules,
		Rand:     rng,
	}
}

func (s *State) FindPlayer(id string) *Player {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *State) AliveCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Alive {
			n++
		}
	}
	return n
}

func (s *State) elapsedMS() int64 {
	if s.Rules.TickHz <= 0 {
		return 0
	}
	return int64(s.Tick) * 1000 / int64(s.Rules.TickHz)
}
