package game

import "math/rand"

// Apply validates and applies one client command against the room state.
// On error the state is unchanged and the caller reports the error to the
// sender only. Events come back in the order clients must observe them.
func Apply(s *State, cmd Command) ([]Event, error) {
	switch cmd.Type {
	case CmdJoin:
		return applyJoin(s, cmd)
	case CmdLeave:
		return applyLeave(s, cmd)
	case CmdStartGame:
		return applyStartGame(s, cmd)
	case CmdSkillReady:
		return applySkillReady(s, cmd)
	case CmdUseSkill:
		return applyUseSkill(s, cmd)
	case CmdAction:
		return applyAction(s, cmd)
	case CmdAnimationDone:
		return applyAnimationDone(s, cmd)
	default:
		return nil, ErrUnsupportedCommand
	}
}

func applyJoin(s *State, cmd Command) ([]Event, error) {
	if s.Phase != PhaseLobby {
		return nil, ErrAlreadyStarted
	}
	if s.FindPlayer(cmd.PlayerID) != nil {
		return nil, ErrAlreadyJoined
	}
	if len(s.Players) >= s.Rules.MaxPlayers {
		return nil, ErrRoomFull
	}

	p := &Player{
		ID:       cmd.PlayerID,
		Username: cmd.Username,
		Alive:    true,
		Motion:   MotionCoding,
		Flow:     FullFlow,
		Cooldown: map[Skill]int{},
	}
	s.Players = append(s.Players, p)
	if len(s.Players) == 1 {
		s.HostID = p.ID
	}
	return []Event{{Type: EvtPlayerJoined, PlayerID: p.ID}}, nil
}

func applyLeave(s *State, cmd Command) ([]Event, error) {
	idx := -1
	for i, p := range s.Players {
		if p.ID == cmd.PlayerID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, ErrUnknownPlayer
	}

	s.Players = append(s.Players[:idx], s.Players[idx+1:]...)
	delete(s.Ready, cmd.PlayerID)
	events := []Event{{Type: EvtPlayerLeft, PlayerID: cmd.PlayerID}}

	// Host handoff: earliest-joined remaining member, seat order only.
	if s.HostID == cmd.PlayerID && len(s.Players) > 0 {
		s.HostID = s.Players[0].ID
		events = append(events, Event{Type: EvtHostChanged, PlayerID: s.HostID})
	}

	switch s.Phase {
	case PhaseStarting:
		// The departed player no longer counts toward readiness; the
		// remaining acks may now complete the gate.
		events = append(events, readyEvents(s)...)
	case PhaseRunning:
		events = append(events, evaluateEnd(s)...)
	}
	return events, nil
}

func applyStartGame(s *State, cmd Command) ([]Event, error) {
	if s.Phase != PhaseLobby {
		return nil, ErrAlreadyStarted
	}
	if cmd.PlayerID != s.HostID {
		return nil, ErrNotHost
	}
	if len(s.Players) < 2 {
		return nil, ErrNotEnoughPlayers
	}

	s.Phase = PhaseStarting
	s.Ready = map[string]bool{}
	events := []Event{{Type: EvtGameStarted}}

	// Deal one skill per player: no repeats until the five-skill deck is
	// exhausted, then reshuffle for the overflow seats.
	deck := dealDeck(s.Rand)
	for i, p := range s.Players {
		if i > 0 && i%len(AllSkills) == 0 {
			deck = dealDeck(s.Rand)
		}
		p.Skill = deck[i%len(AllSkills)]
		p.UsesLeft = skillSpecs[p.Skill].Uses
		events = append(events, Event{Type: EvtSkillAssigned, PlayerID: p.ID, Skill: p.Skill})
	}
	events = append(events, Event{Type: EvtSkillReadyCount, Ready: 0, Total: len(s.Players)})
	return events, nil
}

func dealDeck(rng *rand.Rand) []Skill {
	deck := make([]Skill, len(AllSkills))
	copy(deck, AllSkills)
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	return deck
}

func applySkillReady(s *State, cmd Command) ([]Event, error) {
	if s.Phase != PhaseStarting {
		return nil, ErrWrongPhase
	}
	if s.FindPlayer(cmd.PlayerID) == nil {
		return nil, ErrUnknownPlayer
	}
	// Duplicate acks are counted once; the client latch cannot be trusted.
	s.Ready[cmd.PlayerID] = true
	return readyEvents(s), nil
}

func readyEvents(s *State) []Event {
	ready, total := len(s.Ready), len(s.Players)
	events := []Event{{Type: EvtSkillReadyCount, Ready: ready, Total: total}}
	if total > 0 && ready == total {
		s.Phase = PhaseRunning
		s.Tick = 0
		s.scheduleManager()
		events = append(events, Event{Type: EvtAllSkillReady})
	}
	return events
}

func applyUseSkill(s *State, cmd Command) ([]Event, error) {
	p, err := livingPlayer(s, cmd.PlayerID)
	if err != nil {
		return nil, err
	}
	if p.UsesLeft == 0 {
		return nil, ErrNoSkillUses
	}
	if p.Cooldown[p.Skill] > 0 {
		return nil, ErrSkillCooldown
	}

	if p.UsesLeft != UnlimitedUses {
		p.UsesLeft--
	}
	if cd := skillSpecs[p.Skill].CooldownSec; cd > 0 {
		p.Cooldown[p.Skill] = cd
	}
	events := []Event{{Type: EvtSkillUsed, PlayerID: p.ID, Skill: p.Skill}}

	switch p.Skill {
	case SkillCoffee:
		p.Motion = MotionCoffee
		p.CoffeeTicks = s.Rules.CoffeeSec * s.Rules.TickHz
	case SkillExercise:
		p.Motion = MotionExercising
	case SkillGame:
		p.Motion = MotionGaming
	case SkillShotgun:
		p.Motion = MotionShotgun
		events = append(events, appearManager(s)...)
	case SkillBumpercar:
		p.Motion = MotionBumpercar
		for _, other := range s.Players {
			if other.ID == p.ID || !other.Alive {
				continue
			}
			other.Flow = clampFlow(other.Flow - s.Rules.BumpercarHit)
			events = append(events, killIfBurnedOut(other)...)
		}
	}
	events = append(events, evaluateEnd(s)...)
	return events, nil
}

func applyAction(s *State, cmd Command) ([]Event, error) {
	p, err := livingPlayer(s, cmd.PlayerID)
	if err != nil {
		return nil, err
	}

	switch cmd.Action {
	case ActionStartDancing:
		dance := cmd.DanceType
		if dance == "" {
			dance = "pkpk"
		}
		p.Motion = MotionDancing
		p.DanceType = dance
		return []Event{{Type: EvtDanceStarted, PlayerID: p.ID, DanceType: dance}}, nil

	case ActionStopDancing:
		if p.Motion != MotionDancing {
			return nil, nil
		}
		dance := p.DanceType
		p.Motion = MotionCoding
		p.DanceType = ""
		return []Event{{Type: EvtDanceStopped, PlayerID: p.ID, DanceType: dance}}, nil

	case ActionPush:
		target := s.FindPlayer(cmd.TargetID)
		if target == nil || !target.Alive {
			return nil, ErrUnknownTarget
		}
		var events []Event
		if target.Motion == MotionDancing {
			events = append(events, Event{Type: EvtDanceStopped, PlayerID: target.ID, DanceType: target.DanceType})
		}
		target.Motion = MotionCoding
		target.DanceType = ""
		return events, nil

	default:
		return nil, ErrUnsupportedCommand
	}
}

func applyAnimationDone(s *State, cmd Command) ([]Event, error) {
	p := s.FindPlayer(cmd.PlayerID)
	if p == nil {
		return nil, ErrUnknownPlayer
	}
	// Only the one-shot motions snap back; a stale completion for a motion
	// the player already left is a harmless no-op.
	if p.Alive && p.Motion == cmd.Motion && isOneShot(cmd.Motion) {
		p.Motion = MotionCoding
	}
	return nil, nil
}

func isOneShot(m Motion) bool {
	return m == MotionShotgun || m == MotionBumpercar || m == MotionCoffee
}

func livingPlayer(s *State, id string) (*Player, error) {
	if s.Phase != PhaseRunning {
		return nil, ErrWrongPhase
	}
	p := s.FindPlayer(id)
	if p == nil {
		return nil, ErrUnknownPlayer
	}
	if !p.Alive {
		return nil, ErrPlayerDead
	}
	return p, nil
}

func clampFlow(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > FullFlow {
		return FullFlow
	}
	return f
}
