package game

// Tick advances one simulation step while Running: flow decay and regen,
// exercise progress, cooldowns, the manager hazard, then win evaluation.
// Whole-second work (cooldowns, exercise rolls) lands on TickHz boundaries.
func Tick(s *State) []Event {
	if s.Phase != PhaseRunning {
		return nil
	}
	s.Tick++
	secondBoundary := s.Tick%s.Rules.TickHz == 0
	dt := 1.0 / float64(s.Rules.TickHz)

	var events []Event
	for _, p := range s.Players {
		if !p.Alive {
			continue
		}

		delta := 0.0
		if p.CoffeeTicks > 0 {
			p.CoffeeTicks--
		} else {
			delta -= s.Rules.DecayPerSec
		}
		switch p.Motion {
		case MotionDancing:
			delta += s.Rules.DanceRegenPerSec
		case MotionGaming:
			delta += s.Rules.GameRegenPerSec
		}
		p.Flow = clampFlow(p.Flow + delta*dt)
		events = append(events, killIfBurnedOut(p)...)

		if secondBoundary && p.Alive {
			for skill, left := range p.Cooldown {
				if left > 0 {
					p.Cooldown[skill] = left - 1
				}
			}
			if p.Motion == MotionExercising && p.Muscle < MuscleToWin {
				if s.Rand.Intn(100) < s.Rules.ExercisePct {
					p.Muscle++
				}
			}
		}
	}

	events = append(events, tickManager(s)...)
	events = append(events, evaluateEnd(s)...)
	return events
}

func tickManager(s *State) []Event {
	if s.Manager {
		s.ManagerTicks--
		if s.ManagerTicks <= 0 {
			s.Manager = false
			s.scheduleManager()
			return []Event{{Type: EvtManagerLeft}}
		}
		return nil
	}
	if s.Tick >= s.NextManagerTick {
		return appearManager(s)
	}
	return nil
}

// appearManager makes the manager show up now and punishes anyone whose
// motion fails the Caught policy at this instant. Deterministic from the
// server-held state alone.
func appearManager(s *State) []Event {
	if s.Manager {
		return nil
	}
	s.Manager = true
	s.ManagerTicks = s.Rules.ManagerSec * s.Rules.TickHz

	events := []Event{{Type: EvtManagerAppeared}}
	for _, p := range s.Players {
		if p.Alive && s.Rules.Caught(p.Motion) {
			events = append(events, kill(p, "caught")...)
		}
	}
	return events
}

func (s *State) scheduleManager() {
	min := s.Rules.ManagerMinSec
	span := s.Rules.ManagerMaxSec - min
	if span <= 0 {
		span = 1
	}
	s.NextManagerTick = s.Tick + (min+s.Rand.Intn(span))*s.Rules.TickHz
}

func killIfBurnedOut(p *Player) []Event {
	if p.Alive && p.Flow <= 0 {
		return kill(p, "burnout")
	}
	return nil
}

func kill(p *Player, reason string) []Event {
	p.Alive = false
	p.Motion = MotionDead
	p.DanceType = ""
	p.CoffeeTicks = 0
	clear(p.Cooldown)
	return []Event{{Type: EvtPlayerDied, PlayerID: p.ID, Reason: reason}}
}

// evaluateEnd fires the terminal transition. Muscle target beats survivor
// checks; seat order breaks the (theoretical) tie of two players reaching
// the target in one mutation.
func evaluateEnd(s *State) []Event {
	if s.Phase != PhaseRunning {
		return nil
	}

	for _, p := range s.Players {
		if p.Alive && p.Muscle >= MuscleToWin {
			return endMatch(s, p)
		}
	}

	switch s.AliveCount() {
	case 0:
		// Simultaneous wipe, or everyone disconnected: no winner.
		return endMatch(s, nil)
	case 1:
		for _, p := range s.Players {
			if p.Alive {
				return endMatch(s, p)
			}
		}
	}
	return nil
}

func endMatch(s *State, winner *Player) []Event {
	s.Phase = PhaseEnded
	s.Manager = false

	res := &Result{DurationMS: s.elapsedMS()}
	if winner != nil {
		res.WinnerID = winner.ID
		res.Winner = winner.Username
		res.Skill = winner.Skill
		res.CommitCount = winner.Muscle
	}
	s.Result = res
	return []Event{{Type: EvtGameEnded, PlayerID: res.WinnerID, Result: res}}
}
