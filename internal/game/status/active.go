package status

import "fmt"

// Active tracks one applied status on a combatant.
type Active struct {
	Def               *Def
	Stacks            int
	DurationRemaining int // -1 = permanent
}

// Set tracks all statuses currently applied to one combatant.
// It is not safe for concurrent use; the engine serialises access.
type Set struct {
	active map[string]*Active
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{active: make(map[string]*Active)}
}

// Apply adds or refreshes a status. Re-applying increments stacks up to
// MaxStacks (unstackable statuses stay at 1) and extends the duration to the
// longer of the existing and new values. duration -1 means permanent.
//
// Precondition: def must not be nil.
func (s *Set) Apply(def *Def, stacks, duration int) error {
	if def == nil {
		return fmt.Errorf("status: Apply requires a non-nil def")
	}

	if existing, ok := s.active[def.ID]; ok {
		if def.MaxStacks > 0 {
			existing.Stacks += stacks
			if existing.Stacks > def.MaxStacks {
				existing.Stacks = def.MaxStacks
			}
		}
		if duration == -1 || (existing.DurationRemaining != -1 && duration > existing.DurationRemaining) {
			existing.DurationRemaining = duration
		}
		return nil
	}

	effective := stacks
	if def.MaxStacks == 0 {
		effective = 1
	} else if effective > def.MaxStacks {
		effective = def.MaxStacks
	}
	s.active[def.ID] = &Active{Def: def, Stacks: effective, DurationRemaining: duration}
	return nil
}

// Remove deletes the status with the given ID; absent ids are a no-op.
func (s *Set) Remove(id string) {
	delete(s.active, id)
}

// Tick decrements the remaining duration of every rounds-typed status by one
// and removes those that expire, returning the expired ids. Permanent
// statuses (DurationRemaining == -1) are untouched.
func (s *Set) Tick() []string {
	var expired []string
	for id, a := range s.active {
		if a.Def.DurationType != DurationRounds || a.DurationRemaining < 0 {
			continue
		}
		a.DurationRemaining--
		if a.DurationRemaining <= 0 {
			expired = append(expired, id)
			delete(s.active, id)
		}
	}
	return expired
}

// Has reports whether the status with id is currently active.
func (s *Set) Has(id string) bool {
	_, ok := s.active[id]
	return ok
}

// Stacks returns the stack count for id, or 0 when absent.
func (s *Set) Stacks(id string) int {
	if a, ok := s.active[id]; ok {
		return a.Stacks
	}
	return 0
}

// AttackPenalty returns the summed attack penalty across active statuses,
// weighted by stacks.
func (s *Set) AttackPenalty() int {
	total := 0
	for _, a := range s.active {
		total += a.Def.AttackPenalty * a.Stacks
	}
	return total
}

// FPRegenPenalty returns the summed Force Point regeneration penalty across
// active statuses, weighted by stacks.
func (s *Set) FPRegenPenalty() int {
	total := 0
	for _, a := range s.active {
		total += a.Def.FPRegenPenalty * a.Stacks
	}
	return total
}

// SkipsTurn reports whether any active status forces the bearer to forfeit
// its action.
func (s *Set) SkipsTurn() bool {
	for _, a := range s.active {
		if a.Def.SkipTurn {
			return true
		}
	}
	return false
}

// SkipsTurnPermanently reports whether a skip-turn status with no remaining
// expiry holds the bearer: permanent duration type, or a rounds-typed status
// applied with duration -1.
func (s *Set) SkipsTurnPermanently() bool {
	for _, a := range s.active {
		if a.Def.SkipTurn && (a.Def.DurationType == DurationPermanent || a.DurationRemaining < 0) {
			return true
		}
	}
	return false
}

// All returns the active statuses. The slice is a fresh allocation but the
// pointed-to values are shared; callers must not modify them.
func (s *Set) All() []*Active {
	out := make([]*Active, 0, len(s.active))
	for _, a := range s.active {
		out = append(out, a)
	}
	return out
}
