// Package combat implements the turn-based encounter engine: initiative,
// the round state machine, the Force Point economy, and action resolution.
// The engine never touches persistent state; terminal outcomes are packaged
// into consequence records by the orchestrator.
package combat

import "github.com/cory-johannsen/darklord/internal/game/status"

// Side identifies which team a combatant fights for.
type Side int

const (
	SidePlayer Side = iota
	SideAlly
	SideEnemy
)

// String returns a human-readable side label.
func (s Side) String() string {
	switch s {
	case SidePlayer:
		return "player"
	case SideAlly:
		return "ally"
	case SideEnemy:
		return "enemy"
	default:
		return "unknown"
	}
}

// Combatant is one participant in an encounter.
//
// Invariant: Health stays in [0, MaxHealth] and FP in [0, MaxFP] across all
// mutations; both pools clamp rather than fail.
type Combatant struct {
	ID   string
	Name string
	Side Side
	// EnemyType classifies enemies for usage hooks and effect tables
	// ("jedi", "trooper", "inquisitor"); empty for the player side.
	EnemyType string

	MaxHealth int
	Health    int
	MaxFP     int
	FP        int
	// FPRegen is the base Force Point regeneration applied each RoundStart.
	FPRegen int
	// Speed orders initiative; ties keep construction order.
	Speed int

	// Abilities is the resolved action set, gated at construction by the
	// progression ledger snapshot.
	Abilities []string

	// PlayerControlled combatants block on the external controller during
	// ActionSelection; others run the deterministic AI policy.
	PlayerControlled bool

	// Fled marks a combatant that left the encounter alive (fled or spared).
	Fled bool

	Statuses *status.Set
}

// IsDown reports whether the combatant's health is exhausted.
func (c *Combatant) IsDown() bool { return c.Health <= 0 }

// IsOut reports whether the combatant no longer participates: down or gone.
func (c *Combatant) IsOut() bool { return c.IsDown() || c.Fled }

// IsHelpless reports whether the combatant is alive but beaten low enough
// (at or below 20% health) for a finisher to be used on it.
func (c *Combatant) IsHelpless() bool {
	return !c.IsOut() && c.Health*5 <= c.MaxHealth
}

// HasAbility reports whether id is in the combatant's resolved action set.
func (c *Combatant) HasAbility(id string) bool {
	for _, a := range c.Abilities {
		if a == id {
			return true
		}
	}
	return false
}

// ApplyDamage reduces Health by amount, flooring at zero.
//
// Precondition: amount >= 0.
func (c *Combatant) ApplyDamage(amount int) {
	c.Health -= amount
	if c.Health < 0 {
		c.Health = 0
	}
}

// Heal restores Health by amount, capped at MaxHealth.
//
// Precondition: amount >= 0.
func (c *Combatant) Heal(amount int) {
	c.Health += amount
	if c.Health > c.MaxHealth {
		c.Health = c.MaxHealth
	}
}

// SpendFP pays cost from the Force Point pool atomically: either the full
// cost is deducted and true is returned, or nothing changes.
//
// Precondition: cost >= 0.
func (c *Combatant) SpendFP(cost int) bool {
	if cost > c.FP {
		return false
	}
	c.FP -= cost
	return true
}

// RegenFP restores amount Force Points, capped at MaxFP, and returns the
// amount actually restored. Negative amounts are treated as zero.
func (c *Combatant) RegenFP(amount int) int {
	if amount < 0 {
		amount = 0
	}
	before := c.FP
	c.FP += amount
	if c.FP > c.MaxFP {
		c.FP = c.MaxFP
	}
	return c.FP - before
}
