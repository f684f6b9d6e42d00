package combat

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cory-johannsen/darklord/internal/game/ability"
	"github.com/cory-johannsen/darklord/internal/game/dice"
	"github.com/cory-johannsen/darklord/internal/game/status"
)

// Phase is the encounter state machine position.
type Phase int

const (
	PhaseSetup Phase = iota
	PhaseRoundStart
	PhaseActionSelection
	PhaseActionResolution
	PhaseTerminal
)

// String returns a human-readable phase label.
func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "setup"
	case PhaseRoundStart:
		return "round_start"
	case PhaseActionSelection:
		return "action_selection"
	case PhaseActionResolution:
		return "action_resolution"
	case PhaseTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Outcome classifies a terminal encounter.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeVictory
	OutcomeDefeat
	OutcomeFled
)

// String returns a human-readable outcome label.
func (o Outcome) String() string {
	switch o {
	case OutcomeVictory:
		return "victory"
	case OutcomeDefeat:
		return "defeat"
	case OutcomeFled:
		return "fled"
	default:
		return "none"
	}
}

// ErrNotAborted is returned by Abort outside a RoundStart boundary.
var ErrNotAborted = errors.New("encounter can only be aborted at a round boundary")

// Tuning holds the fixed per-encounter policy constants supplied by content.
type Tuning struct {
	// RageRegenBonus is extra FP regeneration while rage is at or above
	// RageRegenThreshold (pain fuels the dark side).
	RageRegenBonus     int
	RageRegenThreshold int
	// SuitDamageChance is the percent chance an enemy hit on the player
	// also chips the suit by SuitDamageAmount.
	SuitDamageChance int
	SuitDamageAmount int
	// ExhaustionStatus is applied to an actor whose FP pool hits zero after
	// paying a cost; empty disables the mechanic.
	ExhaustionStatus   string
	ExhaustionDuration int
}

// AbilityUse records one resolved ability application, for usage hooks and
// the orchestrator's finisher accounting.
type AbilityUse struct {
	AbilityID  string
	ActorID    string
	TargetID   string
	TargetType string // EnemyType of the target; empty for self/player targets
	Finisher   string
	Tags       []string
	Damage     int
	Killed     bool
}

// UsageHook observes resolved ability uses. Hooks run synchronously inside
// ActionResolution; they must not mutate encounter state.
type UsageHook func(use AbilityUse)

// Encounter is the live state of one combat session.
//
// Invariant: exactly one combatant acts at a time; every phase except
// ActionSelection (awaiting a player choice) runs to completion without
// external input. Encounter is not safe for concurrent use.
type Encounter struct {
	ID         string
	Combatants []*Combatant // initiative order, fixed at Setup

	Round   int
	Phase   Phase
	Outcome Outcome

	// PlayerRage is the rage axis snapshot taken at composition; it drives
	// the regen bonus and does not change mid-encounter.
	PlayerRage int

	abilities *ability.Registry
	statuses  *status.Registry
	roller    *dice.Roller
	tuning    Tuning

	turnIndex int
	history   []AbilityUse
	hooks     []UsageHook

	// SuitDamage accumulates suit-integrity loss from enemy hits; the
	// orchestrator folds it into the encounter's consequence record.
	SuitDamage int
}

// NewEncounter builds an encounter in Setup phase. Combatants are sorted by
// Speed descending with ties keeping their input order, which makes
// initiative fully deterministic.
//
// Precondition: id non-empty; at least two combatants; abilities, statuses,
// and roller non-nil.
func NewEncounter(id string, combatants []*Combatant, abilities *ability.Registry, statuses *status.Registry, roller *dice.Roller, tuning Tuning) (*Encounter, error) {
	if id == "" {
		return nil, fmt.Errorf("combat: encounter id must not be empty")
	}
	if len(combatants) < 2 {
		return nil, fmt.Errorf("combat: encounter needs at least 2 combatants, got %d", len(combatants))
	}

	ordered := make([]*Combatant, len(combatants))
	copy(ordered, combatants)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Speed > ordered[j].Speed
	})

	for _, c := range ordered {
		if c.Statuses == nil {
			c.Statuses = status.NewSet()
		}
	}

	return &Encounter{
		ID:         id,
		Combatants: ordered,
		Phase:      PhaseSetup,
		abilities:  abilities,
		statuses:   statuses,
		roller:     roller,
		tuning:     tuning,
	}, nil
}

// OnAbilityUse registers a hook observing every resolved ability use.
func (e *Encounter) OnAbilityUse(h UsageHook) {
	e.hooks = append(e.hooks, h)
}

// History returns the resolved ability uses in order.
func (e *Encounter) History() []AbilityUse {
	out := make([]AbilityUse, len(e.history))
	copy(out, e.history)
	return out
}

// StartRound runs the RoundStart phase: FP regeneration, status ticks, and
// the terminal check. On a live encounter it advances to ActionSelection with
// the first eligible combatant; on a decided one it transitions to Terminal.
//
// Precondition: Phase is Setup or the previous round fully resolved.
func (e *Encounter) StartRound() {
	if e.Phase == PhaseTerminal {
		return
	}
	e.Phase = PhaseRoundStart
	e.Round++

	for _, c := range e.Combatants {
		if c.IsOut() {
			continue
		}
		regen := c.FPRegen - c.Statuses.FPRegenPenalty()
		if c.PlayerControlled && e.PlayerRage >= e.tuning.RageRegenThreshold {
			regen += e.tuning.RageRegenBonus
		}
		c.RegenFP(regen)
		c.Statuses.Tick()
	}

	if e.checkTerminal() {
		return
	}

	e.turnIndex = 0
	e.skipIneligible()
	if e.turnIndex >= len(e.Combatants) {
		// Everyone eligible is locked out this round. Rounds-typed lockouts
		// tick down at RoundStart, so re-running the round makes progress
		// unless every living combatant is held by a permanent skip; that
		// stalemate can never resolve, so the fight dissolves instead.
		if e.allLockedPermanently() {
			e.Outcome = OutcomeFled
			e.Phase = PhaseTerminal
			return
		}
		e.StartRound()
		return
	}
	e.Phase = PhaseActionSelection
}

// allLockedPermanently reports whether every living combatant is held by a
// skip-turn status that will never expire.
func (e *Encounter) allLockedPermanently() bool {
	for _, c := range e.Combatants {
		if !c.IsOut() && !c.Statuses.SkipsTurnPermanently() {
			return false
		}
	}
	return true
}

// Abort ends the encounter with a Fled outcome. It is only legal at a
// RoundStart/ActionSelection boundary before any action this round has
// resolved; aborting mid-resolution would break record atomicity.
func (e *Encounter) Abort() error {
	if e.Phase == PhaseTerminal {
		return nil
	}
	if e.Phase == PhaseActionResolution {
		return ErrNotAborted
	}
	e.Outcome = OutcomeFled
	e.Phase = PhaseTerminal
	return nil
}

// Pass forfeits the current actor's action and advances the turn. An actor
// with no affordable ability still consumes its slot in the round.
func (e *Encounter) Pass() error {
	if e.Phase != PhaseActionSelection {
		return ErrNotAwaitingAction
	}
	e.advanceTurn()
	return nil
}

// CurrentActor returns the combatant whose turn it is, or nil when the
// encounter is not awaiting an action.
func (e *Encounter) CurrentActor() *Combatant {
	if e.Phase != PhaseActionSelection {
		return nil
	}
	return e.Combatants[e.turnIndex]
}

// IsTerminal reports whether the encounter has reached a terminal state.
func (e *Encounter) IsTerminal() bool { return e.Phase == PhaseTerminal }

// advanceTurn moves to the next eligible combatant, or rolls the round over.
func (e *Encounter) advanceTurn() {
	if e.checkTerminal() {
		return
	}
	e.turnIndex++
	e.skipIneligible()
	if e.turnIndex >= len(e.Combatants) {
		e.StartRound()
		return
	}
	e.Phase = PhaseActionSelection
}

// skipIneligible advances turnIndex past combatants that are out of the
// fight or locked out of acting by a status this round.
func (e *Encounter) skipIneligible() {
	for e.turnIndex < len(e.Combatants) {
		c := e.Combatants[e.turnIndex]
		if !c.IsOut() && !c.Statuses.SkipsTurn() {
			return
		}
		e.turnIndex++
	}
}

// checkTerminal evaluates the terminal condition and, when met, sets the
// outcome and transitions to Terminal. Player flight beats defeat: a fled
// protagonist is not a dead one.
func (e *Encounter) checkTerminal() bool {
	playerAlive := false
	playerFled := false
	enemyAlive := false
	for _, c := range e.Combatants {
		switch c.Side {
		case SideEnemy:
			if !c.IsOut() {
				enemyAlive = true
			}
		default:
			if c.PlayerControlled && c.Fled {
				playerFled = true
			}
			if !c.IsOut() {
				playerAlive = true
			}
		}
	}

	switch {
	case !enemyAlive:
		e.Outcome = OutcomeVictory
	case playerFled:
		e.Outcome = OutcomeFled
	case !playerAlive:
		e.Outcome = OutcomeDefeat
	default:
		return false
	}
	e.Phase = PhaseTerminal
	return true
}
