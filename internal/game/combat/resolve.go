package combat

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/darklord/internal/game/ability"
)

// Typed action rejections. All of them leave encounter state untouched and
// the turn with the current actor, so the caller can re-prompt.
var (
	// ErrInsufficientResource means the Force Point pool cannot cover the cost.
	ErrInsufficientResource = errors.New("insufficient force points")
	// ErrInvalidTarget means the target is absent, defeated, or otherwise
	// ineligible for the requested ability.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrAbilityLocked means the ability is not in the actor's resolved set.
	ErrAbilityLocked = errors.New("ability not unlocked")
	// ErrNotAwaitingAction means the encounter is not in ActionSelection.
	ErrNotAwaitingAction = errors.New("encounter is not awaiting an action")
)

// ActionRequest is a selected ability plus optional target, supplied to the
// blocked ActionSelection step.
type ActionRequest struct {
	AbilityID string
	TargetID  string
}

// Resolution describes one fully applied action.
type Resolution struct {
	ActorID   string
	AbilityID string
	TargetID  string
	Damage    int
	Healed    int
	Applied   []string // status ids applied
	Killed    bool
	Spared    bool
	Narrative string
}

// SubmitAction validates and resolves req for the current actor. Validation
// happens before any mutation: a rejected action changes nothing and leaves
// the turn with the same actor. A successful resolution applies damage,
// statuses, and Force Point cost atomically, then advances the turn.
//
// Precondition: Phase == ActionSelection.
func (e *Encounter) SubmitAction(req ActionRequest) (*Resolution, error) {
	if e.Phase != PhaseActionSelection {
		return nil, ErrNotAwaitingAction
	}
	actor := e.Combatants[e.turnIndex]

	def, ok := e.abilities.Get(req.AbilityID)
	if !ok || !actor.HasAbility(req.AbilityID) {
		return nil, fmt.Errorf("%w: %q", ErrAbilityLocked, req.AbilityID)
	}

	target, err := e.resolveTarget(actor, def, req.TargetID)
	if err != nil {
		return nil, err
	}

	// All validation is done; the FP check is the last gate before any
	// mutation so a rejection can never leave a partial deduction.
	if def.FPCost > actor.FP {
		return nil, fmt.Errorf("%w: %q costs %d, have %d", ErrInsufficientResource, def.ID, def.FPCost, actor.FP)
	}

	e.Phase = PhaseActionResolution
	actor.SpendFP(def.FPCost)

	res := &Resolution{ActorID: actor.ID, AbilityID: def.ID, TargetID: target.ID}
	e.applyEffects(actor, target, def, res)

	if def.FPCost > 0 && actor.FP == 0 && e.tuning.ExhaustionStatus != "" {
		if exDef, ok := e.statuses.Get(e.tuning.ExhaustionStatus); ok {
			_ = actor.Statuses.Apply(exDef, 1, e.tuning.ExhaustionDuration)
			res.Applied = append(res.Applied, exDef.ID)
		}
	}

	use := AbilityUse{
		AbilityID:  def.ID,
		ActorID:    actor.ID,
		TargetID:   target.ID,
		TargetType: target.EnemyType,
		Finisher:   def.Finisher,
		Tags:       def.Tags,
		Damage:     res.Damage,
		Killed:     res.Killed,
	}
	e.history = append(e.history, use)
	for _, h := range e.hooks {
		h(use)
	}

	e.advanceTurn()
	return res, nil
}

// resolveTarget finds and validates the action's target. Self-targeted
// abilities ignore req.TargetID.
func (e *Encounter) resolveTarget(actor *Combatant, def *ability.Def, targetID string) (*Combatant, error) {
	if def.Target == ability.TargetSelf {
		if actor.IsDown() && !def.Revive {
			return nil, fmt.Errorf("%w: actor is down", ErrInvalidTarget)
		}
		return actor, nil
	}

	var target *Combatant
	for _, c := range e.Combatants {
		if c.ID == targetID {
			target = c
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: no combatant %q", ErrInvalidTarget, targetID)
	}
	if target.Fled {
		return nil, fmt.Errorf("%w: %s has left the fight", ErrInvalidTarget, target.Name)
	}
	// Revive-tagged effects are the single exception to the no-action-on-
	// downed-combatants rule.
	if target.IsDown() && !def.Revive {
		return nil, fmt.Errorf("%w: %s is already down", ErrInvalidTarget, target.Name)
	}
	if def.Finisher != "" && !target.IsHelpless() {
		return nil, fmt.Errorf("%w: %s is not helpless", ErrInvalidTarget, target.Name)
	}
	return target, nil
}

// applyEffects applies damage, healing, flight, statuses, and the incidental
// suit chip for enemy hits on the player. Mutations here are never partial:
// validation completed before the first state change.
func (e *Encounter) applyEffects(actor, target *Combatant, def *ability.Def, res *Resolution) {
	if def.Finisher == ability.FinisherSpare {
		target.Fled = true
		res.Spared = true
		res.Narrative = fmt.Sprintf("%s spares %s.", actor.Name, target.Name)
		return
	}

	if def.Finisher != "" {
		// Non-spare finishers kill outright; helplessness was verified.
		res.Damage = target.Health
		target.Health = 0
		res.Killed = true
	} else if def.Damage != "" {
		dmg := e.roller.Roll(def.DamageExpr()).Total() - actor.Statuses.AttackPenalty()
		if dmg < 0 {
			dmg = 0
		}
		wasUp := !target.IsDown()
		target.ApplyDamage(dmg)
		res.Damage = dmg
		res.Killed = wasUp && target.IsDown()

		if actor.Side == SideEnemy && target.PlayerControlled && dmg > 0 && e.tuning.SuitDamageChance > 0 {
			if e.roller.Source().Intn(100) < e.tuning.SuitDamageChance {
				e.SuitDamage += e.tuning.SuitDamageAmount
			}
		}
	}

	if def.Heal != "" {
		healed := e.roller.Roll(def.HealExpr()).Total()
		if healed < 0 {
			healed = 0
		}
		target.Heal(healed)
		res.Healed = healed
	}

	for _, a := range def.Applies {
		sdef, ok := e.statuses.Get(a.ID)
		if !ok {
			// Content validation catches unknown status references at load;
			// a miss here means a mismatched registry, which is a bug.
			panic("combat: ability references unknown status " + a.ID)
		}
		switch {
		case a.Spread:
			for _, c := range e.Combatants {
				if c.Side == SideEnemy && c != target && !c.IsOut() {
					_ = c.Statuses.Apply(sdef, a.Stacks, a.Duration)
				}
			}
			res.Applied = append(res.Applied, sdef.ID)
		case a.ToTarget:
			_ = target.Statuses.Apply(sdef, a.Stacks, a.Duration)
			res.Applied = append(res.Applied, sdef.ID)
		default:
			_ = actor.Statuses.Apply(sdef, a.Stacks, a.Duration)
			res.Applied = append(res.Applied, sdef.ID)
		}
	}

	switch {
	case res.Killed:
		res.Narrative = fmt.Sprintf("%s fells %s with %s.", actor.Name, target.Name, def.Name)
	case res.Damage > 0:
		res.Narrative = fmt.Sprintf("%s hits %s with %s for %d.", actor.Name, target.Name, def.Name, res.Damage)
	default:
		res.Narrative = fmt.Sprintf("%s uses %s.", actor.Name, def.Name)
	}
}
