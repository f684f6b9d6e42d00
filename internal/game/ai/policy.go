// Package ai implements the deterministic action policy for AI-controlled
// combatants. The policy is a pure function of visible encounter state plus a
// fixed content-defined priority order, so combat runs are reproducible.
package ai

import (
	"github.com/cory-johannsen/darklord/internal/game/ability"
	"github.com/cory-johannsen/darklord/internal/game/combat"
)

// Policy selects actions for AI combatants.
//
// Decision order:
//  1. Lethal finish: the first (ability, target) pair, scanned in priority
//     then initiative order, whose projected damage this turn drops a living
//     opposing target to 0 health.
//  2. Otherwise the affordable ability with the highest expected value
//     (expected damage minus Force Point cost), aimed at the lowest-health
//     opposing target; ties break by the fixed priority order.
//  3. Otherwise the first affordable non-finisher ability in priority order;
//     the zero request (a pass) when nothing can legally resolve this turn.
type Policy struct {
	abilities *ability.Registry
	// priority is the content aiPriorityOrder; abilities absent from it rank
	// after listed ones, in the actor's action-set order.
	priority map[string]int
}

// NewPolicy builds a Policy over the given registry and priority order.
//
// Precondition: abilities must be non-nil.
func NewPolicy(abilities *ability.Registry, priorityOrder []string) *Policy {
	prio := make(map[string]int, len(priorityOrder))
	for i, id := range priorityOrder {
		prio[id] = i
	}
	return &Policy{abilities: abilities, priority: prio}
}

// rank returns the priority rank for an ability id; unlisted abilities rank
// after all listed ones while preserving their relative action-set order.
func (p *Policy) rank(id string, setIndex int) int {
	if r, ok := p.priority[id]; ok {
		return r
	}
	return len(p.priority) + setIndex
}

// usable lists the actor's affordable, currently valid abilities in priority
// order. Finishers and revives are excluded from general scanning; finishers
// are considered separately against helpless targets.
func (p *Policy) usable(actor *combat.Combatant) []*ability.Def {
	type ranked struct {
		def  *ability.Def
		rank int
	}
	var defs []ranked
	for i, id := range actor.Abilities {
		def, ok := p.abilities.Get(id)
		if !ok || def.Revive {
			continue
		}
		if def.FPCost > actor.FP {
			continue
		}
		defs = append(defs, ranked{def, p.rank(id, i)})
	}
	// Insertion sort keeps this allocation-light for small action sets.
	for i := 1; i < len(defs); i++ {
		for j := i; j > 0 && defs[j].rank < defs[j-1].rank; j-- {
			defs[j], defs[j-1] = defs[j-1], defs[j]
		}
	}
	out := make([]*ability.Def, len(defs))
	for i, r := range defs {
		out[i] = r.def
	}
	return out
}

// targets lists living opposing combatants in initiative order.
func targets(enc *combat.Encounter, actor *combat.Combatant) []*combat.Combatant {
	var out []*combat.Combatant
	for _, c := range enc.Combatants {
		if c.IsOut() {
			continue
		}
		hostile := (actor.Side == combat.SideEnemy) != (c.Side == combat.SideEnemy)
		if hostile {
			out = append(out, c)
		}
	}
	return out
}

// Decide returns the actor's action for this turn.
//
// Postcondition: a non-zero request references an ability in the actor's set
// that the actor can afford and that the engine will accept against its
// target; the zero request means the actor has no legally resolvable action
// this turn (callers should treat it as a pass).
func (p *Policy) Decide(enc *combat.Encounter, actor *combat.Combatant) combat.ActionRequest {
	usable := p.usable(actor)
	if len(usable) == 0 {
		return combat.ActionRequest{}
	}
	foes := targets(enc, actor)

	// Lethal finish first: finishers on helpless targets, then raw damage
	// that projects below zero.
	for _, def := range usable {
		if def.Finisher == "" || def.Finisher == ability.FinisherSpare {
			continue
		}
		for _, t := range foes {
			if t.IsHelpless() {
				return combat.ActionRequest{AbilityID: def.ID, TargetID: t.ID}
			}
		}
	}
	for _, def := range usable {
		if def.Target != ability.TargetEnemy || def.Damage == "" || def.Finisher != "" {
			continue
		}
		for _, t := range foes {
			if def.ExpectedDamage() >= t.Health {
				return combat.ActionRequest{AbilityID: def.ID, TargetID: t.ID}
			}
		}
	}

	// Highest expected value otherwise; usable is already priority-ordered,
	// so strict greater-than keeps the earliest ability on ties.
	var best *ability.Def
	bestEV := 0
	for _, def := range usable {
		if def.Target != ability.TargetEnemy || def.Damage == "" || def.Finisher != "" {
			continue
		}
		ev := def.ExpectedDamage() - def.FPCost
		if best == nil || ev > bestEV {
			best, bestEV = def, ev
		}
	}
	if best != nil && len(foes) > 0 {
		target := foes[0]
		for _, t := range foes[1:] {
			if t.Health < target.Health {
				target = t
			}
		}
		return combat.ActionRequest{AbilityID: best.ID, TargetID: target.ID}
	}

	// Nothing offensive fits; use the top-priority ability that can still
	// resolve this turn. Finishers are skipped here: the helpless scan above
	// already failed, so submitting one would be rejected.
	for _, def := range usable {
		if def.Finisher != "" {
			continue
		}
		req := combat.ActionRequest{AbilityID: def.ID}
		if def.Target == ability.TargetEnemy {
			if len(foes) == 0 {
				continue
			}
			req.TargetID = foes[0].ID
		}
		return req
	}
	return combat.ActionRequest{}
}
