// Package encounter composes combat encounters from content and playthrough
// state, drives them to a terminal outcome, and folds the result into exactly
// one committed consequence record.
package encounter

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/darklord/internal/content"
	"github.com/cory-johannsen/darklord/internal/game/ai"
	"github.com/cory-johannsen/darklord/internal/game/combat"
	"github.com/cory-johannsen/darklord/internal/game/consequence"
	"github.com/cory-johannsen/darklord/internal/game/dice"
	"github.com/cory-johannsen/darklord/internal/game/progression"
	"github.com/cory-johannsen/darklord/internal/game/session"
	"github.com/cory-johannsen/darklord/internal/scripting"
)

var (
	// ErrUnknownEncounter means the requested encounter id is not in the pack.
	ErrUnknownEncounter = errors.New("unknown encounter")
	// ErrNotTerminal means Finalize was called on a live encounter.
	ErrNotTerminal = errors.New("encounter has not reached a terminal state")
	// ErrAlreadyFinalized means the run's record was already committed.
	ErrAlreadyFinalized = errors.New("encounter already finalized")
)

// Controller supplies player decisions. ChooseAction blocks until the player
// picks; ShouldAbort is consulted once per round boundary before any action
// that round resolves.
type Controller interface {
	ChooseAction(enc *combat.Encounter, actor *combat.Combatant) (combat.ActionRequest, error)
	ShouldAbort(enc *combat.Encounter) bool
}

// Run is one live encounter plus the finalization state that accumulates
// around it.
type Run struct {
	ID  string
	Def *content.EncounterDef
	Enc *combat.Encounter

	// BreakVariant marks a rage-driven encounter: protagonist turns run on
	// the AI policy instead of the controller.
	BreakVariant bool

	hooks     *scripting.HookManager
	extra     []consequence.Effect
	finalized bool
}

// Orchestrator builds, drives, and finalizes encounters for one playthrough.
type Orchestrator struct {
	pack   *content.Pack
	play   *session.Playthrough
	policy *ai.Policy
	roller *dice.Roller
	logger *zap.Logger

	// hookLimit caps Lua opcodes per hook call; 0 uses the scripting default.
	hookLimit int

	// queue holds encounter ids forced by loyalty tests, in trigger order.
	queue []string
}

// NewOrchestrator wires an orchestrator over a loaded pack and playthrough.
//
// Precondition: all arguments non-nil.
func NewOrchestrator(pack *content.Pack, play *session.Playthrough, roller *dice.Roller, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		pack:   pack,
		play:   play,
		policy: ai.NewPolicy(pack.Abilities, pack.Policies.AIPriorityOrder),
		roller: roller,
		logger: logger,
	}
}

// SetHookInstructionLimit overrides the per-call Lua opcode budget for
// encounter hooks. Zero restores the scripting default.
func (o *Orchestrator) SetHookInstructionLimit(n int) {
	o.hookLimit = n
}

// StartEncounter composes a Run for the named encounter: the profile and
// ledger are snapshotted, combatants built from templates, and the
// protagonist's action set gated by unlocked powers and suit tier. A latched
// break condition turns the run into its rage-driven variant and is
// acknowledged here.
func (o *Orchestrator) StartEncounter(encounterID string) (*Run, error) {
	def, ok := o.pack.Encounters[encounterID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncounter, encounterID)
	}

	statsSnap := o.play.StatsSnapshot()
	progSnap := o.play.ProgressionSnapshot()

	combatants := []*combat.Combatant{o.buildProtagonist(progSnap)}
	for _, spawn := range def.Enemies {
		tmpl := o.pack.Enemies[spawn.Template]
		for i := 0; i < spawn.Count; i++ {
			combatants = append(combatants, buildEnemy(tmpl))
		}
	}

	enc, err := combat.NewEncounter(uuid.NewString(), combatants, o.pack.Abilities, o.pack.Statuses, o.roller, o.pack.Tuning)
	if err != nil {
		return nil, fmt.Errorf("composing encounter %q: %w", encounterID, err)
	}
	enc.PlayerRage = statsSnap.Rage

	run := &Run{ID: enc.ID, Def: def, Enc: enc}
	if o.play.BreakPending() {
		run.BreakVariant = true
		o.play.AcknowledgeBreak()
		o.logger.Warn("break condition latched, forcing rage-driven variant",
			zap.String("encounter_id", encounterID),
			zap.Int("rage", statsSnap.Rage),
			zap.Int("suppression", statsSnap.Suppression),
		)
	}

	if len(def.Hooks) > 0 && o.pack.HookDir != "" {
		hooks, err := scripting.NewHookManager(o.pack.HookDir, def.Hooks, o.hookLimit, o.logger)
		if err != nil {
			return nil, fmt.Errorf("loading hooks for encounter %q: %w", encounterID, err)
		}
		run.hooks = hooks
		enc.OnAbilityUse(func(use combat.AbilityUse) {
			o.collectHookEffects(run, use)
		})
	}

	o.logger.Info("encounter started",
		zap.String("encounter_id", encounterID),
		zap.String("run_id", run.ID),
		zap.Int("combatants", len(enc.Combatants)),
		zap.Bool("break_variant", run.BreakVariant),
	)
	return run, nil
}

// Drive runs the encounter to a terminal outcome. Player turns block on the
// controller unless the run is the break variant; rejected player actions
// leave the turn with the player and re-prompt.
//
// Precondition: run came from StartEncounter and has not been driven yet.
func (o *Orchestrator) Drive(run *Run, ctrl Controller) (combat.Outcome, error) {
	enc := run.Enc
	enc.StartRound()

	lastRound := 0
	for !enc.IsTerminal() {
		if enc.Round != lastRound {
			lastRound = enc.Round
			if ctrl != nil && !run.BreakVariant && ctrl.ShouldAbort(enc) {
				if err := enc.Abort(); err != nil {
					return combat.OutcomeNone, err
				}
				break
			}
		}

		actor := enc.CurrentActor()
		if actor == nil {
			return combat.OutcomeNone, fmt.Errorf("run %q: no current actor outside terminal state", run.ID)
		}

		var req combat.ActionRequest
		playerTurn := actor.PlayerControlled && !run.BreakVariant
		if playerTurn {
			if ctrl == nil {
				return combat.OutcomeNone, fmt.Errorf("run %q: player turn with no controller", run.ID)
			}
			var err error
			if req, err = ctrl.ChooseAction(enc, actor); err != nil {
				return combat.OutcomeNone, fmt.Errorf("run %q: controller: %w", run.ID, err)
			}
		} else {
			req = o.policy.Decide(enc, actor)
		}

		if req.AbilityID == "" {
			if err := enc.Pass(); err != nil {
				return combat.OutcomeNone, err
			}
			continue
		}

		if _, err := enc.SubmitAction(req); err != nil {
			if playerTurn && isRejection(err) {
				o.logger.Debug("player action rejected",
					zap.String("run_id", run.ID),
					zap.String("ability_id", req.AbilityID),
					zap.Error(err),
				)
				continue
			}
			return combat.OutcomeNone, fmt.Errorf("run %q: %w", run.ID, err)
		}
	}
	return enc.Outcome, nil
}

// Finalize maps the terminal run through the effect table and commits exactly
// one record, regardless of outcome. It also schedules a pending loyalty test.
//
// Postcondition: the run cannot be finalized twice; the returned record is the
// one appended to the graph.
func (o *Orchestrator) Finalize(run *Run) (consequence.Record, error) {
	if !run.Enc.IsTerminal() {
		return consequence.Record{}, fmt.Errorf("run %q: %w", run.ID, ErrNotTerminal)
	}
	if run.finalized {
		return consequence.Record{}, fmt.Errorf("run %q: %w", run.ID, ErrAlreadyFinalized)
	}
	run.finalized = true
	if run.hooks != nil {
		run.hooks.Close()
		run.hooks = nil
	}

	outcome := run.Enc.Outcome.String()
	var effects []consequence.Effect
	effects = append(effects, o.pack.Effects.ForOutcome(outcome)...)
	for _, use := range run.Enc.History() {
		if use.Finisher != "" {
			effects = append(effects, o.pack.Effects.ForFinisher(use.Finisher)...)
		}
		for _, tag := range use.Tags {
			effects = append(effects, o.pack.Effects.ForTag(tag)...)
		}
	}
	if run.Enc.SuitDamage > 0 {
		effects = append(effects, consequence.Effect{
			Target: consequence.TargetSuitIntegrity,
			Delta:  -run.Enc.SuitDamage,
		})
	}
	if run.Enc.Outcome == combat.OutcomeVictory {
		effects = append(effects, run.Def.OnVictory...)
	}
	if o.pack.Effects.CountsAsMission(outcome) {
		effects = append(effects, consequence.Effect{Target: consequence.TargetMissions, Delta: 1})
	}
	effects = append(effects, run.extra...)

	rec, err := o.play.Commit(run.Def.ID, effects)
	if err != nil {
		return consequence.Record{}, fmt.Errorf("finalizing run %q: %w", run.ID, err)
	}

	o.logger.Info("encounter finalized",
		zap.String("run_id", run.ID),
		zap.String("encounter_id", run.Def.ID),
		zap.String("outcome", outcome),
		zap.Int("effects", len(rec.Effects)),
		zap.Int("seq", rec.Seq),
	)

	o.ScheduleLoyaltyTest()
	return rec, nil
}

// ScheduleLoyaltyTest enqueues the content-named loyalty-test encounter when
// one is pending and reports whether it did. Finalize calls this; callers that
// commit upgrades outside encounters call it directly.
func (o *Orchestrator) ScheduleLoyaltyTest() bool {
	if o.pack.Policies.LoyaltyTestEncounter == "" {
		return false
	}
	if !o.play.ConsumeLoyaltyTest() {
		return false
	}
	o.queue = append(o.queue, o.pack.Policies.LoyaltyTestEncounter)
	o.logger.Warn("loyalty test scheduled",
		zap.String("encounter_id", o.pack.Policies.LoyaltyTestEncounter),
	)
	return true
}

// NextQueued pops the next forced encounter id, if any.
func (o *Orchestrator) NextQueued() (string, bool) {
	if len(o.queue) == 0 {
		return "", false
	}
	id := o.queue[0]
	o.queue = o.queue[1:]
	return id, true
}

// collectHookEffects runs the Lua hooks for one ability use and keeps the
// valid returned effects for Finalize. Invalid targets are dropped with a
// warning; a misbehaving hook must not be able to poison the record commit.
func (o *Orchestrator) collectHookEffects(run *Run, use combat.AbilityUse) {
	deltas := run.hooks.EvalUse(scripting.UseEvent{
		AbilityID:  use.AbilityID,
		ActorID:    use.ActorID,
		TargetID:   use.TargetID,
		TargetType: use.TargetType,
		Finisher:   use.Finisher,
		Tags:       use.Tags,
		Damage:     use.Damage,
		Killed:     use.Killed,
	})
	for _, d := range deltas {
		eff := consequence.Effect{Target: d.Target, Delta: d.Delta}
		if err := eff.Validate(); err != nil {
			o.logger.Warn("hook returned invalid effect",
				zap.String("run_id", run.ID),
				zap.String("target", d.Target),
				zap.Error(err),
			)
			continue
		}
		run.extra = append(run.extra, eff)
	}
}

// buildProtagonist constructs the player combatant from the pack template and
// the ledger snapshot: pools scale with suit tier, the action set is gated by
// unlocked powers and minimum tier.
func (o *Orchestrator) buildProtagonist(prog progression.Snapshot) *combat.Combatant {
	tmpl := o.pack.Protagonist
	tierBonus := int(prog.SuitTier - 1)

	var unlocked []string
	for _, id := range tmpl.Abilities {
		def, ok := o.pack.Abilities.Get(id)
		if !ok {
			continue
		}
		if def.RequiresPower != "" && !o.play.HasPower(def.RequiresPower) {
			continue
		}
		if def.MinSuitTier > 0 && progression.SuitTier(def.MinSuitTier) > prog.SuitTier {
			continue
		}
		unlocked = append(unlocked, id)
	}

	maxHealth := tmpl.MaxHealth + tierBonus*tmpl.TierHealthBonus
	maxFP := tmpl.MaxFP + tierBonus*tmpl.TierFPBonus
	return &combat.Combatant{
		ID:               uuid.NewString(),
		Name:             tmpl.Name,
		Side:             combat.SidePlayer,
		MaxHealth:        maxHealth,
		Health:           maxHealth,
		MaxFP:            maxFP,
		FP:               maxFP,
		FPRegen:          tmpl.FPRegen,
		Speed:            tmpl.Speed,
		Abilities:        unlocked,
		PlayerControlled: true,
	}
}

// buildEnemy constructs one enemy instance from its template.
func buildEnemy(tmpl *content.EnemyTemplate) *combat.Combatant {
	return &combat.Combatant{
		ID:        uuid.NewString(),
		Name:      tmpl.Name,
		Side:      combat.SideEnemy,
		EnemyType: tmpl.EnemyType,
		MaxHealth: tmpl.MaxHealth,
		Health:    tmpl.MaxHealth,
		MaxFP:     tmpl.MaxFP,
		FP:        tmpl.MaxFP,
		FPRegen:   tmpl.FPRegen,
		Speed:     tmpl.Speed,
		Abilities: append([]string(nil), tmpl.Abilities...),
	}
}

// isRejection reports whether err is one of the re-promptable action
// rejections.
func isRejection(err error) bool {
	return errors.Is(err, combat.ErrInsufficientResource) ||
		errors.Is(err, combat.ErrInvalidTarget) ||
		errors.Is(err, combat.ErrAbilityLocked)
}
