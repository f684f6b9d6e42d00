package encounter_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/darklord/internal/content"
	"github.com/cory-johannsen/darklord/internal/game/ability"
	"github.com/cory-johannsen/darklord/internal/game/combat"
	"github.com/cory-johannsen/darklord/internal/game/consequence"
	"github.com/cory-johannsen/darklord/internal/game/dice"
	"github.com/cory-johannsen/darklord/internal/game/encounter"
	"github.com/cory-johannsen/darklord/internal/game/session"
	"github.com/cory-johannsen/darklord/internal/game/status"
)

// fixedSource pins every die to the same face for deterministic resolution.
type fixedSource struct{ v int }

func (f fixedSource) Intn(n int) int {
	if f.v >= n {
		return n - 1
	}
	return f.v
}

// ctrl adapts funcs to the Controller interface.
type ctrl struct {
	choose func(enc *combat.Encounter, actor *combat.Combatant) (combat.ActionRequest, error)
	abort  func(enc *combat.Encounter) bool
}

func (c *ctrl) ChooseAction(enc *combat.Encounter, actor *combat.Combatant) (combat.ActionRequest, error) {
	return c.choose(enc, actor)
}

func (c *ctrl) ShouldAbort(enc *combat.Encounter) bool {
	if c.abort == nil {
		return false
	}
	return c.abort(enc)
}

// attackController always strikes the first living enemy.
func attackController() *ctrl {
	return &ctrl{choose: func(enc *combat.Encounter, actor *combat.Combatant) (combat.ActionRequest, error) {
		for _, c := range enc.Combatants {
			if c.Side == combat.SideEnemy && !c.IsOut() {
				return combat.ActionRequest{AbilityID: "saber_strike", TargetID: c.ID}, nil
			}
		}
		return combat.ActionRequest{}, nil
	}}
}

func testPack(t *testing.T) *content.Pack {
	t.Helper()

	abilities := ability.NewRegistry()
	for _, def := range []*ability.Def{
		{ID: "saber_strike", Name: "Saber Strike", Target: "enemy", Damage: "2d6+3"},
		{ID: "force_choke", Name: "Force Choke", Target: "enemy", Damage: "1d8+4", FPCost: 15, RequiresPower: "force_choke"},
		{ID: "tier_smash", Name: "Tier Smash", Target: "enemy", Damage: "3d6", MinSuitTier: 3},
		{ID: "execute_spare", Name: "Spare", Target: "enemy", Finisher: "spare", Tags: []string{"merciful"}},
		{ID: "execute_brutal", Name: "Brutal Execution", Target: "enemy", Finisher: "brutal", Tags: []string{"excessive"}},
		{ID: "blaster_shot", Name: "Blaster Shot", Target: "enemy", Damage: "1d6+1"},
		{ID: "jab", Name: "Saber Jab", Target: "enemy", Damage: "1d4"},
	} {
		require.NoError(t, def.Validate())
		abilities.Register(def)
	}

	statuses := status.NewRegistry()
	feared := &status.Def{ID: "feared", Name: "Feared", DurationType: "rounds", MaxStacks: 3, AttackPenalty: 1}
	require.NoError(t, feared.Validate())
	statuses.Register(feared)

	return &content.Pack{
		Version: "1.0.0",
		Policies: content.Policies{
			MinMissionsBetweenUpgrades: 3,
			BreakThreshold:             80,
			AIPriorityOrder:            []string{"saber_strike", "blaster_shot"},
			LoyaltyTestEncounter:       "loyalty_trial",
		},
		Tuning: combat.Tuning{},
		Protagonist: content.Protagonist{
			Name: "Vader", MaxHealth: 100, MaxFP: 50, FPRegen: 5, Speed: 12,
			TierHealthBonus: 10, TierFPBonus: 5,
			Abilities: []string{"saber_strike", "jab", "force_choke", "tier_smash", "execute_spare", "execute_brutal"},
		},
		Abilities: abilities,
		Statuses:  statuses,
		Enemies: map[string]*content.EnemyTemplate{
			"trooper": {ID: "trooper", Name: "Purge Trooper", EnemyType: "trooper",
				MaxHealth: 10, Speed: 2, Abilities: []string{"blaster_shot"}},
			"scout": {ID: "scout", Name: "Scout Trooper", EnemyType: "trooper",
				MaxHealth: 10, Speed: 20, Abilities: []string{"blaster_shot"}},
		},
		Encounters: map[string]*content.EncounterDef{
			"skirmish": {ID: "skirmish", Name: "Skirmish",
				Enemies:   []content.EnemySpawn{{Template: "trooper", Count: 1}},
				OnVictory: []consequence.Effect{{Target: consequence.FlagTarget("skirmish_won"), Delta: 1}}},
			"ambush": {ID: "ambush", Name: "Ambush",
				Enemies: []content.EnemySpawn{{Template: "scout", Count: 1}}},
			"loyalty_trial": {ID: "loyalty_trial", Name: "Loyalty Trial",
				Enemies: []content.EnemySpawn{{Template: "trooper", Count: 1}}},
		},
		Effects: &content.EffectTable{
			Outcomes: map[string][]consequence.Effect{
				"victory": {{Target: "darkness", Delta: 2}},
				"fled":    {{Target: "suppression", Delta: 5}},
			},
			Finishers: map[string][]consequence.Effect{
				"spare":  {{Target: "darkness", Delta: -2}, {Target: "control", Delta: 2}},
				"brutal": {{Target: "darkness", Delta: 5}},
			},
			Tags: map[string][]consequence.Effect{
				"merciful": {{Target: "suppression", Delta: 1}},
			},
			MissionOutcomes: []string{"victory"},
		},
	}
}

func newOrchestrator(t *testing.T, pack *content.Pack, src dice.Source) (*encounter.Orchestrator, *session.Playthrough) {
	t.Helper()
	logger := zap.NewNop()
	play := session.NewPlaythrough("pt-1", pack.Version, pack.ReplayParams(), logger)
	roller := dice.NewLoggedRoller(src, logger)
	return encounter.NewOrchestrator(pack, play, roller, logger), play
}

func TestStartEncounter_Unknown(t *testing.T) {
	o, _ := newOrchestrator(t, testPack(t), fixedSource{0})
	_, err := o.StartEncounter("missing")
	assert.ErrorIs(t, err, encounter.ErrUnknownEncounter)
}

func TestStartEncounter_GatesAbilities(t *testing.T) {
	pack := testPack(t)
	o, play := newOrchestrator(t, pack, fixedSource{0})

	run, err := o.StartEncounter("skirmish")
	require.NoError(t, err)

	var vader *combat.Combatant
	for _, c := range run.Enc.Combatants {
		if c.PlayerControlled {
			vader = c
		}
	}
	require.NotNil(t, vader)

	// Power-gated and tier-gated abilities are absent at tier 1 with no powers.
	assert.False(t, vader.HasAbility("force_choke"))
	assert.False(t, vader.HasAbility("tier_smash"))
	assert.True(t, vader.HasAbility("saber_strike"))
	assert.Equal(t, 100, vader.MaxHealth)

	// Unlock the power and advance to tier 3, then recompose.
	_, err = play.Commit("ritual", []consequence.Effect{
		{Target: consequence.PowerTarget("force_choke"), Delta: 1},
	})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = play.RequestSuitUpgrade("upgrade")
		require.NoError(t, err)
	}

	run, err = o.StartEncounter("skirmish")
	require.NoError(t, err)
	for _, c := range run.Enc.Combatants {
		if c.PlayerControlled {
			vader = c
		}
	}
	assert.True(t, vader.HasAbility("force_choke"))
	assert.True(t, vader.HasAbility("tier_smash"))
	assert.Equal(t, 120, vader.MaxHealth, "tier 3 adds two health bonuses")
	assert.Equal(t, 60, vader.MaxFP)
}

func TestDriveAndFinalize_Victory(t *testing.T) {
	pack := testPack(t)
	// fixedSource{5} pins 2d6+3 to 15, a one-shot on the 10-health trooper.
	o, play := newOrchestrator(t, pack, fixedSource{5})

	run, err := o.StartEncounter("skirmish")
	require.NoError(t, err)

	outcome, err := o.Drive(run, attackController())
	require.NoError(t, err)
	assert.Equal(t, combat.OutcomeVictory, outcome)

	rec, err := o.Finalize(run)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Seq, "exactly one record per completed encounter")

	snap := play.StatsSnapshot()
	assert.Equal(t, 2, snap.Darkness, "victory row from the effect table")
	assert.Equal(t, 1, play.ProgressionSnapshot().MissionsCompleted)
	assert.True(t, play.BranchAvailable("skirmish_won"))
}

func TestFinalize_SpareFinisher(t *testing.T) {
	pack := testPack(t)
	// fixedSource{0} pins the jab to 1 damage, whittling the trooper down to
	// the helpless window instead of killing outright.
	o, play := newOrchestrator(t, pack, fixedSource{0})

	run, err := o.StartEncounter("skirmish")
	require.NoError(t, err)

	spareWhenHelpless := &ctrl{choose: func(enc *combat.Encounter, actor *combat.Combatant) (combat.ActionRequest, error) {
		for _, c := range enc.Combatants {
			if c.Side != combat.SideEnemy || c.IsOut() {
				continue
			}
			if c.IsHelpless() {
				return combat.ActionRequest{AbilityID: "execute_spare", TargetID: c.ID}, nil
			}
			return combat.ActionRequest{AbilityID: "jab", TargetID: c.ID}, nil
		}
		return combat.ActionRequest{}, nil
	}}

	outcome, err := o.Drive(run, spareWhenHelpless)
	require.NoError(t, err)
	assert.Equal(t, combat.OutcomeVictory, outcome)

	_, err = o.Finalize(run)
	require.NoError(t, err)

	// Victory +2 darkness, spare finisher -2 darkness +2 control, merciful
	// tag +1 suppression.
	snap := play.StatsSnapshot()
	assert.Equal(t, 0, snap.Darkness)
	assert.Equal(t, 2, snap.Control)
	assert.Equal(t, 1, snap.Suppression)
}

func TestDrive_AbortAtRoundBoundary(t *testing.T) {
	pack := testPack(t)
	o, play := newOrchestrator(t, pack, fixedSource{0})

	run, err := o.StartEncounter("skirmish")
	require.NoError(t, err)

	fleeing := attackController()
	fleeing.abort = func(enc *combat.Encounter) bool { return true }

	outcome, err := o.Drive(run, fleeing)
	require.NoError(t, err)
	assert.Equal(t, combat.OutcomeFled, outcome)

	rec, err := o.Finalize(run)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Seq, "a fled encounter still commits its record")
	assert.Equal(t, 5, play.StatsSnapshot().Suppression)
	assert.Equal(t, 0, play.ProgressionSnapshot().MissionsCompleted, "fleeing completes no mission")
}

func TestDrive_BreakVariantRunsWithoutController(t *testing.T) {
	pack := testPack(t)
	o, play := newOrchestrator(t, pack, fixedSource{5})

	_, err := play.Commit("massacre", []consequence.Effect{
		{Target: "rage", Delta: 50},
		{Target: "suppression", Delta: 40},
	})
	require.NoError(t, err)
	require.True(t, play.BreakPending())

	run, err := o.StartEncounter("skirmish")
	require.NoError(t, err)
	assert.True(t, run.BreakVariant)
	assert.False(t, play.BreakPending(), "composing the variant acknowledges the latch")

	// No controller: the rage-driven protagonist is policy-run.
	outcome, err := o.Drive(run, nil)
	require.NoError(t, err)
	assert.Equal(t, combat.OutcomeVictory, outcome)
}

func TestFinalize_SuitDamageRidesTheRecord(t *testing.T) {
	pack := testPack(t)
	pack.Tuning.SuitDamageChance = 100
	pack.Tuning.SuitDamageAmount = 4
	// The scout outspeeds Vader and lands one hit before dying.
	o, play := newOrchestrator(t, pack, fixedSource{5})

	run, err := o.StartEncounter("ambush")
	require.NoError(t, err)

	outcome, err := o.Drive(run, attackController())
	require.NoError(t, err)
	assert.Equal(t, combat.OutcomeVictory, outcome)
	require.Equal(t, 4, run.Enc.SuitDamage)

	_, err = o.Finalize(run)
	require.NoError(t, err)
	assert.Equal(t, 96, play.ProgressionSnapshot().Integrity)
}

func TestFinalize_Guards(t *testing.T) {
	pack := testPack(t)
	o, _ := newOrchestrator(t, pack, fixedSource{5})

	run, err := o.StartEncounter("skirmish")
	require.NoError(t, err)

	_, err = o.Finalize(run)
	assert.ErrorIs(t, err, encounter.ErrNotTerminal)

	_, err = o.Drive(run, attackController())
	require.NoError(t, err)
	_, err = o.Finalize(run)
	require.NoError(t, err)

	_, err = o.Finalize(run)
	assert.ErrorIs(t, err, encounter.ErrAlreadyFinalized)
}

func TestScheduleLoyaltyTest(t *testing.T) {
	pack := testPack(t)
	o, play := newOrchestrator(t, pack, fixedSource{5})

	// Two upgrades with no missions in between trip the velocity check.
	_, err := play.RequestSuitUpgrade("upgrade_1")
	require.NoError(t, err)
	dec, err := play.RequestSuitUpgrade("upgrade_2")
	require.NoError(t, err)
	require.True(t, dec.TriggersLoyaltyTest)

	assert.True(t, o.ScheduleLoyaltyTest())
	id, ok := o.NextQueued()
	require.True(t, ok)
	assert.Equal(t, "loyalty_trial", id)

	_, ok = o.NextQueued()
	assert.False(t, ok)
	assert.False(t, o.ScheduleLoyaltyTest(), "the pending flag was consumed")
}

func TestHookEffectsFoldIntoRecord(t *testing.T) {
	pack := testPack(t)
	hookDir := t.TempDir()
	hook := `
function on_ability_use(e)
  if e.killed then
    return {{target = "darkness", delta = 3}}
  end
end
`
	require.NoError(t, os.WriteFile(filepath.Join(hookDir, "kills.lua"), []byte(hook), 0o644))
	pack.HookDir = hookDir
	pack.Encounters["skirmish"].Hooks = []string{"kills.lua"}

	o, play := newOrchestrator(t, pack, fixedSource{5})

	run, err := o.StartEncounter("skirmish")
	require.NoError(t, err)
	_, err = o.Drive(run, attackController())
	require.NoError(t, err)
	_, err = o.Finalize(run)
	require.NoError(t, err)

	// Victory row +2 plus the hook's kill reaction +3.
	assert.Equal(t, 5, play.StatsSnapshot().Darkness)
}
