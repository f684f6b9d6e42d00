package ability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/darklord/internal/game/ability"
)

func TestLoadFromBytes(t *testing.T) {
	data := []byte(`
abilities:
  - id: saber_strike
    name: Saber Strike
    description: A basic lightsaber blow.
    fp_cost: 0
    damage: 2d6+3
    target: enemy
  - id: force_choke
    name: Force Choke
    fp_cost: 15
    damage: 1d8+4
    target: enemy
    requires_power: force_choke
    applies:
      - id: stunned
        stacks: 1
        duration: 1
        to_target: true
  - id: execute_spare
    name: Spare
    fp_cost: 0
    target: enemy
    finisher: spare
    tags: [merciful]
`)
	defs, err := ability.LoadFromBytes(data)
	require.NoError(t, err)
	require.Len(t, defs, 3)

	strike := defs[0]
	assert.Equal(t, 10, strike.ExpectedDamage(), "2d6+3 has mean 10")
	assert.Equal(t, "2d6+3", strike.DamageExpr().Raw)

	choke := defs[1]
	assert.Equal(t, "force_choke", choke.RequiresPower)
	require.Len(t, choke.Applies, 1)
	assert.True(t, choke.Applies[0].ToTarget)

	spare := defs[2]
	assert.Equal(t, ability.FinisherSpare, spare.Finisher)
	assert.True(t, spare.HasTag("merciful"))
	assert.False(t, spare.HasTag("excessive"))
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]*ability.Def{
		"missing name":    {ID: "x", Target: "enemy"},
		"bad target":      {ID: "x", Name: "X", Target: "room"},
		"negative cost":   {ID: "x", Name: "X", Target: "enemy", FPCost: -1},
		"bad damage":      {ID: "x", Name: "X", Target: "enemy", Damage: "2x6"},
		"bad finisher":    {ID: "x", Name: "X", Target: "enemy", Finisher: "slow"},
		"self finisher":   {ID: "x", Name: "X", Target: "self", Finisher: "quick"},
		"bad tier":        {ID: "x", Name: "X", Target: "enemy", MinSuitTier: 9},
		"zero stack buff": {ID: "x", Name: "X", Target: "self", Applies: []ability.AppliedStatus{{ID: "s"}}},
	}
	for name, def := range cases {
		assert.Error(t, def.Validate(), name)
	}
}

func TestRegistry(t *testing.T) {
	reg := ability.NewRegistry()
	def := &ability.Def{ID: "saber_strike", Name: "Saber Strike", Target: "enemy"}
	require.NoError(t, def.Validate())
	reg.Register(def)

	got, ok := reg.Get("saber_strike")
	require.True(t, ok)
	assert.Equal(t, "Saber Strike", got.Name)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}
