package status_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/darklord/internal/game/status"
)

var (
	feared = &status.Def{
		ID: "feared", Name: "Feared", DurationType: status.DurationRounds,
		MaxStacks: 3, AttackPenalty: 2,
	}
	exhausted = &status.Def{
		ID: "exhausted", Name: "Force Exhaustion", DurationType: status.DurationRounds,
		FPRegenPenalty: 5,
	}
	stunned = &status.Def{
		ID: "stunned", Name: "Stunned", DurationType: status.DurationRounds,
		SkipTurn: true,
	}
	broken = &status.Def{
		ID: "suit_breach", Name: "Suit Breach", DurationType: status.DurationPermanent,
		FPRegenPenalty: 3,
	}
)

func TestApply_StacksAndCaps(t *testing.T) {
	s := status.NewSet()
	require.NoError(t, s.Apply(feared, 2, 2))
	assert.Equal(t, 2, s.Stacks("feared"))

	require.NoError(t, s.Apply(feared, 5, 1))
	assert.Equal(t, 3, s.Stacks("feared"), "stacks cap at MaxStacks")
	assert.Equal(t, 6, s.AttackPenalty())
}

func TestApply_UnstackableStaysAtOne(t *testing.T) {
	s := status.NewSet()
	require.NoError(t, s.Apply(exhausted, 4, 2))
	assert.Equal(t, 1, s.Stacks("exhausted"))

	require.NoError(t, s.Apply(exhausted, 1, 5))
	assert.Equal(t, 1, s.Stacks("exhausted"))
	assert.Equal(t, 5, s.FPRegenPenalty())
}

func TestTick_ExpiresRoundsOnly(t *testing.T) {
	s := status.NewSet()
	require.NoError(t, s.Apply(feared, 1, 1))
	require.NoError(t, s.Apply(broken, 1, -1))

	expired := s.Tick()
	assert.Equal(t, []string{"feared"}, expired)
	assert.False(t, s.Has("feared"))
	assert.True(t, s.Has("suit_breach"), "permanent statuses never expire")
}

func TestTick_MultiRoundDuration(t *testing.T) {
	s := status.NewSet()
	require.NoError(t, s.Apply(stunned, 1, 2))

	assert.Empty(t, s.Tick())
	assert.True(t, s.SkipsTurn())
	assert.Equal(t, []string{"stunned"}, s.Tick())
	assert.False(t, s.SkipsTurn())
}

func TestSkipsTurnPermanently(t *testing.T) {
	s := status.NewSet()
	assert.False(t, s.SkipsTurnPermanently())

	// A rounds-typed stun with finite duration can expire.
	require.NoError(t, s.Apply(stunned, 1, 2))
	assert.True(t, s.SkipsTurn())
	assert.False(t, s.SkipsTurnPermanently())

	// A permanent skip, or a rounds-typed one applied with duration -1,
	// never will.
	petrified := &status.Def{
		ID: "petrified", Name: "Petrified", DurationType: status.DurationPermanent,
		SkipTurn: true,
	}
	require.NoError(t, petrified.Validate())
	require.NoError(t, s.Apply(petrified, 1, -1))
	assert.True(t, s.SkipsTurnPermanently())

	s2 := status.NewSet()
	require.NoError(t, s2.Apply(stunned, 1, -1))
	assert.True(t, s2.SkipsTurnPermanently())

	// A permanent status that does not skip turns is not a lockout.
	s3 := status.NewSet()
	require.NoError(t, s3.Apply(broken, 1, -1))
	assert.False(t, s3.SkipsTurnPermanently())
}

func TestApply_ExtendsDuration(t *testing.T) {
	s := status.NewSet()
	require.NoError(t, s.Apply(feared, 1, 1))
	require.NoError(t, s.Apply(feared, 1, 3))

	assert.Empty(t, s.Tick())
	assert.Empty(t, s.Tick())
	assert.True(t, s.Has("feared"))
}

func TestLoadFromBytes(t *testing.T) {
	data := []byte(`
statuses:
  - id: feared
    name: Feared
    description: Shaken by a display of brutality.
    duration_type: rounds
    max_stacks: 3
    attack_penalty: 2
  - id: suit_breach
    name: Suit Breach
    duration_type: permanent
    fp_regen_penalty: 3
`)
	defs, err := status.LoadFromBytes(data)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "feared", defs[0].ID)
	assert.Equal(t, 3, defs[1].FPRegenPenalty)
}

func TestLoadFromBytes_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad duration": `
statuses:
  - id: x
    name: X
    duration_type: forever
`,
		"missing id": `
statuses:
  - name: X
    duration_type: rounds
`,
		"duplicate id": `
statuses:
  - id: x
    name: X
    duration_type: rounds
  - id: x
    name: X2
    duration_type: rounds
`,
		"unknown field": `
statuses:
  - id: x
    name: X
    duration_type: rounds
    lua_on_apply: nope
`,
	}
	for name, data := range cases {
		_, err := status.LoadFromBytes([]byte(data))
		assert.Error(t, err, name)
	}
}
