package dice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/darklord/internal/game/dice"
)

func TestParse_Basic(t *testing.T) {
	e, err := dice.Parse("2d6+3")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Count)
	assert.Equal(t, 6, e.Sides)
	assert.Equal(t, 3, e.Modifier)
	assert.Equal(t, "2d6+3", e.Raw)
}

func TestParse_ImplicitCount(t *testing.T) {
	e, err := dice.Parse("d20")
	require.NoError(t, err)
	assert.Equal(t, 1, e.Count)
	assert.Equal(t, 20, e.Sides)
	assert.Equal(t, 0, e.Modifier)
}

func TestParse_NegativeModifier(t *testing.T) {
	e, err := dice.Parse("4d8-2")
	require.NoError(t, err)
	assert.Equal(t, 4, e.Count)
	assert.Equal(t, 8, e.Sides)
	assert.Equal(t, -2, e.Modifier)
}

func TestParse_Errors(t *testing.T) {
	for _, expr := range []string{"", "20", "0d6", "2d1", "2dx", "xd6", "2d6+y"} {
		_, err := dice.Parse(expr)
		assert.Error(t, err, "expression %q should not parse", expr)
	}
}

func TestRoll_SeededIsDeterministic(t *testing.T) {
	expr := dice.MustParse("3d6+2")

	a := dice.Roll(expr, dice.NewSeededSource(42))
	b := dice.Roll(expr, dice.NewSeededSource(42))
	assert.Equal(t, a, b)
}

func TestRoll_BoundsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(1, 10).Draw(t, "count")
		sides := rapid.IntRange(2, 20).Draw(t, "sides")
		mod := rapid.IntRange(-5, 5).Draw(t, "mod")
		seed := rapid.Int64().Draw(t, "seed")

		expr := dice.Expression{Raw: "x", Count: count, Sides: sides, Modifier: mod}
		r := dice.Roll(expr, dice.NewSeededSource(seed))

		require.Len(t, r.Dice, count)
		for _, d := range r.Dice {
			require.GreaterOrEqual(t, d, 1)
			require.LessOrEqual(t, d, sides)
		}
		require.Equal(t, sum(r.Dice)+mod, r.Total())
	})
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}

func TestRollExpr_ParseError(t *testing.T) {
	_, err := dice.RollExpr("bogus", dice.NewSeededSource(1))
	assert.Error(t, err)
}
