package progression_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/darklord/internal/game/progression"
	"github.com/cory-johannsen/darklord/internal/game/stats"
)

func newLedger(minMissions int) *progression.Ledger {
	return progression.NewLedger(
		stats.NewProfile(0),
		progression.VelocityPolicy{MinMissionsBetweenUpgrades: minMissions},
	)
}

func TestRequestUpgrade_SpecScenario(t *testing.T) {
	// Tier 2, 0 missions since last upgrade, minimum interval 3:
	// upgrade is granted but flags the loyalty test.
	l := newLedger(3)
	d := l.RequestUpgrade()
	require.True(t, d.Granted)
	require.Equal(t, progression.SuitTier(2), l.SuitTier())

	d = l.RequestUpgrade()
	assert.True(t, d.Granted)
	assert.True(t, d.TriggersLoyaltyTest)
	assert.Equal(t, progression.SuitTier(3), l.SuitTier())
	assert.True(t, l.LoyaltyTestPending())
}

func TestRequestUpgrade_PatientUpgradeIsClean(t *testing.T) {
	l := newLedger(3)
	for i := 0; i < 3; i++ {
		l.CompleteMission()
	}
	d := l.RequestUpgrade()
	assert.True(t, d.Granted)
	assert.False(t, d.TriggersLoyaltyTest)
	assert.False(t, l.LoyaltyTestPending())
}

func TestRequestUpgrade_ExactIntervalIsNotAViolation(t *testing.T) {
	// The velocity comparison is strictly less-than.
	l := newLedger(2)
	l.RequestUpgrade() // tier 2, window reset
	l.CompleteMission()
	l.CompleteMission()
	d := l.RequestUpgrade()
	assert.True(t, d.Granted)
	assert.False(t, d.TriggersLoyaltyTest)
}

func TestRequestUpgrade_DeniedAtMaxTier(t *testing.T) {
	l := newLedger(0)
	for l.SuitTier() < progression.MaxSuitTier {
		require.True(t, l.RequestUpgrade().Granted)
	}
	d := l.RequestUpgrade()
	assert.False(t, d.Granted)
	assert.Equal(t, progression.MaxSuitTier, l.SuitTier())
}

func TestTier_MonotoneAndStepwiseProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := newLedger(rapid.IntRange(0, 5).Draw(t, "min_missions"))
		prev := l.SuitTier()

		n := rapid.IntRange(1, 30).Draw(t, "ops")
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(t, "mission_or_upgrade") {
				l.CompleteMission()
			} else {
				d := l.RequestUpgrade()
				if d.Granted {
					require.Equal(t, prev+1, l.SuitTier())
				} else {
					require.Equal(t, progression.MaxSuitTier, l.SuitTier())
				}
			}
			require.GreaterOrEqual(t, l.SuitTier(), prev)
			prev = l.SuitTier()
		}
	})
}

func TestAdvanceTierTo_PanicsOnSkip(t *testing.T) {
	l := newLedger(3)
	assert.Panics(t, func() { l.AdvanceTierTo(4) })
	assert.Panics(t, func() { l.AdvanceTierTo(1) })
	assert.NotPanics(t, func() { l.AdvanceTierTo(2) })
}

func TestPowers(t *testing.T) {
	l := newLedger(3)
	assert.False(t, l.HasPower("force_choke"))

	l.UnlockPower("force_choke")
	l.UnlockPower("saber_throw")
	l.UnlockPower("force_choke") // idempotent

	assert.True(t, l.HasPower("force_choke"))
	assert.Equal(t, []string{"force_choke", "saber_throw"}, l.Powers())
}

func TestIntegrity_Clamps(t *testing.T) {
	l := newLedger(3)
	assert.Equal(t, 0, l.ApplyIntegrityDelta(-500))
	assert.Equal(t, progression.IntegrityMax, l.ApplyIntegrityDelta(1000))
	assert.Equal(t, 90, l.ApplyIntegrityDelta(-10))
}

func TestUpgradeVelocity_FeedsSuspicion(t *testing.T) {
	profile := stats.NewProfile(0)
	l := progression.NewLedger(profile, progression.VelocityPolicy{MinMissionsBetweenUpgrades: 3})
	require.Equal(t, 0, profile.LoyaltySuspicion())

	// Immediate upgrade: three missions short of the window.
	l.RequestUpgrade()
	assert.Equal(t, 30, profile.LoyaltySuspicion())

	l.CompleteMission()
	assert.Equal(t, 20, profile.LoyaltySuspicion())
}
