// Package progression tracks the protagonist's equipment tier, unlocked Force
// powers, suit integrity, and the upgrade-velocity policy that feeds the
// loyalty-suspicion mechanic.
package progression

import (
	"fmt"
	"sort"

	"github.com/cory-johannsen/darklord/internal/game/stats"
)

// SuitTier is the protagonist's armor tier.
//
// Invariant: valid tiers are 1..MaxSuitTier and a ledger's tier is
// monotonically non-decreasing, advancing by exactly 1 per granted upgrade.
type SuitTier int

// MaxSuitTier is the highest reachable suit tier.
const MaxSuitTier SuitTier = 5

// IntegrityMax is the inclusive upper bound for suit integrity.
const IntegrityMax = 100

// VelocityPolicy holds the content-configured upgrade pacing constants.
type VelocityPolicy struct {
	// MinMissionsBetweenUpgrades is the number of missions expected between
	// tier upgrades. Upgrading earlier is allowed but flags a loyalty test.
	MinMissionsBetweenUpgrades int
}

// UpgradeDecision is the result of a RequestUpgrade call.
type UpgradeDecision struct {
	// Granted is false only when the tier is already at MaxSuitTier.
	Granted bool
	// TriggersLoyaltyTest is true when the upgrade velocity violated the
	// policy minimum interval. Fast upgrades are penalized, never blocked.
	TriggersLoyaltyTest bool
}

// Ledger tracks tier, powers, and mission pacing for one playthrough.
//
// Ledger is not safe for concurrent use; the session layer serialises access.
// Every mutation rederives the profile's loyalty-suspicion score.
type Ledger struct {
	profile *stats.Profile
	policy  VelocityPolicy

	tier                 SuitTier
	integrity            int
	powers               map[string]bool
	missionsCompleted    int
	missionsSinceUpgrade int
	loyaltyTestPending   bool
}

// NewLedger creates a tier-1 ledger bound to the given profile and policy.
//
// Precondition: profile must be non-nil.
func NewLedger(profile *stats.Profile, policy VelocityPolicy) *Ledger {
	if profile == nil {
		panic("progression: NewLedger requires a non-nil profile")
	}
	l := &Ledger{
		profile:   profile,
		policy:    policy,
		tier:      1,
		integrity: IntegrityMax,
		powers:    make(map[string]bool),
		// A fresh playthrough starts outside the velocity window so the
		// first upgrade is only suspicious if content makes it so.
		missionsSinceUpgrade: policy.MinMissionsBetweenUpgrades,
	}
	l.recompute()
	return l
}

// SuitTier returns the current tier.
func (l *Ledger) SuitTier() SuitTier { return l.tier }

// Integrity returns the current suit integrity in [0, IntegrityMax].
func (l *Ledger) Integrity() int { return l.integrity }

// MissionsCompleted returns the total missions recorded this playthrough.
func (l *Ledger) MissionsCompleted() int { return l.missionsCompleted }

// MissionsSinceUpgrade returns the mission count since the last tier upgrade.
func (l *Ledger) MissionsSinceUpgrade() int { return l.missionsSinceUpgrade }

// RequestUpgrade attempts to advance the suit tier by one.
//
// Postcondition: Granted is false only at MaxSuitTier (state unchanged).
// Otherwise the tier advances by exactly 1, the mission window resets, and
// TriggersLoyaltyTest reports whether the window was violated (strict
// less-than against the policy minimum).
func (l *Ledger) RequestUpgrade() UpgradeDecision {
	if l.tier >= MaxSuitTier {
		return UpgradeDecision{Granted: false}
	}

	triggers := l.missionsSinceUpgrade < l.policy.MinMissionsBetweenUpgrades

	l.tier++
	l.missionsSinceUpgrade = 0
	if triggers {
		l.loyaltyTestPending = true
	}
	l.recompute()

	return UpgradeDecision{Granted: true, TriggersLoyaltyTest: triggers}
}

// AdvanceTierTo is the replay-only tier mutation. It enforces the
// no-skip invariant: anything other than current+1 is a programmer error.
//
// Precondition: t == SuitTier()+1 and t <= MaxSuitTier; panics otherwise.
func (l *Ledger) AdvanceTierTo(t SuitTier) {
	if t != l.tier+1 || t > MaxSuitTier {
		panic(fmt.Sprintf("progression: tier skip attempt: %d -> %d", l.tier, t))
	}
	l.tier = t
	l.missionsSinceUpgrade = 0
	l.recompute()
}

// UnlockPower adds a Force power to the unlocked set. Re-unlocking is a no-op.
func (l *Ledger) UnlockPower(id string) {
	l.powers[id] = true
	l.recompute()
}

// HasPower reports whether the given Force power is unlocked.
func (l *Ledger) HasPower(id string) bool { return l.powers[id] }

// Powers returns the unlocked power ids in sorted order. Insertion order is
// irrelevant to the set; sorting keeps snapshots and logs deterministic.
func (l *Ledger) Powers() []string {
	out := make([]string, 0, len(l.powers))
	for id := range l.powers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CompleteMission records one finished mission, widening the upgrade window.
func (l *Ledger) CompleteMission() {
	l.missionsCompleted++
	l.missionsSinceUpgrade++
	l.recompute()
}

// ApplyIntegrityDelta shifts suit integrity by amount, clamped to
// [0, IntegrityMax], and returns the new value.
func (l *Ledger) ApplyIntegrityDelta(amount int) int {
	l.integrity += amount
	if l.integrity < 0 {
		l.integrity = 0
	}
	if l.integrity > IntegrityMax {
		l.integrity = IntegrityMax
	}
	l.recompute()
	return l.integrity
}

// FlagLoyaltyTest marks a pending loyalty-test encounter. The session layer
// calls this when a committed upgrade record violated the velocity window;
// the flag is orchestration state and is not rebuilt by replay.
func (l *Ledger) FlagLoyaltyTest() { l.loyaltyTestPending = true }

// LoyaltyTestPending reports whether a velocity violation has flagged a
// mandatory loyalty-test encounter that has not yet been scheduled.
func (l *Ledger) LoyaltyTestPending() bool { return l.loyaltyTestPending }

// ConsumeLoyaltyTest clears the pending flag and reports whether it was set.
// The orchestrator calls this when it enqueues the test encounter.
func (l *Ledger) ConsumeLoyaltyTest() bool {
	pending := l.loyaltyTestPending
	l.loyaltyTestPending = false
	return pending
}

// Snapshot is an immutable copy of the ledger state.
type Snapshot struct {
	SuitTier             SuitTier
	Integrity            int
	Powers               []string
	MissionsCompleted    int
	MissionsSinceUpgrade int
	LoyaltyTestPending   bool
}

// Snapshot returns an immutable copy of the ledger state.
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{
		SuitTier:             l.tier,
		Integrity:            l.integrity,
		Powers:               l.Powers(),
		MissionsCompleted:    l.missionsCompleted,
		MissionsSinceUpgrade: l.missionsSinceUpgrade,
		LoyaltyTestPending:   l.loyaltyTestPending,
	}
}

func (l *Ledger) recompute() {
	l.profile.RecomputeSuspicion(l.missionsSinceUpgrade, l.policy.MinMissionsBetweenUpgrades)
}
