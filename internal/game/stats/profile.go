// Package stats implements the protagonist's psychological profile: four
// bounded axes whose only mutation path is clamped deltas, plus the derived
// loyalty-suspicion score and the rage/suppression break condition.
package stats

import "fmt"

// Axis identifies one of the four psychological axes.
// The zero value (AxisUnknown) is intentionally invalid.
type Axis int

const (
	AxisUnknown Axis = iota // zero value; intentionally invalid
	Darkness
	Control
	Rage
	Suppression
)

// String returns the lower-case axis name used in content files and records.
func (a Axis) String() string {
	switch a {
	case Darkness:
		return "darkness"
	case Control:
		return "control"
	case Rage:
		return "rage"
	case Suppression:
		return "suppression"
	default:
		return "unknown"
	}
}

// ParseAxis resolves a content-file axis name to an Axis.
//
// Postcondition: Returns a valid Axis, or (AxisUnknown, error) for unknown names.
func ParseAxis(name string) (Axis, error) {
	switch name {
	case "darkness":
		return Darkness, nil
	case "control":
		return Control, nil
	case "rage":
		return Rage, nil
	case "suppression":
		return Suppression, nil
	default:
		return AxisUnknown, fmt.Errorf("stats: unknown axis %q", name)
	}
}

// AxisMax is the inclusive upper bound for every axis value.
const AxisMax = 100

// Snapshot is an immutable copy of a Profile's state.
type Snapshot struct {
	Darkness         int
	Control          int
	Rage             int
	Suppression      int
	LoyaltySuspicion int
	BreakPending     bool
}

// Profile holds the four axes and their derived values.
//
// Invariant: every axis stays within [0, AxisMax] across all mutations.
// Profile is not safe for concurrent use; the session layer serialises access.
type Profile struct {
	darkness    int
	control     int
	rage        int
	suppression int

	// breakThreshold is the combined rage+suppression load above which the
	// break condition latches.
	breakThreshold int
	breakPending   bool

	// loyaltySuspicion is derived from upgrade velocity and darkness; it is
	// recomputed by the progression ledger on every ledger mutation.
	loyaltySuspicion int
}

// DefaultBreakThreshold is the combined rage+suppression load above which the
// protagonist breaks, used when content supplies no override.
const DefaultBreakThreshold = 80

// NewProfile creates a zeroed Profile with the given combined break threshold.
// A threshold <= 0 uses DefaultBreakThreshold.
func NewProfile(breakThreshold int) *Profile {
	if breakThreshold <= 0 {
		breakThreshold = DefaultBreakThreshold
	}
	return &Profile{breakThreshold: breakThreshold}
}

// clamp bounds v to [0, AxisMax].
func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > AxisMax {
		return AxisMax
	}
	return v
}

// ApplyDelta shifts the given axis by amount, clamping to [0, AxisMax], and
// returns the new value. Clamping is silent and total; no delta can fail.
// Crossing the break threshold latches the break flag as a side effect.
//
// Precondition: axis must be a valid Axis; panics on AxisUnknown since effect
// targets are validated at append time and an invalid axis here is a bug.
func (p *Profile) ApplyDelta(axis Axis, amount int) int {
	var v int
	switch axis {
	case Darkness:
		p.darkness = clamp(p.darkness + amount)
		v = p.darkness
	case Control:
		p.control = clamp(p.control + amount)
		v = p.control
	case Rage:
		p.rage = clamp(p.rage + amount)
		v = p.rage
	case Suppression:
		p.suppression = clamp(p.suppression + amount)
		v = p.suppression
	default:
		panic("stats: ApplyDelta called with invalid axis")
	}

	if p.CheckBreakCondition() {
		p.breakPending = true
	}
	return v
}

// Value returns the current value of the given axis.
func (p *Profile) Value(axis Axis) int {
	switch axis {
	case Darkness:
		return p.darkness
	case Control:
		return p.control
	case Rage:
		return p.rage
	case Suppression:
		return p.suppression
	default:
		panic("stats: Value called with invalid axis")
	}
}

// CheckBreakCondition reports whether the combined rage+suppression load
// currently exceeds the break threshold. It does not consume the latch.
func (p *Profile) CheckBreakCondition() bool {
	return p.rage+p.suppression > p.breakThreshold
}

// BreakPending reports whether a break event has latched and not yet been
// acknowledged by the orchestrator.
func (p *Profile) BreakPending() bool { return p.breakPending }

// AcknowledgeBreak clears the break latch. Called by the orchestrator once it
// has forced the rage-driven encounter variant.
func (p *Profile) AcknowledgeBreak() { p.breakPending = false }

// LoyaltySuspicion returns the current derived suspicion score.
func (p *Profile) LoyaltySuspicion() int { return p.loyaltySuspicion }

// RecomputeSuspicion rederives the loyalty-suspicion score from upgrade
// velocity and darkness. The progression ledger calls this on every mutation.
//
// The score is half the darkness axis plus a velocity penalty that grows the
// further the last upgrade fell inside the policy minimum interval, clamped
// to [0, AxisMax].
func (p *Profile) RecomputeSuspicion(missionsSinceUpgrade, minMissionsBetweenUpgrades int) int {
	penalty := 0
	if missionsSinceUpgrade < minMissionsBetweenUpgrades {
		penalty = (minMissionsBetweenUpgrades - missionsSinceUpgrade) * 10
	}
	p.loyaltySuspicion = clamp(p.darkness/2 + penalty)
	return p.loyaltySuspicion
}

// Snapshot returns an immutable copy of the profile state.
func (p *Profile) Snapshot() Snapshot {
	return Snapshot{
		Darkness:         p.darkness,
		Control:          p.control,
		Rage:             p.rage,
		Suppression:      p.suppression,
		LoyaltySuspicion: p.loyaltySuspicion,
		BreakPending:     p.breakPending,
	}
}
