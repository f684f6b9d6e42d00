// Package consequence implements the append-only record log that is the
// single source of truth for a playthrough. The psychological profile and the
// progression ledger are derived caches: replaying the full record sequence
// from empty state reproduces them exactly, which is also how saves work.
package consequence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cory-johannsen/darklord/internal/game/progression"
	"github.com/cory-johannsen/darklord/internal/game/stats"
)

// ErrInvalidEffectTarget is returned by Append when a record references an
// unknown axis or flag, or carries a delta the target cannot accept.
var ErrInvalidEffectTarget = errors.New("invalid effect target")

// ErrVersionMismatch is returned when a save's content version does not match
// the loaded content pack. Loading never proceeds partially.
var ErrVersionMismatch = errors.New("content version mismatch")

// Effect target prefixes and literals recognised in records. Axis targets use
// the stats axis names directly.
const (
	TargetSuitTier      = "suit_tier"
	TargetSuitIntegrity = "suit_integrity"
	TargetMissions      = "missions"
	powerPrefix         = "power:"
	flagPrefix          = "flag:"
)

// PowerTarget builds the effect target that unlocks a Force power.
func PowerTarget(id string) string { return powerPrefix + id }

// FlagTarget builds the effect target that raises a narrative branch flag.
func FlagTarget(id string) string { return flagPrefix + id }

// Effect is one (target, delta) pair inside a record.
type Effect struct {
	Target string `json:"target" yaml:"target"`
	Delta  int    `json:"delta" yaml:"delta"`
}

// Validate checks that the effect references a known target and carries a
// delta that target accepts.
func (e Effect) Validate() error {
	switch {
	case e.Target == TargetSuitTier:
		if e.Delta != 1 {
			return fmt.Errorf("%w: suit_tier delta must be exactly 1, got %d", ErrInvalidEffectTarget, e.Delta)
		}
	case e.Target == TargetSuitIntegrity:
		// any delta; clamped on application
	case e.Target == TargetMissions:
		if e.Delta < 1 {
			return fmt.Errorf("%w: missions delta must be >= 1, got %d", ErrInvalidEffectTarget, e.Delta)
		}
	case strings.HasPrefix(e.Target, powerPrefix):
		if e.Target == powerPrefix {
			return fmt.Errorf("%w: empty power id", ErrInvalidEffectTarget)
		}
		if e.Delta != 1 {
			return fmt.Errorf("%w: power unlock delta must be exactly 1, got %d", ErrInvalidEffectTarget, e.Delta)
		}
	case strings.HasPrefix(e.Target, flagPrefix):
		if e.Target == flagPrefix {
			return fmt.Errorf("%w: empty flag id", ErrInvalidEffectTarget)
		}
		if e.Delta == 0 {
			return fmt.Errorf("%w: flag delta must be non-zero", ErrInvalidEffectTarget)
		}
	default:
		if _, err := stats.ParseAxis(e.Target); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidEffectTarget, e.Target)
		}
	}
	return nil
}

// Record is one immutable, appended unit of committed consequence.
// Seq is assigned by the graph at append time; replay keys off Seq order only.
type Record struct {
	ID            string   `json:"id" yaml:"id"`
	SourceEventID string   `json:"source_event_id" yaml:"source_event_id"`
	Seq           int      `json:"seq" yaml:"seq"`
	Effects       []Effect `json:"effects" yaml:"effects"`
}

// Validate checks every effect in the record. A record with no effects is
// valid: a fled encounter still commits an (empty) record.
func (r Record) Validate() error {
	for _, e := range r.Effects {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplyRecord folds one record's effects into the profile and ledger.
// It is the single application path shared by live appends and replay,
// which is what makes replay reproduce live state exactly.
//
// Precondition: r must have passed Validate; p and l must be non-nil.
func ApplyRecord(p *stats.Profile, l *progression.Ledger, r Record) {
	for _, e := range r.Effects {
		switch {
		case e.Target == TargetSuitTier:
			l.AdvanceTierTo(l.SuitTier() + 1)
		case e.Target == TargetSuitIntegrity:
			l.ApplyIntegrityDelta(e.Delta)
		case e.Target == TargetMissions:
			for i := 0; i < e.Delta; i++ {
				l.CompleteMission()
			}
		case strings.HasPrefix(e.Target, powerPrefix):
			l.UnlockPower(strings.TrimPrefix(e.Target, powerPrefix))
		case strings.HasPrefix(e.Target, flagPrefix):
			// Branch flags live on the graph, not the derived caches.
		default:
			axis, err := stats.ParseAxis(e.Target)
			if err != nil {
				panic("consequence: ApplyRecord on unvalidated record: " + err.Error())
			}
			p.ApplyDelta(axis, e.Delta)
		}
	}
}
