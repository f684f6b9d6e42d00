// Package session owns the live state of one playthrough: the consequence
// graph plus the derived profile and ledger caches. All mutation funnels
// through record commits under a single lock, so the graph stays the sole
// source of truth.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/darklord/internal/game/consequence"
	"github.com/cory-johannsen/darklord/internal/game/progression"
	"github.com/cory-johannsen/darklord/internal/game/stats"
)

// Playthrough binds a consequence graph to its derived caches and serialises
// all writes.
//
// Invariant: every state change flows through a committed record; the live
// profile and ledger always equal what Replay over the graph would produce
// (loyalty-test pending excepted, which is transient orchestration state).
type Playthrough struct {
	mu sync.Mutex

	id     string
	logger *zap.Logger

	graph   *consequence.Graph
	profile *stats.Profile
	ledger  *progression.Ledger
	params  consequence.ReplayParams
}

// NewPlaythrough creates a fresh playthrough against the given content version.
//
// Precondition: id non-empty; logger non-nil.
func NewPlaythrough(id, contentVersion string, params consequence.ReplayParams, logger *zap.Logger) *Playthrough {
	profile := stats.NewProfile(params.BreakThreshold)
	return &Playthrough{
		id:      id,
		logger:  logger,
		graph:   consequence.NewGraph(contentVersion, params),
		profile: profile,
		ledger:  progression.NewLedger(profile, params.Velocity),
		params:  params,
	}
}

// Load restores a playthrough from a save produced by Save.
//
// Postcondition: returns consequence.ErrVersionMismatch when the save was
// recorded against a different content version; no partial load occurs. The
// derived caches are rebuilt by replaying the restored record sequence.
func Load(id string, data []byte, contentVersion string, params consequence.ReplayParams, logger *zap.Logger) (*Playthrough, error) {
	graph, err := consequence.Unmarshal(data, contentVersion, params)
	if err != nil {
		return nil, fmt.Errorf("loading playthrough %q: %w", id, err)
	}
	profile, ledger := graph.Replay()
	logger.Info("playthrough restored",
		zap.String("playthrough_id", id),
		zap.Int("records", graph.Len()),
		zap.String("content_version", contentVersion),
	)
	return &Playthrough{
		id:      id,
		logger:  logger,
		graph:   graph,
		profile: profile,
		ledger:  ledger,
		params:  params,
	}, nil
}

// ID returns the playthrough identifier.
func (p *Playthrough) ID() string { return p.id }

// ContentVersion returns the content pack version the graph is pinned to.
func (p *Playthrough) ContentVersion() string { return p.graph.ContentVersion() }

// Commit validates and appends a record carrying the given effects, then folds
// it into the live caches.
//
// Postcondition: on error the graph and caches are unchanged; on success the
// returned record carries its assigned sequence number and id.
func (p *Playthrough) Commit(sourceEventID string, effects []consequence.Effect) (consequence.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commitLocked(sourceEventID, effects)
}

func (p *Playthrough) commitLocked(sourceEventID string, effects []consequence.Effect) (consequence.Record, error) {
	rec := consequence.Record{
		ID:            uuid.NewString(),
		SourceEventID: sourceEventID,
		Effects:       effects,
	}
	committed, err := p.graph.Append(rec)
	if err != nil {
		return consequence.Record{}, fmt.Errorf("committing record for event %q: %w", sourceEventID, err)
	}
	consequence.ApplyRecord(p.profile, p.ledger, committed)

	p.logger.Info("record committed",
		zap.String("playthrough_id", p.id),
		zap.String("record_id", committed.ID),
		zap.String("source_event_id", sourceEventID),
		zap.Int("seq", committed.Seq),
		zap.Int("effects", len(committed.Effects)),
	)
	return committed, nil
}

// RequestSuitUpgrade commits a tier-advance record if one is available.
//
// Postcondition: denial (Granted false) happens only at the maximum tier and
// commits nothing. A granted upgrade advances the tier by exactly one; a
// velocity violation additionally flags a loyalty test, never a block.
func (p *Playthrough) RequestSuitUpgrade(sourceEventID string) (progression.UpgradeDecision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ledger.SuitTier() >= progression.MaxSuitTier {
		return progression.UpgradeDecision{Granted: false}, nil
	}

	triggers := p.ledger.MissionsSinceUpgrade() < p.params.Velocity.MinMissionsBetweenUpgrades

	if _, err := p.commitLocked(sourceEventID, []consequence.Effect{
		{Target: consequence.TargetSuitTier, Delta: 1},
	}); err != nil {
		return progression.UpgradeDecision{}, err
	}
	if triggers {
		p.ledger.FlagLoyaltyTest()
		p.logger.Warn("upgrade velocity violation",
			zap.String("playthrough_id", p.id),
			zap.Int("suit_tier", int(p.ledger.SuitTier())),
		)
	}
	return progression.UpgradeDecision{Granted: true, TriggersLoyaltyTest: triggers}, nil
}

// StatsSnapshot returns the current psychological profile.
func (p *Playthrough) StatsSnapshot() stats.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profile.Snapshot()
}

// ProgressionSnapshot returns the current ledger state.
func (p *Playthrough) ProgressionSnapshot() progression.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.Snapshot()
}

// BranchAvailable reports whether a narrative branch flag has been raised.
func (p *Playthrough) BranchAvailable(branchID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.graph.QueryBranchAvailability(branchID)
}

// BreakPending reports whether an unacknowledged break event has latched.
func (p *Playthrough) BreakPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profile.BreakPending()
}

// AcknowledgeBreak clears the break latch once the forced encounter variant
// has been composed.
func (p *Playthrough) AcknowledgeBreak() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profile.AcknowledgeBreak()
}

// ConsumeLoyaltyTest clears a pending loyalty test and reports whether one
// was pending.
func (p *Playthrough) ConsumeLoyaltyTest() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.ConsumeLoyaltyTest()
}

// HasPower reports whether the given Force power is unlocked.
func (p *Playthrough) HasPower(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.HasPower(id)
}

// Records returns a copy of the committed record sequence.
func (p *Playthrough) Records() []consequence.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.graph.Records()
}

// Save serialises the playthrough's record sequence and content version.
func (p *Playthrough) Save() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return consequence.Marshal(p.graph)
}

// VerifyReplay replays the full graph from empty state and compares the
// result against the live caches. A mismatch means live state drifted from
// the record sequence, which is a bug.
func (p *Playthrough) VerifyReplay() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	profile, ledger := p.graph.Replay()
	replayed := profile.Snapshot()
	live := p.profile.Snapshot()
	// The break latch and loyalty flag are transient orchestration state;
	// replay does not reproduce acknowledgements.
	replayed.BreakPending = live.BreakPending
	if replayed != live {
		return fmt.Errorf("playthrough %q: replayed profile %+v != live %+v", p.id, replayed, live)
	}

	rl := ledger.Snapshot()
	ll := p.ledger.Snapshot()
	rl.LoyaltyTestPending = ll.LoyaltyTestPending
	if rl.SuitTier != ll.SuitTier || rl.Integrity != ll.Integrity ||
		rl.MissionsCompleted != ll.MissionsCompleted || rl.MissionsSinceUpgrade != ll.MissionsSinceUpgrade ||
		len(rl.Powers) != len(ll.Powers) {
		return fmt.Errorf("playthrough %q: replayed ledger %+v != live %+v", p.id, rl, ll)
	}
	for i := range rl.Powers {
		if rl.Powers[i] != ll.Powers[i] {
			return fmt.Errorf("playthrough %q: replayed powers %v != live %v", p.id, rl.Powers, ll.Powers)
		}
	}
	return nil
}
