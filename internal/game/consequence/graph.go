package consequence

import (
	"strings"

	"github.com/cory-johannsen/darklord/internal/game/progression"
	"github.com/cory-johannsen/darklord/internal/game/stats"
)

// ReplayParams are the content-pack constants a replay needs to rebuild the
// derived caches. They travel with the graph so replay is self-contained.
type ReplayParams struct {
	BreakThreshold int
	Velocity       progression.VelocityPolicy
}

// Graph is the append-only ordered sequence of committed records.
//
// Invariant: records are immutable once appended; Seq values are dense and
// ascending from 1. Graph is not safe for concurrent use; the session layer
// enforces the single-writer discipline.
type Graph struct {
	contentVersion string
	params         ReplayParams
	records        []Record
	flags          map[string]bool
}

// NewGraph creates an empty graph for the given content version.
func NewGraph(contentVersion string, params ReplayParams) *Graph {
	return &Graph{
		contentVersion: contentVersion,
		params:         params,
		flags:          make(map[string]bool),
	}
}

// ContentVersion returns the content pack version this graph was built against.
func (g *Graph) ContentVersion() string { return g.contentVersion }

// Len returns the number of committed records.
func (g *Graph) Len() int { return len(g.records) }

// Append validates r, assigns the next sequence number, and commits it.
//
// Postcondition: on error (ErrInvalidEffectTarget) the graph is unchanged;
// on success the record is committed with Seq == Len() and its flag effects
// are folded into branch availability. Effects are never partially applied.
func (g *Graph) Append(r Record) (Record, error) {
	if err := r.Validate(); err != nil {
		return Record{}, err
	}

	r.Seq = len(g.records) + 1
	r.Effects = append([]Effect(nil), r.Effects...)
	g.records = append(g.records, r)

	for _, e := range r.Effects {
		if strings.HasPrefix(e.Target, flagPrefix) {
			g.flags[strings.TrimPrefix(e.Target, flagPrefix)] = true
		}
	}
	return r, nil
}

// Records returns a copy of the committed sequence in Seq order.
func (g *Graph) Records() []Record {
	out := make([]Record, len(g.records))
	copy(out, g.records)
	for i := range out {
		out[i].Effects = append([]Effect(nil), g.records[i].Effects...)
	}
	return out
}

// QueryBranchAvailability reports whether the narrative branch flag has been
// raised by any committed record.
func (g *Graph) QueryBranchAvailability(branchID string) bool {
	return g.flags[branchID]
}

// Replay rebuilds a fresh profile and ledger by folding every committed
// record in sequence order over empty state.
//
// Postcondition: replay is pure and order-sensitive: two calls over the same
// record sequence yield identical state, and that state matches what live
// appends produced (both paths go through ApplyRecord).
func (g *Graph) Replay() (*stats.Profile, *progression.Ledger) {
	profile := stats.NewProfile(g.params.BreakThreshold)
	ledger := progression.NewLedger(profile, g.params.Velocity)
	for _, r := range g.records {
		ApplyRecord(profile, ledger, r)
	}
	return profile, ledger
}

// RestoreFrom replaces the graph's committed sequence with the given records,
// used by the load path after version checking. Records keep their stored Seq.
//
// Precondition: records must be a previously saved sequence (validated,
// Seq-ordered); panics on a record that fails validation since that indicates
// a corrupt save, not a user error.
func (g *Graph) RestoreFrom(records []Record) {
	g.records = make([]Record, 0, len(records))
	g.flags = make(map[string]bool)
	for _, r := range records {
		if err := r.Validate(); err != nil {
			panic("consequence: corrupt save record: " + err.Error())
		}
		g.records = append(g.records, r)
		for _, e := range r.Effects {
			if strings.HasPrefix(e.Target, flagPrefix) {
				g.flags[strings.TrimPrefix(e.Target, flagPrefix)] = true
			}
		}
	}
}
