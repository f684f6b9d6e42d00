// Package ability defines the data-described combat abilities the engine
// resolves. Abilities are capability tags checked against the progression
// ledger, not types: content adds abilities without code changes.
package ability

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/darklord/internal/game/dice"
)

// Target kind values accepted in ability definitions.
const (
	TargetEnemy = "enemy"
	TargetSelf  = "self"
)

// Finisher method values. A finisher is only usable on a helpless enemy.
const (
	FinisherQuick  = "quick"
	FinisherChoke  = "choke"
	FinisherBrutal = "brutal"
	FinisherSpare  = "spare"
)

// AppliedStatus names a status effect an ability applies on resolution.
type AppliedStatus struct {
	ID       string `yaml:"id"`
	Stacks   int    `yaml:"stacks"`
	Duration int    `yaml:"duration"` // rounds; -1 = permanent
	// ToTarget applies to the target when true, to the actor when false.
	ToTarget bool `yaml:"to_target"`
	// Spread applies the status to every other living enemy instead
	// (fear rippling from an execution).
	Spread bool `yaml:"spread"`
}

// Def is the static definition of one ability, loaded from YAML.
type Def struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// FPCost is the Force Point cost, paid atomically at resolution.
	FPCost int `yaml:"fp_cost"`
	// Damage is a dice expression ("2d6+3"); empty for non-damaging abilities.
	Damage string `yaml:"damage"`
	// Target is "enemy" or "self".
	Target string `yaml:"target"`
	// RequiresPower gates the ability behind an unlocked Force power id;
	// empty means always available.
	RequiresPower string `yaml:"requires_power"`
	// MinSuitTier gates the ability behind a suit tier; 0 means no gate.
	MinSuitTier int `yaml:"min_suit_tier"`
	// Revive marks the one action kind allowed on a combatant at 0 health.
	Revive bool `yaml:"revive"`
	// Heal is a dice expression restoring health; empty for none.
	Heal string `yaml:"heal"`
	// Finisher marks an execution method (quick/choke/brutal/spare),
	// usable only on helpless enemies.
	Finisher string `yaml:"finisher"`
	// Applies lists status effects attached on resolution.
	Applies []AppliedStatus `yaml:"applies"`
	// Tags feed the consequence effect table ("merciful", "excessive", ...).
	Tags []string `yaml:"tags"`

	damageExpr dice.Expression
	healExpr   dice.Expression
}

// Validate checks required fields, enum values, and parses dice expressions.
func (d *Def) Validate() error {
	var errs []string
	if d.ID == "" {
		errs = append(errs, "id must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "name must not be empty")
	}
	if d.FPCost < 0 {
		errs = append(errs, "fp_cost must be >= 0")
	}
	if d.Target != TargetEnemy && d.Target != TargetSelf {
		errs = append(errs, fmt.Sprintf("target must be %q or %q, got %q", TargetEnemy, TargetSelf, d.Target))
	}
	switch d.Finisher {
	case "", FinisherQuick, FinisherChoke, FinisherBrutal, FinisherSpare:
	default:
		errs = append(errs, fmt.Sprintf("unknown finisher method %q", d.Finisher))
	}
	if d.Finisher != "" && d.Target != TargetEnemy {
		errs = append(errs, "finisher abilities must target an enemy")
	}
	if d.MinSuitTier < 0 || d.MinSuitTier > 5 {
		errs = append(errs, "min_suit_tier must be in 0..5")
	}
	if d.Damage != "" {
		expr, err := dice.Parse(d.Damage)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			d.damageExpr = expr
		}
	}
	if d.Heal != "" {
		expr, err := dice.Parse(d.Heal)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			d.healExpr = expr
		}
	}
	for _, a := range d.Applies {
		if a.ID == "" {
			errs = append(errs, "applies entries need a status id")
		}
		if a.Stacks < 1 {
			errs = append(errs, fmt.Sprintf("applies %q: stacks must be >= 1", a.ID))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("ability %q: %s", d.ID, strings.Join(errs, "; "))
	}
	return nil
}

// DamageExpr returns the parsed damage expression.
//
// Precondition: Validate succeeded and Damage is non-empty.
func (d *Def) DamageExpr() dice.Expression { return d.damageExpr }

// HealExpr returns the parsed heal expression.
//
// Precondition: Validate succeeded and Heal is non-empty.
func (d *Def) HealExpr() dice.Expression { return d.healExpr }

// ExpectedDamage returns the mean roll of the damage expression, floored at 0.
// The AI policy weighs abilities by ExpectedDamage() - FPCost.
func (d *Def) ExpectedDamage() int {
	if d.Damage == "" {
		return 0
	}
	ev := d.damageExpr.Count*(d.damageExpr.Sides+1)/2 + d.damageExpr.Modifier
	if ev < 0 {
		return 0
	}
	return ev
}

// HasTag reports whether the ability carries the given consequence tag.
func (d *Def) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Registry holds all known ability Defs keyed by ID.
type Registry struct {
	defs map[string]*Def
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Def)}
}

// Register adds def, overwriting any existing entry with the same ID.
func (r *Registry) Register(def *Def) {
	r.defs[def.ID] = def
}

// Get returns the Def for id, or (nil, false) if not registered.
func (r *Registry) Get(id string) (*Def, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int { return len(r.defs) }

// All returns every registered definition sorted by ID.
func (r *Registry) All() []*Def {
	out := make([]*Def, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// yamlAbilityFile is the top-level YAML structure for ability files.
type yamlAbilityFile struct {
	Abilities []*Def `yaml:"abilities"`
}

// LoadFromBytes parses and validates ability definitions from YAML bytes.
func LoadFromBytes(data []byte) ([]*Def, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file yamlAbilityFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing ability yaml: %w", err)
	}

	seen := make(map[string]bool)
	for _, d := range file.Abilities {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate ability id %q", d.ID)
		}
		seen[d.ID] = true
	}
	return file.Abilities, nil
}

// LoadDir reads every *.yaml file in dir into a Registry.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading ability dir %s: %w", dir, err)
	}

	reg := NewRegistry()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		defs, err := LoadFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, d := range defs {
			if _, exists := reg.Get(d.ID); exists {
				return nil, fmt.Errorf("%s: duplicate ability id %q", path, d.ID)
			}
			reg.Register(d)
		}
	}
	return reg, nil
}
