// Package status implements duration-bearing combat modifiers: YAML-defined
// status definitions plus the per-combatant active sets that stack and tick.
package status

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Duration type values accepted in status definitions.
const (
	DurationRounds    = "rounds"
	DurationPermanent = "permanent"
)

// Def is the static definition of a status effect, loaded from YAML.
type Def struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// DurationType is "rounds" (ticks down each RoundStart) or "permanent".
	DurationType string `yaml:"duration_type"`
	// MaxStacks caps stacking; 0 = unstackable.
	MaxStacks int `yaml:"max_stacks"`
	// AttackPenalty is subtracted from damage dealt per stack while active.
	AttackPenalty int `yaml:"attack_penalty"`
	// FPRegenPenalty is subtracted from Force Point regeneration per stack.
	FPRegenPenalty int `yaml:"fp_regen_penalty"`
	// SkipTurn makes the bearer forfeit its action while active.
	SkipTurn bool `yaml:"skip_turn"`
}

// Validate checks the definition's required fields and enum values.
func (d *Def) Validate() error {
	var errs []string
	if d.ID == "" {
		errs = append(errs, "id must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "name must not be empty")
	}
	if d.DurationType != DurationRounds && d.DurationType != DurationPermanent {
		errs = append(errs, fmt.Sprintf("duration_type must be %q or %q, got %q",
			DurationRounds, DurationPermanent, d.DurationType))
	}
	if d.MaxStacks < 0 {
		errs = append(errs, "max_stacks must be >= 0")
	}
	if len(errs) > 0 {
		return fmt.Errorf("status %q: %s", d.ID, strings.Join(errs, "; "))
	}
	return nil
}

// Registry holds all known status Defs keyed by ID.
type Registry struct {
	defs map[string]*Def
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Def)}
}

// Register adds def, overwriting any existing entry with the same ID.
//
// Precondition: def must be non-nil with a non-empty ID.
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

// yamlStatusFile is the top-level YAML structure for status files.
type yamlStatusFile struct {
	Statuses []*Def `yaml:"statuses"`
}

// LoadFromBytes parses and validates status definitions from YAML bytes.
func LoadFromBytes(data []byte) ([]*Def, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file yamlStatusFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing status yaml: %w", err)
	}

	seen := make(map[string]bool)
	for _, d := range file.Statuses {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate status id %q", d.ID)
		}
		seen[d.ID] = true
	}
	return file.Statuses, nil
}

// LoadDir reads every *.yaml file in dir into a Registry.
//
// Postcondition: Returns a registry with all definitions, or an error naming
// the offending file.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading status dir %s: %w", dir, err)
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
				return nil, fmt.Errorf("%s: duplicate status id %q", path, d.ID)
			}
			reg.Register(d)
		}
	}
	return reg, nil
}
