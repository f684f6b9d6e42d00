package content

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/darklord/internal/game/consequence"
)

// EnemySpawn names an enemy template and how many of it an encounter fields.
type EnemySpawn struct {
	Template string `yaml:"template"`
	Count    int    `yaml:"count"`
}

// EncounterDef defines one encounter roster loaded from YAML.
type EncounterDef struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Enemies     []EnemySpawn `yaml:"enemies"`
	// Hooks lists Lua scripts (relative to the pack's hooks directory) fired
	// on ability-usage events during this encounter.
	Hooks []string `yaml:"hooks"`
	// OnVictory carries extra effects committed only on a Victory outcome,
	// on top of the pack effect table (branch flags, power unlocks).
	OnVictory []consequence.Effect `yaml:"on_victory"`
}

// Validate checks the definition's basic invariants. Template and hook
// references are cross-checked at the pack level.
func (d *EncounterDef) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("encounter: id must not be empty")
	}
	if d.Name == "" {
		return fmt.Errorf("encounter %q: name must not be empty", d.ID)
	}
	if len(d.Enemies) == 0 {
		return fmt.Errorf("encounter %q: needs at least one enemy spawn", d.ID)
	}
	for _, s := range d.Enemies {
		if s.Template == "" {
			return fmt.Errorf("encounter %q: spawn template must not be empty", d.ID)
		}
		if s.Count < 1 {
			return fmt.Errorf("encounter %q: spawn count for %q must be >= 1", d.ID, s.Template)
		}
	}
	for _, e := range d.OnVictory {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("encounter %q: on_victory: %w", d.ID, err)
		}
	}
	return nil
}

// yamlEncounterFile is the top-level YAML structure for encounter files.
type yamlEncounterFile struct {
	Encounters []*EncounterDef `yaml:"encounters"`
}

// LoadEncountersFromBytes parses and validates encounter definitions from
// YAML bytes.
func LoadEncountersFromBytes(data []byte) ([]*EncounterDef, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file yamlEncounterFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing encounter yaml: %w", err)
	}
	for _, d := range file.Encounters {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	return file.Encounters, nil
}

// LoadEncountersFromDir reads every *.yaml file in dir into a definition map.
func LoadEncountersFromDir(dir string) (map[string]*EncounterDef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading encounter dir %s: %w", dir, err)
	}

	defs := make(map[string]*EncounterDef)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		loaded, err := LoadEncountersFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, d := range loaded {
			if _, exists := defs[d.ID]; exists {
				return nil, fmt.Errorf("%s: duplicate encounter id %q", path, d.ID)
			}
			defs[d.ID] = d
		}
	}
	return defs, nil
}
