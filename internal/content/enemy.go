package content

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnemyTemplate defines a reusable enemy archetype loaded from YAML.
type EnemyTemplate struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// EnemyType classifies the enemy for usage hooks and the effect table
	// ("jedi", "trooper", "inquisitor").
	EnemyType string   `yaml:"enemy_type"`
	MaxHealth int      `yaml:"max_health"`
	MaxFP     int      `yaml:"max_fp"`
	FPRegen   int      `yaml:"fp_regen"`
	Speed     int      `yaml:"speed"`
	Abilities []string `yaml:"abilities"`
}

// Validate checks the template's basic invariants. Ability references are
// cross-checked at the pack level.
func (t *EnemyTemplate) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("enemy template: id must not be empty")
	}
	if t.Name == "" {
		return fmt.Errorf("enemy template %q: name must not be empty", t.ID)
	}
	if t.EnemyType == "" {
		return fmt.Errorf("enemy template %q: enemy_type must not be empty", t.ID)
	}
	if t.MaxHealth < 1 {
		return fmt.Errorf("enemy template %q: max_health must be >= 1", t.ID)
	}
	if t.MaxFP < 0 || t.FPRegen < 0 {
		return fmt.Errorf("enemy template %q: force point pools must be >= 0", t.ID)
	}
	if t.Speed < 1 {
		return fmt.Errorf("enemy template %q: speed must be >= 1", t.ID)
	}
	if len(t.Abilities) == 0 {
		return fmt.Errorf("enemy template %q: needs at least one ability", t.ID)
	}
	return nil
}

// yamlEnemyFile is the top-level YAML structure for enemy files.
type yamlEnemyFile struct {
	Enemies []*EnemyTemplate `yaml:"enemies"`
}

// LoadEnemiesFromBytes parses and validates enemy templates from YAML bytes.
func LoadEnemiesFromBytes(data []byte) ([]*EnemyTemplate, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file yamlEnemyFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing enemy yaml: %w", err)
	}
	for _, t := range file.Enemies {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	return file.Enemies, nil
}

// LoadEnemiesFromDir reads every *.yaml file in dir into a template map.
func LoadEnemiesFromDir(dir string) (map[string]*EnemyTemplate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading enemy dir %s: %w", dir, err)
	}

	templates := make(map[string]*EnemyTemplate)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		loaded, err := LoadEnemiesFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, t := range loaded {
			if _, exists := templates[t.ID]; exists {
				return nil, fmt.Errorf("%s: duplicate enemy id %q", path, t.ID)
			}
			templates[t.ID] = t
		}
	}
	return templates, nil
}
