package content

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/darklord/internal/game/ability"
	"github.com/cory-johannsen/darklord/internal/game/consequence"
)

// EffectTable maps encounter outcomes, finisher methods, and ability tags to
// consequence effects. Finalize folds the matching rows into the encounter's
// single committed record.
type EffectTable struct {
	// Outcomes keys are "victory", "defeat", "fled".
	Outcomes map[string][]consequence.Effect `yaml:"outcomes"`
	// Finishers keys are the finisher methods (quick/choke/brutal/spare);
	// each row applies once per finisher of that method used.
	Finishers map[string][]consequence.Effect `yaml:"finishers"`
	// Tags rows apply once per resolved use of an ability carrying the tag.
	Tags map[string][]consequence.Effect `yaml:"tags"`
	// MissionOutcomes lists the outcomes that count as a completed mission.
	MissionOutcomes []string `yaml:"mission_outcomes"`
}

var validOutcomes = map[string]bool{"victory": true, "defeat": true, "fled": true}

var validFinishers = map[string]bool{
	ability.FinisherQuick:  true,
	ability.FinisherChoke:  true,
	ability.FinisherBrutal: true,
	ability.FinisherSpare:  true,
}

// Validate checks every key and effect in the table.
func (t *EffectTable) Validate() error {
	for outcome, effects := range t.Outcomes {
		if !validOutcomes[outcome] {
			return fmt.Errorf("effect table: unknown outcome %q", outcome)
		}
		for _, e := range effects {
			if err := e.Validate(); err != nil {
				return fmt.Errorf("effect table: outcome %q: %w", outcome, err)
			}
		}
	}
	for method, effects := range t.Finishers {
		if !validFinishers[method] {
			return fmt.Errorf("effect table: unknown finisher method %q", method)
		}
		for _, e := range effects {
			if err := e.Validate(); err != nil {
				return fmt.Errorf("effect table: finisher %q: %w", method, err)
			}
		}
	}
	for tag, effects := range t.Tags {
		if tag == "" {
			return fmt.Errorf("effect table: empty tag key")
		}
		for _, e := range effects {
			if err := e.Validate(); err != nil {
				return fmt.Errorf("effect table: tag %q: %w", tag, err)
			}
		}
	}
	for _, outcome := range t.MissionOutcomes {
		if !validOutcomes[outcome] {
			return fmt.Errorf("effect table: mission_outcomes has unknown outcome %q", outcome)
		}
	}
	return nil
}

// ForOutcome returns the effects for a terminal outcome label.
func (t *EffectTable) ForOutcome(outcome string) []consequence.Effect {
	return t.Outcomes[outcome]
}

// ForFinisher returns the effects for one use of a finisher method.
func (t *EffectTable) ForFinisher(method string) []consequence.Effect {
	return t.Finishers[method]
}

// ForTag returns the effects for one use of a tagged ability.
func (t *EffectTable) ForTag(tag string) []consequence.Effect {
	return t.Tags[tag]
}

// CountsAsMission reports whether the outcome label completes a mission.
func (t *EffectTable) CountsAsMission(outcome string) bool {
	for _, o := range t.MissionOutcomes {
		if o == outcome {
			return true
		}
	}
	return false
}

// yamlEffectFile is the top-level YAML structure for the effect table file.
type yamlEffectFile struct {
	Effects *EffectTable `yaml:"effects"`
}

// LoadEffectTableFromBytes parses and validates an effect table from YAML.
func LoadEffectTableFromBytes(data []byte) (*EffectTable, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file yamlEffectFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing effect table yaml: %w", err)
	}
	if file.Effects == nil {
		return nil, fmt.Errorf("effect table: missing top-level effects key")
	}
	if err := file.Effects.Validate(); err != nil {
		return nil, err
	}
	return file.Effects, nil
}

// LoadEffectTableFromFile reads and validates the effect table at path.
func LoadEffectTableFromFile(path string) (*EffectTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading effect table %s: %w", path, err)
	}
	table, err := LoadEffectTableFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}
