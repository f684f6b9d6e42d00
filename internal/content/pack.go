// Package content loads and validates a content pack: the manifest with its
// policy constants, ability and status definitions, enemy templates, encounter
// rosters, the consequence effect table, and optional Lua reaction hooks.
// Engine packages never read files themselves; everything reaches them through
// a loaded Pack.
package content

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/darklord/internal/game/ability"
	"github.com/cory-johannsen/darklord/internal/game/combat"
	"github.com/cory-johannsen/darklord/internal/game/consequence"
	"github.com/cory-johannsen/darklord/internal/game/progression"
	"github.com/cory-johannsen/darklord/internal/game/stats"
	"github.com/cory-johannsen/darklord/internal/game/status"
)

// Policies are the pack-level pacing and decision constants.
type Policies struct {
	// MinMissionsBetweenUpgrades feeds the upgrade-velocity check.
	MinMissionsBetweenUpgrades int `yaml:"min_missions_between_upgrades"`
	// BreakThreshold is the combined rage+suppression load above which the
	// protagonist breaks; 0 falls back to the engine default.
	BreakThreshold int `yaml:"break_threshold"`
	// AIPriorityOrder is the fixed tie-break order for the AI policy.
	AIPriorityOrder []string `yaml:"ai_priority_order"`
	// LoyaltyTestEncounter names the encounter forced after a velocity
	// violation.
	LoyaltyTestEncounter string `yaml:"loyalty_test_encounter"`
}

// Protagonist is the player combatant template. Per-tier bonuses scale with
// suit tier above 1.
type Protagonist struct {
	Name            string   `yaml:"name"`
	MaxHealth       int      `yaml:"max_health"`
	MaxFP           int      `yaml:"max_fp"`
	FPRegen         int      `yaml:"fp_regen"`
	Speed           int      `yaml:"speed"`
	TierHealthBonus int      `yaml:"tier_health_bonus"`
	TierFPBonus     int      `yaml:"tier_fp_bonus"`
	Abilities       []string `yaml:"abilities"`
}

// yamlTuning mirrors combat.Tuning in the manifest.
type yamlTuning struct {
	RageRegenBonus     int    `yaml:"rage_regen_bonus"`
	RageRegenThreshold int    `yaml:"rage_regen_threshold"`
	SuitDamageChance   int    `yaml:"suit_damage_chance"`
	SuitDamageAmount   int    `yaml:"suit_damage_amount"`
	ExhaustionStatus   string `yaml:"exhaustion_status"`
	ExhaustionDuration int    `yaml:"exhaustion_duration"`
}

// yamlManifest is the top-level structure of pack.yaml.
type yamlManifest struct {
	Pack struct {
		Version     string      `yaml:"version"`
		Policies    Policies    `yaml:"policies"`
		Tuning      yamlTuning  `yaml:"tuning"`
		Protagonist Protagonist `yaml:"protagonist"`
	} `yaml:"pack"`
}

// Pack is a fully loaded, cross-validated content pack.
type Pack struct {
	Version     string
	Policies    Policies
	Tuning      combat.Tuning
	Protagonist Protagonist

	Abilities  *ability.Registry
	Statuses   *status.Registry
	Enemies    map[string]*EnemyTemplate
	Encounters map[string]*EncounterDef
	Effects    *EffectTable

	// HookDir is the directory holding the pack's Lua reaction hooks; empty
	// when the pack ships none.
	HookDir string
}

// ReplayParams derives the consequence replay parameters from the pack.
func (p *Pack) ReplayParams() consequence.ReplayParams {
	return consequence.ReplayParams{
		BreakThreshold: p.Policies.BreakThreshold,
		Velocity: progression.VelocityPolicy{
			MinMissionsBetweenUpgrades: p.Policies.MinMissionsBetweenUpgrades,
		},
	}
}

// Load reads a content pack from dir.
//
// Expected layout: pack.yaml, abilities/, statuses/, enemies/, encounters/,
// effects.yaml, and optionally hooks/ with Lua scripts.
//
// Postcondition: the returned pack is internally consistent: every ability,
// status, enemy, and encounter reference resolves, and every effect table
// entry validates as a consequence effect.
func Load(dir string) (*Pack, error) {
	manifestPath := filepath.Join(dir, "pack.yaml")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("reading pack manifest %s: %w", manifestPath, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var manifest yamlManifest
	if err := dec.Decode(&manifest); err != nil {
		return nil, fmt.Errorf("parsing pack manifest: %w", err)
	}

	pack := &Pack{
		Version:     manifest.Pack.Version,
		Policies:    manifest.Pack.Policies,
		Protagonist: manifest.Pack.Protagonist,
		Tuning: combat.Tuning{
			RageRegenBonus:     manifest.Pack.Tuning.RageRegenBonus,
			RageRegenThreshold: manifest.Pack.Tuning.RageRegenThreshold,
			SuitDamageChance:   manifest.Pack.Tuning.SuitDamageChance,
			SuitDamageAmount:   manifest.Pack.Tuning.SuitDamageAmount,
			ExhaustionStatus:   manifest.Pack.Tuning.ExhaustionStatus,
			ExhaustionDuration: manifest.Pack.Tuning.ExhaustionDuration,
		},
	}

	if pack.Abilities, err = ability.LoadDir(filepath.Join(dir, "abilities")); err != nil {
		return nil, err
	}
	if pack.Statuses, err = status.LoadDir(filepath.Join(dir, "statuses")); err != nil {
		return nil, err
	}
	if pack.Enemies, err = LoadEnemiesFromDir(filepath.Join(dir, "enemies")); err != nil {
		return nil, err
	}
	if pack.Encounters, err = LoadEncountersFromDir(filepath.Join(dir, "encounters")); err != nil {
		return nil, err
	}
	if pack.Effects, err = LoadEffectTableFromFile(filepath.Join(dir, "effects.yaml")); err != nil {
		return nil, err
	}

	hookDir := filepath.Join(dir, "hooks")
	if info, err := os.Stat(hookDir); err == nil && info.IsDir() {
		pack.HookDir = hookDir
	}

	if err := pack.Validate(); err != nil {
		return nil, err
	}
	return pack, nil
}

// Validate cross-checks every reference in the pack.
func (p *Pack) Validate() error {
	if p.Version == "" {
		return fmt.Errorf("content: pack version must not be empty")
	}
	if p.Policies.MinMissionsBetweenUpgrades < 0 {
		return fmt.Errorf("content: min_missions_between_upgrades must be >= 0")
	}
	if p.Policies.BreakThreshold < 0 || p.Policies.BreakThreshold > 2*stats.AxisMax {
		return fmt.Errorf("content: break_threshold must be in 0..%d", 2*stats.AxisMax)
	}

	if err := p.validateProtagonist(); err != nil {
		return err
	}

	for _, id := range p.Policies.AIPriorityOrder {
		if _, ok := p.Abilities.Get(id); !ok {
			return fmt.Errorf("content: ai_priority_order references unknown ability %q", id)
		}
	}
	if p.Policies.LoyaltyTestEncounter != "" {
		if _, ok := p.Encounters[p.Policies.LoyaltyTestEncounter]; !ok {
			return fmt.Errorf("content: loyalty_test_encounter references unknown encounter %q", p.Policies.LoyaltyTestEncounter)
		}
	}
	if p.Tuning.ExhaustionStatus != "" {
		if _, ok := p.Statuses.Get(p.Tuning.ExhaustionStatus); !ok {
			return fmt.Errorf("content: tuning references unknown status %q", p.Tuning.ExhaustionStatus)
		}
	}

	// Ability status references.
	for _, def := range p.Abilities.All() {
		for _, a := range def.Applies {
			if _, ok := p.Statuses.Get(a.ID); !ok {
				return fmt.Errorf("content: ability %q applies unknown status %q", def.ID, a.ID)
			}
		}
	}

	for id, tmpl := range p.Enemies {
		for _, a := range tmpl.Abilities {
			if _, ok := p.Abilities.Get(a); !ok {
				return fmt.Errorf("content: enemy %q references unknown ability %q", id, a)
			}
		}
	}

	for id, enc := range p.Encounters {
		for _, spawn := range enc.Enemies {
			if _, ok := p.Enemies[spawn.Template]; !ok {
				return fmt.Errorf("content: encounter %q spawns unknown enemy %q", id, spawn.Template)
			}
		}
		for _, hook := range enc.Hooks {
			if p.HookDir == "" {
				return fmt.Errorf("content: encounter %q names hook %q but the pack has no hooks directory", id, hook)
			}
			path := filepath.Join(p.HookDir, hook)
			if !strings.HasSuffix(hook, ".lua") {
				return fmt.Errorf("content: encounter %q hook %q must be a .lua file", id, hook)
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("content: encounter %q hook %q: %w", id, hook, err)
			}
		}
	}

	if err := p.Effects.Validate(); err != nil {
		return err
	}
	return nil
}

func (p *Pack) validateProtagonist() error {
	pr := p.Protagonist
	if pr.Name == "" {
		return fmt.Errorf("content: protagonist name must not be empty")
	}
	if pr.MaxHealth < 1 || pr.MaxFP < 0 || pr.Speed < 1 {
		return fmt.Errorf("content: protagonist %q has invalid pools", pr.Name)
	}
	if len(pr.Abilities) == 0 {
		return fmt.Errorf("content: protagonist %q needs at least one ability", pr.Name)
	}
	for _, a := range pr.Abilities {
		if _, ok := p.Abilities.Get(a); !ok {
			return fmt.Errorf("content: protagonist references unknown ability %q", a)
		}
	}
	return nil
}
