// Package config holds game rules and server settings.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/stellar-empires/model"
)

// InstallationRule prices and gates one installation kind.
type InstallationRule struct {
	Cost     float64               `yaml:"cost"`
	Requires model.TechRequirement `yaml:"requires"`
}

// Rules are the numeric constants of a game. They are fixed for the
// lifetime of a game so that turn resolution stays reproducible.
type Rules struct {
	// CombatRounds is the maximum number of rounds fought at one site.
	CombatRounds int `yaml:"combat_rounds"`
	// DefaultRelation applies when neither empire declared a stance.
	DefaultRelation model.Relation `yaml:"default_relation"`

	// FuelPerMassDistance scales fuel burn: mass * engine fuel use * distance.
	FuelPerMassDistance float64 `yaml:"fuel_per_mass_distance"`
	// RepairFraction of max armor is restored per turn at an own star.
	RepairFraction float64 `yaml:"repair_fraction"`

	PopulationPerResource float64 `yaml:"population_per_resource"`
	FactoryOutput         float64 `yaml:"factory_output"`
	MineOutput            float64 `yaml:"mine_output"`
	PopulationGrowth      float64 `yaml:"population_growth"`
	MaxPopulation         int64   `yaml:"max_population"`
	ColonistsPerPod       int64   `yaml:"colonists_per_pod"`

	BaseDetectionRange       float64 `yaml:"base_detection_range"`
	ScannerInstallationRange float64 `yaml:"scanner_installation_range"`

	ResearchBaseCost  float64 `yaml:"research_base_cost"`
	ResearchLevelCost float64 `yaml:"research_level_cost"`

	Installations map[model.InstallationKind]InstallationRule `yaml:"installations"`

	MaxQueueLength int `yaml:"max_queue_length"`
	MaxWaypoints   int `yaml:"max_waypoints"`

	// Workers bounds the goroutines used for stars and combat sites.
	Workers int `yaml:"workers"`

	// OrderRate and OrderBurst bound command submissions per empire.
	OrderRate  float64 `yaml:"order_rate"`
	OrderBurst int     `yaml:"order_burst"`

	// TurnDeadline, when positive, generates the turn automatically after
	// the deadline even if some empires have not submitted.
	TurnDeadline time.Duration `yaml:"turn_deadline"`
	// AutoGenerateWhenReady generates as soon as every active empire is ready.
	AutoGenerateWhenReady bool `yaml:"auto_generate_when_ready"`
}

// DefaultRules returns the stock rule set.
func DefaultRules() Rules {
	return Rules{}.ApplyDefaults()
}

// ApplyDefaults fills zero or invalid fields with stock values.
func (r Rules) ApplyDefaults() Rules {
	if r.CombatRounds <= 0 {
		r.CombatRounds = 4
	}
	if !r.DefaultRelation.Valid() {
		r.DefaultRelation = model.RelationNeutral
	}
	if r.FuelPerMassDistance <= 0 {
		r.FuelPerMassDistance = 0.01
	}
	if r.RepairFraction <= 0 || r.RepairFraction > 1 {
		r.RepairFraction = 0.1
	}
	if r.PopulationPerResource <= 0 {
		r.PopulationPerResource = 1000
	}
	if r.FactoryOutput <= 0 {
		r.FactoryOutput = 1
	}
	if r.MineOutput <= 0 {
		r.MineOutput = 0.5
	}
	if r.PopulationGrowth <= 0 {
		r.PopulationGrowth = 0.03
	}
	if r.MaxPopulation <= 0 {
		r.MaxPopulation = 1_000_000
	}
	if r.ColonistsPerPod <= 0 {
		r.ColonistsPerPod = 2500
	}
	if r.BaseDetectionRange <= 0 {
		r.BaseDetectionRange = 50
	}
	if r.ScannerInstallationRange <= 0 {
		r.ScannerInstallationRange = 25
	}
	if r.ResearchBaseCost <= 0 {
		r.ResearchBaseCost = 50
	}
	if r.ResearchLevelCost <= 0 {
		r.ResearchLevelCost = 25
	}
	if r.Installations == nil {
		r.Installations = make(map[model.InstallationKind]InstallationRule)
	}
	defaults := map[model.InstallationKind]InstallationRule{
		model.InstallationFactory: {Cost: 10},
		model.InstallationMine:    {Cost: 5},
		model.InstallationScanner: {Cost: 40, Requires: model.TechRequirement{Field: model.TechElectronics, Level: 1}},
	}
	for kind, rule := range defaults {
		if existing, ok := r.Installations[kind]; !ok || existing.Cost <= 0 {
			r.Installations[kind] = rule
		}
	}
	if r.MaxQueueLength <= 0 {
		r.MaxQueueLength = 32
	}
	if r.MaxWaypoints <= 0 {
		r.MaxWaypoints = 64
	}
	if r.Workers <= 0 {
		r.Workers = runtime.GOMAXPROCS(0)
	}
	if r.OrderRate <= 0 {
		r.OrderRate = 20
	}
	if r.OrderBurst <= 0 {
		r.OrderBurst = 100
	}
	if r.TurnDeadline < 0 {
		r.TurnDeadline = 0
	}
	return r
}

// ResearchThreshold returns the points needed to advance from level.
func (r Rules) ResearchThreshold(level int) float64 {
	return r.ResearchBaseCost + r.ResearchLevelCost*float64(level)
}

// LoadRules reads a YAML rules file and applies defaults.
func LoadRules(path string) (Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, err
	}
	return ParseRules(raw)
}

// ParseRules decodes YAML rules and applies defaults.
func ParseRules(raw []byte) (Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return Rules{}, fmt.Errorf("rules.yaml: %w", err)
	}
	return r.ApplyDefaults(), nil
}
