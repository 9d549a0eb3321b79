package kb

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/stellar-empires/model"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// catalogSchema constrains catalog documents before they are decoded.
const catalogSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["hulls", "components"],
  "properties": {
    "hulls": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "mass", "slots"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "mass": {"type": "number", "exclusiveMinimum": 0},
          "cost": {"type": "number", "minimum": 0},
          "armor": {"type": "number", "minimum": 0},
          "fuel_capacity": {"type": "number", "minimum": 0},
          "cargo_capacity": {"type": "number", "minimum": 0},
          "requires": {"$ref": "#/definitions/requirement"},
          "slots": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["kinds", "max"],
              "properties": {
                "kinds": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/kind"}},
                "max": {"type": "integer", "minimum": 1}
              }
            }
          }
        }
      }
    },
    "components": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "kind", "mass"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "kind": {"$ref": "#/definitions/kind"},
          "mass": {"type": "number", "minimum": 0},
          "cost": {"type": "number", "minimum": 0},
          "damage": {"type": "number", "minimum": 0},
          "accuracy": {"type": "number", "minimum": 0, "maximum": 100},
          "armor": {"type": "number", "minimum": 0},
          "shields": {"type": "number", "minimum": 0},
          "speed": {"type": "number", "minimum": 0},
          "rated_mass": {"type": "number", "minimum": 0},
          "fuel_use": {"type": "number", "minimum": 0},
          "range": {"type": "number", "minimum": 0},
          "capacity": {"type": "number", "minimum": 0},
          "requires": {"$ref": "#/definitions/requirement"}
        }
      }
    }
  },
  "definitions": {
    "kind": {"enum": ["weapon", "armor", "shield", "engine", "scanner", "colony", "fuel_tank", "cargo"]},
    "requirement": {
      "type": "object",
      "properties": {
        "field": {"enum": ["energy", "weapons", "propulsion", "construction", "electronics", "biotech"]},
        "level": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

var compiledCatalogSchema = jsonschema.MustCompileString("catalog.schema.json", catalogSchema)

// internal YAML shapes, unexported so the document format can evolve.
type catalogDoc struct {
	Hulls      []hullDoc      `yaml:"hulls"`
	Components []componentDoc `yaml:"components"`
}

type hullDoc struct {
	ID            string                `yaml:"id"`
	Name          string                `yaml:"name"`
	Mass          float64               `yaml:"mass"`
	Cost          float64               `yaml:"cost"`
	Armor         float64               `yaml:"armor"`
	FuelCapacity  float64               `yaml:"fuel_capacity"`
	CargoCapacity float64               `yaml:"cargo_capacity"`
	Requires      model.TechRequirement `yaml:"requires"`
	Slots         []struct {
		Kinds []ComponentKind `yaml:"kinds"`
		Max   int             `yaml:"max"`
	} `yaml:"slots"`
}

type componentDoc struct {
	ID       string                `yaml:"id"`
	Name     string                `yaml:"name"`
	Kind     ComponentKind         `yaml:"kind"`
	Mass     float64               `yaml:"mass"`
	Cost     float64               `yaml:"cost"`
	Requires model.TechRequirement `yaml:"requires"`

	Damage    float64 `yaml:"damage"`
	Accuracy  float64 `yaml:"accuracy"`
	Armor     float64 `yaml:"armor"`
	Shields   float64 `yaml:"shields"`
	Speed     float64 `yaml:"speed"`
	RatedMass float64 `yaml:"rated_mass"`
	FuelUse   float64 `yaml:"fuel_use"`
	Range     float64 `yaml:"range"`
	Capacity  float64 `yaml:"capacity"`
}

func (d componentDoc) stats() (ComponentStats, error) {
	switch d.Kind {
	case KindWeapon:
		return WeaponStats{Damage: d.Damage, Accuracy: d.Accuracy}, nil
	case KindArmor:
		return ArmorStats{Armor: d.Armor}, nil
	case KindShield:
		return ShieldStats{Shields: d.Shields}, nil
	case KindEngine:
		return EngineStats{Speed: d.Speed, RatedMass: d.RatedMass, FuelUse: d.FuelUse}, nil
	case KindScanner:
		return ScannerStats{Range: d.Range}, nil
	case KindColony:
		return ColonyStats{}, nil
	case KindFuelTank:
		return FuelTankStats{Capacity: d.Capacity}, nil
	case KindCargo:
		return CargoStats{Capacity: d.Capacity}, nil
	default:
		return nil, fmt.Errorf("%w: component %q has unknown kind %q", ErrInvalidDesign, d.ID, d.Kind)
	}
}

// DefaultCatalog returns the catalog bundled with the engine.
func DefaultCatalog() (*DesignCatalog, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalogYAML))
}

// LoadCatalogFile reads a YAML catalog from disk.
func LoadCatalogFile(path string) (*DesignCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCatalog(f)
}

// LoadCatalog parses a YAML catalog, validates it against the catalog
// schema and builds a DesignCatalog.
func LoadCatalog(r io.Reader) (*DesignCatalog, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("LoadCatalog: read failed: %w", err)
	}

	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("LoadCatalog: decode failed: %w", err)
	}
	// Round-trip through JSON so the validator sees plain JSON values.
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("LoadCatalog: normalise failed: %w", err)
	}
	var doc any
	if err := json.Unmarshal(asJSON, &doc); err != nil {
		return nil, fmt.Errorf("LoadCatalog: normalise failed: %w", err)
	}
	if err := compiledCatalogSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("LoadCatalog: %w", err)
	}

	var payload catalogDoc
	if err := yaml.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("LoadCatalog: decode failed: %w", err)
	}

	hulls := make([]Hull, 0, len(payload.Hulls))
	for _, h := range payload.Hulls {
		hull := Hull{
			ID:            h.ID,
			Name:          h.Name,
			Mass:          h.Mass,
			Cost:          h.Cost,
			Armor:         h.Armor,
			FuelCapacity:  h.FuelCapacity,
			CargoCapacity: h.CargoCapacity,
			Requires:      h.Requires,
		}
		for _, s := range h.Slots {
			hull.Slots = append(hull.Slots, HullSlot{Kinds: s.Kinds, Max: s.Max})
		}
		hulls = append(hulls, hull)
	}

	components := make([]Component, 0, len(payload.Components))
	for _, d := range payload.Components {
		stats, err := d.stats()
		if err != nil {
			return nil, err
		}
		components = append(components, Component{
			ID:       d.ID,
			Name:     d.Name,
			Mass:     d.Mass,
			Cost:     d.Cost,
			Requires: d.Requires,
			Stats:    stats,
		})
	}
	return NewDesignCatalog(hulls, components)
}
