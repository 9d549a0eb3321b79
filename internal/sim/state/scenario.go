package state

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/stellar-empires/kb"
	"github.com/signalsfoundry/stellar-empires/model"
)

// internal YAML shapes, unexported so the scenario format can evolve.
type scenarioDoc struct {
	Seed    uint64      `yaml:"seed"`
	Empires []empireDoc `yaml:"empires"`
	Designs []designDoc `yaml:"designs"`
	Stars   []starDoc   `yaml:"stars"`
	Fleets  []fleetDoc  `yaml:"fleets"`
}

type empireDoc struct {
	ID        string                    `yaml:"id"`
	Name      string                    `yaml:"name"`
	Tech      map[model.TechField]int   `yaml:"tech"`
	Relations map[string]model.Relation `yaml:"relations"`
	Research  struct {
		Share   float64                     `yaml:"share"`
		Percent map[model.TechField]float64 `yaml:"percent"`
	} `yaml:"research"`
}

type designDoc struct {
	Name  string `yaml:"name"`
	Owner string `yaml:"owner"`
	Hull  string `yaml:"hull"`
	Slots []struct {
		Component string `yaml:"component"`
		Count     int    `yaml:"count"`
	} `yaml:"slots"`
}

type starDoc struct {
	ID            string                         `yaml:"id"`
	Name          string                         `yaml:"name"`
	X             float64                        `yaml:"x"`
	Y             float64                        `yaml:"y"`
	Owner         string                         `yaml:"owner"`
	Population    int64                          `yaml:"population"`
	Minerals      map[model.Mineral]float64      `yaml:"minerals"`
	Installations map[model.InstallationKind]int `yaml:"installations"`
	Queue         []struct {
		Kind         model.BuildKind        `yaml:"kind"`
		Design       string                 `yaml:"design"`
		Installation model.InstallationKind `yaml:"installation"`
		Quantity     int                    `yaml:"quantity"`
	} `yaml:"queue"`
}

type fleetDoc struct {
	Empire string   `yaml:"empire"`
	Seq    int      `yaml:"seq"`
	Name   string   `yaml:"name"`
	X      float64  `yaml:"x"`
	Y      float64  `yaml:"y"`
	Fuel   *float64 `yaml:"fuel"` // optional; defaults to full tanks
	Tactic string   `yaml:"tactic"`
	Ships  []struct {
		Design string `yaml:"design"`
		Count  int    `yaml:"count"`
	} `yaml:"ships"`
	Waypoints []struct {
		X    float64 `yaml:"x"`
		Y    float64 `yaml:"y"`
		Star string  `yaml:"star"`
		Task string  `yaml:"task"`
	} `yaml:"waypoints"`
}

// LoadScenarioFile reads a YAML scenario from disk.
func LoadScenarioFile(path string, catalog *kb.DesignCatalog) (*Galaxy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadScenario(f, catalog)
}

// LoadScenario builds the turn-1 galaxy described by a YAML document.
// Designs are checked against the catalog and ships start at full armor,
// shields and (unless given) fuel.
func LoadScenario(r io.Reader, catalog *kb.DesignCatalog) (*Galaxy, error) {
	if catalog == nil {
		return nil, fmt.Errorf("LoadScenario: catalog is nil")
	}
	var doc scenarioDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}

	g := NewGalaxy(doc.Seed)

	// 1) Empires
	for _, e := range doc.Empires {
		emp := &model.Empire{
			ID:         model.EmpireID(e.ID),
			Name:       e.Name,
			Status:     model.EmpireActive,
			TechLevels: make(map[model.TechField]int),
			Research: model.ResearchAllocation{
				Share:   e.Research.Share,
				Percent: e.Research.Percent,
			},
		}
		for f, lvl := range e.Tech {
			if !f.Valid() {
				return nil, fmt.Errorf("LoadScenario: empire %q: unknown tech field %q", e.ID, f)
			}
			emp.TechLevels[f] = lvl
		}
		if len(e.Relations) > 0 {
			emp.Relations = make(map[model.EmpireID]model.Relation, len(e.Relations))
			for other, rel := range e.Relations {
				if !rel.Valid() {
					return nil, fmt.Errorf("LoadScenario: empire %q: unknown relation %q", e.ID, rel)
				}
				emp.Relations[model.EmpireID(other)] = rel
			}
		}
		if err := g.AddEmpire(emp); err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}
	}

	// 2) Designs
	for _, d := range doc.Designs {
		design := &model.Design{Name: d.Name, Owner: model.EmpireID(d.Owner), Hull: d.Hull}
		for _, s := range d.Slots {
			design.Slots = append(design.Slots, model.DesignSlot{Component: s.Component, Count: s.Count})
		}
		if design.Owner != "" && g.Empire(design.Owner) == nil {
			return nil, fmt.Errorf("LoadScenario: design %q: %w", d.Name, ErrEmpireNotFound)
		}
		if err := catalog.ValidateDesign(design, nil); err != nil {
			return nil, fmt.Errorf("LoadScenario: design %q: %w", d.Name, err)
		}
		if err := g.AddDesign(design); err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}
	}

	// 3) Stars
	for _, s := range doc.Stars {
		star := &model.Star{
			ID:            model.StarID(s.ID),
			Name:          s.Name,
			Position:      model.Vec2{X: s.X, Y: s.Y},
			Owner:         model.EmpireID(s.Owner),
			Population:    s.Population,
			Minerals:      s.Minerals,
			Installations: s.Installations,
		}
		for _, q := range s.Queue {
			star.Queue = append(star.Queue, model.QueueEntry{
				Kind:         q.Kind,
				Design:       q.Design,
				Installation: q.Installation,
				Quantity:     q.Quantity,
			})
		}
		if err := g.AddStar(star); err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}
	}

	// 4) Fleets
	for _, f := range doc.Fleets {
		owner := g.Empire(model.EmpireID(f.Empire))
		if owner == nil {
			return nil, fmt.Errorf("LoadScenario: fleet of %q: %w", f.Empire, ErrEmpireNotFound)
		}
		fleet := &model.Fleet{
			Name:     f.Name,
			Position: model.Vec2{X: f.X, Y: f.Y},
			Tactic:   model.Tactic(f.Tactic),
		}
		if f.Seq > 0 {
			fleet.Key = model.FleetKey{Empire: owner.ID, Seq: f.Seq}
		} else {
			fleet.Key = owner.AllocateFleetKey()
		}
		if !fleet.Tactic.Valid() {
			return nil, fmt.Errorf("LoadScenario: fleet %s: unknown tactic %q", fleet.Key, f.Tactic)
		}
		fuelCap := 0.0
		for _, s := range f.Ships {
			design, ok := g.Design(owner.ID, s.Design)
			if !ok {
				return nil, fmt.Errorf("LoadScenario: fleet %s: %w: %q", fleet.Key, ErrDesignNotFound, s.Design)
			}
			stats, err := catalog.Derive(design)
			if err != nil {
				return nil, fmt.Errorf("LoadScenario: fleet %s: %w", fleet.Key, err)
			}
			for i := 0; i < s.Count; i++ {
				fleet.Ships = append(fleet.Ships, model.Ship{Design: s.Design, Armor: stats.Armor, Shields: stats.Shields})
				fuelCap += stats.FuelCapacity
			}
		}
		fleet.Fuel = fuelCap
		if f.Fuel != nil {
			fleet.Fuel = *f.Fuel
		}
		pos := fleet.Position
		for _, w := range f.Waypoints {
			wp := model.Waypoint{Target: model.Vec2{X: w.X, Y: w.Y}, Star: model.StarID(w.Star), Task: model.WaypointTask(w.Task)}
			if wp.Star != "" {
				star := g.Star(wp.Star)
				if star == nil {
					return nil, fmt.Errorf("LoadScenario: fleet %s: %w: %q", fleet.Key, ErrStarNotFound, w.Star)
				}
				wp.Target = star.Position
			}
			if !wp.Task.Valid() {
				return nil, fmt.Errorf("LoadScenario: fleet %s: unknown task %q", fleet.Key, w.Task)
			}
			prev := 0.0
			if n := len(fleet.Waypoints); n > 0 {
				prev = fleet.Waypoints[n-1].Distance
			}
			wp.Distance = prev + pos.DistanceTo(wp.Target)
			pos = wp.Target
			fleet.Waypoints = append(fleet.Waypoints, wp)
		}
		if err := g.AddFleet(fleet); err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}
	}

	if err := g.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("LoadScenario: %w", err)
	}
	return g, nil
}
