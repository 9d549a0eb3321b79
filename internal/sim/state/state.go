// Package state holds the canonical galaxy: every empire, star, fleet and
// design of a game, plus the visibility computed for the last turn.
//
// A committed Galaxy is immutable. The turn orchestrator resolves a turn on
// a Clone and publishes the clone on success.
package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/signalsfoundry/stellar-empires/model"
)

var (
	// ErrEmpireExists indicates an empire id is already in use.
	ErrEmpireExists = errors.New("empire already exists")
	// ErrEmpireNotFound indicates a requested empire was not found.
	ErrEmpireNotFound = errors.New("empire not found")
	// ErrStarExists indicates a star id is already in use.
	ErrStarExists = errors.New("star already exists")
	// ErrStarNotFound indicates a requested star was not found.
	ErrStarNotFound = errors.New("star not found")
	// ErrFleetExists indicates a fleet key is already in use.
	ErrFleetExists = errors.New("fleet already exists")
	// ErrFleetNotFound indicates a requested fleet was not found.
	ErrFleetNotFound = errors.New("fleet not found")
	// ErrDesignExists indicates a design name is already taken by the owner.
	ErrDesignExists = errors.New("design already exists")
	// ErrDesignNotFound indicates a requested design was not found.
	ErrDesignNotFound = errors.New("design not found")
	// ErrInvariantViolation indicates the galaxy is internally inconsistent.
	ErrInvariantViolation = errors.New("galaxy invariant violated")
)

// Galaxy is the canonical game state. It is not safe for concurrent
// mutation; readers of a committed Galaxy never mutate it.
type Galaxy struct {
	// Seed is the game seed every turn seed derives from.
	Seed uint64
	// Turn is the number of the turn currently accepting orders.
	Turn int

	empires map[model.EmpireID]*model.Empire
	stars   map[model.StarID]*model.Star
	fleets  map[model.FleetKey]*model.Fleet
	designs map[model.DesignKey]*model.Design

	visibility map[model.EmpireID]model.Sight
}

// NewGalaxy returns an empty galaxy at turn 1.
func NewGalaxy(seed uint64) *Galaxy {
	return &Galaxy{
		Seed:       seed,
		Turn:       1,
		empires:    make(map[model.EmpireID]*model.Empire),
		stars:      make(map[model.StarID]*model.Star),
		fleets:     make(map[model.FleetKey]*model.Fleet),
		designs:    make(map[model.DesignKey]*model.Design),
		visibility: make(map[model.EmpireID]model.Sight),
	}
}

// AddEmpire registers an empire.
func (g *Galaxy) AddEmpire(e *model.Empire) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("%w: empire needs an id", ErrInvariantViolation)
	}
	if _, ok := g.empires[e.ID]; ok {
		return fmt.Errorf("%w: %q", ErrEmpireExists, e.ID)
	}
	if e.Status == "" {
		e.Status = model.EmpireActive
	}
	if e.NextFleetSeq <= 0 {
		e.NextFleetSeq = 1
	}
	g.empires[e.ID] = e
	return nil
}

// AddStar registers a star.
func (g *Galaxy) AddStar(s *model.Star) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("%w: star needs an id", ErrInvariantViolation)
	}
	if _, ok := g.stars[s.ID]; ok {
		return fmt.Errorf("%w: %q", ErrStarExists, s.ID)
	}
	if s.Owned() {
		if _, ok := g.empires[s.Owner]; !ok {
			return fmt.Errorf("%w: star %q owner %q", ErrEmpireNotFound, s.ID, s.Owner)
		}
	}
	g.stars[s.ID] = s
	return nil
}

// AddFleet registers a fleet. The owner's sequence counter is advanced past
// the fleet's key so later allocations never collide.
func (g *Galaxy) AddFleet(f *model.Fleet) error {
	if f == nil || f.Key.Seq <= 0 {
		return fmt.Errorf("%w: fleet needs a positive sequence", ErrInvariantViolation)
	}
	owner, ok := g.empires[f.Key.Empire]
	if !ok {
		return fmt.Errorf("%w: fleet %s owner", ErrEmpireNotFound, f.Key)
	}
	if _, ok := g.fleets[f.Key]; ok {
		return fmt.Errorf("%w: %s", ErrFleetExists, f.Key)
	}
	if owner.NextFleetSeq <= f.Key.Seq {
		owner.NextFleetSeq = f.Key.Seq + 1
	}
	g.fleets[f.Key] = f
	return nil
}

// RemoveFleet deletes a fleet if present.
func (g *Galaxy) RemoveFleet(key model.FleetKey) { delete(g.fleets, key) }

// AddDesign registers a design under its owner.
func (g *Galaxy) AddDesign(d *model.Design) error {
	if d == nil || d.Name == "" {
		return fmt.Errorf("%w: design needs a name", ErrInvariantViolation)
	}
	if _, ok := g.designs[d.Key()]; ok {
		return fmt.Errorf("%w: %q", ErrDesignExists, d.Name)
	}
	g.designs[d.Key()] = d
	return nil
}

// ReplaceDesign overwrites a design that nothing references yet.
func (g *Galaxy) ReplaceDesign(d *model.Design) {
	g.designs[d.Key()] = d
}

// RemoveDesign deletes a design.
func (g *Galaxy) RemoveDesign(key model.DesignKey) { delete(g.designs, key) }

// EmpireIDs returns every empire id, sorted.
func (g *Galaxy) EmpireIDs() []model.EmpireID {
	ids := make([]model.EmpireID, 0, len(g.empires))
	for id := range g.empires {
		ids = append(ids, id)
	}
	return model.SortEmpireIDs(ids)
}

// Empire returns the empire with id, or nil.
func (g *Galaxy) Empire(id model.EmpireID) *model.Empire { return g.empires[id] }

// StarIDs returns every star id, sorted.
func (g *Galaxy) StarIDs() []model.StarID {
	ids := make([]model.StarID, 0, len(g.stars))
	for id := range g.stars {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Star returns the star with id, or nil.
func (g *Galaxy) Star(id model.StarID) *model.Star { return g.stars[id] }

// FleetKeys returns every fleet key, sorted by empire then sequence.
func (g *Galaxy) FleetKeys() []model.FleetKey {
	keys := make([]model.FleetKey, 0, len(g.fleets))
	for k := range g.fleets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Fleet returns the fleet with key, or nil.
func (g *Galaxy) Fleet(key model.FleetKey) *model.Fleet { return g.fleets[key] }

// Designs returns every design sorted by owner then name.
func (g *Galaxy) Designs() []*model.Design {
	keys := make([]model.DesignKey, 0, len(g.designs))
	for k := range g.designs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	out := make([]*model.Design, len(keys))
	for i, k := range keys {
		out[i] = g.designs[k]
	}
	return out
}

// Design resolves a design name as seen by owner: the owner's design, or a
// shared one.
func (g *Galaxy) Design(owner model.EmpireID, name string) (*model.Design, bool) {
	if d, ok := g.designs[model.DesignKey{Owner: owner, Name: name}]; ok {
		return d, true
	}
	d, ok := g.designs[model.DesignKey{Name: name}]
	return d, ok
}

// DesignInUse reports whether any ship or queue entry of owner refers to the
// design name.
func (g *Galaxy) DesignInUse(owner model.EmpireID, name string) bool {
	for key, f := range g.fleets {
		if key.Empire != owner {
			continue
		}
		for _, s := range f.Ships {
			if s.Design == name {
				return true
			}
		}
	}
	for _, s := range g.stars {
		if s.Owner != owner {
			continue
		}
		for _, e := range s.Queue {
			if e.Kind == model.BuildShip && e.Design == name {
				return true
			}
		}
	}
	return false
}

// SetVisibility stores the sight computed for the turn.
func (g *Galaxy) SetVisibility(v map[model.EmpireID]model.Sight) {
	g.visibility = make(map[model.EmpireID]model.Sight, len(v))
	for id, s := range v {
		g.visibility[id] = s
	}
}

// Sight returns what empire observed at the end of the last turn.
func (g *Galaxy) Sight(empire model.EmpireID) model.Sight { return g.visibility[empire] }

// Counts returns the number of empires, stars and fleets.
func (g *Galaxy) Counts() (empires, stars, fleets int) {
	return len(g.empires), len(g.stars), len(g.fleets)
}

// ActiveEmpires returns the ids of empires that are not defeated, sorted.
func (g *Galaxy) ActiveEmpires() []model.EmpireID {
	var out []model.EmpireID
	for _, id := range g.EmpireIDs() {
		if g.empires[id].Status != model.EmpireDefeated {
			out = append(out, id)
		}
	}
	return out
}

// Clone returns a deep copy that shares nothing with g.
func (g *Galaxy) Clone() *Galaxy {
	out := &Galaxy{
		Seed:       g.Seed,
		Turn:       g.Turn,
		empires:    make(map[model.EmpireID]*model.Empire, len(g.empires)),
		stars:      make(map[model.StarID]*model.Star, len(g.stars)),
		fleets:     make(map[model.FleetKey]*model.Fleet, len(g.fleets)),
		designs:    make(map[model.DesignKey]*model.Design, len(g.designs)),
		visibility: make(map[model.EmpireID]model.Sight, len(g.visibility)),
	}
	for id, e := range g.empires {
		out.empires[id] = e.Clone()
	}
	for id, s := range g.stars {
		out.stars[id] = s.Clone()
	}
	for k, f := range g.fleets {
		out.fleets[k] = f.Clone()
	}
	for k, d := range g.designs {
		out.designs[k] = d.Clone()
	}
	for id, s := range g.visibility {
		out.visibility[id] = model.Sight{
			Stars:  append([]model.StarID(nil), s.Stars...),
			Fleets: append([]model.FleetKey(nil), s.Fleets...),
		}
	}
	return out
}
