package state

import (
	"github.com/signalsfoundry/stellar-empires/model"
)

// EmpireSummary is the public face of an empire.
type EmpireSummary struct {
	ID     model.EmpireID
	Name   string
	Status model.EmpireStatus
}

// View is the committed galaxy as one empire may see it: its own assets in
// full, foreign assets inside its scan coverage without orders, and nothing
// else.
type View struct {
	Turn    int
	Empire  model.EmpireID
	Self    *model.Empire
	Empires []EmpireSummary
	Stars   []*model.Star
	Fleets  []*model.Fleet
	Designs []*model.Design
}

// ViewFor filters g for empire. The returned values are copies.
func (g *Galaxy) ViewFor(empire model.EmpireID) (*View, error) {
	self, ok := g.empires[empire]
	if !ok {
		return nil, ErrEmpireNotFound
	}
	sight := g.visibility[empire]
	v := &View{Turn: g.Turn, Empire: empire, Self: self.Clone()}

	for _, id := range g.EmpireIDs() {
		e := g.empires[id]
		v.Empires = append(v.Empires, EmpireSummary{ID: e.ID, Name: e.Name, Status: e.Status})
	}
	for _, id := range g.StarIDs() {
		s := g.stars[id]
		switch {
		case s.Owner == empire:
			v.Stars = append(v.Stars, s.Clone())
		case sight.SeesStar(id):
			foreign := s.Clone()
			foreign.Queue = nil
			v.Stars = append(v.Stars, foreign)
		}
	}
	for _, key := range g.FleetKeys() {
		f := g.fleets[key]
		switch {
		case key.Empire == empire:
			v.Fleets = append(v.Fleets, f.Clone())
		case sight.SeesFleet(key):
			foreign := f.Clone()
			foreign.Waypoints = nil
			foreign.Fuel = 0
			foreign.Cargo = 0
			v.Fleets = append(v.Fleets, foreign)
		}
	}
	for _, d := range g.Designs() {
		if d.UsableBy(empire) {
			v.Designs = append(v.Designs, d.Clone())
		}
	}
	return v, nil
}
