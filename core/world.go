// Package core holds the turn resolvers. Each resolver reads a World,
// computes per-entity deltas (in parallel where entities are independent)
// and applies them in a fixed order so results never depend on scheduling.
package core

import (
	"github.com/signalsfoundry/stellar-empires/model"
)

// World is the mutable working copy of a galaxy the resolvers operate on.
// Listing methods return ids in canonical sorted order.
type World interface {
	EmpireIDs() []model.EmpireID
	Empire(id model.EmpireID) *model.Empire

	StarIDs() []model.StarID
	Star(id model.StarID) *model.Star

	FleetKeys() []model.FleetKey
	Fleet(key model.FleetKey) *model.Fleet
	AddFleet(f *model.Fleet) error
	RemoveFleet(key model.FleetKey)
}

// Hostile reports whether a and b fight on contact: either side declaring
// the other hostile is enough. def is the stance assumed when an empire has
// declared nothing toward the other.
func Hostile(w World, a, b model.EmpireID, def model.Relation) bool {
	if a == b {
		return false
	}
	return stance(w.Empire(a), b, def) == model.RelationHostile ||
		stance(w.Empire(b), a, def) == model.RelationHostile
}

func stance(e *model.Empire, toward model.EmpireID, def model.Relation) model.Relation {
	if e == nil {
		return def
	}
	if r, ok := e.Relations[toward]; ok && r != "" {
		return r
	}
	return def
}

// starsByLocation indexes star ids by quantised position.
func starsByLocation(w World) map[model.LocationKey]model.StarID {
	out := make(map[model.LocationKey]model.StarID)
	for _, id := range w.StarIDs() {
		if s := w.Star(id); s != nil {
			out[model.KeyOf(s.Position)] = id
		}
	}
	return out
}

// fleetCapacity sums fuel and cargo capacity over a fleet's ships.
func fleetCapacity(stats *StatsTable, f *model.Fleet) (fuel, cargo float64) {
	for _, s := range f.Ships {
		st := stats.shipStats(f.Owner(), s)
		fuel += st.FuelCapacity
		cargo += st.CargoCapacity
	}
	return fuel, cargo
}
