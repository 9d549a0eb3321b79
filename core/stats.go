package core

import (
	"fmt"

	"github.com/signalsfoundry/stellar-empires/kb"
	"github.com/signalsfoundry/stellar-empires/model"
)

// StatsTable caches derived ship statistics for every design in a galaxy.
// It is built once per turn and read concurrently by the resolvers.
type StatsTable struct {
	byKey map[model.DesignKey]kb.ShipStats
}

// NewStatsTable derives stats for each design through the catalog.
func NewStatsTable(catalog *kb.DesignCatalog, designs []*model.Design) (*StatsTable, error) {
	t := &StatsTable{byKey: make(map[model.DesignKey]kb.ShipStats, len(designs))}
	for _, d := range designs {
		if d == nil {
			continue
		}
		stats, err := catalog.Derive(d)
		if err != nil {
			return nil, fmt.Errorf("design %s/%s: %w", d.Owner, d.Name, err)
		}
		t.byKey[d.Key()] = stats
	}
	return t, nil
}

// Lookup returns the stats of the named design as seen by owner: the
// owner's own design first, then a shared design of the same name.
func (t *StatsTable) Lookup(owner model.EmpireID, design string) (kb.ShipStats, bool) {
	if t == nil {
		return kb.ShipStats{}, false
	}
	if s, ok := t.byKey[model.DesignKey{Owner: owner, Name: design}]; ok {
		return s, true
	}
	s, ok := t.byKey[model.DesignKey{Name: design}]
	return s, ok
}

// Put records stats for a design key. Used when designs are accepted
// mid-turn.
func (t *StatsTable) Put(key model.DesignKey, stats kb.ShipStats) {
	t.byKey[key] = stats
}

// shipStats resolves a ship's stats or returns the zero value, which
// describes an unarmed, engineless hull.
func (t *StatsTable) shipStats(owner model.EmpireID, s model.Ship) kb.ShipStats {
	stats, _ := t.Lookup(owner, s.Design)
	return stats
}

// NewShip returns a ship of the design at full armor and shields.
func (t *StatsTable) NewShip(owner model.EmpireID, design string) (model.Ship, bool) {
	stats, ok := t.Lookup(owner, design)
	if !ok {
		return model.Ship{}, false
	}
	return model.Ship{Design: design, Armor: stats.Armor, Shields: stats.Shields}, true
}
