package core

import (
	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/model"
)

type sensor struct {
	at    model.Vec2
	reach float64
}

// VisibilityResolver computes, for each empire, the foreign stars and fleets
// inside the scan coverage of its stars and fleets. It reads post-movement
// positions and mutates nothing.
type VisibilityResolver struct {
	Rules   config.Rules
	Stats   *StatsTable
	Workers int
}

// Resolve returns the sight of every empire.
func (r *VisibilityResolver) Resolve(w World) map[model.EmpireID]model.Sight {
	empires := w.EmpireIDs()
	starIDs := w.StarIDs()
	fleetKeys := w.FleetKeys()

	sensors := make(map[model.EmpireID][]sensor, len(empires))
	for _, id := range starIDs {
		s := w.Star(id)
		if !s.Owned() {
			continue
		}
		sensors[s.Owner] = append(sensors[s.Owner], sensor{at: s.Position, reach: r.StarRange(s)})
	}
	for _, key := range fleetKeys {
		f := w.Fleet(key)
		if reach := r.FleetRange(f); reach > 0 {
			sensors[f.Owner()] = append(sensors[f.Owner()], sensor{at: f.Position, reach: reach})
		}
	}

	sights := make([]model.Sight, len(empires))
	forEach(r.Workers, len(empires), func(i int) {
		owner := empires[i]
		own := sensors[owner]
		if len(own) == 0 {
			return
		}
		var sight model.Sight
		for _, id := range starIDs {
			s := w.Star(id)
			if s.Owner != owner && covered(own, s.Position) {
				sight.Stars = append(sight.Stars, id)
			}
		}
		for _, key := range fleetKeys {
			f := w.Fleet(key)
			if f.Owner() != owner && covered(own, f.Position) {
				sight.Fleets = append(sight.Fleets, key)
			}
		}
		sights[i] = sight
	})

	out := make(map[model.EmpireID]model.Sight, len(empires))
	for i, id := range empires {
		out[id] = sights[i]
	}
	return out
}

// StarRange is the detection radius of an owned star.
func (r *VisibilityResolver) StarRange(s *model.Star) float64 {
	return r.Rules.BaseDetectionRange +
		r.Rules.ScannerInstallationRange*float64(s.Installation(model.InstallationScanner))
}

// FleetRange is the best scanner range among a fleet's ships.
func (r *VisibilityResolver) FleetRange(f *model.Fleet) float64 {
	best := 0.0
	for _, s := range f.Ships {
		if rng := r.Stats.shipStats(f.Owner(), s).ScanRange; rng > best {
			best = rng
		}
	}
	return best
}

func covered(sensors []sensor, p model.Vec2) bool {
	for _, s := range sensors {
		if withinRange(s.at, p, s.reach) {
			return true
		}
	}
	return false
}
