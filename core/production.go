package core

import (
	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/model"
)

// spendEpsilon absorbs float drift when progress meets a cost exactly.
const spendEpsilon = 1e-9

// StarProduction reports one star's production for the turn.
type StarProduction struct {
	Star      model.StarID
	Owner     model.EmpireID
	Available float64 // output left after the research share
	CarriedIn float64 // progress on the queue before the turn
	Spent     float64 // resources applied this turn
	Wasted    float64 // output left over with an empty queue
	Blocked   bool    // front entry has no known cost

	Built         int              // ships completed
	Ships         []model.FleetKey // fleets created or reinforced
	Installations map[model.InstallationKind]int
}

// ProductionResult is the production phase report in star id order.
type ProductionResult struct {
	Stars []StarProduction
}

// ProductionResolver applies star output to production queues.
type ProductionResolver struct {
	Rules   config.Rules
	Stats   *StatsTable
	Workers int
}

type shipBuild struct {
	entry       int
	design      string
	count       int
	targetFleet int
}

type starDelta struct {
	report     StarProduction
	queue      []model.QueueEntry
	builds     []shipBuild
	population int64
}

// Resolve runs production on every owned star. Stars are computed in
// parallel and applied in star id order, which also fixes the order in
// which new fleet keys are allocated.
func (r *ProductionResolver) Resolve(w World) ProductionResult {
	ids := w.StarIDs()
	shares := make(map[model.EmpireID]float64)
	for _, id := range w.EmpireIDs() {
		shares[id] = researchShare(w.Empire(id))
	}

	deltas := make([]*starDelta, len(ids))
	forEach(r.Workers, len(ids), func(i int) {
		s := w.Star(ids[i])
		if !s.Owned() {
			return
		}
		deltas[i] = r.plan(s, shares[s.Owner])
	})

	var res ProductionResult
	for i, d := range deltas {
		if d == nil {
			continue
		}
		r.apply(w, w.Star(ids[i]), d)
		res.Stars = append(res.Stars, d.report)
	}
	return res
}

// Cost returns the resource cost of one unit of a queue entry for owner.
func (r *ProductionResolver) Cost(owner model.EmpireID, e model.QueueEntry) (float64, bool) {
	switch e.Kind {
	case model.BuildShip:
		st, ok := r.Stats.Lookup(owner, e.Design)
		if !ok || st.Cost <= 0 {
			return 0, false
		}
		return st.Cost, true
	case model.BuildInstallation:
		rule, ok := r.Rules.Installations[e.Installation]
		if !ok || rule.Cost <= 0 {
			return 0, false
		}
		return rule.Cost, true
	}
	return 0, false
}

func (r *ProductionResolver) plan(s *model.Star, share float64) *starDelta {
	d := &starDelta{
		report: StarProduction{
			Star:  s.ID,
			Owner: s.Owner,
		},
		queue:      append([]model.QueueEntry(nil), s.Queue...),
		population: grownPopulation(s.Population, r.Rules.PopulationGrowth, r.Rules.MaxPopulation),
	}
	budget := StarOutput(r.Rules, s) * (1 - share)
	d.report.Available = budget
	for _, e := range d.queue {
		d.report.CarriedIn += e.Progress
	}

	entry := 0
	for len(d.queue) > 0 && budget > 0 {
		e := &d.queue[0]
		cost, ok := r.Cost(s.Owner, *e)
		if !ok {
			d.report.Blocked = true
			break
		}
		need := cost - e.Progress
		if budget+spendEpsilon < need {
			e.Progress += budget
			d.report.Spent += budget
			budget = 0
			break
		}
		budget = max(0, budget-need)
		d.report.Spent += need
		e.Progress = 0
		e.Quantity--
		switch e.Kind {
		case model.BuildShip:
			d.addShip(entry, e.Design, e.TargetFleet)
		case model.BuildInstallation:
			if d.report.Installations == nil {
				d.report.Installations = make(map[model.InstallationKind]int)
			}
			d.report.Installations[e.Installation]++
		}
		if e.Quantity <= 0 {
			d.queue = d.queue[1:]
			entry++
		}
	}
	if len(d.queue) == 0 {
		d.report.Wasted = budget
	}
	return d
}

// addShip counts a finished ship against queue entry `entry`. Ships of one
// entry finished in the same turn share a fleet.
func (d *starDelta) addShip(entry int, design string, target int) {
	if n := len(d.builds); n > 0 && d.builds[n-1].entry == entry {
		d.builds[n-1].count++
		return
	}
	d.builds = append(d.builds, shipBuild{entry: entry, design: design, count: 1, targetFleet: target})
}

func (r *ProductionResolver) apply(w World, s *model.Star, d *starDelta) {
	s.Queue = d.queue
	if len(s.Queue) == 0 {
		s.Queue = nil
	}
	s.Population = d.population
	for kind, n := range d.report.Installations {
		if s.Installations == nil {
			s.Installations = make(map[model.InstallationKind]int)
		}
		s.Installations[kind] += n
	}

	empire := w.Empire(s.Owner)
	for _, b := range d.builds {
		if empire == nil {
			continue
		}
		ships := make([]model.Ship, 0, b.count)
		for i := 0; i < b.count; i++ {
			ship, ok := r.Stats.NewShip(s.Owner, b.design)
			if !ok {
				continue
			}
			ships = append(ships, ship)
		}
		if len(ships) == 0 {
			continue
		}
		d.report.Built += len(ships)
		if target := w.Fleet(model.FleetKey{Empire: s.Owner, Seq: b.targetFleet}); b.targetFleet > 0 && target != nil &&
			target.Idle() && model.KeyOf(target.Position) == model.KeyOf(s.Position) {
			target.Ships = append(target.Ships, ships...)
			d.report.Ships = append(d.report.Ships, target.Key)
			continue
		}
		f := &model.Fleet{
			Key:      empire.AllocateFleetKey(),
			Name:     b.design,
			Position: s.Position,
			Ships:    ships,
		}
		f.Fuel, _ = fleetCapacity(r.Stats, f)
		if err := w.AddFleet(f); err == nil {
			d.report.Ships = append(d.report.Ships, f.Key)
		}
	}
}
