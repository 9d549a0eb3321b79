package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/model"
)

// FleetMove is the movement delta of one fleet for one turn.
type FleetMove struct {
	Fleet    model.FleetKey
	From     model.Vec2
	To       model.Vec2
	Distance float64
	FuelUsed float64
	Popped   int  // waypoints consumed
	Stranded bool // fuel ran out with distance remaining

	// Arrived is set when the fleet stopped on a waypoint carrying a task.
	Arrived *model.Waypoint
}

// ArrivalKind names the outcome of a waypoint task.
type ArrivalKind string

const (
	ArrivalColonized ArrivalKind = "colonized"
	ArrivalMerged    ArrivalKind = "merged"
	ArrivalSplit     ArrivalKind = "split"
	ArrivalFailed    ArrivalKind = "failed"
)

// ArrivalEvent reports a processed waypoint task.
type ArrivalEvent struct {
	Fleet  model.FleetKey
	Task   model.WaypointTask
	Kind   ArrivalKind
	Star   model.StarID   // colonize
	Other  model.FleetKey // merge target or split-off fleet
	Reason string         // set when Kind is ArrivalFailed
}

// MovementResult is the movement phase report.
type MovementResult struct {
	Moves    []FleetMove
	Arrivals []ArrivalEvent
	// Violations lists fleets whose planned position left their route.
	Violations []string
}

// MovementResolver advances fleets along their waypoints, then runs arrival
// tasks and refuels and repairs fleets sitting at their own stars.
type MovementResolver struct {
	Rules   config.Rules
	Stats   *StatsTable
	Workers int
}

// Resolve moves every fleet in w.
func (r *MovementResolver) Resolve(w World) MovementResult {
	keys := w.FleetKeys()
	plans := make([]FleetMove, len(keys))
	forEach(r.Workers, len(keys), func(i int) {
		plans[i] = r.Plan(w.Fleet(keys[i]))
	})

	var res MovementResult
	for _, m := range plans {
		if m.Distance == 0 && m.Popped == 0 && !m.Stranded && m.Arrived == nil {
			continue
		}
		f := w.Fleet(m.Fleet)
		if !m.OnRoute(f.Waypoints) {
			res.Violations = append(res.Violations, fmt.Sprintf("fleet %s left its route at %v", m.Fleet, m.To))
		}
		m.Apply(f)
		res.Moves = append(res.Moves, m)
	}

	for _, m := range res.Moves {
		if m.Arrived == nil {
			continue
		}
		if ev, ok := r.arrive(w, m.Fleet, *m.Arrived); ok {
			res.Arrivals = append(res.Arrivals, ev)
		}
	}

	r.service(w)
	return res
}

// Plan computes the movement of f without mutating it.
func (r *MovementResolver) Plan(f *model.Fleet) FleetMove {
	move := FleetMove{Fleet: f.Key, From: f.Position, To: f.Position}
	if f.Idle() || len(f.Ships) == 0 {
		return move
	}

	speed, costPerDistance := r.performance(f)
	if speed <= 0 {
		return move
	}
	budget := speed
	fuelLimited := false
	if costPerDistance > 0 {
		reach := f.Fuel / costPerDistance
		if reach < budget {
			budget = reach
			fuelLimited = true
		}
	}

	pos := f.Position
	remaining := budget
	for _, wp := range f.Waypoints {
		next, used, reached := stepToward(pos, wp.Target, remaining)
		pos = next
		remaining -= used
		move.Distance += used
		if !reached {
			break
		}
		move.Popped++
		if wp.Task != "" && wp.Task != model.TaskMove {
			arrived := wp
			move.Arrived = &arrived
			break
		}
		if remaining <= arrivalEpsilon {
			break
		}
	}
	move.To = pos
	move.FuelUsed = math.Min(f.Fuel, move.Distance*costPerDistance)
	if fuelLimited && move.Popped < len(f.Waypoints) && move.Arrived == nil {
		move.Stranded = true
	}
	return move
}

// OnRoute reports whether the planned end position lies on the route the
// fleet was following: on the leg after the last popped waypoint, or exactly
// on the last popped waypoint.
func (m FleetMove) OnRoute(route []model.Waypoint) bool {
	point := func(i int) model.Vec2 {
		if i == 0 {
			return m.From
		}
		return route[i-1].Target
	}
	if m.Popped > len(route) {
		return false
	}
	if m.Popped < len(route) && onSegment(point(m.Popped), route[m.Popped].Target, m.To) {
		return true
	}
	if m.Popped > 0 && onSegment(point(m.Popped-1), route[m.Popped-1].Target, m.To) {
		return true
	}
	return m.Popped == 0 && m.To == m.From
}

// Apply writes the delta onto f.
func (m FleetMove) Apply(f *model.Fleet) {
	if f == nil {
		return
	}
	f.Position = m.To
	f.Fuel -= m.FuelUsed
	if f.Fuel < 1e-9 {
		f.Fuel = 0
	}
	if m.Popped > len(f.Waypoints) {
		m.Popped = len(f.Waypoints)
	}
	f.Waypoints = append([]model.Waypoint(nil), f.Waypoints[m.Popped:]...)
	targets := make([]model.Vec2, len(f.Waypoints))
	for i, wp := range f.Waypoints {
		targets[i] = wp.Target
	}
	for i, d := range PathDistances(f.Position, targets) {
		f.Waypoints[i].Distance = d
	}
	f.Stranded = m.Stranded
}

// performance returns the fleet's speed (slowest ship) and its fuel cost per
// light year. Cargo is spread over ships by cargo capacity.
func (r *MovementResolver) performance(f *model.Fleet) (speed, costPerDistance float64) {
	owner := f.Owner()
	_, cargoCap := fleetCapacity(r.Stats, f)
	speed = math.Inf(1)
	for _, s := range f.Ships {
		st := r.Stats.shipStats(owner, s)
		share := 0.0
		switch {
		case cargoCap > 0:
			share = f.Cargo * st.CargoCapacity / cargoCap
		case len(f.Ships) > 0:
			share = f.Cargo / float64(len(f.Ships))
		}
		speed = math.Min(speed, st.SpeedWithCargo(share))
		costPerDistance += (st.Mass + share) * st.FuelUse * r.Rules.FuelPerMassDistance
	}
	if math.IsInf(speed, 1) {
		speed = 0
	}
	return speed, costPerDistance
}

// arrive runs the task of a reached waypoint.
func (r *MovementResolver) arrive(w World, key model.FleetKey, wp model.Waypoint) (ArrivalEvent, bool) {
	f := w.Fleet(key)
	if f == nil {
		return ArrivalEvent{}, false
	}
	ev := ArrivalEvent{Fleet: key, Task: wp.Task}
	fail := func(reason string) (ArrivalEvent, bool) {
		ev.Kind = ArrivalFailed
		ev.Reason = reason
		return ev, true
	}

	switch wp.Task {
	case model.TaskColonize:
		starID := wp.Star
		if starID == "" {
			starID = starsByLocation(w)[model.KeyOf(f.Position)]
		}
		star := w.Star(starID)
		if star == nil || model.KeyOf(star.Position) != model.KeyOf(f.Position) {
			return fail("no star at waypoint")
		}
		if star.Owned() {
			return fail("star already owned")
		}
		idx := -1
		for i, s := range f.Ships {
			if r.Stats.shipStats(f.Owner(), s).Colonizer {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fail("fleet has no colony ship")
		}
		f.Ships = append(f.Ships[:idx], f.Ships[idx+1:]...)
		star.Owner = f.Owner()
		star.Population = r.Rules.ColonistsPerPod
		star.Queue = nil
		if len(f.Ships) == 0 {
			w.RemoveFleet(key)
		}
		ev.Kind = ArrivalColonized
		ev.Star = starID
		return ev, true

	case model.TaskMerge:
		targetKey := model.FleetKey{Empire: f.Owner(), Seq: wp.MergeWith}
		target := w.Fleet(targetKey)
		if target == nil || targetKey == key {
			return fail("merge target missing")
		}
		if model.KeyOf(target.Position) != model.KeyOf(f.Position) {
			return fail("merge target not co-located")
		}
		target.Ships = append(target.Ships, f.Ships...)
		target.Fuel += f.Fuel
		target.Cargo += f.Cargo
		fuelCap, _ := fleetCapacity(r.Stats, target)
		if target.Fuel > fuelCap {
			target.Fuel = fuelCap
		}
		w.RemoveFleet(key)
		ev.Kind = ArrivalMerged
		ev.Other = targetKey
		return ev, true

	case model.TaskSplit:
		if wp.Split.Count <= 0 {
			return fail("split count must be positive")
		}
		var keep, detach []model.Ship
		for _, s := range f.Ships {
			if len(detach) < wp.Split.Count && (wp.Split.Design == "" || s.Design == wp.Split.Design) {
				detach = append(detach, s)
				continue
			}
			keep = append(keep, s)
		}
		if len(detach) == 0 {
			return fail("no matching ships")
		}
		if len(keep) == 0 {
			return fail("split would empty the fleet")
		}
		empire := w.Empire(f.Owner())
		if empire == nil {
			return fail("unknown owner")
		}
		oldCap, _ := fleetCapacity(r.Stats, f)
		f.Ships = keep
		keepCap, _ := fleetCapacity(r.Stats, f)
		child := &model.Fleet{
			Key:      empire.AllocateFleetKey(),
			Position: f.Position,
			Ships:    detach,
			Tactic:   f.Tactic,
		}
		if oldCap > 0 {
			child.Fuel = f.Fuel * (oldCap - keepCap) / oldCap
			f.Fuel -= child.Fuel
		}
		if err := w.AddFleet(child); err != nil {
			f.Ships = append(keep, detach...)
			f.Fuel += child.Fuel
			return fail(err.Error())
		}
		ev.Kind = ArrivalSplit
		ev.Other = child.Key
		return ev, true
	}
	return ArrivalEvent{}, false
}

// service refuels fleets parked at their owner's stars and repairs a
// fraction of their armor.
func (r *MovementResolver) service(w World) {
	stars := starsByLocation(w)
	for _, key := range w.FleetKeys() {
		f := w.Fleet(key)
		if f == nil {
			continue
		}
		star := w.Star(stars[model.KeyOf(f.Position)])
		if star == nil || star.Owner != f.Owner() {
			continue
		}
		fuelCap, _ := fleetCapacity(r.Stats, f)
		if f.Fuel < fuelCap {
			f.Fuel = fuelCap
		}
		if f.Fuel > 0 {
			f.Stranded = false
		}
		for i := range f.Ships {
			maxArmor := r.Stats.shipStats(f.Owner(), f.Ships[i]).Armor
			f.Ships[i].Armor = math.Min(maxArmor, f.Ships[i].Armor+maxArmor*r.Rules.RepairFraction)
		}
	}
}
