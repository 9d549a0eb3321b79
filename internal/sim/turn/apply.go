package turn

import (
	"fmt"
	"sort"

	"github.com/signalsfoundry/stellar-empires/core"
	"github.com/signalsfoundry/stellar-empires/internal/sim/state"
	"github.com/signalsfoundry/stellar-empires/model"
)

// SkippedOrder is an accepted command that no longer applied when the turn
// resolved, for example a queue entry for a design retired in the same batch.
type SkippedOrder struct {
	Command model.Command
	Reason  string
}

// applyRank fixes the order in which kinds of orders are applied so that
// designs exist before production references them.
func applyRank(o model.Order) int {
	switch o.(type) {
	case model.DesignOrder:
		return 0
	case model.RelationOrder:
		return 1
	case model.ResearchOrder:
		return 2
	case model.TacticOrder:
		return 3
	case model.ProductionOrder:
		return 4
	case model.WaypointOrder:
		return 5
	default:
		return 6
	}
}

// ApplyOrders writes a batch of accepted commands into g. The batch is
// applied by order kind, then in batch order, so the outcome does not depend
// on submission timing across empires.
func ApplyOrders(g *state.Galaxy, batch []model.Command) []SkippedOrder {
	ordered := append([]model.Command(nil), batch...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return applyRank(ordered[i].Order) < applyRank(ordered[j].Order)
	})

	var skipped []SkippedOrder
	for _, c := range ordered {
		if err := applyOrder(g, c); err != nil {
			skipped = append(skipped, SkippedOrder{Command: c, Reason: err.Error()})
		}
	}
	return skipped
}

func applyOrder(g *state.Galaxy, c model.Command) error {
	e := g.Empire(c.Empire)
	if e == nil || e.Status == model.EmpireDefeated {
		return fmt.Errorf("empire %q is not active", c.Empire)
	}
	switch o := c.Order.(type) {
	case model.DesignOrder:
		return applyDesign(g, e, o)
	case model.RelationOrder:
		if e.Relations == nil {
			e.Relations = make(map[model.EmpireID]model.Relation)
		}
		e.Relations[o.Target] = o.Relation
	case model.ResearchOrder:
		e.Research = o.Allocation.Clone()
	case model.TacticOrder:
		f := g.Fleet(model.FleetKey{Empire: e.ID, Seq: o.Fleet})
		if f == nil {
			return fmt.Errorf("fleet %d no longer exists", o.Fleet)
		}
		f.Tactic = o.Tactic
	case model.ProductionOrder:
		return applyProduction(g, e, o)
	case model.WaypointOrder:
		return applyWaypoints(g, e, o)
	default:
		return fmt.Errorf("unsupported order %T", c.Order)
	}
	return nil
}

func applyDesign(g *state.Galaxy, e *model.Empire, o model.DesignOrder) error {
	d := o.Design.Clone()
	d.Owner = e.ID
	existing, exists := g.Design(e.ID, d.Name)
	ownExists := exists && existing.Owner == e.ID
	if ownExists && g.DesignInUse(e.ID, d.Name) {
		return fmt.Errorf("design %q is in use", d.Name)
	}
	switch o.Action {
	case model.DesignSubmit:
		if ownExists {
			g.ReplaceDesign(d)
			return nil
		}
		return g.AddDesign(d)
	case model.DesignRetire:
		if !ownExists {
			return fmt.Errorf("design %q does not exist", d.Name)
		}
		g.RemoveDesign(d.Key())
		return nil
	default:
		return fmt.Errorf("unknown design action %q", o.Action)
	}
}

func sameItem(e model.QueueEntry, s model.QueueEntrySpec) bool {
	return e.Kind == s.Kind && e.Design == s.Design && e.Installation == s.Installation
}

func applyProduction(g *state.Galaxy, e *model.Empire, o model.ProductionOrder) error {
	star := g.Star(o.Star)
	if star == nil || star.Owner != e.ID {
		return fmt.Errorf("star %q is no longer owned", o.Star)
	}
	var queue []model.QueueEntry
	keep := true
	for i, spec := range o.Queue {
		if spec.Kind == model.BuildShip {
			if d, ok := g.Design(e.ID, spec.Design); !ok || !d.UsableBy(e.ID) {
				return fmt.Errorf("design %q no longer exists", spec.Design)
			}
		}
		entry := model.QueueEntry{
			Kind:         spec.Kind,
			Design:       spec.Design,
			Installation: spec.Installation,
			Quantity:     spec.Quantity,
			TargetFleet:  spec.TargetFleet,
		}
		// Leading entries unchanged from the old queue keep their progress.
		if keep && i < len(star.Queue) && sameItem(star.Queue[i], spec) {
			entry.Progress = star.Queue[i].Progress
		} else {
			keep = false
		}
		queue = append(queue, entry)
	}
	star.Queue = queue
	return nil
}

func applyWaypoints(g *state.Galaxy, e *model.Empire, o model.WaypointOrder) error {
	f := g.Fleet(model.FleetKey{Empire: e.ID, Seq: o.Fleet})
	if f == nil {
		return fmt.Errorf("fleet %d no longer exists", o.Fleet)
	}
	var route []model.Waypoint
	if o.Append {
		route = append(route, f.Waypoints...)
	}
	for _, spec := range o.Waypoints {
		wp := model.Waypoint{
			Target:    spec.Target,
			Star:      spec.Star,
			Task:      spec.Task,
			MergeWith: spec.MergeWith,
			Split:     spec.Split,
		}
		if spec.Star != "" {
			if s := g.Star(spec.Star); s != nil {
				wp.Target = s.Position
			}
		}
		route = append(route, wp)
	}
	targets := make([]model.Vec2, len(route))
	for i, wp := range route {
		targets[i] = wp.Target
	}
	for i, d := range core.PathDistances(f.Position, targets) {
		route[i].Distance = d
	}
	f.Waypoints = route
	f.Stranded = false
	return nil
}
