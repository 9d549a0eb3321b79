package intake

import (
	"errors"
	"math"

	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/internal/sim/state"
	"github.com/signalsfoundry/stellar-empires/kb"
	"github.com/signalsfoundry/stellar-empires/model"
)

// percentTolerance bounds the rounding slack on research percentages.
const percentTolerance = 1e-6

type validator struct {
	rules   config.Rules
	catalog *kb.DesignCatalog
	galaxy  *state.Galaxy
	empire  *model.Empire
	pending []model.Command
}

// check validates o and returns it in normalised form.
func (v validator) check(o model.Order) (model.Order, error) {
	switch o := o.(type) {
	case model.WaypointOrder:
		return v.waypoints(o)
	case model.ProductionOrder:
		return v.production(o)
	case model.ResearchOrder:
		return v.research(o)
	case model.DesignOrder:
		return v.design(o)
	case model.RelationOrder:
		return v.relation(o)
	case model.TacticOrder:
		return v.tactic(o)
	default:
		return nil, reject(ErrInvalidOrder, "unsupported order %T", o)
	}
}

func (v validator) ownFleet(seq int) *model.Fleet {
	return v.galaxy.Fleet(model.FleetKey{Empire: v.empire.ID, Seq: seq})
}

func (v validator) waypoints(o model.WaypointOrder) (model.Order, error) {
	f := v.ownFleet(o.Fleet)
	if f == nil {
		return nil, reject(ErrForeignAsset, "fleet %d", o.Fleet)
	}
	if len(o.Waypoints) == 0 {
		return nil, reject(ErrInvalidOrder, "fleet %d: empty waypoint list", o.Fleet)
	}
	total := len(o.Waypoints)
	if o.Append {
		total += len(f.Waypoints)
	}
	if total > v.rules.MaxWaypoints {
		return nil, reject(ErrInvalidOrder, "fleet %d: %d waypoints exceeds %d", o.Fleet, total, v.rules.MaxWaypoints)
	}

	specs := make([]model.WaypointSpec, len(o.Waypoints))
	for i, w := range o.Waypoints {
		if !w.Task.Valid() {
			return nil, reject(ErrInvalidOrder, "waypoint %d: unknown task %q", i, w.Task)
		}
		if w.Star != "" {
			star := v.galaxy.Star(w.Star)
			if star == nil {
				return nil, reject(ErrInvalidOrder, "waypoint %d: unknown star %q", i, w.Star)
			}
			w.Target = star.Position
		} else if !w.Target.IsFinite() {
			return nil, reject(ErrInvalidOrder, "waypoint %d: coordinates must be finite", i)
		}
		switch w.Task {
		case model.TaskColonize:
			if w.Star == "" {
				return nil, reject(ErrInvalidOrder, "waypoint %d: colonize needs a star", i)
			}
		case model.TaskMerge:
			if w.MergeWith == o.Fleet || v.ownFleet(w.MergeWith) == nil {
				return nil, reject(ErrForeignAsset, "waypoint %d: merge target fleet %d", i, w.MergeWith)
			}
		case model.TaskSplit:
			if w.Split.Design == "" || w.Split.Count <= 0 {
				return nil, reject(ErrInvalidOrder, "waypoint %d: split needs a design and a positive count", i)
			}
		}
		specs[i] = w
	}
	o.Waypoints = specs
	return o, nil
}

// designKnown reports whether name is committed for the empire or submitted
// earlier in the same turn.
func (v validator) designKnown(name string) bool {
	if d, ok := v.galaxy.Design(v.empire.ID, name); ok && d.UsableBy(v.empire.ID) {
		return true
	}
	for _, c := range v.pending {
		if d, ok := c.Order.(model.DesignOrder); ok && d.Action == model.DesignSubmit && d.Design.Name == name {
			return true
		}
	}
	return false
}

func (v validator) production(o model.ProductionOrder) (model.Order, error) {
	star := v.galaxy.Star(o.Star)
	if star == nil || star.Owner != v.empire.ID {
		return nil, reject(ErrForeignAsset, "star %q", o.Star)
	}
	if len(o.Queue) > v.rules.MaxQueueLength {
		return nil, reject(ErrInvalidOrder, "queue of %d entries exceeds %d", len(o.Queue), v.rules.MaxQueueLength)
	}
	for i, e := range o.Queue {
		if e.Quantity <= 0 {
			return nil, reject(ErrInvalidOrder, "entry %d: quantity must be positive", i)
		}
		switch e.Kind {
		case model.BuildShip:
			if !v.designKnown(e.Design) {
				return nil, reject(ErrInvalidOrder, "entry %d: unknown design %q", i, e.Design)
			}
		case model.BuildInstallation:
			rule, ok := v.rules.Installations[e.Installation]
			if !e.Installation.Valid() || !ok {
				return nil, reject(ErrInvalidOrder, "entry %d: unknown installation %q", i, e.Installation)
			}
			if !rule.Requires.Met(v.empire) {
				return nil, reject(ErrTechLocked, "entry %d: %s needs %s %d", i, e.Installation, rule.Requires.Field, rule.Requires.Level)
			}
		default:
			return nil, reject(ErrInvalidOrder, "entry %d: unknown kind %q", i, e.Kind)
		}
		if e.TargetFleet != 0 {
			if e.Kind != model.BuildShip || v.ownFleet(e.TargetFleet) == nil {
				return nil, reject(ErrForeignAsset, "entry %d: target fleet %d", i, e.TargetFleet)
			}
		}
	}
	return o, nil
}

func (v validator) research(o model.ResearchOrder) (model.Order, error) {
	share := o.Allocation.Share
	switch {
	case math.IsNaN(share) || share < 0:
		return nil, reject(ErrInvalidOrder, "research share %v", share)
	case share > 1:
		return nil, reject(ErrInsufficientResources, "research share %v exceeds available output", share)
	}
	sum := 0.0
	for field, pct := range o.Allocation.Percent {
		if !field.Valid() {
			return nil, reject(ErrInvalidOrder, "unknown field %q", field)
		}
		if pct < 0 || math.IsNaN(pct) {
			return nil, reject(ErrInvalidOrder, "field %q has percent %v", field, pct)
		}
		sum += pct
	}
	if math.Abs(sum-100) > percentTolerance {
		return nil, reject(ErrInvalidOrder, "field percentages sum to %v, want 100", sum)
	}
	o.Allocation = o.Allocation.Clone()
	return o, nil
}

func (v validator) design(o model.DesignOrder) (model.Order, error) {
	d := o.Design.Clone()
	if d.Owner != "" && d.Owner != v.empire.ID {
		return nil, reject(ErrForeignAsset, "design %q", d.Name)
	}
	d.Owner = v.empire.ID
	if d.Name == "" {
		return nil, reject(ErrInvalidOrder, "design needs a name")
	}
	existing, exists := v.galaxy.Design(v.empire.ID, d.Name)

	switch o.Action {
	case model.DesignSubmit:
		if exists && existing.Owner == "" {
			return nil, reject(ErrInvalidOrder, "name %q is taken by a shared design", d.Name)
		}
		if exists && v.galaxy.DesignInUse(v.empire.ID, d.Name) {
			return nil, reject(ErrDesignInUse, "%q", d.Name)
		}
		if err := v.catalog.ValidateDesign(d, v.empire); err != nil {
			if errors.Is(err, kb.ErrLocked) {
				return nil, reject(ErrTechLocked, "%v", err)
			}
			return nil, reject(ErrInvalidOrder, "%v", err)
		}
	case model.DesignRetire:
		if !exists || existing.Owner != v.empire.ID {
			return nil, reject(ErrInvalidOrder, "no design %q to retire", d.Name)
		}
		if v.galaxy.DesignInUse(v.empire.ID, d.Name) {
			return nil, reject(ErrDesignInUse, "%q", d.Name)
		}
	default:
		return nil, reject(ErrInvalidOrder, "unknown design action %q", o.Action)
	}
	o.Design = *d
	return o, nil
}

func (v validator) relation(o model.RelationOrder) (model.Order, error) {
	if o.Target == v.empire.ID {
		return nil, reject(ErrInvalidOrder, "cannot set a stance toward yourself")
	}
	if v.galaxy.Empire(o.Target) == nil {
		return nil, reject(ErrUnknownEmpire, "%q", o.Target)
	}
	if !o.Relation.Valid() {
		return nil, reject(ErrInvalidOrder, "unknown relation %q", o.Relation)
	}
	return o, nil
}

func (v validator) tactic(o model.TacticOrder) (model.Order, error) {
	if v.ownFleet(o.Fleet) == nil {
		return nil, reject(ErrForeignAsset, "fleet %d", o.Fleet)
	}
	if !o.Tactic.Valid() {
		return nil, reject(ErrInvalidOrder, "unknown tactic %q", o.Tactic)
	}
	return o, nil
}
