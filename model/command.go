package model

import "strconv"

// Order is the closed set of instructions an empire can submit.
type Order interface {
	// Subject identifies what the order targets. A later order with the same
	// subject replaces an earlier one within a turn.
	Subject() string
	isOrder()
}

// Command is one empire-scoped instruction for a given turn.
type Command struct {
	Empire EmpireID
	Turn   int
	Order  Order
}

// WaypointSpec is the client form of a waypoint.
type WaypointSpec struct {
	Target    Vec2
	Star      StarID // when set, Target is taken from the star's position
	Task      WaypointTask
	MergeWith int
	Split     SplitSpec
}

// WaypointOrder replaces (or appends to) a fleet's waypoint queue.
type WaypointOrder struct {
	Fleet     int // sequence within the submitting empire
	Waypoints []WaypointSpec
	Append    bool
}

// QueueEntrySpec is the client form of a production queue entry.
type QueueEntrySpec struct {
	Kind         BuildKind
	Design       string
	Installation InstallationKind
	Quantity     int
	TargetFleet  int
}

// ProductionOrder replaces a star's production queue. Leading entries that
// match the existing queue keep their progress.
type ProductionOrder struct {
	Star  StarID
	Queue []QueueEntrySpec
}

// ResearchOrder replaces the empire's research allocation.
type ResearchOrder struct {
	Allocation ResearchAllocation
}

// DesignAction selects what a DesignOrder does.
type DesignAction string

const (
	DesignSubmit DesignAction = "submit"
	DesignRetire DesignAction = "retire"
)

// DesignOrder creates, replaces (when unused) or retires a design.
type DesignOrder struct {
	Action DesignAction
	Design Design
}

// RelationOrder changes the empire's stance toward another empire.
type RelationOrder struct {
	Target   EmpireID
	Relation Relation
}

// TacticOrder sets a fleet's combat tactic.
type TacticOrder struct {
	Fleet  int
	Tactic Tactic
}

func (o WaypointOrder) Subject() string   { return "waypoints:" + strconv.Itoa(o.Fleet) }
func (o ProductionOrder) Subject() string { return "production:" + string(o.Star) }
func (o ResearchOrder) Subject() string   { return "research" }
func (o DesignOrder) Subject() string     { return "design:" + o.Design.Name }
func (o RelationOrder) Subject() string   { return "relation:" + string(o.Target) }
func (o TacticOrder) Subject() string     { return "tactic:" + strconv.Itoa(o.Fleet) }

func (WaypointOrder) isOrder()   {}
func (ProductionOrder) isOrder() {}
func (ResearchOrder) isOrder()   {}
func (DesignOrder) isOrder()     {}
func (RelationOrder) isOrder()   {}
func (TacticOrder) isOrder()     {}
