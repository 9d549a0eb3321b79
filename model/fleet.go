package model

import "fmt"

// FleetKey identifies a fleet: owning empire plus a per-empire sequence.
type FleetKey struct {
	Empire EmpireID
	Seq    int
}

func (k FleetKey) String() string { return fmt.Sprintf("%s#%d", k.Empire, k.Seq) }

// Less orders keys by empire then sequence.
func (k FleetKey) Less(o FleetKey) bool {
	if k.Empire != o.Empire {
		return k.Empire < o.Empire
	}
	return k.Seq < o.Seq
}

// WaypointTask is the action a fleet performs on reaching a waypoint.
type WaypointTask string

const (
	TaskMove     WaypointTask = "move"
	TaskColonize WaypointTask = "colonize"
	TaskMerge    WaypointTask = "merge"
	TaskSplit    WaypointTask = "split"
)

// Valid reports whether t is a known task. The empty task means move.
func (t WaypointTask) Valid() bool {
	switch t {
	case "", TaskMove, TaskColonize, TaskMerge, TaskSplit:
		return true
	}
	return false
}

// SplitSpec selects ships detached by a split task.
type SplitSpec struct {
	Design string
	Count  int
}

// Waypoint is a queued movement target.
type Waypoint struct {
	Target Vec2
	Star   StarID // optional
	Task   WaypointTask

	MergeWith int       // fleet sequence of an own fleet, for TaskMerge
	Split     SplitSpec // for TaskSplit

	// Distance is the cumulative path length from the fleet's position at
	// the time the order was accepted.
	Distance float64
}

// Tactic selects the combat targeting rule for a fleet.
type Tactic string

const (
	TacticWeakest   Tactic = "weakest"
	TacticStrongest Tactic = "strongest"
	TacticRandom    Tactic = "random"
)

// Valid reports whether t is a known tactic. Empty means weakest.
func (t Tactic) Valid() bool {
	switch t {
	case "", TacticWeakest, TacticStrongest, TacticRandom:
		return true
	}
	return false
}

// Ship is one hull in a fleet. Armor and Shields are the remaining values.
type Ship struct {
	Design  string
	Armor   float64
	Shields float64
}

// Fleet is a group of ships that moves and fights together.
type Fleet struct {
	Key      FleetKey
	Name     string
	Position Vec2

	Waypoints []Waypoint
	Cargo     float64
	Fuel      float64
	Ships     []Ship

	Stranded bool
	Tactic   Tactic
}

// Owner returns the owning empire.
func (f *Fleet) Owner() EmpireID { return f.Key.Empire }

// Idle reports whether the fleet has no queued waypoints.
func (f *Fleet) Idle() bool { return len(f.Waypoints) == 0 }

// Clone returns a deep copy of f.
func (f *Fleet) Clone() *Fleet {
	if f == nil {
		return nil
	}
	out := *f
	out.Waypoints = cloneSlice(f.Waypoints)
	out.Ships = cloneSlice(f.Ships)
	return &out
}
