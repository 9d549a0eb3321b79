package model

import "sort"

// EmpireID identifies an empire for the lifetime of a game.
type EmpireID string

// EmpireStatus is the lifecycle status of an empire. Defeated is terminal.
type EmpireStatus string

const (
	EmpireActive   EmpireStatus = "active"
	EmpireDefeated EmpireStatus = "defeated"
)

// Relation is the diplomatic stance one empire holds toward another.
type Relation string

const (
	RelationNeutral Relation = "neutral"
	RelationHostile Relation = "hostile"
	RelationAllied  Relation = "allied"
)

// Valid reports whether r is one of the known relations.
func (r Relation) Valid() bool {
	switch r {
	case RelationNeutral, RelationHostile, RelationAllied:
		return true
	}
	return false
}

// TechField is a research discipline.
type TechField string

const (
	TechEnergy       TechField = "energy"
	TechWeapons      TechField = "weapons"
	TechPropulsion   TechField = "propulsion"
	TechConstruction TechField = "construction"
	TechElectronics  TechField = "electronics"
	TechBiotech      TechField = "biotech"
)

// TechFields lists every research field in canonical order.
var TechFields = []TechField{
	TechEnergy,
	TechWeapons,
	TechPropulsion,
	TechConstruction,
	TechElectronics,
	TechBiotech,
}

// Valid reports whether f is a known research field.
func (f TechField) Valid() bool {
	for _, known := range TechFields {
		if f == known {
			return true
		}
	}
	return false
}

// ResearchAllocation is an empire's standing research order.
type ResearchAllocation struct {
	// Share is the fraction (0..1) of every owned star's resource output
	// diverted from production to research.
	Share float64
	// Percent splits research output across fields; values sum to 100.
	Percent map[TechField]float64
}

// Clone returns a deep copy of a.
func (a ResearchAllocation) Clone() ResearchAllocation {
	return ResearchAllocation{Share: a.Share, Percent: cloneMap(a.Percent)}
}

// Empire is a player faction.
type Empire struct {
	ID     EmpireID
	Name   string
	Status EmpireStatus

	TechLevels     map[TechField]int
	ResearchPoints map[TechField]float64
	Research       ResearchAllocation

	// Relations holds this empire's declared stance toward others. Missing
	// entries fall back to the game's default relation.
	Relations map[EmpireID]Relation

	// NextFleetSeq is the sequence number the next new fleet receives.
	NextFleetSeq int
}

// TechLevel returns the empire's level in f (zero when unknown).
func (e *Empire) TechLevel(f TechField) int {
	if e == nil || e.TechLevels == nil {
		return 0
	}
	return e.TechLevels[f]
}

// AllocateFleetKey reserves the next fleet key for this empire.
func (e *Empire) AllocateFleetKey() FleetKey {
	if e.NextFleetSeq <= 0 {
		e.NextFleetSeq = 1
	}
	k := FleetKey{Empire: e.ID, Seq: e.NextFleetSeq}
	e.NextFleetSeq++
	return k
}

// Clone returns a deep copy of e.
func (e *Empire) Clone() *Empire {
	if e == nil {
		return nil
	}
	out := *e
	out.TechLevels = cloneMap(e.TechLevels)
	out.ResearchPoints = cloneMap(e.ResearchPoints)
	out.Research = e.Research.Clone()
	out.Relations = cloneMap(e.Relations)
	return &out
}

// SortEmpireIDs sorts ids in place and returns them.
func SortEmpireIDs(ids []EmpireID) []EmpireID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// TechRequirement gates an item behind a research level.
type TechRequirement struct {
	Field TechField `yaml:"field" json:"field,omitempty"`
	Level int       `yaml:"level" json:"level,omitempty"`
}

// Met reports whether the empire satisfies the requirement.
func (r TechRequirement) Met(e *Empire) bool {
	if r.Field == "" || r.Level <= 0 {
		return true
	}
	return e.TechLevel(r.Field) >= r.Level
}
