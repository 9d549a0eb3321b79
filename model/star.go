package model

// StarID identifies a star system.
type StarID string

// Mineral is a mineable resource type.
type Mineral string

const (
	MineralIronium   Mineral = "ironium"
	MineralBoranium  Mineral = "boranium"
	MineralGermanium Mineral = "germanium"
)

// InstallationKind is a planetary installation a star can build.
type InstallationKind string

const (
	InstallationFactory InstallationKind = "factory"
	InstallationMine    InstallationKind = "mine"
	InstallationScanner InstallationKind = "scanner"
)

// Valid reports whether k is a known installation kind.
func (k InstallationKind) Valid() bool {
	switch k {
	case InstallationFactory, InstallationMine, InstallationScanner:
		return true
	}
	return false
}

// BuildKind distinguishes queue entries that yield ships from those that
// yield installations.
type BuildKind string

const (
	BuildShip         BuildKind = "ship"
	BuildInstallation BuildKind = "installation"
)

// QueueEntry is one line of a star's production queue.
type QueueEntry struct {
	Kind         BuildKind
	Design       string           // BuildShip
	Installation InstallationKind // BuildInstallation
	Quantity     int

	// Progress is the resource tally already applied to the next unit.
	Progress float64

	// TargetFleet, when non-zero, names an own fleet at the star that
	// completed ships join instead of forming a new fleet.
	TargetFleet int
}

// Star is a star system.
type Star struct {
	ID       StarID
	Name     string
	Position Vec2
	Owner    EmpireID // empty when unowned

	Minerals      map[Mineral]float64 // concentrations, 0..100
	Population    int64
	Installations map[InstallationKind]int
	Queue         []QueueEntry
}

// Owned reports whether the star has an owner.
func (s *Star) Owned() bool { return s != nil && s.Owner != "" }

// Installation returns the count of the given installation kind.
func (s *Star) Installation(k InstallationKind) int {
	if s == nil || s.Installations == nil {
		return 0
	}
	return s.Installations[k]
}

// Clone returns a deep copy of s.
func (s *Star) Clone() *Star {
	if s == nil {
		return nil
	}
	out := *s
	out.Minerals = cloneMap(s.Minerals)
	out.Installations = cloneMap(s.Installations)
	out.Queue = cloneSlice(s.Queue)
	return &out
}
