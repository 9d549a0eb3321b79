package kb

// ComponentKind tags the closed set of component variants.
type ComponentKind string

const (
	KindWeapon   ComponentKind = "weapon"
	KindArmor    ComponentKind = "armor"
	KindShield   ComponentKind = "shield"
	KindEngine   ComponentKind = "engine"
	KindScanner  ComponentKind = "scanner"
	KindColony   ComponentKind = "colony"
	KindFuelTank ComponentKind = "fuel_tank"
	KindCargo    ComponentKind = "cargo"
)

// ShipStats are the derived numbers of one ship built to a design.
type ShipStats struct {
	Mass float64
	Cost float64

	Armor   float64
	Shields float64

	Damage   float64
	Accuracy float64 // percent, damage-weighted over weapons

	Speed     float64
	RatedMass float64
	FuelUse   float64

	FuelCapacity  float64
	CargoCapacity float64
	ScanRange     float64

	Colonizer bool
}

// Armed reports whether the ship carries any weapon.
func (s ShipStats) Armed() bool { return s.Damage > 0 }

// SpeedWithCargo returns the ship's speed when carrying cargo mass. A ship
// heavier than its engine's rated mass slows down proportionally.
func (s ShipStats) SpeedWithCargo(cargo float64) float64 {
	if s.Speed <= 0 {
		return 0
	}
	mass := s.Mass + cargo
	if s.RatedMass <= 0 || mass <= s.RatedMass {
		return s.Speed
	}
	return s.Speed * s.RatedMass / mass
}

// ComponentStats is implemented by each component variant. contribute
// folds count copies of the component into a ship's stats.
type ComponentStats interface {
	Kind() ComponentKind
	contribute(s *ShipStats, count int)
}

// WeaponStats describe a beam or missile mount.
type WeaponStats struct {
	Damage   float64
	Accuracy float64
}

// ArmorStats add hit points.
type ArmorStats struct {
	Armor float64
}

// ShieldStats absorb damage before armor and recharge after battle.
type ShieldStats struct {
	Shields float64
}

// EngineStats drive movement. Only the fastest engine of a design counts.
type EngineStats struct {
	Speed     float64
	RatedMass float64
	FuelUse   float64
}

// ScannerStats set detection range. Only the longest range counts.
type ScannerStats struct {
	Range float64
}

// ColonyStats mark a ship able to settle an unowned star.
type ColonyStats struct{}

// FuelTankStats add fuel capacity.
type FuelTankStats struct {
	Capacity float64
}

// CargoStats add cargo capacity.
type CargoStats struct {
	Capacity float64
}

func (WeaponStats) Kind() ComponentKind   { return KindWeapon }
func (ArmorStats) Kind() ComponentKind    { return KindArmor }
func (ShieldStats) Kind() ComponentKind   { return KindShield }
func (EngineStats) Kind() ComponentKind   { return KindEngine }
func (ScannerStats) Kind() ComponentKind  { return KindScanner }
func (ColonyStats) Kind() ComponentKind   { return KindColony }
func (FuelTankStats) Kind() ComponentKind { return KindFuelTank }
func (CargoStats) Kind() ComponentKind    { return KindCargo }

func (w WeaponStats) contribute(s *ShipStats, count int) {
	dmg := w.Damage * float64(count)
	acc := w.Accuracy
	if acc <= 0 || acc > 100 {
		acc = 100
	}
	// Keep Accuracy as a damage-weighted mean across all weapons.
	total := s.Damage + dmg
	if total > 0 {
		s.Accuracy = (s.Accuracy*s.Damage + acc*dmg) / total
	}
	s.Damage = total
}

func (a ArmorStats) contribute(s *ShipStats, count int) {
	s.Armor += a.Armor * float64(count)
}

func (sh ShieldStats) contribute(s *ShipStats, count int) {
	s.Shields += sh.Shields * float64(count)
}

func (e EngineStats) contribute(s *ShipStats, _ int) {
	if e.Speed > s.Speed {
		s.Speed = e.Speed
		s.RatedMass = e.RatedMass
		s.FuelUse = e.FuelUse
	}
}

func (sc ScannerStats) contribute(s *ShipStats, _ int) {
	if sc.Range > s.ScanRange {
		s.ScanRange = sc.Range
	}
}

func (ColonyStats) contribute(s *ShipStats, _ int) {
	s.Colonizer = true
}

func (f FuelTankStats) contribute(s *ShipStats, count int) {
	s.FuelCapacity += f.Capacity * float64(count)
}

func (c CargoStats) contribute(s *ShipStats, count int) {
	s.CargoCapacity += c.Capacity * float64(count)
}
