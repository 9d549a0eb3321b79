package model

// ShipRef addresses a ship inside a combat site.
type ShipRef struct {
	Fleet FleetKey
	Index int // index into the fleet's ship list at the start of combat
}

// Shot records one ship firing on another.
type Shot struct {
	Attacker  ShipRef
	Target    ShipRef
	Damage    float64
	Missed    bool
	Destroyed bool
}

// CombatRound is the shot log of one round.
type CombatRound struct {
	Number int
	Shots  []Shot
}

// ShipLoss counts destroyed ships of one design in one fleet.
type ShipLoss struct {
	Fleet  FleetKey
	Design string
	Count  int
}

// CombatEvent is the per-turn record of a battle at one site. It is
// reported with the turn result and never stored in the galaxy.
type CombatEvent struct {
	Turn         int
	Location     Vec2
	Participants []FleetKey
	Rounds       []CombatRound
	Losses       []ShipLoss

	DestroyedFleets []FleetKey
	Survivors       map[EmpireID]int
}

// ShipsLost returns the total number of ships destroyed in the battle.
func (e *CombatEvent) ShipsLost() int {
	n := 0
	for _, l := range e.Losses {
		n += l.Count
	}
	return n
}
