package core

import (
	"math/rand/v2"
	"sort"

	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/kb"
	"github.com/signalsfoundry/stellar-empires/model"
)

// CombatResult is the combat phase report: one event per site, in site
// order.
type CombatResult struct {
	Events []model.CombatEvent
}

// CombatResolver finds co-located hostile fleets and fights each site out.
// Sites are independent and resolve in parallel; each draws from its own
// generator derived from the turn seed and the site location.
type CombatResolver struct {
	Rules    config.Rules
	Stats    *StatsTable
	Workers  int
	Turn     int
	TurnSeed uint64
}

type empirePair struct{ a, b model.EmpireID }

func pairOf(a, b model.EmpireID) empirePair {
	if b < a {
		a, b = b, a
	}
	return empirePair{a, b}
}

// site is the immutable input of one battle.
type site struct {
	key     model.LocationKey
	fleets  []*model.Fleet // private copies, sorted by key
	hostile map[empirePair]bool
}

func (s *site) isHostile(a, b model.EmpireID) bool {
	return a != b && s.hostile[pairOf(a, b)]
}

// siteOutcome is the delta produced by one battle.
type siteOutcome struct {
	event model.CombatEvent
	ships map[model.FleetKey][]model.Ship // surviving ships per fleet
}

// Sites returns the location keys that hold a battle this turn, sorted.
func (r *CombatResolver) Sites(w World) []model.LocationKey {
	sites := r.collect(w)
	out := make([]model.LocationKey, len(sites))
	for i, s := range sites {
		out[i] = s.key
	}
	return out
}

// Resolve fights every site and applies losses to w in site order.
func (r *CombatResolver) Resolve(w World) CombatResult {
	sites := r.collect(w)
	outcomes := make([]siteOutcome, len(sites))
	forEach(r.Workers, len(sites), func(i int) {
		outcomes[i] = r.fight(sites[i])
	})

	var res CombatResult
	for _, out := range outcomes {
		for _, key := range out.event.Participants {
			f := w.Fleet(key)
			if f == nil {
				continue
			}
			ships := out.ships[key]
			if len(ships) == 0 {
				w.RemoveFleet(key)
				continue
			}
			f.Ships = ships
		}
		res.Events = append(res.Events, out.event)
	}
	return res
}

func (r *CombatResolver) collect(w World) []*site {
	byLoc := make(map[model.LocationKey][]*model.Fleet)
	for _, key := range w.FleetKeys() {
		f := w.Fleet(key)
		if f == nil || len(f.Ships) == 0 {
			continue
		}
		loc := model.KeyOf(f.Position)
		byLoc[loc] = append(byLoc[loc], f)
	}

	var sites []*site
	for loc, fleets := range byLoc {
		var owners []model.EmpireID
		seen := map[model.EmpireID]bool{}
		for _, f := range fleets {
			if !seen[f.Owner()] {
				seen[f.Owner()] = true
				owners = append(owners, f.Owner())
			}
		}
		if len(owners) < 2 {
			continue
		}
		model.SortEmpireIDs(owners)
		hostile := make(map[empirePair]bool)
		for i := range owners {
			for j := i + 1; j < len(owners); j++ {
				if Hostile(w, owners[i], owners[j], r.Rules.DefaultRelation) {
					hostile[pairOf(owners[i], owners[j])] = true
				}
			}
		}
		if len(hostile) == 0 {
			continue
		}
		copies := make([]*model.Fleet, len(fleets))
		for i, f := range fleets {
			copies[i] = f.Clone()
		}
		sites = append(sites, &site{key: loc, fleets: copies, hostile: hostile})
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].key.Less(sites[j].key) })
	return sites
}

// combatant is one ship's live state during a battle.
type combatant struct {
	ref    model.ShipRef
	owner  model.EmpireID
	tactic model.Tactic
	stats  kb.ShipStats
	ship   model.Ship
	dead   bool
}

func (r *CombatResolver) fight(s *site) siteOutcome {
	rng := NewRand(SiteSeed(r.TurnSeed, s.key))

	event := model.CombatEvent{
		Turn:      r.Turn,
		Location:  s.key.Point(),
		Survivors: make(map[model.EmpireID]int),
	}
	var ships []*combatant
	for _, f := range s.fleets {
		event.Participants = append(event.Participants, f.Key)
		event.Survivors[f.Owner()] = 0
		for i, sh := range f.Ships {
			ships = append(ships, &combatant{
				ref:    model.ShipRef{Fleet: f.Key, Index: i},
				owner:  f.Owner(),
				tactic: f.Tactic,
				stats:  r.Stats.shipStats(f.Owner(), sh),
				ship:   sh,
			})
		}
	}

	for round := 1; round <= r.Rules.CombatRounds; round++ {
		if !s.engaged(ships) {
			break
		}
		cr := model.CombatRound{Number: round}
		for _, attacker := range ships {
			if attacker.dead || !attacker.stats.Armed() {
				continue
			}
			target := pickTarget(s, attacker, ships, rng)
			if target == nil {
				continue
			}
			shot := model.Shot{Attacker: attacker.ref, Target: target.ref, Damage: attacker.stats.Damage}
			if acc := attacker.stats.Accuracy; acc > 0 && acc < 100 && rng.Float64()*100 >= acc {
				shot.Missed = true
				shot.Damage = 0
			}
			cr.Shots = append(cr.Shots, shot)
		}
		if len(cr.Shots) == 0 {
			break
		}

		// Shots were chosen against the round-start state; apply them now.
		index := make(map[model.ShipRef]*combatant, len(ships))
		for _, c := range ships {
			index[c.ref] = c
		}
		for i := range cr.Shots {
			shot := &cr.Shots[i]
			t := index[shot.Target]
			if shot.Missed || t.ship.Armor <= 0 {
				continue
			}
			dmg := shot.Damage
			absorbed := min(dmg, t.ship.Shields)
			t.ship.Shields -= absorbed
			t.ship.Armor -= dmg - absorbed
			if t.ship.Armor <= 0 {
				shot.Destroyed = true
			}
		}
		for _, c := range ships {
			if !c.dead && c.ship.Armor <= 0 {
				c.dead = true
			}
		}
		event.Rounds = append(event.Rounds, cr)
	}

	out := siteOutcome{event: event, ships: make(map[model.FleetKey][]model.Ship)}
	losses := make(map[model.FleetKey]map[string]int)
	for _, c := range ships {
		if c.dead {
			if losses[c.ref.Fleet] == nil {
				losses[c.ref.Fleet] = make(map[string]int)
			}
			losses[c.ref.Fleet][c.ship.Design]++
			continue
		}
		c.ship.Shields = c.stats.Shields
		out.ships[c.ref.Fleet] = append(out.ships[c.ref.Fleet], c.ship)
		out.event.Survivors[c.owner]++
	}
	for _, key := range out.event.Participants {
		if byDesign, ok := losses[key]; ok {
			designs := make([]string, 0, len(byDesign))
			for d := range byDesign {
				designs = append(designs, d)
			}
			sort.Strings(designs)
			for _, d := range designs {
				out.event.Losses = append(out.event.Losses, model.ShipLoss{Fleet: key, Design: d, Count: byDesign[d]})
			}
		}
		if len(out.ships[key]) == 0 {
			out.event.DestroyedFleets = append(out.event.DestroyedFleets, key)
		}
	}
	return out
}

// engaged reports whether two hostile empires both still have ships.
func (s *site) engaged(ships []*combatant) bool {
	alive := map[model.EmpireID]bool{}
	for _, c := range ships {
		if !c.dead {
			alive[c.owner] = true
		}
	}
	for p := range s.hostile {
		if alive[p.a] && alive[p.b] {
			return true
		}
	}
	return false
}

// pickTarget applies the attacker's tactic to the living hostile ships.
// Ties are broken with the site generator.
func pickTarget(s *site, attacker *combatant, ships []*combatant, rng *rand.Rand) *combatant {
	var candidates []*combatant
	for _, c := range ships {
		if !c.dead && s.isHostile(attacker.owner, c.owner) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	var score func(c *combatant) float64
	switch attacker.tactic {
	case model.TacticRandom:
		return candidates[rng.IntN(len(candidates))]
	case model.TacticStrongest:
		score = func(c *combatant) float64 { return c.stats.Damage }
	default:
		score = func(c *combatant) float64 { return -(c.ship.Armor + c.ship.Shields) }
	}

	best := []*combatant{candidates[0]}
	bestScore := score(candidates[0])
	for _, c := range candidates[1:] {
		switch v := score(c); {
		case v > bestScore:
			best = append(best[:0], c)
			bestScore = v
		case v == bestScore:
			best = append(best, c)
		}
	}
	if len(best) == 1 {
		return best[0]
	}
	return best[rng.IntN(len(best))]
}
