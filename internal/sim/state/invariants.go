package state

import (
	"fmt"
	"math"
	"strings"

	"github.com/signalsfoundry/stellar-empires/model"
)

// maxReportedProblems caps the detail attached to ErrInvariantViolation.
const maxReportedProblems = 8

// CheckInvariants validates the structural invariants a committed galaxy
// must satisfy. The error wraps ErrInvariantViolation.
func (g *Galaxy) CheckInvariants() error {
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	for _, id := range g.StarIDs() {
		s := g.stars[id]
		if !s.Position.IsFinite() {
			report("star %s has non-finite position", id)
		}
		if s.Owned() {
			if _, ok := g.empires[s.Owner]; !ok {
				report("star %s owned by unknown empire %s", id, s.Owner)
			}
		}
		if s.Population < 0 {
			report("star %s has negative population", id)
		}
		for kind, n := range s.Installations {
			if n < 0 {
				report("star %s has %d %s installations", id, n, kind)
			}
		}
		for i, e := range s.Queue {
			if e.Quantity <= 0 || e.Progress < 0 || math.IsNaN(e.Progress) {
				report("star %s queue entry %d has quantity %d progress %v", id, i, e.Quantity, e.Progress)
			}
			if e.Kind == model.BuildShip {
				if d, ok := g.Design(s.Owner, e.Design); !ok || !d.UsableBy(s.Owner) {
					report("star %s queues unknown design %q", id, e.Design)
				}
			}
		}
	}

	for _, key := range g.FleetKeys() {
		f := g.fleets[key]
		owner, ok := g.empires[key.Empire]
		if !ok {
			report("fleet %s has unknown owner", key)
			continue
		}
		if key.Seq >= owner.NextFleetSeq {
			report("fleet %s sequence not below owner counter %d", key, owner.NextFleetSeq)
		}
		if len(f.Ships) == 0 {
			report("fleet %s has no ships", key)
		}
		if f.Fuel < 0 || math.IsNaN(f.Fuel) {
			report("fleet %s has fuel %v", key, f.Fuel)
		}
		if f.Cargo < 0 {
			report("fleet %s has cargo %v", key, f.Cargo)
		}
		if !f.Position.IsFinite() {
			report("fleet %s has non-finite position", key)
		}
		for i, s := range f.Ships {
			if _, ok := g.Design(key.Empire, s.Design); !ok {
				report("fleet %s ship %d references missing design %q", key, i, s.Design)
			}
			if s.Armor <= 0 {
				report("fleet %s ship %d has armor %v", key, i, s.Armor)
			}
		}
		for i, wp := range f.Waypoints {
			if !wp.Target.IsFinite() {
				report("fleet %s waypoint %d is not finite", key, i)
			}
		}
	}

	for _, id := range g.EmpireIDs() {
		e := g.empires[id]
		for field, pts := range e.ResearchPoints {
			if pts < 0 || math.IsNaN(pts) {
				report("empire %s has %v %s points", id, pts, field)
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	if len(problems) > maxReportedProblems {
		extra := len(problems) - maxReportedProblems
		problems = append(problems[:maxReportedProblems], fmt.Sprintf("and %d more", extra))
	}
	return fmt.Errorf("%w: %s", ErrInvariantViolation, strings.Join(problems, "; "))
}
