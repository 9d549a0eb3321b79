package core

import (
	"testing"

	"github.com/signalsfoundry/stellar-empires/model"
)

func TestResearchSplitsAndLevelsUp(t *testing.T) {
	rules := testRules()
	rules.ResearchBaseCost = 10
	rules.ResearchLevelCost = 10
	w := newTestWorld("a")
	e := w.empires["a"]
	e.Research = model.ResearchAllocation{
		Share:   0.5,
		Percent: map[model.TechField]float64{model.TechWeapons: 75, model.TechEnergy: 25},
	}
	w.addStar(factoryStar("a", 80))

	r := ResearchResolver{Rules: rules}
	res := r.Resolve(w)

	// 40 points: weapons gets 30 (levels at 10 and 20), energy gets 10 (one level).
	if res.Output["a"] != 40 {
		t.Fatalf("output = %v, want 40", res.Output["a"])
	}
	if e.TechLevels[model.TechWeapons] != 2 || e.ResearchPoints[model.TechWeapons] != 0 {
		t.Fatalf("weapons level %d points %v, want 2/0", e.TechLevels[model.TechWeapons], e.ResearchPoints[model.TechWeapons])
	}
	if e.TechLevels[model.TechEnergy] != 1 || e.ResearchPoints[model.TechEnergy] != 0 {
		t.Fatalf("energy level %d points %v, want 1/0", e.TechLevels[model.TechEnergy], e.ResearchPoints[model.TechEnergy])
	}
	if len(res.LevelUps) != 3 {
		t.Fatalf("level ups = %+v, want 3", res.LevelUps)
	}
}

func TestResearchCarriesLeftover(t *testing.T) {
	rules := testRules()
	rules.ResearchBaseCost = 50
	w := newTestWorld("a")
	e := w.empires["a"]
	e.Research = model.ResearchAllocation{Share: 1, Percent: map[model.TechField]float64{model.TechBiotech: 100}}
	w.addStar(factoryStar("a", 30))

	r := ResearchResolver{Rules: rules}
	r.Resolve(w)
	if e.ResearchPoints[model.TechBiotech] != 30 || e.TechLevels[model.TechBiotech] != 0 {
		t.Fatalf("after one turn: %v points level %d", e.ResearchPoints[model.TechBiotech], e.TechLevels[model.TechBiotech])
	}
	r.Resolve(w)
	if e.ResearchPoints[model.TechBiotech] != 10 || e.TechLevels[model.TechBiotech] != 1 {
		t.Fatalf("after two turns: %v points level %d", e.ResearchPoints[model.TechBiotech], e.TechLevels[model.TechBiotech])
	}
}

func TestResearchSkipsDefeatedEmpires(t *testing.T) {
	w := newTestWorld("a")
	w.empires["a"].Status = model.EmpireDefeated
	w.empires["a"].Research = model.ResearchAllocation{Share: 1, Percent: map[model.TechField]float64{model.TechEnergy: 100}}
	w.addStar(factoryStar("a", 100))

	r := ResearchResolver{Rules: testRules()}
	if res := r.Resolve(w); len(res.LevelUps) != 0 {
		t.Fatalf("defeated empire researched: %+v", res.LevelUps)
	}
}
