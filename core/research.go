package core

import (
	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/model"
)

// LevelUp records one tech level gained.
type LevelUp struct {
	Empire model.EmpireID
	Field  model.TechField
	Level  int
}

// ResearchResult is the research phase report.
type ResearchResult struct {
	Output   map[model.EmpireID]float64
	LevelUps []LevelUp
}

// ResearchResolver turns the research share of each empire's star output
// into points and levels.
type ResearchResolver struct {
	Rules config.Rules
}

// Resolve accrues research for every active empire.
func (r *ResearchResolver) Resolve(w World) ResearchResult {
	totals := make(map[model.EmpireID]float64)
	for _, id := range w.StarIDs() {
		s := w.Star(id)
		if s.Owned() {
			totals[s.Owner] += StarOutput(r.Rules, s)
		}
	}

	res := ResearchResult{Output: make(map[model.EmpireID]float64)}
	for _, id := range w.EmpireIDs() {
		e := w.Empire(id)
		if e == nil || e.Status == model.EmpireDefeated {
			continue
		}
		output := totals[id] * researchShare(e)
		res.Output[id] = output
		if output <= 0 {
			continue
		}
		if e.ResearchPoints == nil {
			e.ResearchPoints = make(map[model.TechField]float64)
		}
		if e.TechLevels == nil {
			e.TechLevels = make(map[model.TechField]int)
		}
		for _, field := range model.TechFields {
			pct := e.Research.Percent[field]
			if pct <= 0 {
				continue
			}
			e.ResearchPoints[field] += output * pct / 100
			for {
				need := r.Rules.ResearchThreshold(e.TechLevels[field])
				if need <= 0 || e.ResearchPoints[field]+spendEpsilon < need {
					break
				}
				e.ResearchPoints[field] = max(0, e.ResearchPoints[field]-need)
				e.TechLevels[field]++
				res.LevelUps = append(res.LevelUps, LevelUp{Empire: id, Field: field, Level: e.TechLevels[field]})
			}
		}
	}
	return res
}
