package core

import (
	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/model"
)

var minerals = []model.Mineral{model.MineralIronium, model.MineralBoranium, model.MineralGermanium}

// StarOutput is the resources a star yields per turn before the research
// share is taken out.
func StarOutput(rules config.Rules, s *model.Star) float64 {
	if s == nil || !s.Owned() {
		return 0
	}
	out := 0.0
	if rules.PopulationPerResource > 0 {
		out += float64(s.Population) / rules.PopulationPerResource
	}
	out += float64(s.Installation(model.InstallationFactory)) * rules.FactoryOutput
	if mines := s.Installation(model.InstallationMine); mines > 0 {
		out += float64(mines) * rules.MineOutput * meanConcentration(s) / 100
	}
	return out
}

func meanConcentration(s *model.Star) float64 {
	sum := 0.0
	for _, m := range minerals {
		sum += s.Minerals[m]
	}
	return sum / float64(len(minerals))
}

// researchShare clamps an empire's research share to [0,1].
func researchShare(e *model.Empire) float64 {
	if e == nil {
		return 0
	}
	switch share := e.Research.Share; {
	case share < 0:
		return 0
	case share > 1:
		return 1
	default:
		return share
	}
}

// grownPopulation applies one turn of logistic-free growth capped at max.
func grownPopulation(pop int64, growth float64, max int64) int64 {
	if pop <= 0 || growth <= 0 {
		return pop
	}
	next := pop + int64(float64(pop)*growth)
	if next > max {
		next = max
	}
	if next < pop {
		return pop
	}
	return next
}
