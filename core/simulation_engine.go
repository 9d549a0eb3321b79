package core

import (
	"context"

	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/model"
)

// Phase names one step of turn resolution.
type Phase string

const (
	PhaseResearch   Phase = "research"
	PhaseProduction Phase = "production"
	PhaseMovement   Phase = "movement"
	PhaseVisibility Phase = "visibility"
	PhaseCombat     Phase = "combat"
	PhaseInvasion   Phase = "invasion"
	PhaseDefeat     Phase = "defeat"
)

// Phases lists the phases in execution order.
var Phases = []Phase{PhaseResearch, PhaseProduction, PhaseMovement, PhaseVisibility, PhaseCombat, PhaseInvasion, PhaseDefeat}

// InvasionPolicy decides ownership changes after combat. The engine ships
// without one: combat never flips star ownership unless a policy is set.
type InvasionPolicy interface {
	Invade(ctx context.Context, w World, combat CombatResult) []InvasionEvent
}

// InvasionEvent records a star changing hands.
type InvasionEvent struct {
	Star     model.StarID
	From, To model.EmpireID
}

// PhaseHook wraps the execution of a phase. Hooks must call run exactly
// once, with the context the phase should observe.
type PhaseHook func(ctx context.Context, p Phase, run func(ctx context.Context))

// TurnReport is everything a turn produced besides the new state.
type TurnReport struct {
	Turn       int
	Seed       uint64
	Research   ResearchResult
	Production ProductionResult
	Movement   MovementResult
	Visibility map[model.EmpireID]model.Sight
	Combat     CombatResult
	Invasions  []InvasionEvent
	Defeated   []model.EmpireID
}

// SimulationEngine runs the resolver phases of one turn, strictly in
// order, over a working copy of the galaxy.
type SimulationEngine struct {
	Rules    config.Rules
	Stats    *StatsTable
	Invasion InvasionPolicy

	hooks []PhaseHook
}

// NewSimulationEngine returns an engine for rules and a derived stats table.
func NewSimulationEngine(rules config.Rules, stats *StatsTable) *SimulationEngine {
	return &SimulationEngine{Rules: rules, Stats: stats}
}

// RegisterPhaseHook adds a hook around every phase. Hooks nest in
// registration order, the first registered being outermost.
func (se *SimulationEngine) RegisterPhaseHook(h PhaseHook) {
	if h != nil {
		se.hooks = append(se.hooks, h)
	}
}

// Run resolves turn `turn` on w using turnSeed for every random draw.
func (se *SimulationEngine) Run(ctx context.Context, w World, turn int, turnSeed uint64) *TurnReport {
	report := &TurnReport{Turn: turn, Seed: turnSeed}
	workers := se.Rules.Workers

	se.phase(ctx, PhaseResearch, func(context.Context) {
		r := ResearchResolver{Rules: se.Rules}
		report.Research = r.Resolve(w)
	})
	se.phase(ctx, PhaseProduction, func(context.Context) {
		r := ProductionResolver{Rules: se.Rules, Stats: se.Stats, Workers: workers}
		report.Production = r.Resolve(w)
	})
	se.phase(ctx, PhaseMovement, func(context.Context) {
		r := MovementResolver{Rules: se.Rules, Stats: se.Stats, Workers: workers}
		report.Movement = r.Resolve(w)
	})
	se.phase(ctx, PhaseVisibility, func(context.Context) {
		r := VisibilityResolver{Rules: se.Rules, Stats: se.Stats, Workers: workers}
		report.Visibility = r.Resolve(w)
	})
	se.phase(ctx, PhaseCombat, func(context.Context) {
		r := CombatResolver{Rules: se.Rules, Stats: se.Stats, Workers: workers, Turn: turn, TurnSeed: turnSeed}
		report.Combat = r.Resolve(w)
	})
	if se.Invasion != nil {
		se.phase(ctx, PhaseInvasion, func(ctx context.Context) {
			report.Invasions = se.Invasion.Invade(ctx, w, report.Combat)
		})
	}
	se.phase(ctx, PhaseDefeat, func(context.Context) {
		report.Defeated = MarkDefeated(w)
	})
	return report
}

func (se *SimulationEngine) phase(ctx context.Context, p Phase, run func(ctx context.Context)) {
	wrapped := run
	for i := len(se.hooks) - 1; i >= 0; i-- {
		hook, inner := se.hooks[i], wrapped
		wrapped = func(ctx context.Context) { hook(ctx, p, inner) }
	}
	wrapped(ctx)
}

// MarkDefeated flags active empires left with no stars and no fleets and
// returns them in id order.
func MarkDefeated(w World) []model.EmpireID {
	alive := make(map[model.EmpireID]bool)
	for _, id := range w.StarIDs() {
		if s := w.Star(id); s.Owned() {
			alive[s.Owner] = true
		}
	}
	for _, key := range w.FleetKeys() {
		alive[key.Empire] = true
	}
	var out []model.EmpireID
	for _, id := range w.EmpireIDs() {
		e := w.Empire(id)
		if e == nil || e.Status == model.EmpireDefeated || alive[id] {
			continue
		}
		e.Status = model.EmpireDefeated
		out = append(out, id)
	}
	return out
}
