package turn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalsfoundry/stellar-empires/core"
	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/internal/sim/intake"
	"github.com/signalsfoundry/stellar-empires/internal/sim/state"
	"github.com/signalsfoundry/stellar-empires/kb"
	"github.com/signalsfoundry/stellar-empires/model"
)

const turnScenario = `
seed: 99
empires:
  - id: blue
    name: Blue
    relations: {red: hostile}
    research: {share: 0.3, percent: {weapons: 100}}
  - id: red
    name: Red
designs:
  - name: Raider
    hull: scout
    slots: [{component: quick_jump_5, count: 1}, {component: laser, count: 1}]
stars:
  - {id: sol, x: 0, y: 0, owner: blue, population: 20000, installations: {factory: 10}, queue: [{kind: ship, design: Raider, quantity: 2}]}
  - {id: vega, x: 60, y: 0, owner: red, population: 20000, installations: {factory: 10}, queue: [{kind: ship, design: Raider, quantity: 1}]}
  - {id: rigel, x: 20, y: 0}
fleets:
  - {empire: blue, x: 20, y: 0, tactic: random, ships: [{design: Raider, count: 2}]}
  - {empire: red, x: 20, y: 0, tactic: random, ships: [{design: Raider, count: 2}]}
  - {empire: blue, x: 0, y: 0, ships: [{design: Raider, count: 1}], waypoints: [{x: 0, y: 5}, {x: 0, y: 10}, {x: 0, y: 15}]}
  - {empire: red, x: 60, y: 0, ships: [{design: Raider, count: 1}]}
`

func newTestGame(t *testing.T, opts ...Option) *Game {
	t.Helper()
	catalog, err := kb.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	g, err := state.LoadScenario(strings.NewReader(turnScenario), catalog)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	rules := config.DefaultRules()
	rules.Workers = 4
	game, err := NewGame("test", g, rules, catalog, opts...)
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	return game
}

func submit(t *testing.T, g *Game, empire model.EmpireID, o model.Order) {
	t.Helper()
	c := model.Command{Empire: empire, Turn: g.Turn(), Order: o}
	if _, err := g.Submit(context.Background(), empire, c); err != nil {
		t.Fatalf("Submit(%s, %T): %v", empire, o, err)
	}
}

func canonical(t *testing.T, g *state.Galaxy) string {
	t.Helper()
	raw, err := g.MarshalCanonical()
	if err != nil {
		t.Fatalf("MarshalCanonical: %v", err)
	}
	return string(raw)
}

type recordingSink struct {
	mu      sync.Mutex
	results []*Result
	err     error
}

func (s *recordingSink) Commit(_ context.Context, r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return s.err
}

func TestResolveCommitsTurn(t *testing.T) {
	sink := &recordingSink{err: errors.New("sink down")}
	history := state.NewTurnHistory(10)
	game := newTestGame(t, WithCommitSinks(sink), WithHistory(history))
	before := game.Committed()

	submit(t, game, "red", model.WaypointOrder{Fleet: 2, Waypoints: []model.WaypointSpec{{Target: model.Vec2{X: 60, Y: 20}}}})

	res, err := game.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Turn != 1 || game.Turn() != 2 {
		t.Fatalf("resolved turn %d, now %d; want 1 then 2", res.Turn, game.Turn())
	}
	if before.Turn != 1 {
		t.Fatalf("prior galaxy was mutated: turn %d", before.Turn)
	}
	if res.Prior != before || res.Galaxy != game.Committed() {
		t.Fatalf("result does not reference prior and committed galaxies")
	}
	if res.Seed != core.DeriveSeed(99, 1) {
		t.Fatalf("seed = %d, want DeriveSeed(99, 1)", res.Seed)
	}
	if game.Status() != AwaitingOrders {
		t.Fatalf("status = %v, want awaiting_orders", game.Status())
	}

	scout := game.Committed().Fleet(model.FleetKey{Empire: "red", Seq: 2})
	if scout.Position != (model.Vec2{X: 60, Y: 5}) {
		t.Fatalf("red#2 at %v, want (60,5)", scout.Position)
	}
	// blue and red fleets share rigel and blue is hostile.
	if len(res.Report.Combat.Events) != 1 {
		t.Fatalf("combat events = %d, want 1", len(res.Report.Combat.Events))
	}
	if len(sink.results) != 1 || sink.results[0] != res {
		t.Fatalf("sink saw %d results", len(sink.results))
	}
	if h := history.Get(1); h == nil || h.Digest != res.Digest || h.Battles != 1 {
		t.Fatalf("history entry = %+v", h)
	}
	if got := len(game.Intake().Pending("red")); got != 0 {
		t.Fatalf("orders left after commit: %d", got)
	}

	// Orders for the resolved turn are now stale.
	stale := model.Command{Empire: "red", Turn: 1, Order: model.TacticOrder{Fleet: 2, Tactic: model.TacticRandom}}
	if _, err := game.Submit(context.Background(), "red", stale); !errors.Is(err, intake.ErrStaleTurn) {
		t.Fatalf("stale submit error = %v, want ErrStaleTurn", err)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	run := func() (string, []string) {
		game := newTestGame(t)
		var digests []string
		for turn := 0; turn < 4; turn++ {
			submit(t, game, "red", model.TacticOrder{Fleet: 2, Tactic: model.TacticStrongest})
			submit(t, game, "blue", model.ProductionOrder{Star: "sol", Queue: []model.QueueEntrySpec{
				{Kind: model.BuildShip, Design: "Raider", Quantity: 3},
			}})
			res, err := game.Resolve(context.Background())
			if err != nil {
				t.Fatalf("Resolve turn %d: %v", turn+1, err)
			}
			digests = append(digests, res.Digest)
		}
		return canonical(t, game.Committed()), digests
	}

	a, da := run()
	b, db := run()
	if a != b {
		t.Fatalf("canonical state differs between identical runs")
	}
	for i := range da {
		if da[i] != db[i] {
			t.Fatalf("turn %d digest differs: %s vs %s", i+1, da[i], db[i])
		}
	}
}

func TestStandingOrdersPersist(t *testing.T) {
	game := newTestGame(t)
	for turn := 0; turn < 3; turn++ {
		if _, err := game.Resolve(context.Background()); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}
	// blue#2 follows its route one leg per turn with no new orders.
	f := game.Committed().Fleet(model.FleetKey{Empire: "blue", Seq: 2})
	if f.Position != (model.Vec2{X: 0, Y: 15}) || !f.Idle() {
		t.Fatalf("blue#2 at %v with %d waypoints, want (0,15) idle", f.Position, len(f.Waypoints))
	}
	blue := game.Committed().Empire("blue")
	if blue.Research.Share != 0.3 || blue.ResearchPoints[model.TechWeapons] == 0 && blue.TechLevel(model.TechWeapons) == 0 {
		t.Fatalf("research allocation lapsed: %+v", blue.Research)
	}
}

type gatePolicy struct {
	entered chan struct{}
	release chan struct{}
}

func (p *gatePolicy) Invade(context.Context, core.World, core.CombatResult) []InvasionEvent {
	p.entered <- struct{}{}
	<-p.release
	return nil
}

func TestConcurrentResolveConflicts(t *testing.T) {
	gate := &gatePolicy{entered: make(chan struct{}, 1), release: make(chan struct{})}
	game := newTestGame(t, WithInvasionPolicy(gate))

	done := make(chan error, 1)
	go func() {
		_, err := game.Resolve(context.Background())
		done <- err
	}()
	<-gate.entered

	if _, err := game.Resolve(context.Background()); !errors.Is(err, ErrResolutionInProgress) {
		t.Fatalf("second Resolve error = %v, want ErrResolutionInProgress", err)
	}
	if game.Status() != Resolving {
		t.Fatalf("status = %v, want resolving", game.Status())
	}
	c := model.Command{Empire: "blue", Turn: 1, Order: model.TacticOrder{Fleet: 1, Tactic: model.TacticWeakest}}
	if _, err := game.Submit(context.Background(), "blue", c); !errors.Is(err, intake.ErrTurnClosed) {
		t.Fatalf("Submit during resolve = %v, want ErrTurnClosed", err)
	}
	if game.Turn() != 1 {
		t.Fatalf("turn advanced before commit")
	}

	close(gate.release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("first Resolve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("resolution did not finish")
	}
	if game.Turn() != 2 {
		t.Fatalf("turn = %d, want 2", game.Turn())
	}
}

type flakyPolicy struct {
	fail    atomic.Bool
	corrupt atomic.Bool
}

func (p *flakyPolicy) Invade(_ context.Context, w core.World, _ core.CombatResult) []InvasionEvent {
	if p.fail.Load() {
		panic("invasion exploded")
	}
	if p.corrupt.Load() {
		w.Fleet(model.FleetKey{Empire: "red", Seq: 2}).Fuel = -1
	}
	return nil
}

func TestFailedResolutionIsAtomic(t *testing.T) {
	policy := &flakyPolicy{}
	game := newTestGame(t, WithInvasionPolicy(policy))
	before := game.Committed()
	beforeBytes := canonical(t, before)

	submit(t, game, "red", model.WaypointOrder{Fleet: 2, Waypoints: []model.WaypointSpec{{Target: model.Vec2{X: 60, Y: 20}}}})

	for _, mode := range []string{"panic", "invariant"} {
		policy.fail.Store(mode == "panic")
		policy.corrupt.Store(mode == "invariant")

		_, err := game.Resolve(context.Background())
		switch mode {
		case "panic":
			if !errors.Is(err, ErrResolutionFailed) {
				t.Fatalf("panic mode error = %v, want ErrResolutionFailed", err)
			}
		case "invariant":
			if !errors.Is(err, state.ErrInvariantViolation) {
				t.Fatalf("invariant mode error = %v, want ErrInvariantViolation", err)
			}
		}
		if game.Committed() != before || canonical(t, before) != beforeBytes {
			t.Fatalf("%s: committed galaxy changed", mode)
		}
		if game.Status() != AwaitingOrders || game.Intake().Closed() {
			t.Fatalf("%s: game not reopened", mode)
		}
		if got := len(game.Intake().Pending("red")); got != 1 {
			t.Fatalf("%s: pending orders = %d, want 1 retained", mode, got)
		}
	}

	policy.fail.Store(false)
	policy.corrupt.Store(false)
	if _, err := game.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve after recovery: %v", err)
	}
	if pos := game.Committed().Fleet(model.FleetKey{Empire: "red", Seq: 2}).Position; pos != (model.Vec2{X: 60, Y: 5}) {
		t.Fatalf("retained order not applied, red#2 at %v", pos)
	}
}

func TestResolveHonoursCancellation(t *testing.T) {
	game := newTestGame(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := game.Resolve(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Resolve error = %v, want context.Canceled", err)
	}
	if game.Turn() != 1 {
		t.Fatalf("turn advanced on canceled resolve")
	}
}

// lateCancelContext reports no error on the first Err call and Canceled on
// every later one, as a caller whose deadline expires mid-resolution.
type lateCancelContext struct {
	context.Context
	calls atomic.Int32
}

func (c *lateCancelContext) Err() error {
	if c.calls.Add(1) == 1 {
		return nil
	}
	return context.Canceled
}

func TestResolveCompletesAfterLateCancellation(t *testing.T) {
	sink := &recordingSink{}
	game := newTestGame(t, WithCommitSinks(sink))
	ctx := &lateCancelContext{Context: context.Background()}

	res, err := game.Resolve(ctx)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res == nil || res.Turn != 1 || game.Turn() != 2 {
		t.Fatalf("turn now %d, want resolved turn 1 committed as 2", game.Turn())
	}
	if ctx.calls.Load() != 1 {
		t.Fatalf("Err consulted %d times, want only the entry check", ctx.calls.Load())
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.results) != 1 {
		t.Fatalf("sink saw %d commits, want 1", len(sink.results))
	}
}

type countingRecorder struct {
	mu       sync.Mutex
	resolved int
	failed   []string
	phases   map[string]int
}

func (r *countingRecorder) TurnResolved(*Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved++
}

func (r *countingRecorder) TurnFailed(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, reason)
}

func (r *countingRecorder) PhaseDuration(phase string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases[phase]++
}

func TestRecorderSeesPhases(t *testing.T) {
	rec := &countingRecorder{phases: map[string]int{}}
	game := newTestGame(t, WithRecorder(rec))
	if _, err := game.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rec.resolved != 1 || len(rec.failed) != 0 {
		t.Fatalf("resolved/failed = %d/%v", rec.resolved, rec.failed)
	}
	for _, p := range []core.Phase{core.PhaseResearch, core.PhaseProduction, core.PhaseMovement, core.PhaseVisibility, core.PhaseCombat, core.PhaseDefeat} {
		if rec.phases[string(p)] != 1 {
			t.Fatalf("phase %s observed %d times, want 1", p, rec.phases[string(p)])
		}
	}
	if rec.phases[string(core.PhaseInvasion)] != 0 {
		t.Fatalf("invasion phase ran without a policy")
	}
}

func TestNewGameRejectsInvalidGalaxy(t *testing.T) {
	catalog, err := kb.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	g := state.NewGalaxy(1)
	if err := g.AddEmpire(&model.Empire{ID: "blue"}); err != nil {
		t.Fatalf("AddEmpire: %v", err)
	}
	if err := g.AddFleet(&model.Fleet{Key: model.FleetKey{Empire: "blue", Seq: 1}}); err != nil {
		t.Fatalf("AddFleet: %v", err)
	}
	if _, err := NewGame("bad", g, config.DefaultRules(), catalog); !errors.Is(err, state.ErrInvariantViolation) {
		t.Fatalf("NewGame error = %v, want ErrInvariantViolation", err)
	}
}
