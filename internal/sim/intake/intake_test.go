package intake

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/signalsfoundry/stellar-empires/internal/config"
	"github.com/signalsfoundry/stellar-empires/internal/sim/state"
	"github.com/signalsfoundry/stellar-empires/kb"
	"github.com/signalsfoundry/stellar-empires/model"
)

const intakeScenario = `
seed: 7
empires:
  - {id: blue, name: Blue}
  - {id: red, name: Red}
designs:
  - name: Raider
    hull: scout
    slots: [{component: quick_jump_5, count: 1}, {component: laser, count: 1}]
  - name: Picket
    owner: blue
    hull: scout
    slots: [{component: quick_jump_5, count: 1}, {component: bat_scanner, count: 1}]
  - name: Spare
    owner: blue
    hull: scout
    slots: [{component: quick_jump_5, count: 1}]
stars:
  - {id: sol, x: 0, y: 0, owner: blue, population: 10000}
  - {id: vega, x: 40, y: 0, owner: red, population: 10000}
fleets:
  - {empire: blue, x: 0, y: 0, ships: [{design: Raider, count: 1}]}
  - {empire: blue, x: 0, y: 0, ships: [{design: Picket, count: 1}]}
  - {empire: red, x: 40, y: 0, ships: [{design: Raider, count: 1}]}
`

type fixture struct {
	galaxy  *state.Galaxy
	catalog *kb.DesignCatalog
	intake  *Intake
}

func newFixture(t *testing.T, rules config.Rules, opts ...Option) *fixture {
	t.Helper()
	catalog, err := kb.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	g, err := state.LoadScenario(strings.NewReader(intakeScenario), catalog)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	f := &fixture{galaxy: g, catalog: catalog}
	f.intake = New(rules, catalog, func() *state.Galaxy { return f.galaxy }, opts...)
	return f
}

func cmd(empire model.EmpireID, o model.Order) model.Command {
	return model.Command{Empire: empire, Turn: 1, Order: o}
}

func moveTo(fleet int, x, y float64) model.WaypointOrder {
	return model.WaypointOrder{Fleet: fleet, Waypoints: []model.WaypointSpec{{Target: model.Vec2{X: x, Y: y}}}}
}

func TestSubmitReplacesSameSubject(t *testing.T) {
	f := newFixture(t, config.DefaultRules())
	ctx := context.Background()

	r1, err := f.intake.Submit(ctx, "blue", cmd("blue", moveTo(1, 10, 0)))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if r1.Replaced || r1.Pending != 1 || r1.Turn != 1 {
		t.Fatalf("first receipt = %+v", r1)
	}
	if _, err := f.intake.Submit(ctx, "blue", cmd("blue", moveTo(2, 5, 5))); err != nil {
		t.Fatalf("Submit fleet 2: %v", err)
	}
	r3, err := f.intake.Submit(ctx, "blue", cmd("blue", moveTo(1, 20, 0)))
	if err != nil {
		t.Fatalf("Submit replacement: %v", err)
	}
	if !r3.Replaced || r3.Pending != 2 {
		t.Fatalf("replacement receipt = %+v", r3)
	}

	pending := f.intake.Pending("blue")
	first := pending[0].Order.(model.WaypointOrder)
	if first.Fleet != 1 || first.Waypoints[0].Target.X != 20 {
		t.Fatalf("replacement should keep position and take new content: %+v", first)
	}
}

func TestSubmitResolvesStarTargets(t *testing.T) {
	f := newFixture(t, config.DefaultRules())
	o := model.WaypointOrder{Fleet: 1, Waypoints: []model.WaypointSpec{{Star: "vega"}}}
	if _, err := f.intake.Submit(context.Background(), "blue", cmd("blue", o)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got := f.intake.Pending("blue")[0].Order.(model.WaypointOrder)
	if got.Waypoints[0].Target != (model.Vec2{X: 40}) {
		t.Fatalf("star waypoint target = %+v, want vega's position", got.Waypoints[0].Target)
	}
}

func TestSubmitRejections(t *testing.T) {
	cases := []struct {
		name   string
		empire model.EmpireID
		cmd    model.Command
		want   error
	}{
		{"unknown empire", "green", cmd("green", moveTo(1, 0, 0)), ErrUnknownEmpire},
		{"signed by another empire", "blue", cmd("red", moveTo(1, 0, 0)), ErrForeignAsset},
		{"stale turn", "blue", model.Command{Empire: "blue", Turn: 0, Order: moveTo(1, 0, 0)}, ErrStaleTurn},
		{"nil order", "blue", model.Command{Empire: "blue", Turn: 1}, ErrInvalidOrder},
		{"foreign fleet", "red", cmd("red", moveTo(2, 0, 0)), ErrForeignAsset},
		{"empty waypoints", "blue", cmd("blue", model.WaypointOrder{Fleet: 1}), ErrInvalidOrder},
		{"non-finite waypoint", "blue", cmd("blue", moveTo(1, math.Inf(1), 0)), ErrInvalidOrder},
		{"unknown waypoint star", "blue", cmd("blue", model.WaypointOrder{Fleet: 1, Waypoints: []model.WaypointSpec{{Star: "nowhere"}}}), ErrInvalidOrder},
		{"colonize without star", "blue", cmd("blue", model.WaypointOrder{Fleet: 1, Waypoints: []model.WaypointSpec{{Task: model.TaskColonize}}}), ErrInvalidOrder},
		{"merge with foreign fleet", "red", cmd("red", model.WaypointOrder{Fleet: 1, Waypoints: []model.WaypointSpec{{Task: model.TaskMerge, MergeWith: 2}}}), ErrForeignAsset},
		{"split without count", "blue", cmd("blue", model.WaypointOrder{Fleet: 1, Waypoints: []model.WaypointSpec{{Task: model.TaskSplit, Split: model.SplitSpec{Design: "Raider"}}}}), ErrInvalidOrder},
		{"foreign star production", "blue", cmd("blue", model.ProductionOrder{Star: "vega"}), ErrForeignAsset},
		{"unknown design in queue", "red", cmd("red", model.ProductionOrder{Star: "vega", Queue: []model.QueueEntrySpec{{Kind: model.BuildShip, Design: "Picket", Quantity: 1}}}), ErrInvalidOrder},
		{"zero quantity", "blue", cmd("blue", model.ProductionOrder{Star: "sol", Queue: []model.QueueEntrySpec{{Kind: model.BuildInstallation, Installation: model.InstallationMine}}}), ErrInvalidOrder},
		{"locked installation", "blue", cmd("blue", model.ProductionOrder{Star: "sol", Queue: []model.QueueEntrySpec{{Kind: model.BuildInstallation, Installation: model.InstallationScanner, Quantity: 1}}}), ErrTechLocked},
		{"target fleet not owned", "blue", cmd("blue", model.ProductionOrder{Star: "sol", Queue: []model.QueueEntrySpec{{Kind: model.BuildShip, Design: "Raider", Quantity: 1, TargetFleet: 9}}}), ErrForeignAsset},
		{"research does not sum to 100", "blue", cmd("blue", model.ResearchOrder{Allocation: model.ResearchAllocation{Share: 0.5, Percent: map[model.TechField]float64{model.TechEnergy: 90}}}), ErrInvalidOrder},
		{"research share above output", "blue", cmd("blue", model.ResearchOrder{Allocation: model.ResearchAllocation{Share: 1.5, Percent: map[model.TechField]float64{model.TechEnergy: 100}}}), ErrInsufficientResources},
		{"negative research percent", "blue", cmd("blue", model.ResearchOrder{Allocation: model.ResearchAllocation{Percent: map[model.TechField]float64{model.TechEnergy: 110, model.TechWeapons: -10}}}), ErrInvalidOrder},
		{"locked hull", "blue", cmd("blue", model.DesignOrder{Action: model.DesignSubmit, Design: model.Design{Name: "Big", Hull: "frigate"}}), ErrTechLocked},
		{"overfilled hull", "blue", cmd("blue", model.DesignOrder{Action: model.DesignSubmit, Design: model.Design{Name: "Fat", Hull: "scout", Slots: []model.DesignSlot{{Component: "quick_jump_5", Count: 2}}}}), ErrInvalidOrder},
		{"replace design in use", "blue", cmd("blue", model.DesignOrder{Action: model.DesignSubmit, Design: model.Design{Name: "Picket", Hull: "scout"}}), ErrDesignInUse},
		{"retire design in use", "blue", cmd("blue", model.DesignOrder{Action: model.DesignRetire, Design: model.Design{Name: "Picket"}}), ErrDesignInUse},
		{"shadow shared design", "blue", cmd("blue", model.DesignOrder{Action: model.DesignSubmit, Design: model.Design{Name: "Raider", Hull: "scout"}}), ErrInvalidOrder},
		{"design for another empire", "blue", cmd("blue", model.DesignOrder{Action: model.DesignSubmit, Design: model.Design{Name: "X", Owner: "red", Hull: "scout"}}), ErrForeignAsset},
		{"relation toward unknown empire", "blue", cmd("blue", model.RelationOrder{Target: "green", Relation: model.RelationHostile}), ErrUnknownEmpire},
		{"relation toward self", "blue", cmd("blue", model.RelationOrder{Target: "blue", Relation: model.RelationHostile}), ErrInvalidOrder},
		{"unknown tactic", "blue", cmd("blue", model.TacticOrder{Fleet: 1, Tactic: "berserk"}), ErrInvalidOrder},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, config.DefaultRules())
			_, err := f.intake.Submit(context.Background(), tc.empire, tc.cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Submit error = %v, want %v", err, tc.want)
			}
			var rej *RejectionError
			if !errors.As(err, &rej) || rej.Code == "" {
				t.Fatalf("error %v is not a coded RejectionError", err)
			}
			if n := len(f.intake.Pending(tc.empire)); n != 0 {
				t.Fatalf("rejected command was buffered (%d pending)", n)
			}
		})
	}
}

func TestSubmitAcceptsValidOrders(t *testing.T) {
	f := newFixture(t, config.DefaultRules())
	ctx := context.Background()
	orders := []model.Order{
		model.ProductionOrder{Star: "sol", Queue: []model.QueueEntrySpec{
			{Kind: model.BuildShip, Design: "Raider", Quantity: 2, TargetFleet: 1},
			{Kind: model.BuildInstallation, Installation: model.InstallationFactory, Quantity: 3},
		}},
		model.ResearchOrder{Allocation: model.ResearchAllocation{Share: 0.25, Percent: map[model.TechField]float64{
			model.TechEnergy: 33.3333333, model.TechWeapons: 33.3333333, model.TechPropulsion: 33.3333334,
		}}},
		model.DesignOrder{Action: model.DesignRetire, Design: model.Design{Name: "Spare"}},
		model.RelationOrder{Target: "red", Relation: model.RelationHostile},
		model.TacticOrder{Fleet: 2, Tactic: model.TacticStrongest},
		model.WaypointOrder{Fleet: 1, Waypoints: []model.WaypointSpec{{Task: model.TaskMerge, MergeWith: 2}}},
	}
	for _, o := range orders {
		if _, err := f.intake.Submit(ctx, "blue", cmd("blue", o)); err != nil {
			t.Fatalf("Submit(%T): %v", o, err)
		}
	}
	if n := len(f.intake.Pending("blue")); n != len(orders) {
		t.Fatalf("pending = %d, want %d", n, len(orders))
	}
}

func TestProductionSeesDesignSubmittedThisTurn(t *testing.T) {
	f := newFixture(t, config.DefaultRules())
	ctx := context.Background()
	queue := model.ProductionOrder{Star: "sol", Queue: []model.QueueEntrySpec{{Kind: model.BuildShip, Design: "Lancer", Quantity: 1}}}

	if _, err := f.intake.Submit(ctx, "blue", cmd("blue", queue)); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("queue before design: %v, want ErrInvalidOrder", err)
	}
	design := model.DesignOrder{Action: model.DesignSubmit, Design: model.Design{
		Name: "Lancer", Hull: "scout",
		Slots: []model.DesignSlot{{Component: "quick_jump_5", Count: 1}, {Component: "laser", Count: 1}},
	}}
	if _, err := f.intake.Submit(ctx, "blue", cmd("blue", design)); err != nil {
		t.Fatalf("Submit design: %v", err)
	}
	if _, err := f.intake.Submit(ctx, "blue", cmd("blue", queue)); err != nil {
		t.Fatalf("queue after design: %v", err)
	}
	stored := f.intake.Pending("blue")[0].Order.(model.DesignOrder)
	if stored.Design.Owner != "blue" {
		t.Fatalf("design owner = %q, want blue", stored.Design.Owner)
	}
}

func TestCloseAndReopen(t *testing.T) {
	f := newFixture(t, config.DefaultRules())
	ctx := context.Background()
	if _, err := f.intake.Submit(ctx, "red", cmd("red", moveTo(1, 0, 0))); err != nil {
		t.Fatalf("Submit red: %v", err)
	}
	if _, err := f.intake.Submit(ctx, "blue", cmd("blue", moveTo(1, 0, 0))); err != nil {
		t.Fatalf("Submit blue: %v", err)
	}

	batch := f.intake.Close()
	if len(batch) != 2 || batch[0].Empire != "blue" || batch[1].Empire != "red" {
		t.Fatalf("batch = %+v, want blue then red", batch)
	}
	if !f.intake.Closed() {
		t.Fatalf("intake should be closed")
	}
	if _, err := f.intake.Submit(ctx, "blue", cmd("blue", moveTo(2, 0, 0))); !errors.Is(err, ErrTurnClosed) {
		t.Fatalf("Submit while closed: %v, want ErrTurnClosed", err)
	}
	if err := f.intake.MarkReady("blue"); !errors.Is(err, ErrTurnClosed) {
		t.Fatalf("MarkReady while closed: %v, want ErrTurnClosed", err)
	}

	// A failed resolution keeps the batch.
	f.intake.Reopen(false)
	if got := len(f.intake.Close()); got != 2 {
		t.Fatalf("retained batch = %d, want 2", got)
	}

	// A committed resolution clears it.
	f.intake.Reopen(true)
	if got := len(f.intake.Pending("blue")) + len(f.intake.Pending("red")); got != 0 {
		t.Fatalf("pending after commit = %d, want 0", got)
	}
}

func TestReadiness(t *testing.T) {
	f := newFixture(t, config.DefaultRules())
	if f.intake.AllReady() {
		t.Fatalf("nobody is ready yet")
	}
	if err := f.intake.MarkReady("blue"); err != nil {
		t.Fatalf("MarkReady blue: %v", err)
	}
	if f.intake.AllReady() {
		t.Fatalf("red is not ready")
	}
	// Defeated empires do not hold up the turn.
	f.galaxy.Empire("red").Status = model.EmpireDefeated
	if !f.intake.AllReady() {
		t.Fatalf("all active empires are ready")
	}
	if err := f.intake.MarkReady("green"); !errors.Is(err, ErrUnknownEmpire) {
		t.Fatalf("MarkReady green: %v, want ErrUnknownEmpire", err)
	}
	f.intake.Reopen(true)
	if f.intake.AllReady() {
		t.Fatalf("readiness must reset after commit")
	}
}

func TestRateLimit(t *testing.T) {
	rules := config.DefaultRules()
	rules.OrderRate = 0.001
	rules.OrderBurst = 2
	f := newFixture(t, rules)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.intake.Submit(ctx, "blue", cmd("blue", moveTo(1, float64(i), 0))); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if _, err := f.intake.Submit(ctx, "blue", cmd("blue", moveTo(1, 9, 0))); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third Submit: %v, want ErrRateLimited", err)
	}
	// Each empire has its own budget.
	if _, err := f.intake.Submit(ctx, "red", cmd("red", moveTo(1, 9, 0))); err != nil {
		t.Fatalf("red Submit: %v", err)
	}
}

type countingRecorder struct {
	mu       sync.Mutex
	accepted map[string]int
	rejected map[string]int
}

func (r *countingRecorder) OrderAccepted(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted[kind]++
}

func (r *countingRecorder) OrderRejected(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected[code]++
}

func TestConcurrentSubmissions(t *testing.T) {
	rec := &countingRecorder{accepted: map[string]int{}, rejected: map[string]int{}}
	f := newFixture(t, config.DefaultRules(), WithRecorder(rec))
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, empire := range []model.EmpireID{"blue", "red"} {
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(empire model.EmpireID, w int) {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					_, _ = f.intake.Submit(ctx, empire, cmd(empire, moveTo(1, float64(w*10+i), 0)))
					_, _ = f.intake.Submit(ctx, empire, cmd(empire, model.TacticOrder{Fleet: 1, Tactic: model.TacticRandom}))
				}
			}(empire, w)
		}
	}
	wg.Wait()

	// Every submission targets one of two subjects per empire.
	for _, empire := range []model.EmpireID{"blue", "red"} {
		if n := len(f.intake.Pending(empire)); n != 2 {
			t.Fatalf("%s pending = %d, want 2", empire, n)
		}
	}
	if rec.accepted["waypoints"] != 80 || rec.accepted["tactic"] != 80 {
		t.Fatalf("recorded accepts = %v", rec.accepted)
	}
	if len(rec.rejected) != 0 {
		t.Fatalf("unexpected rejections: %v", rec.rejected)
	}
}

func TestOrderKind(t *testing.T) {
	if got := OrderKind(model.ResearchOrder{}); got != "research" {
		t.Fatalf("OrderKind(research) = %q", got)
	}
	if got := OrderKind(nil); got != "unknown" {
		t.Fatalf("OrderKind(nil) = %q", got)
	}
}
