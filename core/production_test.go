package core

import (
	"testing"

	"github.com/signalsfoundry/stellar-empires/model"
)

func factoryStar(owner model.EmpireID, factories int, queue ...model.QueueEntry) *model.Star {
	return &model.Star{
		ID:            "sol",
		Owner:         owner,
		Position:      model.Vec2{X: 1, Y: 1},
		Installations: map[model.InstallationKind]int{model.InstallationFactory: factories},
		Queue:         queue,
	}
}

func TestProductionCompletesCarriedEntryExactly(t *testing.T) {
	stats := testStats(t)
	w := newTestWorld("a")
	star := w.addStar(factoryStar("a", 10, model.QueueEntry{Kind: model.BuildShip, Design: "duelist", Quantity: 1, Progress: 15}))

	r := ProductionResolver{Rules: testRules(), Stats: stats}
	res := r.Resolve(w)

	if len(star.Queue) != 0 {
		t.Fatalf("queue = %+v, want empty", star.Queue)
	}
	report := res.Stars[0]
	if report.Available != 10 || report.Spent != 10 || report.Wasted != 0 {
		t.Fatalf("report = %+v, want 10 available, 10 spent, nothing wasted", report)
	}
	if len(report.Ships) != 1 {
		t.Fatalf("new fleets = %v, want 1", report.Ships)
	}
	f := w.Fleet(report.Ships[0])
	if f == nil || len(f.Ships) != 1 || f.Ships[0].Design != "duelist" || f.Position != star.Position {
		t.Fatalf("new fleet = %+v", f)
	}
	if f.Fuel != 100 {
		t.Fatalf("new fleet fuel = %v, want full tanks", f.Fuel)
	}
}

func TestProductionCarriesPartialProgress(t *testing.T) {
	stats := testStats(t)
	w := newTestWorld("a")
	star := w.addStar(factoryStar("a", 10, model.QueueEntry{Kind: model.BuildShip, Design: "duelist", Quantity: 1}))

	r := ProductionResolver{Rules: testRules(), Stats: stats}
	r.Resolve(w)
	if len(star.Queue) != 1 || star.Queue[0].Progress != 10 {
		t.Fatalf("queue = %+v, want progress 10", star.Queue)
	}
	r.Resolve(w)
	r.Resolve(w)
	if len(star.Queue) != 0 {
		t.Fatalf("queue = %+v, want done after 3 turns", star.Queue)
	}
}

func TestProductionCascadesAcrossUnitsAndEntries(t *testing.T) {
	stats := testStats(t)
	w := newTestWorld("a")
	star := w.addStar(factoryStar("a", 62,
		model.QueueEntry{Kind: model.BuildShip, Design: "duelist", Quantity: 2},
		model.QueueEntry{Kind: model.BuildInstallation, Installation: model.InstallationFactory, Quantity: 1},
		model.QueueEntry{Kind: model.BuildInstallation, Installation: model.InstallationMine, Quantity: 3},
	))

	r := ProductionResolver{Rules: testRules(), Stats: stats}
	res := r.Resolve(w)

	// 62 = 25 + 25 + 10, leaving 2 on the first mine.
	if got := star.Installation(model.InstallationFactory); got != 63 {
		t.Fatalf("factories = %d, want 63", got)
	}
	if len(star.Queue) != 1 || star.Queue[0].Quantity != 3 || star.Queue[0].Progress != 2 {
		t.Fatalf("queue = %+v, want 3 mines with 2 progress", star.Queue)
	}
	report := res.Stars[0]
	if len(report.Ships) != 1 {
		t.Fatalf("fleets = %v, want both ships in one fleet", report.Ships)
	}
	if f := w.Fleet(report.Ships[0]); len(f.Ships) != 2 {
		t.Fatalf("fleet ships = %d, want 2", len(f.Ships))
	}
	if report.Spent > report.Available+report.CarriedIn {
		t.Fatalf("spent %v exceeds available %v + carried %v", report.Spent, report.Available, report.CarriedIn)
	}
}

func TestProductionResearchShareReducesOutput(t *testing.T) {
	stats := testStats(t)
	w := newTestWorld("a")
	w.empires["a"].Research.Share = 0.25
	star := w.addStar(factoryStar("a", 20, model.QueueEntry{Kind: model.BuildShip, Design: "duelist", Quantity: 1}))

	r := ProductionResolver{Rules: testRules(), Stats: stats}
	res := r.Resolve(w)
	if res.Stars[0].Available != 15 || star.Queue[0].Progress != 15 {
		t.Fatalf("available %v progress %v, want 15/15", res.Stars[0].Available, star.Queue[0].Progress)
	}
}

func TestProductionJoinsTargetFleet(t *testing.T) {
	stats := testStats(t)
	w := newTestWorld("a")
	star := w.addStar(factoryStar("a", 25, model.QueueEntry{Kind: model.BuildShip, Design: "duelist", Quantity: 1, TargetFleet: 4}))
	garrison := w.addFleet(t, "a", 4, star.Position, stats, "runner")

	r := ProductionResolver{Rules: testRules(), Stats: stats}
	r.Resolve(w)
	if len(garrison.Ships) != 2 {
		t.Fatalf("garrison ships = %d, want 2", len(garrison.Ships))
	}
	if len(w.FleetKeys()) != 1 {
		t.Fatalf("fleets = %v, want only the garrison", w.FleetKeys())
	}
}

func TestProductionEmptyQueueWastesOutputAndGrowsPopulation(t *testing.T) {
	stats := testStats(t)
	rules := testRules()
	rules.PopulationGrowth = 0.1
	rules.MaxPopulation = 10_500
	w := newTestWorld("a")
	star := w.addStar(&model.Star{ID: "sol", Owner: "a", Population: 10_000})

	r := ProductionResolver{Rules: rules, Stats: stats}
	res := r.Resolve(w)
	if res.Stars[0].Wasted != 10 {
		t.Fatalf("wasted = %v, want 10", res.Stars[0].Wasted)
	}
	if star.Population != 10_500 {
		t.Fatalf("population = %d, want capped at 10500", star.Population)
	}
}

func TestProductionParallelMatchesSerial(t *testing.T) {
	stats := testStats(t)
	build := func() *testWorld {
		w := newTestWorld("a", "b")
		for i := 0; i < 30; i++ {
			owner := model.EmpireID("a")
			if i%2 == 1 {
				owner = "b"
			}
			s := factoryStar(owner, 5+i, model.QueueEntry{Kind: model.BuildShip, Design: "duelist", Quantity: 3})
			s.ID = model.StarID(rune('A'+i%26)) + model.StarID(rune('a'+i/26))
			s.Position = model.Vec2{X: float64(i)}
			w.addStar(s)
		}
		return w
	}
	serial, parallel := build(), build()
	(&ProductionResolver{Rules: testRules(), Stats: stats, Workers: 1}).Resolve(serial)
	(&ProductionResolver{Rules: testRules(), Stats: stats, Workers: 8}).Resolve(parallel)

	sk, pk := serial.FleetKeys(), parallel.FleetKeys()
	if len(sk) != len(pk) {
		t.Fatalf("fleet counts differ: %d vs %d", len(sk), len(pk))
	}
	for i := range sk {
		if sk[i] != pk[i] || serial.Fleet(sk[i]).Position != parallel.Fleet(pk[i]).Position {
			t.Fatalf("fleet %d differs: %s vs %s", i, sk[i], pk[i])
		}
	}
}

func TestStarOutputFormula(t *testing.T) {
	rules := testRules()
	s := &model.Star{
		Owner:         "a",
		Population:    5000,
		Installations: map[model.InstallationKind]int{model.InstallationFactory: 2, model.InstallationMine: 4},
		Minerals:      map[model.Mineral]float64{model.MineralIronium: 60, model.MineralBoranium: 30, model.MineralGermanium: 0},
	}
	// 5000/1000 + 2*1 + 4*0.5*30/100
	if got := StarOutput(rules, s); !near(got, 5+2+0.6) {
		t.Fatalf("StarOutput = %v, want 7.6", got)
	}
	s.Owner = ""
	if got := StarOutput(rules, s); got != 0 {
		t.Fatalf("unowned star output = %v, want 0", got)
	}
}
