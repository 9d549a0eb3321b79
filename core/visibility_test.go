package core

import (
	"testing"

	"github.com/signalsfoundry/stellar-empires/model"
)

func TestVisibilityFromStarsAndFleets(t *testing.T) {
	stats := testStats(t)
	rules := testRules()
	rules.BaseDetectionRange = 10
	rules.ScannerInstallationRange = 5

	w := newTestWorld("a", "b")
	w.addStar(&model.Star{ID: "home", Owner: "a", Position: model.Vec2{}, Installations: map[model.InstallationKind]int{model.InstallationScanner: 2}})
	w.addStar(&model.Star{ID: "near", Position: model.Vec2{X: 20}})
	w.addStar(&model.Star{ID: "far", Position: model.Vec2{X: 100}})
	w.addStar(&model.Star{ID: "rim", Owner: "b", Position: model.Vec2{X: 200}})
	w.addFleet(t, "a", 1, model.Vec2{X: 80}, stats, "picket")
	w.addFleet(t, "b", 1, model.Vec2{X: 15}, stats, "runner")
	w.addFleet(t, "b", 2, model.Vec2{X: 150}, stats, "runner")

	r := VisibilityResolver{Rules: rules, Stats: stats}
	sights := r.Resolve(w)

	a := sights["a"]
	if !a.SeesStar("near") || !a.SeesStar("far") || a.SeesStar("rim") {
		t.Fatalf("a sees stars %v, want near and far only", a.Stars)
	}
	if !a.SeesFleet(model.FleetKey{Empire: "b", Seq: 1}) || a.SeesFleet(model.FleetKey{Empire: "b", Seq: 2}) {
		t.Fatalf("a sees fleets %v, want b#1 only", a.Fleets)
	}
	if a.SeesStar("home") {
		t.Fatal("own stars are not listed")
	}

	// b's runners carry no scanner, so b only sees from its star.
	b := sights["b"]
	if len(b.Fleets) != 0 || b.SeesStar("home") {
		t.Fatalf("b sight = %+v", b)
	}
}
