package core

import (
	"math"

	"github.com/signalsfoundry/stellar-empires/model"
)

// arrivalEpsilon absorbs float drift when comparing a leg's length against
// the remaining travel budget (light years).
const arrivalEpsilon = 1e-9

// PathDistances returns the cumulative path length from `from` through each
// target in order.
func PathDistances(from model.Vec2, targets []model.Vec2) []float64 {
	out := make([]float64, len(targets))
	pos := from
	total := 0.0
	for i, t := range targets {
		total += pos.DistanceTo(t)
		out[i] = total
		pos = t
	}
	return out
}

// stepToward moves from `from` toward `to` by at most budget. It returns the
// new position, the distance actually covered and whether `to` was reached.
// On arrival the position snaps exactly to `to`.
func stepToward(from, to model.Vec2, budget float64) (model.Vec2, float64, bool) {
	leg := from.DistanceTo(to)
	if leg <= budget+arrivalEpsilon {
		return to, leg, true
	}
	if budget <= 0 || leg == 0 {
		return from, 0, false
	}
	dir := to.Sub(from).Scale(1 / leg)
	return from.Add(dir.Scale(budget)), budget, false
}

// withinRange reports whether b lies within radius r of a (inclusive).
func withinRange(a, b model.Vec2, r float64) bool {
	if r <= 0 {
		return false
	}
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx+dy*dy <= r*r+arrivalEpsilon
}

// onSegment reports whether p lies on the closed segment a-b, within a
// small tolerance. Used by the position invariant.
func onSegment(a, b, p model.Vec2) bool {
	ab := a.DistanceTo(b)
	ap := a.DistanceTo(p)
	pb := p.DistanceTo(b)
	return math.Abs(ap+pb-ab) <= 1e-6*math.Max(1, ab)
}
