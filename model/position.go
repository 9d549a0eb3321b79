package model

import "math"

// Vec2 is a point or displacement on the galaxy plane, in light years.
type Vec2 struct {
	X float64
	Y float64
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

// Scale returns v * k.
func (v Vec2) Scale(k float64) Vec2 { return Vec2{X: v.X * k, Y: v.Y * k} }

// Len returns the Euclidean norm of v.
func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }

// DistanceTo returns the straight-line distance between two points.
func (v Vec2) DistanceTo(o Vec2) float64 { return v.Sub(o).Len() }

// IsFinite reports whether both coordinates are finite numbers.
func (v Vec2) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}

// LocationKey identifies a point after quantisation so that fleets which
// snap to the same waypoint compare equal regardless of float noise.
type LocationKey struct {
	X int64
	Y int64
}

// locationQuantum is the grid size used by KeyOf (1e-6 ly).
const locationQuantum = 1e6

// KeyOf returns the quantised location key for p.
func KeyOf(p Vec2) LocationKey {
	return LocationKey{
		X: int64(math.Round(p.X * locationQuantum)),
		Y: int64(math.Round(p.Y * locationQuantum)),
	}
}

// Point converts the key back to plane coordinates.
func (k LocationKey) Point() Vec2 {
	return Vec2{X: float64(k.X) / locationQuantum, Y: float64(k.Y) / locationQuantum}
}

// Less orders keys by X then Y.
func (k LocationKey) Less(o LocationKey) bool {
	if k.X != o.X {
		return k.X < o.X
	}
	return k.Y < o.Y
}
