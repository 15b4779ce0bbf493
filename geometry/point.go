// Package geometry provides the planar primitives shared by every other
// package in the kernel: points, line segments, and the intersection and
// containment tests the routing and force-model layers build on.
package geometry

import (
	"math"

	"github.com/samber/lo"
)

// DistEps is the default tolerance used for point and distance comparisons.
const DistEps = 1e-7

// GoalEps is the larger tolerance used when deciding an agent has reached a
// goal region or door: small numerical jitter in the operational model must
// not prevent an agent from ever being considered "arrived".
const GoalEps = 1e-2

// CoordEps is the coarse tolerance used when comparing coordinates parsed
// from geometry files, where the source data itself carries rounding error.
const CoordEps = 1e-4

// Point is a planar coordinate with vector algebra.
type Point struct {
	X, Y float64
}

func (p Point) Add(q Point) Point      { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Sub(q Point) Point      { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) Scale(s float64) Point  { return Point{p.X * s, p.Y * s} }
func (p Point) Dot(q Point) float64    { return p.X*q.X + p.Y*q.Y }
func (p Point) Cross(q Point) float64  { return p.X*q.Y - p.Y*q.X }
func (p Point) Norm() float64          { return math.Hypot(p.X, p.Y) }
func (p Point) NormSquare() float64    { return p.X*p.X + p.Y*p.Y }

// Normalized returns the unit vector in the direction of p, or the zero
// vector if p is (within DistEps) the origin.
func (p Point) Normalized() Point {
	n := p.Norm()
	if n < DistEps {
		return Point{}
	}
	return Point{p.X / n, p.Y / n}
}

// Rotated rotates p by theta radians about the origin.
func (p Point) Rotated(theta float64) Point {
	s, c := math.Sincos(theta)
	return Point{p.X*c - p.Y*s, p.X*s + p.Y*c}
}

// EqualEps reports whether p and q are the same point within eps.
func (p Point) EqualEps(q Point, eps float64) bool {
	return math.Abs(p.X-q.X) < eps && math.Abs(p.Y-q.Y) < eps
}

// Equal reports whether p and q are the same point within DistEps.
func (p Point) Equal(q Point) bool {
	return p.EqualEps(q, DistEps)
}

// Distance returns the Euclidean distance between p and q.
func Distance(p, q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Blend linearly interpolates between p and q at parameter t in [0, 1].
func Blend(p, q Point, t float64) Point {
	return Point{p.X + (q.X-p.X)*t, p.Y + (q.Y-p.Y)*t}
}

// Side is the result of a which-side test against a directed line.
type Side int

const (
	Left Side = iota
	Right
	On
)

// SideOf returns which side of the directed line a->b the point pt falls
// on, using the sign of the cross product (b-a) x (pt-a). Colinear points
// are reported as Right, matching the convention fixed by the spec.
func SideOf(a, b, pt Point) Side {
	cross := b.Sub(a).Cross(pt.Sub(a))
	switch {
	case cross > DistEps:
		return Left
	case cross < -DistEps:
		return Right
	default:
		return Right
	}
}

// DistanceToSegment returns the shortest distance from pt to the segment
// a-b and the closest point on the segment.
func DistanceToSegment(a, b, pt Point) (float64, Point) {
	ab := b.Sub(a)
	l2 := ab.NormSquare()
	if l2 < DistEps*DistEps {
		return Distance(a, pt), a
	}
	t := pt.Sub(a).Dot(ab) / l2
	t = Clamp(t, 0, 1)
	closest := a.Add(ab.Scale(t))
	return Distance(closest, pt), closest
}

// Clamp restricts v to the closed interval [min, max].
func Clamp(v, min, max float64) float64 {
	return lo.Clamp(v, min, max)
}
