package geometry

import (
	"math"
	"math/rand"
)

// UID is a process-unique identifier assigned at creation to every line
// segment (doors, walls). Stable for the lifetime of the run.
type UID int64

// UIDAllocator hands out stable, monotonically increasing UIDs. Per the
// design notes, a global counter is replaced with an explicitly-passed
// allocator so tests can run deterministically and in parallel.
type UIDAllocator struct {
	next UID
}

// NewUIDAllocator returns an allocator starting at 1 (0 is reserved to mean
// "no UID assigned").
func NewUIDAllocator() *UIDAllocator {
	return &UIDAllocator{next: 1}
}

// Next returns the next UID and advances the counter.
func (a *UIDAllocator) Next() UID {
	id := a.next
	a.next++
	return id
}

// Segment is an ordered pair of points carrying a stable UID.
type Segment struct {
	UID  UID
	P1   Point
	P2   Point
}

// NewSegment creates a segment and assigns it a UID from alloc.
func NewSegment(alloc *UIDAllocator, p1, p2 Point) Segment {
	return Segment{UID: alloc.Next(), P1: p1, P2: p2}
}

// Center returns the midpoint of the segment.
func (s Segment) Center() Point {
	return Blend(s.P1, s.P2, 0.5)
}

// Length returns the Euclidean length of the segment.
func (s Segment) Length() float64 {
	return Distance(s.P1, s.P2)
}

// Vector returns P2 - P1.
func (s Segment) Vector() Point {
	return s.P2.Sub(s.P1)
}

// Normal returns one of the two unit normals to the segment (rotated +90deg
// from P1->P2).
func (s Segment) Normal() Point {
	d := s.Vector().Normalized()
	return Point{-d.Y, d.X}
}

// EqualEndpoints reports whether s and o have the same endpoint set, modulo
// eps and independent of winding order.
func (s Segment) EqualEndpoints(o Segment, eps float64) bool {
	same := s.P1.EqualEps(o.P1, eps) && s.P2.EqualEps(o.P2, eps)
	swapped := s.P1.EqualEps(o.P2, eps) && s.P2.EqualEps(o.P1, eps)
	return same || swapped
}

// ShrinkInward returns the segment shrunk toward its center by amount on
// each end, never shrinking past the midpoint.
func (s Segment) ShrinkInward(amount float64) Segment {
	length := s.Length()
	if length < DistEps {
		return s
	}
	amount = Clamp(amount, 0, length/2)
	t := amount / length
	return Segment{
		UID: s.UID,
		P1:  Blend(s.P1, s.P2, t),
		P2:  Blend(s.P1, s.P2, 1-t),
	}
}

// IntersectKind classifies the result of a segment-segment intersection
// test.
type IntersectKind int

const (
	None IntersectKind = iota
	Intersection
	Overlap
)

// IntersectSegments tests segments a=(a1,a2) and b=(b1,b2) for intersection.
// It returns Overlap when both segments are colinear and share an interval,
// Intersection with the single crossing point when they cross transversally
// (including touching at an endpoint), and None otherwise.
func IntersectSegments(a1, a2, b1, b2 Point) (IntersectKind, Point) {
	r := a2.Sub(a1)
	s := b2.Sub(b1)
	rxs := r.Cross(s)
	qmp := b1.Sub(a1)
	qpxr := qmp.Cross(r)

	if isZero(rxs) && isZero(qpxr) {
		// Colinear: check for overlap by projecting onto r.
		rr := r.Dot(r)
		if rr < DistEps*DistEps {
			if a1.Equal(b1) {
				return Intersection, a1
			}
			return None, Point{}
		}
		t0 := qmp.Dot(r) / rr
		t1 := t0 + s.Dot(r)/rr
		lo, hi := t0, t1
		if lo > hi {
			lo, hi = hi, lo
		}
		if hi < -DistEps || lo > 1+DistEps {
			return None, Point{}
		}
		tMid := Clamp((math.Max(lo, 0)+math.Min(hi, 1))/2, 0, 1)
		return Overlap, a1.Add(r.Scale(tMid))
	}

	if isZero(rxs) {
		// Parallel, non-intersecting.
		return None, Point{}
	}

	t := qmp.Cross(s) / rxs
	u := qpxr / rxs
	if t < -DistEps || t > 1+DistEps || u < -DistEps || u > 1+DistEps {
		return None, Point{}
	}
	return Intersection, a1.Add(r.Scale(t))
}

func isZero(v float64) bool {
	return v < DistEps && v > -DistEps
}

// IntersectSegmentCircle reports whether the segment a-b intersects the
// circle of the given center and radius, and returns the closest approach
// point on the segment.
func IntersectSegmentCircle(a, b, center Point, radius float64) (bool, Point) {
	dist, closest := DistanceToSegment(a, b, center)
	return dist <= radius, closest
}

// PointInPolygon reports whether pt lies inside the closed polygon
// described by vertices (which must not repeat the first point at the
// end), using the standard ray-casting algorithm. Points on the boundary
// are treated as inside.
func PointInPolygon(vertices []Point, pt Point) bool {
	n := len(vertices)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := vertices[i], vertices[j]
		if d, _ := DistanceToSegment(vi, vj, pt); d < DistEps {
			return true
		}
		if (vi.Y > pt.Y) != (vj.Y > pt.Y) {
			xCross := (vj.X-vi.X)*(pt.Y-vi.Y)/(vj.Y-vi.Y) + vi.X
			if pt.X < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// PolygonArea returns the (unsigned) area of a simple polygon via the
// shoelace formula.
func PolygonArea(vertices []Point) float64 {
	n := len(vertices)
	if n < 3 {
		return 0
	}
	sum := 0.0
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		sum += vertices[j].X*vertices[i].Y - vertices[i].X*vertices[j].Y
	}
	if sum < 0 {
		sum = -sum
	}
	return sum / 2
}

// IsCCW reports whether the polygon's vertices are wound counterclockwise.
func IsCCW(vertices []Point) bool {
	n := len(vertices)
	if n < 3 {
		return false
	}
	sum := 0.0
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		sum += (vertices[i].X - vertices[j].X) * (vertices[i].Y + vertices[j].Y)
	}
	return sum < 0
}

// RandomPointInBox draws a uniform random point inside the axis-aligned box
// [minP, maxP) using rng, for rejection-sampling callers.
func RandomPointInBox(rng *rand.Rand, minP, maxP Point) Point {
	return Point{
		X: minP.X + rng.Float64()*(maxP.X-minP.X),
		Y: minP.Y + rng.Float64()*(maxP.Y-minP.Y),
	}
}

// BoundingBox returns the axis-aligned bounding box of vertices.
func BoundingBox(vertices []Point) (minP, maxP Point) {
	if len(vertices) == 0 {
		return
	}
	minP, maxP = vertices[0], vertices[0]
	for _, v := range vertices[1:] {
		if v.X < minP.X {
			minP.X = v.X
		}
		if v.Y < minP.Y {
			minP.Y = v.Y
		}
		if v.X > maxP.X {
			maxP.X = v.X
		}
		if v.Y > maxP.Y {
			maxP.Y = v.Y
		}
	}
	return
}
