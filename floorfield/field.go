package floorfield

import (
	"fmt"
	"math"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"git.fiblab.net/sim/crowddynamics/simerr"
)

// Destination identifies the target a field is built toward: either a
// door (by UID, using its full segment as the target region) or a bare
// point (e.g. a waiting-area centre), per spec §4.4's "either the
// centrepoint of a door or the door as a line segment".
type Destination struct {
	DoorUID geometry.UID
	Point   geometry.Point
}

// DoorDestination builds a Destination targeting a door's segment.
func DoorDestination(uid geometry.UID) Destination {
	return Destination{DoorUID: uid}
}

// PointDestination builds a Destination targeting a single point.
func PointDestination(p geometry.Point) Destination {
	return Destination{Point: p}
}

// wallAvoidDistance is the distance (in metres) over which the
// wall-avoiding speed field ramps from 0 at the wall to full speed.
const wallAvoidDistance = 0.5

// Field is a built fast-marching floor field for one subroom and one
// destination: a cost grid and its unit gradient, queryable by position.
type Field struct {
	grid *codeGrid
	cost *solveGrid
}

// Build rasterizes sr for dest at grid spacing h, floods the interior,
// and runs fast marching under the given speed mode, per spec §4.4.
func Build(b *building.Building, sr *building.SubRoom, dest Destination, h float64, mode Mode) *Field {
	g := rasterize(b, sr, dest, h)

	passable := func(c code) bool { return c != codeWall }
	isSource := func(c code) bool { return c == codeTarget }

	var speedAt func(i, j int) float64
	switch mode {
	case WallAvoiding:
		wallDist := distanceToWallGrid(g)
		speedAt = func(i, j int) float64 {
			d := wallDist.cost[g.idx(i, j)]
			return math.Min(1, d/wallAvoidDistance)
		}
	default:
		speedAt = func(i, j int) float64 { return 1 }
	}

	solved := runFastMarching(g, passable, isSource, speedAt)
	overrideTargetGradient(g, solved, sr, b, dest)
	return &Field{grid: g, cost: solved}
}

// distanceToWallGrid runs a second fast-marching pass with wall cells as
// the zero-cost sources and unit speed everywhere else, yielding the
// distance-to-nearest-wall field the wall-avoiding speed mode needs.
func distanceToWallGrid(g *codeGrid) *solveGrid {
	passable := func(c code) bool { return c != codeWall }
	isSource := func(c code) bool { return c == codeWall }
	unitSpeed := func(i, j int) float64 { return 1 }
	return runFastMarching(g, passable, isSource, unitSpeed)
}

// overrideTargetGradient sets the gradient at target cells to a normal
// vector pointing into the room, per spec §4.4 step 5, rather than the
// (undefined, cost already 0) finite-difference estimate.
func overrideTargetGradient(g *codeGrid, solved *solveGrid, sr *building.SubRoom, b *building.Building, dest Destination) {
	var normal geometry.Point
	if dest.DoorUID != 0 {
		if d := b.Door(dest.DoorUID); d != nil {
			n := d.Segment.Normal()
			center := d.Segment.Center()
			// Orient the normal so it points into this subroom.
			if !sr.Contains(center.Add(n.Scale(g.h))) {
				n = n.Scale(-1)
			}
			normal = n
		}
	}
	if normal == (geometry.Point{}) {
		return
	}
	for idx, c := range g.cells {
		if c == codeTarget {
			solved.gradX[idx] = normal.X
			solved.gradY[idx] = normal.Y
		}
	}
}

// snap returns the index of an inside (or target) cell near p: p itself
// if its cell already qualifies, otherwise the closest qualifying cell by
// grid search, per spec §4.4's "if position falls on a wall/outside
// cell, snap to an inside neighbor".
func (f *Field) snap(p geometry.Point) (int, bool) {
	i, j := f.grid.cellOf(p)
	if ok := f.grid.cells[f.grid.idx(i, j)]; ok == codeInside || ok == codeTarget {
		return f.grid.idx(i, j), true
	}
	best := -1
	bestDist := math.Inf(1)
	for dj := -2; dj <= 2; dj++ {
		for di := -2; di <= 2; di++ {
			ni, nj := i+di, j+dj
			if !f.grid.inBounds(ni, nj) {
				continue
			}
			idx := f.grid.idx(ni, nj)
			c := f.grid.cells[idx]
			if c != codeInside && c != codeTarget {
				continue
			}
			d := geometry.Distance(f.grid.cellCenter(ni, nj), p)
			if d < bestDist {
				bestDist = d
				best = idx
			}
		}
	}
	return best, best >= 0
}

// CostTo returns the geodesic cost from position to the field's
// destination, or +Inf if unreachable.
func (f *Field) CostTo(position geometry.Point) (float64, error) {
	idx, ok := f.snap(position)
	if !ok {
		return math.Inf(1), simerr.New(simerr.KindRoutingUnreachable, "floorfield", fmt.Sprintf("%v", position), "position has no nearby inside cell")
	}
	return f.cost.cost[idx], nil
}

// DirectionTo returns the unit vector steering toward the field's
// destination from position.
func (f *Field) DirectionTo(position geometry.Point) (geometry.Point, error) {
	idx, ok := f.snap(position)
	if !ok {
		return geometry.Point{}, simerr.New(simerr.KindRoutingUnreachable, "floorfield", fmt.Sprintf("%v", position), "position has no nearby inside cell")
	}
	return geometry.Point{X: f.cost.gradX[idx], Y: f.cost.gradY[idx]}, nil
}

// WallField additionally carries the distance/direction-to-nearest-wall
// grid, built once per subroom (independent of destination) and shared
// across every Field built for that subroom.
type WallField struct {
	grid *codeGrid
	dist *solveGrid
}

// BuildWallField rasterizes sr with no destination and runs fast
// marching from its walls, giving distance-to-wall and direction-to-wall
// everywhere inside.
func BuildWallField(b *building.Building, sr *building.SubRoom, h float64) *WallField {
	g := rasterize(b, sr, Destination{}, h)
	return &WallField{grid: g, dist: distanceToWallGrid(g)}
}

func (w *WallField) snap(p geometry.Point) (int, bool) {
	i, j := w.grid.cellOf(p)
	idx := w.grid.idx(i, j)
	if w.grid.cells[idx] == codeInside {
		return idx, true
	}
	best := -1
	bestDist := math.Inf(1)
	for dj := -2; dj <= 2; dj++ {
		for di := -2; di <= 2; di++ {
			ni, nj := i+di, j+dj
			if !w.grid.inBounds(ni, nj) || w.grid.cells[w.grid.idx(ni, nj)] != codeInside {
				continue
			}
			d := geometry.Distance(w.grid.cellCenter(ni, nj), p)
			if d < bestDist {
				bestDist = d
				best = w.grid.idx(ni, nj)
			}
		}
	}
	return best, best >= 0
}

// DistanceToWall returns the distance from position to the nearest wall.
func (w *WallField) DistanceToWall(position geometry.Point) (float64, error) {
	idx, ok := w.snap(position)
	if !ok {
		return 0, simerr.New(simerr.KindRoutingUnreachable, "floorfield", fmt.Sprintf("%v", position), "position has no nearby inside cell")
	}
	return w.dist.cost[idx], nil
}

// DirectionToWall returns the unit vector from position toward the
// nearest wall point (the direction of steepest decrease of
// distance-to-wall), for wall-repulsion force calculations.
func (w *WallField) DirectionToWall(position geometry.Point) (geometry.Point, error) {
	idx, ok := w.snap(position)
	if !ok {
		return geometry.Point{}, simerr.New(simerr.KindRoutingUnreachable, "floorfield", fmt.Sprintf("%v", position), "position has no nearby inside cell")
	}
	return geometry.Point{X: w.dist.gradX[idx], Y: w.dist.gradY[idx]}, nil
}
