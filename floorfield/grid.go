// Package floorfield implements the fast-marching floor field: a per-
// subroom regular grid carrying, for a given destination, the geodesic
// cost to that destination and its unit gradient at every inside cell.
// Built lazily and cached until ReInit, per spec §4.4.
package floorfield

import (
	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"git.fiblab.net/sim/crowddynamics/logutil"
)

var log = logutil.For("floorfield")

// code classifies one grid cell during rasterization.
type code int

const (
	codeOutside code = iota
	codeInside
	codeWall
	codeClosedCrossing
	codeClosedTransition
	codeTarget
)

// Mode selects the speed field used for the eikonal solve.
type Mode int

const (
	// Homogeneous uses unit speed everywhere inside.
	Homogeneous Mode = iota
	// WallAvoiding scales speed down near walls: min(1, dist/wallAvoidDistance).
	WallAvoiding
	// PerAgent is accepted but takes no per-cell speed function: the
	// field is solved with unit speed everywhere inside, as for
	// Homogeneous.
	PerAgent
)

// codeGrid is the rasterized representation of one subroom: a regular
// grid over its bounding box (expanded by one cell), classifying every
// cell as outside the subroom, open interior, wall, a closed door, or
// part of the current destination.
type codeGrid struct {
	originX, originY float64
	h                float64
	nx, ny           int
	cells            []code
}

func newCodeGrid(minP, maxP geometry.Point, h float64) *codeGrid {
	nx := int((maxP.X-minP.X)/h) + 3
	ny := int((maxP.Y-minP.Y)/h) + 3
	return &codeGrid{
		originX: minP.X - h,
		originY: minP.Y - h,
		h:       h,
		nx:      nx,
		ny:      ny,
		cells:   make([]code, nx*ny),
	}
}

func (g *codeGrid) idx(i, j int) int { return j*g.nx + i }

func (g *codeGrid) inBounds(i, j int) bool {
	return i >= 0 && i < g.nx && j >= 0 && j < g.ny
}

func (g *codeGrid) cellCenter(i, j int) geometry.Point {
	return geometry.Point{
		X: g.originX + (float64(i)+0.5)*g.h,
		Y: g.originY + (float64(j)+0.5)*g.h,
	}
}

// cellOf returns the grid index of the cell containing p, clamped to the
// grid bounds.
func (g *codeGrid) cellOf(p geometry.Point) (int, int) {
	i := int((p.X - g.originX) / g.h)
	j := int((p.Y - g.originY) / g.h)
	if i < 0 {
		i = 0
	}
	if i >= g.nx {
		i = g.nx - 1
	}
	if j < 0 {
		j = 0
	}
	if j >= g.ny {
		j = g.ny - 1
	}
	return i, j
}

// rasterize classifies every cell of the subroom's bounding box per spec
// §4.4 step 1: outside/inside via point-in-polygon, walls and closed
// doors within half a cell of their segment, then the destination.
func rasterize(b *building.Building, sr *building.SubRoom, dest Destination, h float64) *codeGrid {
	minP, maxP := geometry.BoundingBox(sr.Polygon)
	g := newCodeGrid(minP, maxP, h)

	for j := 0; j < g.ny; j++ {
		for i := 0; i < g.nx; i++ {
			if sr.Contains(g.cellCenter(i, j)) {
				g.cells[g.idx(i, j)] = codeInside
			}
		}
	}

	markSegment := func(seg geometry.Segment, c code) {
		lo, hi := geometry.BoundingBox([]geometry.Point{seg.P1, seg.P2})
		iLo, jLo := g.cellOf(geometry.Point{X: lo.X - h, Y: lo.Y - h})
		iHi, jHi := g.cellOf(geometry.Point{X: hi.X + h, Y: hi.Y + h})
		for j := jLo; j <= jHi; j++ {
			for i := iLo; i <= iHi; i++ {
				dist, _ := geometry.DistanceToSegment(seg.P1, seg.P2, g.cellCenter(i, j))
				if dist <= h/2 {
					g.cells[g.idx(i, j)] = c
				}
			}
		}
	}

	for _, w := range sr.Walls {
		markSegment(w.Segment, codeWall)
	}
	for _, obs := range sr.Obstacles {
		for _, w := range obs.Walls {
			markSegment(w.Segment, codeWall)
		}
	}

	markDoor := func(uid geometry.UID, closedCode code) {
		d := b.Door(uid)
		if d == nil || uid == dest.DoorUID {
			return
		}
		if d.State != building.StateOpen {
			markSegment(d.Segment, closedCode)
		}
	}
	for _, uid := range sr.TransitionUIDs {
		markDoor(uid, codeClosedTransition)
	}
	for _, uid := range sr.CrossingUIDs {
		markDoor(uid, codeClosedCrossing)
	}

	if dest.DoorUID != 0 {
		if d := b.Door(dest.DoorUID); d != nil {
			markSegment(d.Segment, codeTarget)
		}
	} else {
		i, j := g.cellOf(dest.Point)
		if g.inBounds(i, j) {
			g.cells[g.idx(i, j)] = codeTarget
		}
	}

	floodFillInside(g, sr, b)
	return g
}

// floodFillInside implements step 2: starting from the subroom's known
// interior seed, keep only INSIDE cells reachable by 4-connectivity;
// unreachable INSIDE pockets revert to OUTSIDE.
func floodFillInside(g *codeGrid, sr *building.SubRoom, b *building.Building) {
	seed, err := b.InsidePoint(sr)
	if err != nil {
		log.Warnf("floorfield: subroom %d/%d has no interior seed: %v", sr.Key.RoomID, sr.Key.SubRoomID, err)
		return
	}
	si, sj := g.cellOf(seed)
	if g.cells[g.idx(si, sj)] != codeInside {
		// Seed landed on a target/wall cell (possible for a tiny
		// subroom); search its neighbors for an inside cell to seed from.
		found := false
		for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			ni, nj := si+d[0], sj+d[1]
			if g.inBounds(ni, nj) && g.cells[g.idx(ni, nj)] == codeInside {
				si, sj, found = ni, nj, true
				break
			}
		}
		if !found {
			return
		}
	}

	reached := make([]bool, len(g.cells))
	stack := [][2]int{{si, sj}}
	reached[g.idx(si, sj)] = true
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			ni, nj := cur[0]+d[0], cur[1]+d[1]
			if !g.inBounds(ni, nj) {
				continue
			}
			idx := g.idx(ni, nj)
			if reached[idx] || g.cells[idx] != codeInside {
				continue
			}
			reached[idx] = true
			stack = append(stack, [2]int{ni, nj})
		}
	}
	for idx, c := range g.cells {
		if c == codeInside && !reached[idx] {
			g.cells[idx] = codeOutside
		}
	}
}
