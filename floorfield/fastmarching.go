package floorfield

import (
	"container/heap"
	"math"

	"git.fiblab.net/sim/crowddynamics/router/algo"
)

// solveGrid is the output of one fast-marching pass: a cost field and its
// unit gradient, both indexed the same way as the codeGrid it was built
// from.
type solveGrid struct {
	cost         []float64
	gradX, gradY []float64
}

// runFastMarching solves the discretized eikonal equation over g,
// starting from every cell for which isSource returns true (cost 0),
// treating every cell for which passable returns false as an
// impenetrable wall (cost +Inf), per spec §4.4 step 4. speedAt supplies
// the local propagation speed f at a cell index.
func runFastMarching(g *codeGrid, passable func(code) bool, isSource func(code) bool, speedAt func(i, j int) float64) *solveGrid {
	n := len(g.cells)
	out := &solveGrid{
		cost:  make([]float64, n),
		gradX: make([]float64, n),
		gradY: make([]float64, n),
	}
	for i := range out.cost {
		out.cost[i] = math.Inf(1)
	}

	accepted := make([]bool, n)
	pq := make(algo.PriorityQueue, 0, n)

	for j := 0; j < g.ny; j++ {
		for i := 0; i < g.nx; i++ {
			idx := g.idx(i, j)
			if isSource(g.cells[idx]) {
				out.cost[idx] = 0
				heap.Push(&pq, &algo.Item{Value: idx, Priority: 0})
			}
		}
	}
	heap.Init(&pq)

	neighborDelta := [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

	for pq.Len() > 0 {
		item := heap.Pop(&pq).(*algo.Item)
		idx := item.Value
		if accepted[idx] {
			continue
		}
		accepted[idx] = true
		ci, cj := idx%g.nx, idx/g.nx

		for _, d := range neighborDelta {
			ni, nj := ci+d[0], cj+d[1]
			if !g.inBounds(ni, nj) {
				continue
			}
			nidx := g.idx(ni, nj)
			if accepted[nidx] || !passable(g.cells[nidx]) {
				continue
			}
			ux := math.Inf(1)
			for _, dx := range [2]int{-1, 1} {
				pi := ni + dx
				if g.inBounds(pi, nj) {
					pidx := g.idx(pi, nj)
					if accepted[pidx] && out.cost[pidx] < ux {
						ux = out.cost[pidx]
					}
				}
			}
			uy := math.Inf(1)
			for _, dy := range [2]int{-1, 1} {
				pj := nj + dy
				if g.inBounds(ni, pj) {
					pidx := g.idx(ni, pj)
					if accepted[pidx] && out.cost[pidx] < uy {
						uy = out.cost[pidx]
					}
				}
			}

			f := speedAt(ni, nj)
			if f <= 0 {
				continue
			}
			u := eikonalSolve(ux, uy, g.h, f)
			if u < out.cost[nidx] {
				out.cost[nidx] = u
				heap.Push(&pq, &algo.Item{Value: nidx, Priority: u})
			}
		}
	}

	computeGradient(g, out, passable)
	return out
}

// eikonalSolve implements spec §4.4 step 4: the two-sided quadratic
// update when both axes have a known neighbor cost, falling back to the
// one-sided update when only one axis does.
func eikonalSolve(ux, uy, h, f float64) float64 {
	hf := h / f
	xKnown := !math.IsInf(ux, 1)
	yKnown := !math.IsInf(uy, 1)
	switch {
	case xKnown && yKnown:
		a, b := ux, uy
		if a > b {
			a, b = b, a
		}
		diff := b - a
		disc := 2*hf*hf - diff*diff
		if disc >= 0 {
			u := (a + b + math.Sqrt(disc)) / 2
			if u >= b {
				return u
			}
		}
		return a + hf
	case xKnown:
		return ux + hf
	case yKnown:
		return uy + hf
	default:
		return math.Inf(1)
	}
}

// computeGradient fills out.gradX/gradY by central (or one-sided, at the
// domain edge) finite differences on the finished cost field, then
// normalizes each to a unit vector pointing toward decreasing cost — the
// direction an agent should walk — per spec §4.4 step 5.
func computeGradient(g *codeGrid, out *solveGrid, passable func(code) bool) {
	for j := 0; j < g.ny; j++ {
		for i := 0; i < g.nx; i++ {
			idx := g.idx(i, j)
			if !passable(g.cells[idx]) || math.IsInf(out.cost[idx], 1) {
				continue
			}
			dx := centralDiff(g, out, i, j, 1, 0, passable)
			dy := centralDiff(g, out, i, j, 0, 1, passable)
			// Negative gradient: step toward lower cost.
			vx, vy := -dx, -dy
			norm := math.Hypot(vx, vy)
			if norm < 1e-12 {
				continue
			}
			out.gradX[idx] = vx / norm
			out.gradY[idx] = vy / norm
		}
	}
}

func centralDiff(g *codeGrid, out *solveGrid, i, j, dxi, dyj int, passable func(code) bool) float64 {
	loOK := g.inBounds(i-dxi, j-dyj) && passable(g.cells[g.idx(i-dxi, j-dyj)]) && !math.IsInf(out.cost[g.idx(i-dxi, j-dyj)], 1)
	hiOK := g.inBounds(i+dxi, j+dyj) && passable(g.cells[g.idx(i+dxi, j+dyj)]) && !math.IsInf(out.cost[g.idx(i+dxi, j+dyj)], 1)
	cur := out.cost[g.idx(i, j)]
	switch {
	case loOK && hiOK:
		return (out.cost[g.idx(i+dxi, j+dyj)] - out.cost[g.idx(i-dxi, j-dyj)]) / (2 * g.h)
	case hiOK:
		return (out.cost[g.idx(i+dxi, j+dyj)] - cur) / g.h
	case loOK:
		return (cur - out.cost[g.idx(i-dxi, j-dyj)]) / g.h
	default:
		return 0
	}
}
