// Package neighborhood provides the uniform-grid spatial index used to
// answer "which agents are within radius r of point p?" in constant
// expected time, rebuilt fresh every simulation step.
package neighborhood

import (
	"git.fiblab.net/sim/crowddynamics/geometry"
	"github.com/puzpuzpuz/xsync/v3"
)

// Agent is the minimal view of a pedestrian the grid needs: an opaque
// reference plus its current position. Simulation-level agent types
// satisfy this directly.
type Agent interface {
	Position() geometry.Point
}

type cellKey struct{ X, Y int }

// Grid is a uniform 2D grid mapping cell -> agent list, rebuilt once per
// step and read concurrently by every agent's compute phase in between
// (spec §5), guarded by the same RBMutex read-during-step/rebuilt-
// between-steps pattern as the door graph and floor-field cache.
type Grid struct {
	cellSize float64

	mu    *xsync.RBMutex
	cells map[cellKey][]Agent
}

// New returns a grid with the given cell size.
func New(cellSize float64) *Grid {
	return &Grid{cellSize: cellSize, mu: xsync.NewRBMutex(), cells: make(map[cellKey][]Agent)}
}

// SetCellSize changes the cell size. Callers must only do this between
// steps, never while Neighbors is being queried concurrently.
func (g *Grid) SetCellSize(size float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cellSize = size
}

func (g *Grid) keyOf(p geometry.Point) cellKey {
	return cellKey{
		X: int(p.X / g.cellSize),
		Y: int(p.Y / g.cellSize),
	}
}

// Update clears all cells and re-bins every agent in O(N). Must only be
// called between steps; concurrent Neighbors/NeighborsSeq calls during the
// compute phase see the previous binning until Update returns.
func (g *Grid) Update(agents []Agent) {
	cells := make(map[cellKey][]Agent, len(g.cells))
	for _, a := range agents {
		k := g.keyOf(a.Position())
		cells[k] = append(cells[k], a)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.cells = cells
}

// Neighbors yields agents from the cells overlapping the square of
// half-side r centred at p. The caller is responsible for exact distance
// filtering: this is a broad-phase query, not an exact radius query.
func (g *Grid) Neighbors(p geometry.Point, r float64) []Agent {
	token := g.mu.RLock()
	defer g.mu.RUnlock(token)

	center := g.keyOf(p)
	span := int(r/g.cellSize) + 1
	var out []Agent
	for dx := -span; dx <= span; dx++ {
		for dy := -span; dy <= span; dy++ {
			if bucket, ok := g.cells[cellKey{center.X + dx, center.Y + dy}]; ok {
				out = append(out, bucket...)
			}
		}
	}
	return out
}

// NeighborsSeq returns a restartable iterator over the same candidate set
// as Neighbors, for callers that want to avoid allocating the full slice
// up front (e.g. a force model summing contributions on the fly). The
// whole iteration runs under a single read lock, so the yield callback
// must not call back into Grid.
func (g *Grid) NeighborsSeq(p geometry.Point, r float64) func(yield func(Agent) bool) {
	center := g.keyOf(p)
	span := int(r/g.cellSize) + 1
	return func(yield func(Agent) bool) {
		token := g.mu.RLock()
		defer g.mu.RUnlock(token)

		for dx := -span; dx <= span; dx++ {
			for dy := -span; dy <= span; dy++ {
				bucket, ok := g.cells[cellKey{center.X + dx, center.Y + dy}]
				if !ok {
					continue
				}
				for _, a := range bucket {
					if !yield(a) {
						return
					}
				}
			}
		}
	}
}
