package algo

import (
	"container/heap"
	"math"

	"git.fiblab.net/sim/crowddynamics/geometry"
	"github.com/puzpuzpuz/xsync/v3"
)

// SearchGraph is a small generic weighted graph with A* shortest path, for
// point-to-point search over a handful of nodes rather than gonum's
// whole-graph Floyd-Warshall. Edges may be re-weighted between queries.
// ShortestPath takes a read lock on an RBMutex; InitNode, InitEdge and
// SetEdgeWeight take no lock.
type SearchGraph[NT any, ET any] struct {
	nodes []node[NT]
	edges []map[int]edge[ET]
	h     IHeuristics[NT]

	mu *xsync.RBMutex
}

type node[NT any] struct {
	p    geometry.Point
	attr NT
}

type edge[ET any] struct {
	weight float64
	attr   ET
}

// IHeuristics supplies the A* distance estimate between two node
// attributes' positions; implementations are typically stateless
// (straight-line Euclidean distance is admissible whenever edge weights
// are at least path length).
type IHeuristics[NT any] interface {
	HeuristicEuclidean(p1, p2 geometry.Point) float64
}

// EuclideanHeuristic is the default admissible heuristic: straight-line
// distance, valid whenever no edge weight undercuts its own length.
type EuclideanHeuristic[NT any] struct{}

func (EuclideanHeuristic[NT]) HeuristicEuclidean(p1, p2 geometry.Point) float64 {
	return geometry.Distance(p1, p2)
}

// NewSearchGraph returns an empty graph. h may be nil, in which case the
// zero-value EuclideanHeuristic is used.
func NewSearchGraph[NT any, ET any](h IHeuristics[NT]) *SearchGraph[NT, ET] {
	if h == nil {
		h = EuclideanHeuristic[NT]{}
	}
	return &SearchGraph[NT, ET]{
		nodes: make([]node[NT], 0),
		edges: make([]map[int]edge[ET], 0),
		h:     h,
		mu:    xsync.NewRBMutex(),
	}
}

// InitNode adds a node at position p carrying attr, returning its index.
func (g *SearchGraph[NT, ET]) InitNode(p geometry.Point, attr NT) int {
	g.nodes = append(g.nodes, node[NT]{p: p, attr: attr})
	g.edges = append(g.edges, make(map[int]edge[ET]))
	return len(g.nodes) - 1
}

// InitEdge adds a directed edge from -> to with the given weight and
// attribute. Callers wanting an undirected edge call it twice.
func (g *SearchGraph[NT, ET]) InitEdge(from, to int, weight float64, attr ET) {
	g.edges[from][to] = edge[ET]{weight: weight, attr: attr}
}

// SetEdgeWeight updates an existing edge's weight in place; safe to call
// between steps while ShortestPath is not running concurrently.
func (g *SearchGraph[NT, ET]) SetEdgeWeight(from, to int, weight float64) {
	e := g.edges[from][to]
	e.weight = weight
	g.edges[from][to] = e
}

func (g *SearchGraph[NT, ET]) EdgeWeight(from, to int) float64 {
	return g.edges[from][to].weight
}

// PathItem is one step of a reconstructed path: the node's attribute and
// the attribute of the edge leaving it toward the next node (zero value at
// the end node, which has no outgoing edge in the path).
type PathItem[NT any, ET any] struct {
	NodeAttr NT
	EdgeAttr ET
}

func (g *SearchGraph[NT, ET]) reconstructPath(cameFrom map[int]int, end int) []PathItem[NT, ET] {
	revPath := []PathItem[NT, ET]{{NodeAttr: g.nodes[end].attr}}
	cur := end
	for {
		from, ok := cameFrom[cur]
		if !ok {
			break
		}
		revPath = append(revPath, PathItem[NT, ET]{
			NodeAttr: g.nodes[from].attr,
			EdgeAttr: g.edges[from][cur].attr,
		})
		cur = from
	}
	path := make([]PathItem[NT, ET], len(revPath))
	for i, item := range revPath {
		path[len(revPath)-1-i] = item
	}
	return path
}

// ShortestPath runs A* from start to end and returns the path (inclusive
// of both endpoints) and its total cost. Returns (nil, +Inf) if end is
// unreachable.
func (g *SearchGraph[NT, ET]) ShortestPath(start, end int) ([]PathItem[NT, ET], float64) {
	token := g.mu.RLock()
	defer g.mu.RUnlock(token)

	if start == end {
		return []PathItem[NT, ET]{{NodeAttr: g.nodes[start].attr}}, 0
	}

	openSet := make(PriorityQueue, 1)
	openSetMap := make(map[int]*Item, 1)
	cameFrom := make(map[int]int)
	gScore := map[int]float64{start: 0}

	fScore := g.h.HeuristicEuclidean(g.nodes[start].p, g.nodes[end].p)
	openSet[0] = &Item{Value: start, Priority: fScore, Index: 0}
	openSetMap[start] = openSet[0]
	heap.Init(&openSet)

	for openSet.Len() > 0 {
		cur := heap.Pop(&openSet).(*Item).Value
		if cur == end {
			return g.reconstructPath(cameFrom, cur), gScore[cur]
		}
		for neighbor, e := range g.edges[cur] {
			tentative := gScore[cur] + e.weight
			known, visited := gScore[neighbor]
			if !visited {
				known = math.Inf(0)
			}
			if tentative < known {
				cameFrom[neighbor] = cur
				gScore[neighbor] = tentative
				f := tentative + g.h.HeuristicEuclidean(g.nodes[neighbor].p, g.nodes[end].p)
				if item, ok := openSetMap[neighbor]; ok {
					item.Priority = f
					heap.Fix(&openSet, item.Index)
				} else {
					item := &Item{Value: neighbor, Priority: f}
					heap.Push(&openSet, item)
					openSetMap[neighbor] = item
				}
			}
		}
	}
	return nil, math.Inf(0)
}
