// Package router builds the door graph — vertices are door UIDs, edges
// are geodesic distances obtained from each room's floor field — and
// answers per-agent FindExit queries against its Floyd-Warshall closure,
// per spec §4.5.
package router

import (
	"fmt"
	"math"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/floorfield"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"git.fiblab.net/sim/crowddynamics/logutil"
	"git.fiblab.net/sim/crowddynamics/simerr"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/samber/lo"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

var log = logutil.For("router")

// Scope selects whether FindExit restricts candidate doors to the
// agent's subroom or lets it consider any door in the current room, per
// spec §4.5's "within-subroom" configuration flag.
type Scope int

const (
	ScopeRoom Scope = iota
	ScopeSubroom
)

// outsidePenalty multiplies straight-line distance for edges connecting
// an outside goal to an exit, so it is only ever selected as a terminal,
// per spec §4.5 step 2.
const outsidePenalty = 1000.0

// minReliableDistance discards door-to-door floor-field distances below
// 1 m as unreliable. The threshold is a fixed length and does not scale
// with the floor-field grid spacing.
const minReliableDistance = 1.0

// DoorGraph is the Floyd-Warshall closure over every door UID plus one
// synthetic vertex per outside goal. Rebuilt whenever the building's
// geometry-affecting state changes (a door flips state, a train arrives
// or departs, a waiting area opens or closes); read concurrently by
// FindExit during the per-agent compute phase in between (spec §5).
type DoorGraph struct {
	b     *building.Building
	ffc   *floorfield.Cache
	scope Scope

	mu *xsync.RBMutex

	nodeOf   map[int64]geometry.UID // gonum node id -> door UID (doors only)
	uidOf    map[geometry.UID]int64
	goalNode map[int]int64

	g       *simple.WeightedDirectedGraph
	shortest path.AllShortest
}

// NewDoorGraph returns a graph that will build its Floyd-Warshall
// closure from b's doors, using ffc to source per-subroom geodesic
// distances.
func NewDoorGraph(b *building.Building, ffc *floorfield.Cache, scope Scope) *DoorGraph {
	return &DoorGraph{
		b:     b,
		ffc:   ffc,
		scope: scope,
		mu:    xsync.NewRBMutex(),
	}
}

// Build (re)computes the door graph and its Floyd-Warshall closure. Must
// only be called between steps; concurrent FindExit calls during the
// compute phase see the previous closure until Build returns.
func (dg *DoorGraph) Build() error {
	g := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	nodeOf := make(map[int64]geometry.UID)
	uidOf := make(map[geometry.UID]int64)
	goalNode := make(map[int]int64)

	doors := dg.b.AllDoors()
	for _, d := range doors {
		id := int64(d.UID)
		g.AddNode(simple.Node(id))
		nodeOf[id] = d.UID
		uidOf[d.UID] = id
	}
	// Iterate goal ids in sorted order so the synthetic node ids assigned
	// below (and therefore construction as a whole) are reproducible.
	goalIDs := maps.Keys(dg.b.Goals)
	slices.Sort(goalIDs)
	for _, id := range goalIDs {
		goal := dg.b.Goals[id]
		if goal.Home != building.NoSubroom {
			continue // only outside goals get synthetic vertices
		}
		nid := -int64(id) - 1
		g.AddNode(simple.Node(nid))
		goalNode[id] = nid
	}

	// Step 1: for every room's subrooms, connect every pair of doors
	// sharing that subroom by the floor-field geodesic distance.
	for _, r := range dg.b.Rooms {
		for _, sr := range r.SubRooms {
			doorUIDs := append(append([]geometry.UID{}, sr.TransitionUIDs...), sr.CrossingUIDs...)
			for i := 0; i < len(doorUIDs); i++ {
				for j := i + 1; j < len(doorUIDs); j++ {
					u, v := doorUIDs[i], doorUIDs[j]
					du, dv := dg.b.Door(u), dg.b.Door(v)
					if du == nil || dv == nil || du.State != building.StateOpen || dv.State != building.StateOpen {
						continue
					}
					f := dg.ffc.Field(sr.Key, floorfield.DoorDestination(v))
					if f == nil {
						continue
					}
					dist, err := f.CostTo(du.Segment.Center())
					if err != nil || dist < minReliableDistance {
						continue
					}
					uToV, vToU := escalatorEdgeDirections(sr, du, dv)
					if uToV {
						addOrRelaxDirectedEdge(g, int64(u), int64(v), dist)
					}
					if vToU {
						addOrRelaxDirectedEdge(g, int64(v), int64(u), dist)
					}
				}
			}
		}
	}

	// Step 2: outside goals connect to every exit by straight-line
	// distance times a large penalty. A goal's synthetic node is only ever
	// queried as a terminal, so the edge only needs to run into it.
	for gid, nid := range goalNode {
		goal := dg.b.Goals[gid]
		for _, d := range doors {
			if !d.IsExit() {
				continue
			}
			dist := geometry.Distance(goal.Polygon[0], d.Segment.Center()) * outsidePenalty
			addOrRelaxDirectedEdge(g, int64(d.UID), nid, dist)
		}
	}

	// Step 3: closed doors carry no traversable edges at all. Directional
	// escalator edges were already inserted one-way in step 1 (an
	// infinite edge in the disallowed direction is simply the absence of
	// an edge on a graph with no default-zero weight).
	for _, d := range doors {
		if d.State != building.StateOpen {
			removeIncidentEdges(g, int64(d.UID))
		}
	}

	shortest, ok := path.FloydWarshall(g)
	if !ok {
		return simerr.New(simerr.KindRoutingUnreachable, "router", "", "door graph contains a negative cycle")
	}

	dg.mu.Lock()
	dg.g = g
	dg.nodeOf = nodeOf
	dg.uidOf = uidOf
	dg.goalNode = goalNode
	dg.shortest = shortest
	dg.mu.Unlock()

	log.Infof("door graph rebuilt: %d doors, %d outside goals", len(doors), len(goalNode))
	return nil
}

func addOrRelaxDirectedEdge(g *simple.WeightedDirectedGraph, from, to int64, w float64) {
	if e := g.WeightedEdge(from, to); e != nil && e.Weight() <= w {
		return
	}
	g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(from), T: simple.Node(to), W: w})
}

func removeIncidentEdges(g *simple.WeightedDirectedGraph, id int64) {
	var neighbors []int64
	from := g.From(id)
	for from.Next() {
		neighbors = append(neighbors, from.Node().ID())
	}
	to := g.To(id)
	for to.Next() {
		neighbors = append(neighbors, to.Node().ID())
	}
	for _, n := range neighbors {
		g.RemoveEdge(id, n)
		g.RemoveEdge(n, id)
	}
}

// escalatorEdgeDirections reports whether a door-graph edge within sr may
// run u->v and/or v->u. Normal and stair subrooms permit both. An escalator
// subroom permits only the direction sr.EscalatorDirection allows, found by
// which of sr.Up/sr.Down each door sits nearest; degenerate geometry (both
// doors equidistant, or no reference points set) falls back to permitting
// both rather than stranding the subroom.
func escalatorEdgeDirections(sr *building.SubRoom, du, dv *building.Door) (uToV, vToU bool) {
	if sr.Kind != building.KindEscalator || sr.Up == nil || sr.Down == nil {
		return true, true
	}
	uc, vc := du.Segment.Center(), dv.Segment.Center()
	uNearUp := geometry.Distance(uc, *sr.Up) < geometry.Distance(uc, *sr.Down)
	vNearUp := geometry.Distance(vc, *sr.Up) < geometry.Distance(vc, *sr.Down)
	if uNearUp == vNearUp {
		return true, true
	}
	// Permitted direction is bottom->top for EscalatorUp, top->bottom for
	// EscalatorDown.
	uIsBottom := !uNearUp
	switch {
	case sr.EscalatorDirection == building.EscalatorUp && uIsBottom:
		return true, false
	case sr.EscalatorDirection == building.EscalatorUp && !uIsBottom:
		return false, true
	case sr.EscalatorDirection == building.EscalatorDown && uIsBottom:
		return false, true
	default: // EscalatorDown, u is top
		return true, false
	}
}

// Agent is the minimal view of a pedestrian FindExit needs.
type Agent interface {
	Position() geometry.Point
	CurrentSubroom() building.Key
	FinalGoalID() (int, bool)
	SetDestinationDoor(geometry.UID, geometry.Segment)
}

// FindExit implements spec §4.5's per-agent query: among doors in the
// agent's scope, pick the one minimizing local distance plus the
// Floyd-Warshall distance to the agent's terminal, tie-break by UID, and
// set the agent's destination door and exit line.
func (dg *DoorGraph) FindExit(agent Agent) error {
	token := dg.mu.RLock()
	defer dg.mu.RUnlock(token)

	if dg.g == nil {
		return simerr.New(simerr.KindRoutingUnreachable, "router", "", "door graph not yet built")
	}

	sr := dg.b.SubRoom(agent.CurrentSubroom())
	if sr == nil {
		return simerr.New(simerr.KindRoutingUnreachable, "router", fmt.Sprintf("%v", agent.CurrentSubroom()), "agent's subroom no longer exists")
	}

	if center, ok := dg.waitingAreaCentreInScope(agent); ok {
		agent.SetDestinationDoor(geometry.UID(0), geometry.Segment{P1: center, P2: center})
		return nil
	}

	terminal, hasGoal := dg.terminalNode(agent)
	candidates := dg.candidateDoors(sr, !hasGoal)
	if len(candidates) == 0 {
		return simerr.New(simerr.KindRoutingUnreachable, "router", fmt.Sprintf("%v", agent.CurrentSubroom()), "no candidate doors in scope")
	}

	best, bestCost := geometry.UID(0), infCost
	for _, uid := range candidates {
		d := dg.b.Door(uid)
		local := geometry.Distance(agent.Position(), d.Segment.Center())
		var toTerminal float64
		if hasGoal {
			toTerminal = dg.shortest.Weight(int64(uid), terminal)
		}
		total := local + toTerminal
		if total < bestCost || (total == bestCost && uid < best) {
			best, bestCost = uid, total
		}
	}
	if best == 0 {
		return simerr.New(simerr.KindRoutingUnreachable, "router", fmt.Sprintf("agent-at:%v", agent.Position()), "no reachable door to final goal")
	}

	targetDoor := best
	targetSeg := dg.b.Door(best).Segment
	if dg.scope == ScopeRoom {
		targetDoor, targetSeg = dg.walkToTransition(int64(best), terminal, hasGoal)
	}

	agent.SetDestinationDoor(targetDoor, targetSeg)
	return nil
}

const infCost = 1e18

// terminalNode resolves the agent's final goal to a gonum node id: an
// outside goal's synthetic node, or (if the goal is inside the
// geometry — a waiting area, say) itself has no terminal, so any open
// exit is acceptable and hasGoal is false.
func (dg *DoorGraph) terminalNode(agent Agent) (int64, bool) {
	gid, ok := agent.FinalGoalID()
	if !ok {
		return 0, false
	}
	if nid, ok := dg.goalNode[gid]; ok {
		return nid, true
	}
	return 0, false
}

// waitingAreaCentreInScope implements spec §4.5's first FindExit bullet:
// if the agent's final goal is a waiting area already within its current
// scope, the answer is the area's centre, not a door at all.
func (dg *DoorGraph) waitingAreaCentreInScope(agent Agent) (geometry.Point, bool) {
	gid, ok := agent.FinalGoalID()
	if !ok {
		return geometry.Point{}, false
	}
	wa, ok := dg.b.WaitingAreas[gid]
	if !ok {
		return geometry.Point{}, false
	}
	cur := agent.CurrentSubroom()
	inScope := wa.Home == cur
	if dg.scope == ScopeRoom {
		inScope = wa.Home.RoomID == cur.RoomID
	}
	if !inScope {
		return geometry.Point{}, false
	}
	return centroid(wa.Polygon), true
}

// centroid returns the vertex-average of polygon, mirroring the direction
// package's own private centroid helper.
func centroid(polygon []geometry.Point) geometry.Point {
	if len(polygon) == 0 {
		return geometry.Point{}
	}
	var cx, cy float64
	for _, p := range polygon {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(polygon))
	return geometry.Point{X: cx / n, Y: cy / n}
}

// candidateDoors returns every open or temp-closed door in the agent's
// configured scope (subroom or its enclosing room). When exitsOnly is set
// (the agent has no final goal), non-exit doors are excluded, per spec
// §4.5's "if no final goal is set, consider all open/temp-closed exits".
func (dg *DoorGraph) candidateDoors(sr *building.SubRoom, exitsOnly bool) []geometry.UID {
	var uids []geometry.UID
	if dg.scope == ScopeSubroom {
		uids = append(uids, sr.TransitionUIDs...)
		uids = append(uids, sr.CrossingUIDs...)
	} else {
		room := dg.b.RoomByID(sr.Key.RoomID)
		if room == nil {
			return nil
		}
		for _, s := range room.SubRooms {
			uids = append(uids, s.TransitionUIDs...)
			uids = append(uids, s.CrossingUIDs...)
		}
	}
	open := lo.Filter(uids, func(uid geometry.UID, _ int) bool {
		d := dg.b.Door(uid)
		if d == nil || d.State == building.StateClosed {
			return false
		}
		return !exitsOnly || d.IsExit()
	})
	slices.Sort(open)
	return open
}

// walkToTransition implements spec §4.5's "if within room, walk the
// next-hop chain forward until the first door that is a transition
// between subrooms", using the Floyd-Warshall Between path.
func (dg *DoorGraph) walkToTransition(start, terminal int64, hasGoal bool) (geometry.UID, geometry.Segment) {
	startUID := geometry.UID(start)
	startDoor := dg.b.Door(startUID)
	if !hasGoal || startDoor.Kind == building.KindTransition {
		return startUID, startDoor.Segment
	}
	nodes, _, ok := dg.shortest.Between(start, terminal)
	if !ok || len(nodes) < 2 {
		return startUID, startDoor.Segment
	}
	for _, n := range nodes[1:] {
		uid := geometry.UID(n.ID())
		d := dg.b.Door(uid)
		if d == nil {
			continue
		}
		if d.Kind == building.KindTransition {
			return uid, d.Segment
		}
	}
	return startUID, startDoor.Segment
}

