// Package sim orchestrates the simulation clock and main loop of spec
// §4.11: it owns the neighborhood index, the door-graph router, the
// floor-field cache, the goal manager, the event queue and the
// population, and advances them all through the fixed per-step phase
// order — neighborhood rebuild, event processing, router re-init,
// per-agent desired direction, operational model, location update,
// goal/flow regulation, trajectory emission — that spec §5 says is
// externally observable.
package sim

import (
	"math"
	"math/rand"
	"sort"
	"sync/atomic"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/config"
	"git.fiblab.net/sim/crowddynamics/direction"
	"git.fiblab.net/sim/crowddynamics/event"
	"git.fiblab.net/sim/crowddynamics/floorfield"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"git.fiblab.net/sim/crowddynamics/goal"
	"git.fiblab.net/sim/crowddynamics/logutil"
	"git.fiblab.net/sim/crowddynamics/model"
	"git.fiblab.net/sim/crowddynamics/neighborhood"
	"git.fiblab.net/sim/crowddynamics/pedestrian"
	"git.fiblab.net/sim/crowddynamics/router"
)

var log = logutil.For("sim")

// Simulation is the single owner of every mutable piece of run state
// (design notes: "single source of truth in the simulation; the
// building stores only indices"). Between steps every field below is
// exclusively mutated by the simulation; during the per-agent compute
// phase they are read-only, matching spec §5's concurrency model.
type Simulation struct {
	B       *building.Building
	Grid    *neighborhood.Grid
	FFCache *floorfield.Cache
	Router  *router.DoorGraph
	GoalMgr *goal.Manager
	Events  *event.Queue
	Model   model.Model

	Direction direction.Strategy
	Waiting   direction.WaitingStrategy

	Writer TrajectoryWriter

	Sources []*pedestrian.Source
	Peds    []*pedestrian.Pedestrian

	DT             float64
	FPS            float64
	TMax           float64
	InteractionRange float64

	now      float64
	frame    int64
	lastEmit float64
	rng      *rand.Rand
	nextID   int64

	pendingSpawn []*pedestrian.Pedestrian
	removeSet    map[int64]bool
	routerStale  bool
}

// New assembles a Simulation from a loaded run and the pluggable
// collaborators (spec §4.9's operational-model plug point, §4.6/§4.7's
// direction/waiting strategies, §6's TrajectoryWriter). ffMode and h are
// the floor-field cache's speed-field mode and grid spacing (spec §4.4).
func New(cfg config.Config, loaded *config.Loaded, mdl model.Model, dirStrategy direction.Strategy, waitStrategy direction.WaitingStrategy, writer TrajectoryWriter, ffMode floorfield.Mode, h float64, interactionRange float64) (*Simulation, error) {
	if err := loaded.Building.ValidateInteriorSeeds(); err != nil {
		return nil, err
	}
	if err := mdl.Init(loaded.Building); err != nil {
		return nil, err
	}

	cellSize := interactionRange
	if cellSize <= 0 {
		cellSize = 2.0
	}

	s := &Simulation{
		B:                loaded.Building,
		Grid:             neighborhood.New(cellSize),
		FFCache:          floorfield.NewCache(loaded.Building, h, ffMode),
		GoalMgr:          goal.New(loaded.Building),
		Events:           loaded.Events,
		Model:            mdl,
		Direction:        dirStrategy,
		Waiting:          waitStrategy,
		Writer:           writer,
		Sources:          loaded.Sources,
		Peds:             loaded.Population,
		DT:               cfg.DT,
		FPS:              cfg.FPS,
		TMax:             cfg.TMax,
		InteractionRange: cellSize,
		rng:              rand.New(rand.NewSource(cfg.Seed)),
		removeSet:        make(map[int64]bool),
	}
	s.Router = router.NewDoorGraph(s.B, s.FFCache, cfg.RoutingScope())
	for _, p := range s.Peds {
		if int64(p.ID()) > s.nextID {
			s.nextID = p.ID()
		}
	}
	s.lastEmit = -1.0 / s.FPS // force a frame at t=0
	if err := s.Router.Build(); err != nil {
		return nil, err
	}
	return s, nil
}

// nextAgentID mints the next stable agent id (design notes: "global UID
// counter" -> "explicitly-passed context carrying ... a UID allocator",
// applied here to pedestrian ids the same way geometry.UIDAllocator does
// for segment UIDs).
func (s *Simulation) nextAgentID() int64 {
	return atomic.AddInt64(&s.nextID, 1)
}

// spawner adapts pendingSpawn-collection to event.Spawner and
// pedestrian.SourceSpawner's Sink, so CreatePedestrianEvents and
// mid-run sources both append through the same path.
func (s *Simulation) spawner() *pedestrian.SourceSpawner {
	return &pedestrian.SourceSpawner{
		B:      s.B,
		RNG:    s.rng,
		NextID: s.nextAgentID,
		Sink: func(peds []*pedestrian.Pedestrian) {
			s.pendingSpawn = append(s.pendingSpawn, peds...)
		},
	}
}

// Now returns the current simulated time.
func (s *Simulation) Now() float64 { return s.now }

// Done reports spec §4.11's termination condition: the agent list is
// empty and every source is exhausted, or simulated time has passed
// T_max.
func (s *Simulation) Done() bool {
	if s.now > s.TMax {
		return true
	}
	if len(s.Peds) > 0 {
		return false
	}
	for _, src := range s.Sources {
		if !src.Exhausted() {
			return false
		}
	}
	return true
}

// Run writes the trajectory header, then steps until Done, closing the
// writer on the way out.
func (s *Simulation) Run() error {
	if err := s.Writer.WriteHeader(); err != nil {
		return err
	}
	for !s.Done() {
		if err := s.Step(); err != nil {
			return err
		}
	}
	return s.Writer.Close()
}

// Step advances the simulation by one DT, in the fixed phase order of
// spec §4.11.
func (s *Simulation) Step() error {
	// 1. Neighborhood grid rebuild.
	s.Grid.Update(neighborhoodAgents(s.Peds))

	// 2. Process due events; OR-combine staleness with flow-regulation's.
	stale, err := s.Events.ProcessEvents(s.now, s.B, s.spawner())
	if err != nil {
		return err
	}
	s.drainSpawned()
	s.tickSources()
	stale = stale || s.routerStale
	s.routerStale = false

	// 3. Router / floor-field re-init if stale.
	if stale {
		s.FFCache.ReInit()
		if err := s.Router.Build(); err != nil {
			return err
		}
	}

	// 4. Skip the physics step during global premovement, but still tick.
	if s.now > s.minPremovementTime() {
		s.physicsStep()
	}

	// 8b. Goal manager + flow regulation.
	if s.GoalMgr.Step(s.now, goalAgents(s.Peds)) {
		s.routerStale = true
	}
	if s.applyFlowRegulation() {
		s.routerStale = true
	}

	// 9. Trajectory frame emission every 1/fps simulated seconds.
	if s.FPS > 0 && s.now-s.lastEmit >= 1/s.FPS-1e-9 {
		if err := s.Writer.WriteFrame(Frame{Time: s.now, Peds: append([]*pedestrian.Pedestrian{}, s.Peds...)}); err != nil {
			log.Warnf("trajectory write failed at t=%.3f: %v", s.now, err)
		}
		s.lastEmit = s.now
	}

	// 10. Advance clock.
	s.now += s.DT
	s.frame++
	return nil
}

// physicsStep implements phases 5-7 of spec §4.11: FindExit, direction
// strategy, the operational model, and the resulting location update.
func (s *Simulation) physicsStep() {
	// 5. Router.FindExit sets every agent's destination door.
	for _, p := range s.Peds {
		if err := s.Router.FindExit(p); err != nil {
			log.Warnf("agent %d: %v", p.ID(), err)
			continue // keep the agent's previous destination door
		}
		s.setDesiredDirection(p)
	}

	// 6. Operational model: ComputeNewPosition is read-only per agent
	// (spec §5), so this loop is safe to parallelize; ApplyUpdate is run
	// in a second pass so no agent's position changes mid-computation.
	updates := make([]model.PedestrianUpdate, len(s.Peds))
	for i, p := range s.Peds {
		neighbors := modelAgents(s.Grid.Neighbors(p.Position(), s.InteractionRange))
		updates[i] = s.Model.ComputeNewPosition(s.DT, p, s.B, neighbors)
	}
	for i, p := range s.Peds {
		oldPos := p.Position()
		s.Model.ApplyUpdate(updates[i], p)
		// 7. Location update: subroom reassignment, door-usage counters,
		// and removal of agents that crossed an exit or reached a final
		// goal.
		s.updateLocation(p, oldPos)
	}
	s.removePending()
}

// setDesiredDirection implements spec §4.6/§4.7: a waiting agent steers
// by the active WaitingStrategy toward its waiting area, everyone else
// by the active direction Strategy toward their assigned exit line.
func (s *Simulation) setDesiredDirection(p *pedestrian.Pedestrian) {
	if p.IsWaiting() {
		if gid, ok := p.FinalGoalID(); ok {
			if w, isWaiting := s.B.WaitingAreas[gid]; isWaiting {
				target := s.Waiting.WaitingTarget(&w.Goal, p.RNG())
				p.SetDesiredDirection(target.Sub(p.Position()))
				return
			}
		}
	}
	sr := s.B.SubRoom(p.CurrentSubroom())
	if sr == nil {
		return
	}
	_, exitLine := p.DestinationDoor()
	shoulder := p.Ellipse().BMax * 2
	target := s.Direction.TargetPoint(sr, p.Position(), shoulder, exitLine)
	p.SetDesiredDirection(target.Sub(p.Position()))
}

// updateLocation implements spec §4.11 step 7: determine which subroom
// the agent is in now, increment door-usage counters when it crosses a
// door segment, and mark it for removal if it crossed to the outside or
// its position now lies inside its (non-waiting-area) final goal.
func (s *Simulation) updateLocation(p *pedestrian.Pedestrian, oldPos geometry.Point) {
	newPos := p.Position()
	sr := s.B.SubRoom(p.CurrentSubroom())
	if sr != nil && sr.Contains(newPos) {
		s.checkFinalGoal(p)
		return
	}

	doorUID, exitLine := p.DestinationDoor()
	door := s.B.Door(doorUID)
	if door == nil || !segmentCrossed(oldPos, newPos, exitLine) {
		// Didn't cross its assigned door this step (e.g. pushed sideways
		// by a neighbor); clamp back inside the current subroom so the
		// per-step invariant of spec §8 holds.
		if sr != nil {
			p.SetPosition(clampInside(sr, newPos))
		}
		return
	}

	door.RecordPassing(s.now)
	if door.IsExit() {
		s.markForRemoval(p.ID())
		return
	}
	other := door.OtherSubroom(p.CurrentSubroom())
	if other == building.NoSubroom {
		s.markForRemoval(p.ID())
		return
	}
	p.SetSubroom(other)
	s.checkFinalGoal(p)
}

// checkFinalGoal removes an agent whose position now lies inside its
// final (non-waiting-area) goal region.
func (s *Simulation) checkFinalGoal(p *pedestrian.Pedestrian) {
	gid, ok := p.FinalGoalID()
	if !ok {
		return
	}
	if _, isWaiting := s.B.WaitingAreas[gid]; isWaiting {
		return
	}
	g, ok := s.B.Goals[gid]
	if !ok || !g.IsFinal {
		return
	}
	if g.Contains(p.Position()) {
		s.markForRemoval(p.ID())
	}
}

func (s *Simulation) markForRemoval(id int64) {
	s.removeSet[id] = true
}

// removePending drops every agent marked for removal this step, per
// spec §3's "agents reaching a final goal or crossing outside are
// scheduled for removal at step boundary."
func (s *Simulation) removePending() {
	if len(s.removeSet) == 0 {
		return
	}
	kept := s.Peds[:0]
	for _, p := range s.Peds {
		if s.removeSet[p.ID()] {
			continue
		}
		kept = append(kept, p)
	}
	s.Peds = kept
	s.removeSet = make(map[int64]bool)
}

// drainSpawned appends agents created by CreatePedestrianEvents during
// this step's event processing.
func (s *Simulation) drainSpawned() {
	if len(s.pendingSpawn) == 0 {
		return
	}
	s.Peds = append(s.Peds, s.pendingSpawn...)
	s.pendingSpawn = nil
}

// tickSources advances every configured agent source by DT, per spec
// §4.10's "agent sources produce additional agents at a configured rate
// ... until either their own cap or the simulation's max time is
// reached".
func (s *Simulation) tickSources() {
	for _, src := range s.Sources {
		peds, err := src.Tick(s.B, s.DT, s.rng, s.nextAgentID)
		if err != nil {
			log.Warnf("agent source failed: %v", err)
			continue
		}
		s.Peds = append(s.Peds, peds...)
	}
}

// minPremovementTime returns the smallest PremovementTime across the
// current population, per spec §4.11 step 4. An empty population never
// gates the physics step.
func (s *Simulation) minPremovementTime() float64 {
	if len(s.Peds) == 0 {
		return math.Inf(-1)
	}
	min := math.Inf(1)
	for _, p := range s.Peds {
		if p.PremovementTime() < min {
			min = p.PremovementTime()
		}
	}
	return min
}

// applyFlowRegulation implements the door half of spec §4.8/§8: a door
// whose Outflow.MaxAgents is configured temp-closes once that many
// agents have passed since it last opened, and reopens once
// Outflow.MinReopenInterval has elapsed, per the "temporary closure"
// scenario of spec §8. Returns whether any door's state changed.
func (s *Simulation) applyFlowRegulation() bool {
	changed := false
	for _, d := range s.B.AllDoors() {
		switch d.State {
		case building.StateOpen:
			if d.Outflow.MaxAgents > 0 && d.UsageCount() > 0 && d.UsageCount()%int64(d.Outflow.MaxAgents) == 0 && d.LastPassingTime() == s.now {
				d.SetState(building.StateTempClosed, s.now)
				changed = true
			}
		case building.StateTempClosed:
			if d.EligibleToReopen(s.now) {
				d.SetState(building.StateOpen, s.now)
				changed = true
			}
		}
	}
	return changed
}

// segmentCrossed reports whether the path from oldPos to newPos crosses
// the door segment, transversally or by touching an endpoint.
func segmentCrossed(oldPos, newPos geometry.Point, door geometry.Segment) bool {
	kind, _ := geometry.IntersectSegments(oldPos, newPos, door.P1, door.P2)
	return kind != geometry.None
}

// clampInside projects pt onto the nearest point on sr's boundary, for
// the case where the operational model pushed an agent outside its
// subroom without crossing the door it was aiming at.
func clampInside(sr *building.SubRoom, pt geometry.Point) geometry.Point {
	best := pt
	bestDist := math.Inf(1)
	n := len(sr.Polygon)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		d, p := geometry.DistanceToSegment(sr.Polygon[j], sr.Polygon[i], pt)
		if d < bestDist {
			bestDist, best = d, p
		}
	}
	return best
}

func neighborhoodAgents(peds []*pedestrian.Pedestrian) []neighborhood.Agent {
	out := make([]neighborhood.Agent, len(peds))
	for i, p := range peds {
		out[i] = p
	}
	return out
}

func modelAgents(raw []neighborhood.Agent) []model.Agent {
	out := make([]model.Agent, 0, len(raw))
	for _, a := range raw {
		if ma, ok := a.(model.Agent); ok {
			out = append(out, ma)
		}
	}
	return out
}

func goalAgents(peds []*pedestrian.Pedestrian) []goal.Agent {
	out := make([]goal.Agent, len(peds))
	for i, p := range peds {
		out[i] = p
	}
	return out
}

// AgentCount returns the number of agents currently in the simulation,
// for logging and benchmark reporting.
func (s *Simulation) AgentCount() int { return len(s.Peds) }

// sortedDoorUsage returns every door's usage count keyed by UID. The doors
// are visited in UID order, but the result is a map and carries no order.
func (s *Simulation) sortedDoorUsage() map[geometry.UID]int64 {
	out := make(map[geometry.UID]int64)
	doors := s.B.AllDoors()
	sort.Slice(doors, func(i, j int) bool { return doors[i].UID < doors[j].UID })
	for _, d := range doors {
		out[d.UID] = d.UsageCount()
	}
	return out
}
