package model

import (
	"math"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"git.fiblab.net/sim/crowddynamics/logutil"
)

var log = logutil.For("model")

// SocialForceModel is the reference Model implementation: a driving force
// toward the agent's desired direction at its desired speed, an
// exponentially-decaying repulsion from nearby agents, and the same from
// nearby wall segments. It is deliberately simple — the core defines the
// plug point, not a specific force model's coefficients (spec §1).
type SocialForceModel struct {
	// AgentRepulsionStrength and AgentRepulsionRange parametrize the
	// pairwise agent term A*exp((r_ij - d_ij)/B).
	AgentRepulsionStrength float64
	AgentRepulsionRange    float64
	// WallRepulsionStrength and WallRepulsionRange parametrize the
	// analogous term against the nearest wall segment.
	WallRepulsionStrength float64
	WallRepulsionRange    float64
	// InteractionRadius bounds how far neighbors are considered at all.
	InteractionRadius float64
}

// NewSocialForceModel returns a SocialForceModel with the parameter
// defaults from Helbing & Molnár's original social force paper.
func NewSocialForceModel() *SocialForceModel {
	return &SocialForceModel{
		AgentRepulsionStrength: 2.1,
		AgentRepulsionRange:    0.3,
		WallRepulsionStrength:  10.0,
		WallRepulsionRange:     0.2,
		InteractionRadius:      2.0,
	}
}

// Init has nothing to precompute for this model.
func (m *SocialForceModel) Init(_ *building.Building) error {
	return nil
}

func (m *SocialForceModel) ComputeNewPosition(dt float64, agent Agent, b *building.Building, neighbors []Agent) PedestrianUpdate {
	pos := agent.Position()
	vel := agent.Velocity()

	v0 := desiredSpeed(agent, b)
	driving := m.drivingForce(agent, v0)
	repulsion := m.agentRepulsion(agent, neighbors)
	wallForce := m.wallRepulsion(agent, b)

	acc := driving.Add(repulsion).Add(wallForce)
	newVel := vel.Add(acc.Scale(dt))
	newVel = clampSpeed(newVel, v0*1.3)
	conveyance := escalatorConveyance(b.SubRoom(agent.Subroom()))
	newPos := pos.Add(newVel.Scale(dt)).Add(conveyance.Scale(dt))

	return PedestrianUpdate{AgentID: agent.ID(), Position: newPos, Velocity: newVel}
}

func (m *SocialForceModel) ApplyUpdate(update PedestrianUpdate, agent Agent) {
	if !finitePoint(update.Position) || !finitePoint(update.Velocity) {
		log.Warnf("agent %d: non-finite update, holding position", update.AgentID)
		return
	}
	agent.SetPosition(update.Position)
	agent.SetVelocity(update.Velocity)
}

func finitePoint(p geometry.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// drivingForce pulls velocity toward v0 in the desired direction over the
// agent's reaction time tau: (v0*e - v) / tau.
func (m *SocialForceModel) drivingForce(agent Agent, v0 float64) geometry.Point {
	tau := agent.ReactionTime()
	if tau < 1e-6 {
		tau = 0.5
	}
	desired := agent.DesiredDirection().Normalized().Scale(v0)
	return desired.Sub(agent.Velocity()).Scale(1 / tau)
}

// desiredSpeed resolves the agent's desired speed for its current subroom,
// selecting the stair up/down variant when the agent is on one, per spec
// §3's v0 plus up/down stair variants.
func desiredSpeed(agent Agent, b *building.Building) float64 {
	sr := b.SubRoom(agent.Subroom())
	if sr == nil {
		return agent.DesiredSpeed()
	}
	return agent.DesiredSpeedForKind(sr.Kind, sr.EscalatorDirection)
}

// escalatorConveyance returns the belt's own contribution to displacement:
// EscalatorSpeed along the Down->Up axis (or its reverse for a
// down-running escalator), added on top of whatever the agent's own
// walking produces. Zero for anything but an escalator subroom with both
// reference points set.
func escalatorConveyance(sr *building.SubRoom) geometry.Point {
	if sr == nil || sr.Kind != building.KindEscalator || sr.Up == nil || sr.Down == nil {
		return geometry.Point{}
	}
	dir := sr.Up.Sub(*sr.Down).Normalized()
	if sr.EscalatorDirection == building.EscalatorDown {
		dir = dir.Scale(-1)
	}
	return dir.Scale(sr.EscalatorSpeed)
}

// agentRepulsion sums the exponential pairwise repulsion from every
// neighbor within InteractionRadius.
func (m *SocialForceModel) agentRepulsion(agent Agent, neighbors []Agent) geometry.Point {
	pos := agent.Position()
	var total geometry.Point
	for _, other := range neighbors {
		if other.ID() == agent.ID() {
			continue
		}
		delta := pos.Sub(other.Position())
		dist := delta.Norm()
		if dist < 1e-6 || dist > m.InteractionRadius {
			continue
		}
		rSum := agent.Radius() + other.Radius()
		magnitude := m.AgentRepulsionStrength * math.Exp((rSum-dist)/m.AgentRepulsionRange)
		total = total.Add(delta.Normalized().Scale(magnitude))
	}
	return total
}

// wallRepulsion applies the same exponential term against the closest
// point on any wall or obstacle boundary in the agent's current subroom.
func (m *SocialForceModel) wallRepulsion(agent Agent, b *building.Building) geometry.Point {
	sr := b.SubRoom(agent.Subroom())
	if sr == nil {
		return geometry.Point{}
	}
	pos := agent.Position()
	bestDist := math.Inf(1)
	var bestPoint geometry.Point
	for _, w := range sr.Walls {
		d, p := geometry.DistanceToSegment(w.Segment.P1, w.Segment.P2, pos)
		if d < bestDist {
			bestDist, bestPoint = d, p
		}
	}
	for _, obs := range sr.Obstacles {
		for _, w := range obs.Walls {
			d, p := geometry.DistanceToSegment(w.Segment.P1, w.Segment.P2, pos)
			if d < bestDist {
				bestDist, bestPoint = d, p
			}
		}
	}
	if math.IsInf(bestDist, 1) || bestDist > m.InteractionRadius {
		return geometry.Point{}
	}
	delta := pos.Sub(bestPoint)
	if delta.Norm() < 1e-6 {
		return geometry.Point{}
	}
	magnitude := m.WallRepulsionStrength * math.Exp((agent.Radius()-bestDist)/m.WallRepulsionRange)
	return delta.Normalized().Scale(magnitude)
}

func clampSpeed(v geometry.Point, maxSpeed float64) geometry.Point {
	n := v.Norm()
	if n <= maxSpeed || n < 1e-9 {
		return v
	}
	return v.Scale(maxSpeed / n)
}
