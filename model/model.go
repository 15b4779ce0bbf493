// Package model defines the operational-model plug point of spec §4.9:
// the core drives any implementation through Init/ComputeNewPosition/
// ApplyUpdate without depending on a specific force-model's coefficients.
package model

import (
	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/geometry"
)

// Agent is the minimal view of a pedestrian an operational model needs.
// Concrete pedestrian types satisfy this directly; ApplyUpdate is the
// only mutator, keeping ComputeNewPosition read-only and therefore safe
// to call concurrently across agents within one step (spec §5).
type Agent interface {
	ID() int64
	Position() geometry.Point
	Velocity() geometry.Point
	DesiredDirection() geometry.Point
	DesiredSpeed() float64
	DesiredSpeedForKind(building.SubRoomKind, building.EscalatorDirection) float64
	ReactionTime() float64
	Radius() float64
	Subroom() building.Key

	SetPosition(geometry.Point)
	SetVelocity(geometry.Point)
}

// PedestrianUpdate is the immutable result of one agent's
// ComputeNewPosition call: the position and velocity ApplyUpdate will
// write back. Kept as a plain value so computing it never touches
// shared agent state (spec §5's per-agent-compute parallelism note).
type PedestrianUpdate struct {
	AgentID  int64
	Position geometry.Point
	Velocity geometry.Point
}

// Model is the operational-model plug point. The core guarantees, by the
// time ComputeNewPosition is called, that neighborhood indices are
// current, the agent has a valid destination door and exit line, and its
// desired direction has been set by the active direction strategy.
type Model interface {
	// Init is called once after geometry is final and doors are known.
	Init(b *building.Building) error
	// ComputeNewPosition derives agent's next position/velocity from its
	// desired direction, the neighbors within interaction range, and the
	// surrounding geometry. Must not mutate agent or neighbors.
	ComputeNewPosition(dt float64, agent Agent, b *building.Building, neighbors []Agent) PedestrianUpdate
	// ApplyUpdate writes update back onto agent.
	ApplyUpdate(update PedestrianUpdate, agent Agent)
}
