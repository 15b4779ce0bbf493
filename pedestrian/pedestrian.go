// Package pedestrian defines the agent type, its distribution
// parameters, and the initial/ongoing agent-creation machinery of spec
// §4.10: a grid-based distributor for the initial population and
// rate-based sources that add agents mid-run.
package pedestrian

import (
	"math/rand"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"git.fiblab.net/sim/crowddynamics/logutil"
)

var log = logutil.For("pedestrian")

// Ellipse holds an agent's velocity-dependent body-ellipse parameters:
// the semi-axis along the direction of travel grows linearly with speed
// from AMin by ATau seconds, while the semi-axis across the body of
// travel is clamped between BMin and BMax.
type Ellipse struct {
	AMin, ATau float64
	BMin, BMax float64
}

// SemiAxisA returns the along-travel semi-axis at the given speed.
func (e Ellipse) SemiAxisA(speed float64) float64 {
	return e.AMin + e.ATau*speed
}

// EffectiveRadius returns a single-circle approximation of the ellipse,
// the mean of its two semi-axes at zero speed, used by force models that
// don't reason about orientation directly.
func (e Ellipse) EffectiveRadius() float64 {
	return (e.AMin + e.BMax) / 2
}

// Pedestrian is one simulated agent, per spec §3.
type Pedestrian struct {
	id      int64
	groupID int

	pos geometry.Point
	vel geometry.Point

	desiredDir geometry.Point

	ellipse Ellipse
	v0      float64
	v0Up    float64
	v0Down  float64
	tau     float64

	subroom building.Key

	destDoorUID geometry.UID
	exitLine    geometry.Segment

	finalGoalID int
	hasGoal     bool

	waiting       bool
	waitSince     float64
	premovementTime float64

	modelParams map[string]float64

	rng *rand.Rand
}

// New returns a pedestrian at pos with the given id, group and params.
func New(id int64, groupID int, pos geometry.Point, sr building.Key, rng *rand.Rand) *Pedestrian {
	return &Pedestrian{
		id:      id,
		groupID: groupID,
		pos:     pos,
		subroom: sr,
		rng:     rng,
	}
}

func (p *Pedestrian) ID() int64                { return p.id }
func (p *Pedestrian) GroupID() int             { return p.groupID }
func (p *Pedestrian) Position() geometry.Point { return p.pos }
func (p *Pedestrian) Velocity() geometry.Point { return p.vel }

func (p *Pedestrian) SetPosition(pos geometry.Point) { p.pos = pos }
func (p *Pedestrian) SetVelocity(v geometry.Point)   { p.vel = v }

func (p *Pedestrian) DesiredDirection() geometry.Point    { return p.desiredDir }
func (p *Pedestrian) SetDesiredDirection(d geometry.Point) { p.desiredDir = d }

// DesiredSpeed returns v0 for a normal (non-stair) subroom. Stair/
// escalator variants are selected by the caller inspecting the current
// subroom's Kind, per spec §3's "v0 plus up/down stairs variants".
func (p *Pedestrian) DesiredSpeed() float64 {
	return p.v0
}

// DesiredSpeedForKind returns the v0 variant appropriate to k.
func (p *Pedestrian) DesiredSpeedForKind(k building.SubRoomKind, dir building.EscalatorDirection) float64 {
	if k != building.KindStair {
		return p.v0
	}
	if dir == building.EscalatorUp {
		return p.v0Up
	}
	return p.v0Down
}

func (p *Pedestrian) ReactionTime() float64 { return p.tau }
func (p *Pedestrian) Radius() float64       { return p.ellipse.EffectiveRadius() }
func (p *Pedestrian) Ellipse() Ellipse      { return p.ellipse }

func (p *Pedestrian) Subroom() building.Key         { return p.subroom }
func (p *Pedestrian) CurrentSubroom() building.Key  { return p.subroom }
func (p *Pedestrian) SetSubroom(k building.Key)     { p.subroom = k }

func (p *Pedestrian) DestinationDoor() (geometry.UID, geometry.Segment) {
	return p.destDoorUID, p.exitLine
}

func (p *Pedestrian) SetDestinationDoor(uid geometry.UID, seg geometry.Segment) {
	p.destDoorUID = uid
	p.exitLine = seg
}

func (p *Pedestrian) FinalGoalID() (int, bool) { return p.finalGoalID, p.hasGoal }
func (p *Pedestrian) SetFinalGoalID(id int) {
	p.finalGoalID = id
	p.hasGoal = true
}

func (p *Pedestrian) IsWaiting() bool        { return p.waiting }
func (p *Pedestrian) WaitStartTime() float64 { return p.waitSince }
func (p *Pedestrian) SetWaiting(w bool, t float64) {
	p.waiting = w
	p.waitSince = t
}

func (p *Pedestrian) PremovementTime() float64        { return p.premovementTime }
func (p *Pedestrian) SetPremovementTime(t float64)    { p.premovementTime = t }

func (p *Pedestrian) ModelParam(key string) (float64, bool) {
	v, ok := p.modelParams[key]
	return v, ok
}

func (p *Pedestrian) SetModelParam(key string, v float64) {
	if p.modelParams == nil {
		p.modelParams = make(map[string]float64)
	}
	p.modelParams[key] = v
}

// RNG returns the agent's own deterministic random source, used by the
// goal manager's successor sampling so re-running with the same seed
// reproduces the same outcome regardless of agent processing order.
func (p *Pedestrian) RNG() *rand.Rand { return p.rng }

// SetKinematicParams installs the sampled speed/reaction-time/ellipse
// parameters drawn by the distributor at creation time.
func (p *Pedestrian) SetKinematicParams(v0, v0Up, v0Down, tau float64, ellipse Ellipse) {
	p.v0, p.v0Up, p.v0Down, p.tau, p.ellipse = v0, v0Up, v0Down, tau, ellipse
}
