// Package direction implements the walking-direction strategies of spec
// §4.6: given an agent's exit line and position, choose the point on (or
// near) that line the agent should steer toward.
package direction

import (
	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/floorfield"
	"git.fiblab.net/sim/crowddynamics/geometry"
)

// Strategy computes a steering target for an agent walking toward its
// assigned exit line.
type Strategy interface {
	TargetPoint(sr *building.SubRoom, agentPos geometry.Point, shoulderWidth float64, exitLine geometry.Segment) geometry.Point
}

// clampToSubroom implements the "all variants must clamp the target
// inside the current subroom polygon" rule: if the computed target falls
// outside sr, it is replaced with the closest point on sr's boundary.
func clampToSubroom(sr *building.SubRoom, target geometry.Point) geometry.Point {
	if sr.Contains(target) {
		return target
	}
	best := target
	bestDist := -1.0
	n := len(sr.Polygon)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		d, p := geometry.DistanceToSegment(sr.Polygon[j], sr.Polygon[i], target)
		if bestDist < 0 || d < bestDist {
			bestDist = d
			best = p
		}
	}
	return best
}

// MiddlePoint steers toward the exit line's midpoint.
type MiddlePoint struct{}

func (MiddlePoint) TargetPoint(sr *building.SubRoom, _ geometry.Point, _ float64, exitLine geometry.Segment) geometry.Point {
	return clampToSubroom(sr, exitLine.Center())
}

// MinSeparationShorterLine shrinks the exit line inward by the agent's
// shoulder width (bounded by half the line length) and steers toward the
// closest point on the shrunk segment.
type MinSeparationShorterLine struct{}

func (MinSeparationShorterLine) TargetPoint(sr *building.SubRoom, agentPos geometry.Point, shoulderWidth float64, exitLine geometry.Segment) geometry.Point {
	shrunk := exitLine.ShrinkInward(shoulderWidth)
	_, closest := geometry.DistanceToSegment(shrunk.P1, shrunk.P2, agentPos)
	return clampToSubroom(sr, closest)
}

// inRangeSlack is the tolerance, in metres, by which a projection onto
// the extended exit line may fall outside the segment and still be used
// directly, per spec §4.6's "in-range bottleneck" variant.
const inRangeSlack = 0.1

// InRangeBottleneck projects the agent onto the extended exit line; if
// the projection lies within inRangeSlack of the segment, it is used
// directly, otherwise the midpoint is used.
type InRangeBottleneck struct{}

func (InRangeBottleneck) TargetPoint(sr *building.SubRoom, agentPos geometry.Point, _ float64, exitLine geometry.Segment) geometry.Point {
	v := exitLine.Vector()
	l2 := v.NormSquare()
	if l2 < geometry.DistEps*geometry.DistEps {
		return clampToSubroom(sr, exitLine.P1)
	}
	t := agentPos.Sub(exitLine.P1).Dot(v) / l2
	length := exitLine.Length()
	slackT := inRangeSlack / length
	if t >= -slackT && t <= 1+slackT {
		tc := geometry.Clamp(t, 0, 1)
		return clampToSubroom(sr, exitLine.P1.Add(v.Scale(tc)))
	}
	return clampToSubroom(sr, exitLine.Center())
}

// LocalFloorField uses the cached gradient at the agent's cell toward
// the destination door. Falls back to the exit line's midpoint if the
// underlying field has no field built for this door yet.
type LocalFloorField struct {
	Cache   *floorfield.Cache
	Subroom building.Key
	DoorUID geometry.UID
	Step    float64 // how far along the gradient to place the target
}

func (s LocalFloorField) TargetPoint(sr *building.SubRoom, agentPos geometry.Point, _ float64, exitLine geometry.Segment) geometry.Point {
	f := s.Cache.Field(s.Subroom, floorfield.DoorDestination(s.DoorUID))
	if f == nil {
		return clampToSubroom(sr, exitLine.Center())
	}
	dir, err := f.DirectionTo(agentPos)
	if err != nil {
		return clampToSubroom(sr, exitLine.Center())
	}
	step := s.Step
	if step <= 0 {
		step = 0.5
	}
	return clampToSubroom(sr, agentPos.Add(dir.Scale(step)))
}
