package direction

import (
	"math/rand"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/floorfield"
	"git.fiblab.net/sim/crowddynamics/geometry"
)

// WaitingStrategy returns a steering target for an agent that is
// currently waiting, per spec §4.7.
type WaitingStrategy interface {
	WaitingTarget(region *building.Goal, rng *rand.Rand) geometry.Point
}

// WaitAtMiddle steers toward the centroid of the waiting region.
type WaitAtMiddle struct{}

func (WaitAtMiddle) WaitingTarget(region *building.Goal, _ *rand.Rand) geometry.Point {
	return centroid(region.Polygon)
}

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

// WaitRandomInRegion draws a uniformly random point inside the region by
// rejection sampling in its bounding box, per spec §4.7.
type WaitRandomInRegion struct {
	MaxAttempts int
}

func (w WaitRandomInRegion) WaitingTarget(region *building.Goal, rng *rand.Rand) geometry.Point {
	minP, maxP := geometry.BoundingBox(region.Polygon)
	attempts := w.MaxAttempts
	if attempts <= 0 {
		attempts = 50
	}
	for i := 0; i < attempts; i++ {
		candidate := geometry.RandomPointInBox(rng, minP, maxP)
		if region.Contains(candidate) {
			return candidate
		}
	}
	return centroid(region.Polygon)
}

// WaitFollowFloorField steers toward the region's centre using the
// subroom's wall-avoiding gradient, for agents waiting somewhere with no
// single well-defined waiting point (e.g. a wide concourse).
type WaitFollowFloorField struct {
	Cache   *floorfield.Cache
	Subroom building.Key
}

func (w WaitFollowFloorField) WaitingTarget(region *building.Goal, _ *rand.Rand) geometry.Point {
	center := centroid(region.Polygon)
	wf := w.Cache.WallField(w.Subroom)
	if wf == nil {
		return center
	}
	toWall, err := wf.DirectionToWall(center)
	if err != nil {
		return center
	}
	dist, err := wf.DistanceToWall(center)
	if err != nil || dist >= 1 {
		return center
	}
	// Nudge away from the nearest wall by the shortfall below 1m.
	return center.Sub(toWall.Scale(1 - dist))
}
