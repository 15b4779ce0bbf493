package pedestrian

import (
	"fmt"
	"math/rand"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"git.fiblab.net/sim/crowddynamics/simerr"
)

// defaultCellSpacing is used when a SourceSpec doesn't specify one,
// standing in for max(2*a_min, 2*b_max) at the reference ellipse
// defaults, per spec §4.10.
const defaultCellSpacing = 0.5

// defaultWallBuffer keeps candidate positions clear of walls and doors by
// default.
const defaultWallBuffer = 0.3

// NoSubRoom, used as SourceSpec.SubRoomID, means "distribute across every
// subroom of Room, proportional to area".
const NoSubRoom = -1

// SourceSpec describes one initial-distribution or agent-source request:
// where to place agents, how many, with what sampled parameters and
// final goal.
type SourceSpec struct {
	RoomID    int
	SubRoomID int // NoSubRoom to spread proportionally across the room

	Count       int
	Params      AgentsParameters
	FinalGoalID int

	CellSpacing float64
	WallBuffer  float64
}

// Distribute lays out Count agents per spec.SubRoomID (or proportionally
// across the room's subrooms), per spec §4.10: a regular candidate grid,
// wall/door buffered, shuffled, the first N positions drawn and assigned
// freshly sampled parameters. nextID mints stable agent ids.
func Distribute(b *building.Building, spec SourceSpec, rng *rand.Rand, nextID func() int64) ([]*Pedestrian, error) {
	room := b.RoomByID(spec.RoomID)
	if room == nil {
		return nil, simerr.New(simerr.KindParse, "pedestrian", fmt.Sprintf("room:%d", spec.RoomID), "distribution spec references undefined room")
	}

	var targets []*building.SubRoom
	var counts []int
	if spec.SubRoomID != NoSubRoom {
		sr := b.SubRoom(building.Key{RoomID: spec.RoomID, SubRoomID: spec.SubRoomID})
		if sr == nil {
			return nil, simerr.New(simerr.KindParse, "pedestrian", fmt.Sprintf("subroom:%d/%d", spec.RoomID, spec.SubRoomID), "distribution spec references undefined subroom")
		}
		targets = []*building.SubRoom{sr}
		counts = []int{spec.Count}
	} else {
		targets = room.SubRooms
		counts = allocateProportionally(targets, spec.Count)
	}

	var out []*Pedestrian
	for i, sr := range targets {
		n := counts[i]
		if n == 0 {
			continue
		}
		peds, err := distributeInSubroom(b, sr, spec, n, rng, nextID)
		if err != nil {
			return nil, err
		}
		out = append(out, peds...)
	}
	return out, nil
}

// allocateProportionally splits total across subrooms in proportion to
// area, using the largest-remainder method so the counts sum exactly to
// total, per spec §4.10's "rounded and rebalanced" rule.
func allocateProportionally(subrooms []*building.SubRoom, total int) []int {
	areas := make([]float64, len(subrooms))
	sumArea := 0.0
	for i, sr := range subrooms {
		areas[i] = geometry.PolygonArea(sr.Polygon)
		sumArea += areas[i]
	}
	counts := make([]int, len(subrooms))
	if sumArea < 1e-9 {
		return counts
	}
	remainders := make([]float64, len(subrooms))
	assigned := 0
	for i, a := range areas {
		exact := a / sumArea * float64(total)
		counts[i] = int(exact)
		remainders[i] = exact - float64(counts[i])
		assigned += counts[i]
	}
	for assigned < total {
		best := -1
		for i, r := range remainders {
			if best == -1 || r > remainders[best] {
				best = i
			}
		}
		if best == -1 {
			break
		}
		counts[best]++
		remainders[best] = -1 // consumed
		assigned++
	}
	return counts
}

func distributeInSubroom(b *building.Building, sr *building.SubRoom, spec SourceSpec, n int, rng *rand.Rand, nextID func() int64) ([]*Pedestrian, error) {
	spacing := spec.CellSpacing
	if spacing <= 0 {
		spacing = defaultCellSpacing
	}
	buffer := spec.WallBuffer
	if buffer <= 0 {
		buffer = defaultWallBuffer
	}

	candidates := candidatePositions(b, sr, spacing, buffer)
	if len(candidates) < n {
		return nil, simerr.New(simerr.KindGeometry, "pedestrian",
			fmt.Sprintf("subroom:%d/%d", sr.Key.RoomID, sr.Key.SubRoomID),
			fmt.Sprintf("only %d candidate positions for %d agents", len(candidates), n))
	}
	rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	peds := make([]*Pedestrian, 0, n)
	for i := 0; i < n; i++ {
		agentRNG := rand.New(rand.NewSource(rng.Int63()))
		p := New(nextID(), spec.Params.GroupID, candidates[i], sr.Key, agentRNG)
		v0, v0Up, v0Down, tau, ellipse := spec.Params.Sample(agentRNG)
		p.SetKinematicParams(v0, v0Up, v0Down, tau, ellipse)
		p.SetFinalGoalID(spec.FinalGoalID)
		peds = append(peds, p)
	}
	log.Infof("distributed %d agents into subroom %d/%d", n, sr.Key.RoomID, sr.Key.SubRoomID)
	return peds, nil
}

// candidatePositions enumerates a regular grid over sr's bounding box
// spaced by spacing, keeping only points inside the subroom polygon (and
// outside any obstacle) that clear every wall and door segment by at
// least buffer.
func candidatePositions(b *building.Building, sr *building.SubRoom, spacing, buffer float64) []geometry.Point {
	minP, maxP := geometry.BoundingBox(sr.Polygon)
	var out []geometry.Point
	for x := minP.X + spacing/2; x <= maxP.X; x += spacing {
		for y := minP.Y + spacing/2; y <= maxP.Y; y += spacing {
			pt := geometry.Point{X: x, Y: y}
			if !sr.Contains(pt) {
				continue
			}
			if tooCloseToWalls(sr, pt, buffer) || tooCloseToDoors(b, sr, pt, buffer) {
				continue
			}
			out = append(out, pt)
		}
	}
	return out
}

func tooCloseToWalls(sr *building.SubRoom, pt geometry.Point, buffer float64) bool {
	for _, w := range sr.Walls {
		if d, _ := geometry.DistanceToSegment(w.Segment.P1, w.Segment.P2, pt); d < buffer {
			return true
		}
	}
	for _, obs := range sr.Obstacles {
		for _, w := range obs.Walls {
			if d, _ := geometry.DistanceToSegment(w.Segment.P1, w.Segment.P2, pt); d < buffer {
				return true
			}
		}
	}
	return false
}

func tooCloseToDoors(b *building.Building, sr *building.SubRoom, pt geometry.Point, buffer float64) bool {
	uids := append(append([]geometry.UID{}, sr.TransitionUIDs...), sr.CrossingUIDs...)
	for _, uid := range uids {
		d := b.Door(uid)
		if d == nil {
			continue
		}
		if dist, _ := geometry.DistanceToSegment(d.Segment.P1, d.Segment.P2, pt); dist < buffer {
			return true
		}
	}
	return false
}
