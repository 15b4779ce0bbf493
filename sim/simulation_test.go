package sim_test

import (
	"bytes"
	"math/rand"
	"testing"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/config"
	"git.fiblab.net/sim/crowddynamics/direction"
	"git.fiblab.net/sim/crowddynamics/event"
	"git.fiblab.net/sim/crowddynamics/floorfield"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"git.fiblab.net/sim/crowddynamics/model"
	"git.fiblab.net/sim/crowddynamics/pedestrian"
	"git.fiblab.net/sim/crowddynamics/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildCorridor mirrors spec §8 scenario 1: a single 10x2m room with one
// exit, 10x2m with a door at (10, 0.8)-(10, 1.2).
func buildCorridor() (*building.Building, int) {
	alloc := geometry.NewUIDAllocator()
	b := building.New(alloc)
	sr := &building.SubRoom{
		Key: building.Key{RoomID: 1, SubRoomID: 1},
		Polygon: []geometry.Point{
			{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 2}, {X: 0, Y: 2},
		},
		Walls: []building.Wall{
			{Type: building.WallTypeWall, Segment: geometry.NewSegment(alloc, geometry.Point{X: 0, Y: 0}, geometry.Point{X: 0, Y: 2})},
			{Type: building.WallTypeWall, Segment: geometry.NewSegment(alloc, geometry.Point{X: 0, Y: 0}, geometry.Point{X: 10, Y: 0})},
			{Type: building.WallTypeWall, Segment: geometry.NewSegment(alloc, geometry.Point{X: 0, Y: 2}, geometry.Point{X: 10, Y: 2})},
		},
	}
	room := &building.Room{ID: 1, Caption: "corridor", SubRooms: []*building.SubRoom{sr}}
	b.AddRoom(room)

	doorUID := alloc.Next()
	door := &building.Door{
		UID:       doorUID,
		Kind:      building.KindTransition,
		Segment:   geometry.Segment{UID: doorUID, P1: geometry.Point{X: 10, Y: 0.8}, P2: geometry.Point{X: 10, Y: 1.2}},
		Subrooms:  [2]building.Key{sr.Key, building.NoSubroom},
		ToOutside: true,
		State:     building.StateOpen,
	}
	b.AddDoor(door)
	sr.TransitionUIDs = append(sr.TransitionUIDs, doorUID)

	outsideGoal := &building.Goal{
		ID: 100, Caption: "outside", IsFinal: true, Home: building.NoSubroom,
		Polygon: []geometry.Point{{X: 11, Y: 0}, {X: 12, Y: 0}, {X: 12, Y: 2}, {X: 11, Y: 2}},
	}
	b.Goals[100] = outsideGoal
	return b, 100
}

func newTestSimulation(t *testing.T, agentCount int) *sim.Simulation {
	b, outsideGoalID := buildCorridor()
	rng := rand.New(rand.NewSource(42))
	var nextID int64
	spec := pedestrian.SourceSpec{
		RoomID: 1, SubRoomID: 1,
		Count: agentCount,
		Params: pedestrian.AgentsParameters{
			V0:  pedestrian.Uniform{Min: 1.0, Max: 1.4},
			Tau: pedestrian.Constant(0.5),
		},
		FinalGoalID: outsideGoalID,
		CellSpacing: 0.5,
		WallBuffer:  0.2,
	}
	peds, err := pedestrian.Distribute(b, spec, rng, func() int64 { nextID++; return nextID })
	require.NoError(t, err)

	loaded := &config.Loaded{
		Building:    b,
		UIDs:        b.UIDs,
		Events:      event.NewQueue(),
		Population:  peds,
		FinalGoalID: map[int]bool{outsideGoalID: true},
	}
	cfg := config.Config{WithinSubroom: false, FPS: 2, TMax: 60, DT: 0.1, Seed: 7}

	s, err := sim.New(cfg, loaded, model.NewSocialForceModel(), direction.MiddlePoint{}, direction.WaitAtMiddle{},
		sim.NewCSVTrajectoryWriter(&bytes.Buffer{}), floorfield.Homogeneous, 0.2, 2.0)
	require.NoError(t, err)
	return s
}

func TestCorridorExitAllAgentsLeaveWithinTMax(t *testing.T) {
	s := newTestSimulation(t, 8)
	require.NoError(t, s.Writer.WriteHeader())

	steps := 0
	for !s.Done() && steps < 1000 {
		require.NoError(t, s.Step())
		steps++
	}
	assert.Equal(t, 0, s.AgentCount(), "all agents should have exited the corridor")
	assert.LessOrEqual(t, s.Now(), 60.5)
}

func TestStepPreservesSubroomInvariant(t *testing.T) {
	s := newTestSimulation(t, 3)
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Step())
		for _, p := range s.Peds {
			sr := s.B.SubRoom(p.CurrentSubroom())
			if sr == nil {
				continue // agent is in transit / scheduled for removal
			}
			assert.True(t, sr.Contains(p.Position()), "agent %d left its subroom without crossing a door", p.ID())
		}
	}
}

func TestDoorUsageCounterNonDecreasing(t *testing.T) {
	s := newTestSimulation(t, 5)
	door := s.B.AllDoors()[0]
	var prev int64
	for i := 0; i < 300 && s.AgentCount() > 0; i++ {
		require.NoError(t, s.Step())
		cur := door.UsageCount()
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}
