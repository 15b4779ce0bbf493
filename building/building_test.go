package building_test

import (
	"testing"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSquareSubroom(alloc *geometry.UIDAllocator) (*building.Building, building.Key) {
	b := building.New(alloc)
	sr := &building.SubRoom{
		Key: building.Key{RoomID: 1, SubRoomID: 1},
		Polygon: []geometry.Point{
			{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10},
		},
	}
	room := &building.Room{ID: 1, Caption: "hall", SubRooms: []*building.SubRoom{sr}}
	b.AddRoom(room)

	doorUID := alloc.Next()
	door := &building.Door{
		UID:      doorUID,
		Kind:     building.KindTransition,
		Segment:  geometry.Segment{UID: doorUID, P1: geometry.Point{X: 10, Y: 4}, P2: geometry.Point{X: 10, Y: 6}},
		Subrooms: [2]building.Key{sr.Key, building.NoSubroom},
		ToOutside: true,
		State:    building.StateOpen,
	}
	b.AddDoor(door)
	sr.TransitionUIDs = append(sr.TransitionUIDs, doorUID)
	return b, sr.Key
}

func TestInsidePointFromDoorNormal(t *testing.T) {
	alloc := geometry.NewUIDAllocator()
	b, key := newSquareSubroom(alloc)
	sr := b.SubRoom(key)
	p, err := b.InsidePoint(sr)
	require.NoError(t, err)
	assert.True(t, sr.Contains(p))
}

func TestDoorUsageCounterMonotonic(t *testing.T) {
	alloc := geometry.NewUIDAllocator()
	b, key := newSquareSubroom(alloc)
	sr := b.SubRoom(key)
	d := b.Door(sr.TransitionUIDs[0])
	assert.Equal(t, int64(0), d.UsageCount())
	d.RecordPassing(1.0)
	d.RecordPassing(2.0)
	assert.Equal(t, int64(2), d.UsageCount())
	assert.Equal(t, 2.0, d.LastPassingTime())
	// Out-of-order timestamps do not decrease last passing time.
	d.RecordPassing(0.5)
	assert.Equal(t, 2.0, d.LastPassingTime())
}

func TestTrainArrivalAndDepartureRestoresWalls(t *testing.T) {
	alloc := geometry.NewUIDAllocator()
	b := building.New(alloc)
	track := &building.Track{
		ID:         0,
		StartPoint: geometry.Point{X: 0, Y: 0},
		Walls: []building.Wall{
			{Type: building.WallTypeTrack, Segment: geometry.Segment{UID: alloc.Next(), P1: geometry.Point{X: 0, Y: 0}, P2: geometry.Point{X: 20, Y: 0}}},
		},
	}
	b.Tracks[0] = track
	sr := &building.SubRoom{
		Key:     building.Key{RoomID: 1, SubRoomID: 1},
		Polygon: []geometry.Point{{X: 0, Y: 0}, {X: 20, Y: 0}, {X: 20, Y: 5}, {X: 0, Y: 5}},
		Walls:   append([]building.Wall{}, track.Walls...),
	}
	room := &building.Room{ID: 1, SubRooms: []*building.SubRoom{sr}}
	b.AddRoom(room)

	trainType := &building.TrainType{
		Name:        "TypeA",
		MaxCapacity: 100,
		Doors: []building.TrainDoorOffset{
			{Offset: 5, Width: 1.4},
			{Offset: 15, Width: 1.4},
		},
	}

	before := append([]building.Wall{}, sr.Walls...)

	stale, err := b.ArriveTrain("T1", 0, sr.Key, trainType, 20)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Len(t, sr.TransitionUIDs, 2)

	stale, err = b.DepartTrain("T1")
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Empty(t, sr.TransitionUIDs)
	assert.ElementsMatch(t, before, sr.Walls)
}

func TestWaitingAreaSuccessorValidation(t *testing.T) {
	w := &building.WaitingArea{
		Successors: map[int]float64{1: 0.5, 2: 0.5},
	}
	assert.True(t, w.ValidateSuccessors())
	w.Successors[3] = 0.1
	assert.False(t, w.ValidateSuccessors())
}

func TestGoalConvertLineToPolyClosesAndOrientsCCW(t *testing.T) {
	g := &building.Goal{ID: 1}
	// Clockwise, unclosed boundary.
	cw := []geometry.Point{{X: 0, Y: 0}, {X: 0, Y: 2}, {X: 2, Y: 2}, {X: 2, Y: 0}}
	err := g.ConvertLineToPoly(cw)
	require.NoError(t, err)
	assert.True(t, geometry.IsCCW(g.Polygon))
}

func TestGoalConvertLineToPolyRejectsDegenerate(t *testing.T) {
	g := &building.Goal{ID: 1}
	err := g.ConvertLineToPoly([]geometry.Point{{X: 0, Y: 0}, {X: 1, Y: 1}})
	assert.Error(t, err)
}
