package pedestrian_test

import (
	"math/rand"
	"testing"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"git.fiblab.net/sim/crowddynamics/pedestrian"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corridorBuilding() *building.Building {
	alloc := geometry.NewUIDAllocator()
	b := building.New(alloc)
	sr := &building.SubRoom{
		Key:     building.Key{RoomID: 1, SubRoomID: 1},
		Polygon: []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 2}, {X: 0, Y: 2}},
	}
	b.AddRoom(&building.Room{ID: 1, SubRooms: []*building.SubRoom{sr}})
	return b
}

func TestDistributePlacesRequestedCount(t *testing.T) {
	b := corridorBuilding()
	rng := rand.New(rand.NewSource(1))
	var id int64
	spec := pedestrian.SourceSpec{RoomID: 1, SubRoomID: 1, Count: 20, FinalGoalID: 1}
	peds, err := pedestrian.Distribute(b, spec, rng, func() int64 { id++; return id })
	require.NoError(t, err)
	assert.Len(t, peds, 20)

	ids := make(map[int64]bool)
	for _, p := range peds {
		assert.False(t, ids[p.ID()], "agent ids must be unique")
		ids[p.ID()] = true
		gid, ok := p.FinalGoalID()
		assert.True(t, ok)
		assert.Equal(t, 1, gid)
		assert.True(t, b.SubRoom(building.Key{RoomID: 1, SubRoomID: 1}).Contains(p.Position()))
	}
}

func TestDistributeErrorsWhenTooManyAgentsForSpace(t *testing.T) {
	b := corridorBuilding()
	rng := rand.New(rand.NewSource(1))
	var id int64
	spec := pedestrian.SourceSpec{RoomID: 1, SubRoomID: 1, Count: 100000}
	_, err := pedestrian.Distribute(b, spec, rng, func() int64 { id++; return id })
	assert.Error(t, err)
}

func TestAllocateProportionallyByRoomSumsToTotal(t *testing.T) {
	alloc := geometry.NewUIDAllocator()
	b := building.New(alloc)
	small := &building.SubRoom{Key: building.Key{RoomID: 1, SubRoomID: 1}, Polygon: []geometry.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}}}
	big := &building.SubRoom{Key: building.Key{RoomID: 1, SubRoomID: 2}, Polygon: []geometry.Point{{X: 10, Y: 0}, {X: 20, Y: 0}, {X: 20, Y: 10}, {X: 10, Y: 10}}}
	b.AddRoom(&building.Room{ID: 1, SubRooms: []*building.SubRoom{small, big}})

	rng := rand.New(rand.NewSource(7))
	var id int64
	spec := pedestrian.SourceSpec{RoomID: 1, SubRoomID: pedestrian.NoSubRoom, Count: 30}
	peds, err := pedestrian.Distribute(b, spec, rng, func() int64 { id++; return id })
	require.NoError(t, err)
	assert.Len(t, peds, 30)
}

func TestSourceTickAccumulatesFractionalRate(t *testing.T) {
	b := corridorBuilding()
	rng := rand.New(rand.NewSource(1))
	var id int64
	src := pedestrian.NewSource(pedestrian.SourceSpec{RoomID: 1, SubRoomID: 1}, 0.5, 0)

	peds, err := src.Tick(b, 1.0, rng, func() int64 { id++; return id })
	require.NoError(t, err)
	assert.Empty(t, peds, "0.5/s * 1s should not yet cross a whole agent")

	peds, err = src.Tick(b, 1.0, rng, func() int64 { id++; return id })
	require.NoError(t, err)
	assert.Len(t, peds, 1, "second tick should cross the accumulated 1.0 agent threshold")
}

func TestSourceRespectsMaxAgents(t *testing.T) {
	b := corridorBuilding()
	rng := rand.New(rand.NewSource(1))
	var id int64
	src := pedestrian.NewSource(pedestrian.SourceSpec{RoomID: 1, SubRoomID: 1}, 100, 3)

	peds, err := src.Tick(b, 1.0, rng, func() int64 { id++; return id })
	require.NoError(t, err)
	assert.Len(t, peds, 3)
	assert.True(t, src.Exhausted())
}
