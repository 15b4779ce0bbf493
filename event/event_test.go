package event_test

import (
	"testing"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/event"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSpawner struct {
	calls []event.PedestrianSpec
}

func (s *recordingSpawner) Spawn(_ float64, spec event.PedestrianSpec) error {
	s.calls = append(s.calls, spec)
	return nil
}

func newDoorBuilding() (*building.Building, geometry.UID) {
	alloc := geometry.NewUIDAllocator()
	b := building.New(alloc)
	uid := alloc.Next()
	d := &building.Door{UID: uid, Kind: building.KindTransition, State: building.StateOpen}
	b.AddDoor(d)
	return b, uid
}

func TestProcessEventsAppliesDueEventsOnly(t *testing.T) {
	b, doorUID := newDoorBuilding()
	q := event.NewQueue()
	q.Schedule(event.NewDoorEvent(5, doorUID, building.StateClosed))
	q.Schedule(event.NewDoorEvent(10, doorUID, building.StateOpen))

	stale, err := q.ProcessEvents(5, b, nil)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, building.StateClosed, b.Door(doorUID).State)
	assert.Equal(t, 1, q.Len())

	stale, err = q.ProcessEvents(10, b, nil)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, building.StateOpen, b.Door(doorUID).State)
	assert.Equal(t, 0, q.Len())
}

func TestProcessEventsTieBreaksByInsertionOrder(t *testing.T) {
	b, doorUID := newDoorBuilding()
	q := event.NewQueue()
	q.Schedule(event.NewDoorEvent(1, doorUID, building.StateClosed))
	q.Schedule(event.NewDoorEvent(1, doorUID, building.StateOpen))

	_, err := q.ProcessEvents(1, b, nil)
	require.NoError(t, err)
	assert.Equal(t, building.StateOpen, b.Door(doorUID).State, "later-scheduled same-time event should win")
}

func TestCreatePedestrianEventInvokesSpawner(t *testing.T) {
	b, _ := newDoorBuilding()
	sp := &recordingSpawner{}
	q := event.NewQueue()
	q.Schedule(event.NewCreatePedestrianEvent(0, "spec-payload"))

	stale, err := q.ProcessEvents(0, b, sp)
	require.NoError(t, err)
	assert.False(t, stale)
	require.Len(t, sp.calls, 1)
	assert.Equal(t, "spec-payload", sp.calls[0])
}

func TestDoorEventOnUndefinedDoorIsNonFatalAndLogged(t *testing.T) {
	b, _ := newDoorBuilding()
	q := event.NewQueue()
	q.Schedule(event.NewDoorEvent(0, geometry.UID(999), building.StateClosed))

	stale, err := q.ProcessEvents(0, b, nil)
	require.NoError(t, err)
	assert.False(t, stale)
}
