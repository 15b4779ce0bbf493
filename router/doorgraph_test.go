package router_test

import (
	"testing"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/floorfield"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"git.fiblab.net/sim/crowddynamics/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	pos      geometry.Point
	subroom  building.Key
	goalID   int
	hasGoal  bool
	destDoor geometry.UID
	destSeg  geometry.Segment
}

func (a *fakeAgent) Position() geometry.Point          { return a.pos }
func (a *fakeAgent) CurrentSubroom() building.Key      { return a.subroom }
func (a *fakeAgent) FinalGoalID() (int, bool)          { return a.goalID, a.hasGoal }
func (a *fakeAgent) SetDestinationDoor(uid geometry.UID, seg geometry.Segment) {
	a.destDoor = uid
	a.destSeg = seg
}

// twoRoomBuilding builds a single room A with two exits to the outside,
// D1 and D2, per the "closed door forces detour" scenario of spec §8.
func twoRoomBuilding(alloc *geometry.UIDAllocator) (*building.Building, building.Key, geometry.UID, geometry.UID) {
	b := building.New(alloc)

	srA := &building.SubRoom{
		Key:     building.Key{RoomID: 1, SubRoomID: 1},
		Polygon: []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}},
	}
	roomA := &building.Room{ID: 1, SubRooms: []*building.SubRoom{srA}}
	b.AddRoom(roomA)

	d1UID := alloc.Next()
	d1 := &building.Door{
		UID: d1UID, Kind: building.KindTransition,
		Segment:   geometry.Segment{UID: d1UID, P1: geometry.Point{X: 10, Y: 2}, P2: geometry.Point{X: 10, Y: 3}},
		Subrooms:  [2]building.Key{srA.Key, building.NoSubroom},
		ToOutside: true, State: building.StateOpen,
	}
	b.AddDoor(d1)
	srA.TransitionUIDs = append(srA.TransitionUIDs, d1UID)

	d2UID := alloc.Next()
	d2 := &building.Door{
		UID: d2UID, Kind: building.KindTransition,
		Segment:   geometry.Segment{UID: d2UID, P1: geometry.Point{X: 10, Y: 7}, P2: geometry.Point{X: 10, Y: 8}},
		Subrooms:  [2]building.Key{srA.Key, building.NoSubroom},
		ToOutside: true, State: building.StateOpen,
	}
	b.AddDoor(d2)
	srA.TransitionUIDs = append(srA.TransitionUIDs, d2UID)

	outside := &building.Goal{ID: 1, IsFinal: true, Home: building.NoSubroom, Polygon: []geometry.Point{{X: 20, Y: 5}}}
	b.Goals[1] = outside

	return b, srA.Key, d1UID, d2UID
}

func TestFindExitPrefersCloserOpenDoor(t *testing.T) {
	alloc := geometry.NewUIDAllocator()
	b, key, d1UID, _ := twoRoomBuilding(alloc)
	ffc := floorfield.NewCache(b, 0.5, floorfield.Homogeneous)
	dg := router.NewDoorGraph(b, ffc, router.ScopeSubroom)
	require.NoError(t, dg.Build())

	agent := &fakeAgent{pos: geometry.Point{X: 9, Y: 2.5}, subroom: key, goalID: 1, hasGoal: true}
	require.NoError(t, dg.FindExit(agent))
	assert.Equal(t, d1UID, agent.destDoor)
}

// waitingAreaBuilding is a single room with a waiting area occupying its
// far end, per spec §8 scenario 4 ("agents headed for W").
func waitingAreaBuilding(alloc *geometry.UIDAllocator) (*building.Building, building.Key, int) {
	b := building.New(alloc)

	sr := &building.SubRoom{
		Key:     building.Key{RoomID: 1, SubRoomID: 1},
		Polygon: []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}},
	}
	room := &building.Room{ID: 1, SubRooms: []*building.SubRoom{sr}}
	b.AddRoom(room)

	doorUID := alloc.Next()
	door := &building.Door{
		UID: doorUID, Kind: building.KindTransition,
		Segment:   geometry.Segment{UID: doorUID, P1: geometry.Point{X: 10, Y: 4}, P2: geometry.Point{X: 10, Y: 6}},
		Subrooms:  [2]building.Key{sr.Key, building.NoSubroom},
		ToOutside: true, State: building.StateOpen,
	}
	b.AddDoor(door)
	sr.TransitionUIDs = append(sr.TransitionUIDs, doorUID)

	w := building.NewWaitingArea(2, building.TriggerMinMaxTime)
	w.Home = sr.Key
	w.Polygon = []geometry.Point{{X: 7, Y: 7}, {X: 9, Y: 7}, {X: 9, Y: 9}, {X: 7, Y: 9}}
	b.WaitingAreas[2] = w

	return b, sr.Key, 2
}

func TestFindExitRoutesToWaitingAreaCentreWhenInScope(t *testing.T) {
	alloc := geometry.NewUIDAllocator()
	b, key, waitingID := waitingAreaBuilding(alloc)
	ffc := floorfield.NewCache(b, 0.5, floorfield.Homogeneous)
	dg := router.NewDoorGraph(b, ffc, router.ScopeSubroom)
	require.NoError(t, dg.Build())

	agent := &fakeAgent{pos: geometry.Point{X: 1, Y: 1}, subroom: key, goalID: waitingID, hasGoal: true}
	require.NoError(t, dg.FindExit(agent))

	assert.Equal(t, geometry.UID(0), agent.destDoor)
	assert.Equal(t, geometry.Point{X: 8, Y: 8}, agent.destSeg.P1)
	assert.Equal(t, agent.destSeg.P1, agent.destSeg.P2)
}

// escalatorBuilding joins a lower landing (with the only exit) and an
// upper landing by a single-direction (bottom-to-top) escalator subroom,
// per spec §8 scenario 6 ("D[D_top][D_bottom]=infinity").
func escalatorBuilding(alloc *geometry.UIDAllocator) (b *building.Building, lowerKey, upperKey building.Key, exitUID geometry.UID, outsideGoalID int) {
	b = building.New(alloc)

	lower := &building.SubRoom{
		Key:     building.Key{RoomID: 1, SubRoomID: 1},
		Polygon: []geometry.Point{{X: -10, Y: -10}, {X: 0, Y: -10}, {X: 0, Y: 0}, {X: -10, Y: 0}},
	}
	up := geometry.Point{X: 5, Y: 10}
	down := geometry.Point{X: 5, Y: 0}
	escalator := &building.SubRoom{
		Key:                building.Key{RoomID: 1, SubRoomID: 2},
		Kind:               building.KindEscalator,
		Polygon:            []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}},
		Up:                 &up,
		Down:               &down,
		EscalatorDirection: building.EscalatorUp,
	}
	upper := &building.SubRoom{
		Key:     building.Key{RoomID: 1, SubRoomID: 3},
		Polygon: []geometry.Point{{X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 20}, {X: 0, Y: 20}},
	}
	room := &building.Room{ID: 1, SubRooms: []*building.SubRoom{lower, escalator, upper}}
	b.AddRoom(room)

	bottomDoor := alloc.Next()
	bd := &building.Door{
		UID: bottomDoor, Kind: building.KindTransition,
		Segment:  geometry.Segment{UID: bottomDoor, P1: geometry.Point{X: 4, Y: 0}, P2: geometry.Point{X: 6, Y: 0}},
		Subrooms: [2]building.Key{lower.Key, escalator.Key},
		State:    building.StateOpen,
	}
	b.AddDoor(bd)
	lower.TransitionUIDs = append(lower.TransitionUIDs, bottomDoor)
	escalator.TransitionUIDs = append(escalator.TransitionUIDs, bottomDoor)

	topDoor := alloc.Next()
	td := &building.Door{
		UID: topDoor, Kind: building.KindTransition,
		Segment:  geometry.Segment{UID: topDoor, P1: geometry.Point{X: 4, Y: 10}, P2: geometry.Point{X: 6, Y: 10}},
		Subrooms: [2]building.Key{escalator.Key, upper.Key},
		State:    building.StateOpen,
	}
	b.AddDoor(td)
	escalator.TransitionUIDs = append(escalator.TransitionUIDs, topDoor)
	upper.TransitionUIDs = append(upper.TransitionUIDs, topDoor)

	exitUID = alloc.Next()
	exit := &building.Door{
		UID: exitUID, Kind: building.KindTransition,
		Segment:   geometry.Segment{UID: exitUID, P1: geometry.Point{X: -10, Y: -5}, P2: geometry.Point{X: -9, Y: -5}},
		Subrooms:  [2]building.Key{lower.Key, building.NoSubroom},
		ToOutside: true, State: building.StateOpen,
	}
	b.AddDoor(exit)
	lower.TransitionUIDs = append(lower.TransitionUIDs, exitUID)

	outsideGoalID = 1
	b.Goals[outsideGoalID] = &building.Goal{ID: outsideGoalID, IsFinal: true, Home: building.NoSubroom, Polygon: []geometry.Point{{X: -20, Y: -5}}}

	return b, lower.Key, upper.Key, exitUID, outsideGoalID
}

func TestBuildInsertsOneWayEscalatorEdge(t *testing.T) {
	alloc := geometry.NewUIDAllocator()
	b, lowerKey, upperKey, exitUID, outsideGoalID := escalatorBuilding(alloc)
	ffc := floorfield.NewCache(b, 0.5, floorfield.Homogeneous)
	dg := router.NewDoorGraph(b, ffc, router.ScopeSubroom)
	require.NoError(t, dg.Build())

	fromLower := &fakeAgent{pos: geometry.Point{X: -5, Y: -5}, subroom: lowerKey, goalID: outsideGoalID, hasGoal: true}
	require.NoError(t, dg.FindExit(fromLower), "the exit is reachable directly, without needing the escalator at all")
	assert.Equal(t, exitUID, fromLower.destDoor)

	fromUpper := &fakeAgent{pos: geometry.Point{X: 5, Y: 15}, subroom: upperKey, goalID: outsideGoalID, hasGoal: true}
	err := dg.FindExit(fromUpper)
	assert.Error(t, err, "the only exit is on the lower landing, reachable from upstairs only by walking the escalator backward, which must be blocked")
}

func TestFindExitDetoursAroundClosedDoor(t *testing.T) {
	alloc := geometry.NewUIDAllocator()
	b, key, d1UID, d2UID := twoRoomBuilding(alloc)
	b.Door(d1UID).State = building.StateClosed

	ffc := floorfield.NewCache(b, 0.5, floorfield.Homogeneous)
	dg := router.NewDoorGraph(b, ffc, router.ScopeSubroom)
	require.NoError(t, dg.Build())

	agent := &fakeAgent{pos: geometry.Point{X: 9, Y: 2.5}, subroom: key, goalID: 1, hasGoal: true}
	require.NoError(t, dg.FindExit(agent))
	assert.Equal(t, d2UID, agent.destDoor)
}
