package building

import (
	"fmt"
	"sync/atomic"

	"git.fiblab.net/sim/crowddynamics/geometry"
	"git.fiblab.net/sim/crowddynamics/logutil"
	"git.fiblab.net/sim/crowddynamics/simerr"
	"github.com/samber/lo"
)

var log = logutil.For("building")

// Building owns rooms, doors (crossings and transitions), goals and
// trains. It is the single arena for these entities: everything else
// refers to them by Key or geometry.UID rather than by pointer, per the
// design notes' cyclic-ownership fix.
type Building struct {
	Rooms []*Room
	roomIndex map[int]int // Room.ID -> index into Rooms

	Doors map[geometry.UID]*Door
	Goals map[int]*Goal
	WaitingAreas map[int]*WaitingArea

	Tracks     map[int]*Track
	TrainTypes map[string]*TrainType
	trains     map[string]*activeTrain // keyed by train instance id

	UIDs *geometry.UIDAllocator
}

// New returns an empty Building ready to be populated by a loader.
func New(alloc *geometry.UIDAllocator) *Building {
	return &Building{
		roomIndex:    make(map[int]int),
		Doors:        make(map[geometry.UID]*Door),
		Goals:        make(map[int]*Goal),
		WaitingAreas: make(map[int]*WaitingArea),
		Tracks:       make(map[int]*Track),
		TrainTypes:   make(map[string]*TrainType),
		trains:       make(map[string]*activeTrain),
		UIDs:         alloc,
	}
}

// AddRoom registers a room and indexes it by id.
func (b *Building) AddRoom(r *Room) {
	b.roomIndex[r.ID] = len(b.Rooms)
	b.Rooms = append(b.Rooms, r)
}

// RoomByID returns the room with the given id, or nil.
func (b *Building) RoomByID(id int) *Room {
	if idx, ok := b.roomIndex[id]; ok {
		return b.Rooms[idx]
	}
	return nil
}

// SubRoom returns the subroom identified by k, or nil.
func (b *Building) SubRoom(k Key) *SubRoom {
	r := b.RoomByID(k.RoomID)
	if r == nil {
		return nil
	}
	for _, sr := range r.SubRooms {
		if sr.Key.SubRoomID == k.SubRoomID {
			return sr
		}
	}
	return nil
}

// RoomAt returns the (room, subroom) key whose polygon contains pt, and
// false if pt falls outside every subroom.
func (b *Building) RoomAt(pt geometry.Point) (Key, bool) {
	for _, r := range b.Rooms {
		for _, sr := range r.SubRooms {
			if sr.Contains(pt) {
				return sr.Key, true
			}
		}
	}
	return Key{}, false
}

// Door looks up a door by UID in O(1).
func (b *Building) Door(uid geometry.UID) *Door {
	return b.Doors[uid]
}

// AddDoor registers a door, keyed by its UID.
func (b *Building) AddDoor(d *Door) {
	b.Doors[d.UID] = d
}

// AllDoors returns every door (crossing or transition) in a stable,
// UID-sorted order, for reproducible iteration when building the router.
func (b *Building) AllDoors() []*Door {
	doors := lo.Values(b.Doors)
	sortDoorsByUID(doors)
	return doors
}

func sortDoorsByUID(doors []*Door) {
	for i := 1; i < len(doors); i++ {
		for j := i; j > 0 && doors[j].UID < doors[j-1].UID; j-- {
			doors[j], doors[j-1] = doors[j-1], doors[j]
		}
	}
}

// BoundingBox returns the outer boundary rectangle of the whole building.
func (b *Building) BoundingBox() (minP, maxP geometry.Point) {
	first := true
	for _, r := range b.Rooms {
		for _, sr := range r.SubRooms {
			lo, hi := geometry.BoundingBox(sr.Polygon)
			if first {
				minP, maxP = lo, hi
				first = false
				continue
			}
			if lo.X < minP.X {
				minP.X = lo.X
			}
			if lo.Y < minP.Y {
				minP.Y = lo.Y
			}
			if hi.X > maxP.X {
				maxP.X = hi.X
			}
			if hi.Y > maxP.Y {
				maxP.Y = hi.Y
			}
		}
	}
	return
}

// RecordPassing increments a door's usage counter and advances its
// last-passing timestamp; neither ever decreases. The counter is updated
// atomically; the timestamp is a plain read-compare-write, so only the
// counter is safe under concurrent calls without a shared lock.
func (d *Door) RecordPassing(t float64) {
	atomic.AddInt64(&d.usageCount, 1)
	if t > d.lastPassingTime {
		d.lastPassingTime = t
	}
}

// UsageCount returns the number of times an agent has been recorded
// passing through this door.
func (d *Door) UsageCount() int64 {
	return atomic.LoadInt64(&d.usageCount)
}

// LastPassingTime returns the simulated time of the most recent recorded
// passing, or 0 if none yet.
func (d *Door) LastPassingTime() float64 {
	return d.lastPassingTime
}

// SetState transitions a door's state. TempClose additionally records the
// time at which it becomes eligible to reopen, per Outflow.MinReopenInterval.
func (d *Door) SetState(state DoorState, now float64) {
	d.State = state
	if state == StateTempClosed {
		d.tempCloseUntil = now + d.Outflow.MinReopenInterval
	}
}

// EligibleToReopen reports whether a temp-closed door's minimum closed
// interval has elapsed.
func (d *Door) EligibleToReopen(now float64) bool {
	return d.State == StateTempClosed && now >= d.tempCloseUntil
}

// ValidateInteriorSeeds checks that every subroom has a usable interior
// seed point, per spec §7 ("subroom without an interior seed (too small)").
func (b *Building) ValidateInteriorSeeds() error {
	for _, r := range b.Rooms {
		for _, sr := range r.SubRooms {
			if _, err := b.InsidePoint(sr); err != nil {
				return err
			}
		}
	}
	return nil
}

// InsidePoint returns (and caches) a known-interior seed point for the
// subroom: the centre of one of its doors, offset inward by a quarter of
// the door's inward normal, choosing whichever offset direction actually
// lands inside the subroom. Falls back to the polygon centroid if the
// subroom has no doors.
func (b *Building) InsidePoint(sr *SubRoom) (geometry.Point, error) {
	if sr.insidePoint != nil {
		return *sr.insidePoint, nil
	}
	uids := append(append([]geometry.UID{}, sr.TransitionUIDs...), sr.CrossingUIDs...)
	for _, uid := range uids {
		d := b.Door(uid)
		if d == nil {
			continue
		}
		center := d.Segment.Center()
		normal := d.Segment.Normal()
		quarter := d.Segment.Length() / 4
		for _, sign := range []float64{1, -1} {
			candidate := center.Add(normal.Scale(quarter * sign))
			if sr.Contains(candidate) {
				sr.insidePoint = &candidate
				return candidate, nil
			}
		}
	}
	if len(sr.Polygon) > 0 {
		cx, cy := 0.0, 0.0
		for _, p := range sr.Polygon {
			cx += p.X
			cy += p.Y
		}
		n := float64(len(sr.Polygon))
		candidate := geometry.Point{X: cx / n, Y: cy / n}
		if sr.Contains(candidate) {
			sr.insidePoint = &candidate
			return candidate, nil
		}
	}
	return geometry.Point{}, simerr.New(simerr.KindGeometry, "building",
		fmt.Sprintf("subroom:%d/%d", sr.Key.RoomID, sr.Key.SubRoomID),
		"subroom has no usable interior seed (too small or no doors)")
}
