// Package event implements the time-ordered event/schedule manager of
// spec §4.8: door state changes, train arrivals/departures and
// pedestrian-creation events, consumed at-most-once by ProcessEvents.
package event

import (
	"container/heap"
	"fmt"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"git.fiblab.net/sim/crowddynamics/logutil"
	"git.fiblab.net/sim/crowddynamics/simerr"
)

var log = logutil.For("event")

// PedestrianSpec is an opaque payload for CreatePedestrianEvent. The
// event package never inspects it; it is defined and interpreted by
// whatever Spawner implementation is wired in (the pedestrian package's
// distributor, in practice), keeping this package free of a dependency
// on pedestrian.
type PedestrianSpec any

// Spawner appends one or more agents sampled from spec, called when a
// CreatePedestrianEvent comes due.
type Spawner interface {
	Spawn(now float64, spec PedestrianSpec) error
}

// Event is anything that can be scheduled and applied at a point in
// simulated time. Kind-specific behavior lives in apply.
type Event interface {
	Time() float64
	apply(now float64, b *building.Building, sp Spawner) (stale bool, err error)
}

// base carries the time field common to every event. Insertion-order
// tie-break (spec §5) is tracked separately by the Queue's heap item, not
// here, since it's a property of scheduling, not of the event itself.
type base struct {
	at float64
}

func (e base) Time() float64 { return e.at }

// DoorEvent sets a door's state at a scheduled time.
type DoorEvent struct {
	base
	DoorUID geometry.UID
	State   building.DoorState
}

// NewDoorEvent returns a DoorEvent; seq is assigned by the Queue on Push.
func NewDoorEvent(at float64, doorUID geometry.UID, state building.DoorState) *DoorEvent {
	return &DoorEvent{base: base{at: at}, DoorUID: doorUID, State: state}
}

func (e *DoorEvent) apply(now float64, b *building.Building, _ Spawner) (bool, error) {
	d := b.Door(e.DoorUID)
	if d == nil {
		return false, simerr.New(simerr.KindGeometry, "event", fmt.Sprintf("door:%d", e.DoorUID), "door event references undefined door")
	}
	before := d.State
	d.SetState(e.State, now)
	log.Infof("door %d: %s -> %s at t=%.3f", e.DoorUID, before, e.State, now)
	return before != e.State, nil
}

// TrainArriveEvent splices a train's footprint onto a track, per §4.2.
type TrainArriveEvent struct {
	base
	TrainID   string
	TrackID   int
	Subroom   building.Key
	TrainType *building.TrainType
	Length    float64
}

func NewTrainArriveEvent(at float64, trainID string, trackID int, subroom building.Key, trainType *building.TrainType, length float64) *TrainArriveEvent {
	return &TrainArriveEvent{base: base{at: at}, TrainID: trainID, TrackID: trackID, Subroom: subroom, TrainType: trainType, Length: length}
}

func (e *TrainArriveEvent) apply(_ float64, b *building.Building, _ Spawner) (bool, error) {
	return b.ArriveTrain(e.TrainID, e.TrackID, e.Subroom, e.TrainType, e.Length)
}

// TrainDepartEvent restores the geometry a prior TrainArriveEvent spliced in.
type TrainDepartEvent struct {
	base
	TrainID string
}

func NewTrainDepartEvent(at float64, trainID string) *TrainDepartEvent {
	return &TrainDepartEvent{base: base{at: at}, TrainID: trainID}
}

func (e *TrainDepartEvent) apply(_ float64, b *building.Building, _ Spawner) (bool, error) {
	return b.DepartTrain(e.TrainID)
}

// CreatePedestrianEvent appends one or more agents via a Spawner. Never
// makes the door graph stale by itself.
type CreatePedestrianEvent struct {
	base
	Spec PedestrianSpec
}

func NewCreatePedestrianEvent(at float64, spec PedestrianSpec) *CreatePedestrianEvent {
	return &CreatePedestrianEvent{base: base{at: at}, Spec: spec}
}

func (e *CreatePedestrianEvent) apply(now float64, _ *building.Building, sp Spawner) (bool, error) {
	if sp == nil {
		return false, simerr.New(simerr.KindModel, "event", "create-pedestrian", "no spawner wired for pedestrian-creation events")
	}
	return false, sp.Spawn(now, e.Spec)
}

// heapItem pairs an Event with its insertion sequence number for
// container/heap.
type heapItem struct {
	ev  Event
	seq int64
}

type eventHeap []heapItem

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	ti, tj := h[i].ev.Time(), h[j].ev.Time()
	if ti != tj {
		return ti < tj
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)        { *h = append(*h, x.(heapItem)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is a time-ordered, at-most-once event schedule. Zero value is
// not usable; construct with NewQueue.
type Queue struct {
	h      eventHeap
	nextSeq int64
}

// NewQueue returns an empty event queue.
func NewQueue() *Queue {
	q := &Queue{}
	heap.Init(&q.h)
	return q
}

// Schedule inserts ev, stamping it with the next insertion-order sequence
// number so same-timestamp events are processed in the order scheduled.
func (q *Queue) Schedule(ev Event) {
	heap.Push(&q.h, heapItem{ev: ev, seq: q.nextSeq})
	q.nextSeq++
}

// Len reports how many events remain scheduled.
func (q *Queue) Len() int { return q.h.Len() }

// ProcessEvents consumes and applies every event with Time() <= now, in
// (time, insertion-order) order, per spec §4.8 and §5. Returns true if
// any applied event left the door graph stale.
func (q *Queue) ProcessEvents(now float64, b *building.Building, sp Spawner) (bool, error) {
	stale := false
	for q.h.Len() > 0 && q.h[0].ev.Time() <= now {
		item := heap.Pop(&q.h).(heapItem)
		s, err := item.ev.apply(now, b, sp)
		if err != nil {
			log.Warnf("event at t=%.3f failed to apply: %v", item.ev.Time(), err)
			continue
		}
		stale = stale || s
	}
	return stale, nil
}
