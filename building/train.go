package building

import (
	"fmt"

	"git.fiblab.net/sim/crowddynamics/geometry"
	"git.fiblab.net/sim/crowddynamics/simerr"
)

// activeTrain tracks what a train arrival spliced into the geometry so a
// later departure can restore it bit-exactly, per the round-trip law in
// spec §8.
type activeTrain struct {
	trackID int
	subroom Key
	// removedWalls are the original track wall segments the train's
	// footprint displaced, restored verbatim on departure.
	removedWalls []Wall
	// addedDoorUIDs are the transitions created for the train's own
	// doors, removed on departure.
	addedDoorUIDs []geometry.UID
	// addedWallCount is the number of train body walls appended to the
	// subroom on arrival, removed on departure.
	addedWallCount int
}

// ArriveTrain splices a train's footprint onto the track: it removes the
// wall segments the train's body spans, adds the train's own boundary
// walls, and opens one transition per door offset in trainType, keyed by
// trainID. Returns true (door graph is now stale) on success.
func (b *Building) ArriveTrain(trainID string, trackID int, subroom Key, trainType *TrainType, length float64) (bool, error) {
	track, ok := b.Tracks[trackID]
	if !ok {
		return false, simerr.New(simerr.KindParse, "building", fmt.Sprintf("track:%d", trackID), "train references undefined track")
	}
	sr := b.SubRoom(subroom)
	if sr == nil {
		return false, simerr.New(simerr.KindParse, "building", fmt.Sprintf("subroom:%d/%d", subroom.RoomID, subroom.SubRoomID), "train references undefined subroom")
	}
	if _, exists := b.trains[trainID]; exists {
		return false, simerr.New(simerr.KindGeometry, "building", trainID, "train already arrived")
	}

	chain := trackWallChain(track, 0, length)
	removed := spliceOutWalls(sr, chain)

	// Boundary wall of the train body: one segment along the track from
	// the train's front to its back, spanning the door openings as well
	// (no end caps are added).
	front := track.StartPoint
	dir := trackDirection(track)
	back := front.Add(dir.Scale(length))
	addedWalls := []Wall{
		{Segment: geometry.Segment{P1: front, P2: back}, Type: WallTypeTrack},
	}
	sr.Walls = append(sr.Walls, addedWalls...)

	var addedDoors []geometry.UID
	for i, doorSpec := range trainType.Doors {
		center := front.Add(dir.Scale(doorSpec.Offset))
		half := dir.Scale(doorSpec.Width / 2)
		uid := b.UIDs.Next()
		seg := geometry.Segment{UID: uid, P1: center.Sub(half), P2: center.Add(half)}
		door := &Door{
			UID:      uid,
			Caption:  fmt.Sprintf("%s-door-%d", trainID, i),
			Kind:     KindTransition,
			Segment:  seg,
			Subrooms: [2]Key{subroom, NoSubroom},
			State:    StateOpen,
		}
		b.AddDoor(door)
		sr.TransitionUIDs = append(sr.TransitionUIDs, uid)
		addedDoors = append(addedDoors, uid)
	}

	b.trains[trainID] = &activeTrain{
		trackID:        trackID,
		subroom:        subroom,
		removedWalls:   removed,
		addedDoorUIDs:  addedDoors,
		addedWallCount: len(addedWalls),
	}
	log.Infof("train %s arrived on track %d, %d doors opened", trainID, trackID, len(addedDoors))
	return true, nil
}

// DepartTrain restores the wall segments and removes the train's doors,
// marking the door graph stale again.
func (b *Building) DepartTrain(trainID string) (bool, error) {
	at, ok := b.trains[trainID]
	if !ok {
		return false, simerr.New(simerr.KindGeometry, "building", trainID, "departing train never arrived")
	}
	sr := b.SubRoom(at.subroom)
	if sr == nil {
		return false, simerr.New(simerr.KindGeometry, "building", trainID, "train's subroom no longer exists")
	}
	// Drop the added boundary walls (the last at.addedWallCount entries
	// appended in ArriveTrain).
	if n := len(sr.Walls) - at.addedWallCount; n >= 0 {
		sr.Walls = sr.Walls[:n]
	}
	sr.Walls = append(sr.Walls, at.removedWalls...)

	for _, uid := range at.addedDoorUIDs {
		delete(b.Doors, uid)
		sr.TransitionUIDs = removeUID(sr.TransitionUIDs, uid)
	}
	delete(b.trains, trainID)
	log.Infof("train %s departed from track %d, geometry restored", trainID, at.trackID)
	return true, nil
}

func removeUID(uids []geometry.UID, target geometry.UID) []geometry.UID {
	out := uids[:0]
	for _, u := range uids {
		if u != target {
			out = append(out, u)
		}
	}
	return out
}

func trackDirection(t *Track) geometry.Point {
	if len(t.Walls) == 0 {
		return geometry.Point{X: 1, Y: 0}
	}
	return t.Walls[0].Segment.Vector().Normalized()
}

// trackWallChain returns the subset of the track's wall chain spanned by
// [startOffset, startOffset+length] along the track, expressed as the
// original Wall values (so spliceOutWalls can remove exactly those).
func trackWallChain(t *Track, startOffset, length float64) []Wall {
	var chain []Wall
	traveled := 0.0
	for _, w := range t.Walls {
		segLen := w.Segment.Length()
		if traveled+segLen >= startOffset && traveled <= startOffset+length {
			chain = append(chain, w)
		}
		traveled += segLen
		if traveled > startOffset+length {
			break
		}
	}
	return chain
}

// spliceOutWalls removes the given walls from the subroom's wall list and
// returns the ones actually removed, for later restoration.
func spliceOutWalls(sr *SubRoom, chain []Wall) []Wall {
	var removed []Wall
	remaining := sr.Walls[:0]
	chainSet := make(map[geometry.UID]bool, len(chain))
	for _, w := range chain {
		chainSet[w.Segment.UID] = true
	}
	for _, w := range sr.Walls {
		if chainSet[w.Segment.UID] {
			removed = append(removed, w)
			continue
		}
		remaining = append(remaining, w)
	}
	sr.Walls = remaining
	return removed
}
