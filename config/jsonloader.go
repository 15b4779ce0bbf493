package config

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/event"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"git.fiblab.net/sim/crowddynamics/pedestrian"
	"git.fiblab.net/sim/crowddynamics/simerr"
)

// JSONLoader is the default, minimal Loader: it reads the building,
// events and population from JSON files at the paths named in Config,
// rather than the XML formats spec §6 describes. It exists so the
// binary is runnable end to end without an XML stack; a production
// deployment supplies its own Loader.
type JSONLoader struct{}

type jsonPoint struct {
	X float64 `json:"X"`
	Y float64 `json:"Y"`
}

func (p jsonPoint) toPoint() geometry.Point { return geometry.Point{X: p.X, Y: p.Y} }

type jsonWall struct {
	P1   jsonPoint `json:"p1"`
	P2   jsonPoint `json:"p2"`
	Type string    `json:"type"`
}

type jsonObstacle struct {
	ID      int        `json:"id"`
	Caption string     `json:"caption"`
	Height  float64    `json:"height"`
	Walls   []jsonWall `json:"walls"`
	Polygon []jsonPoint `json:"polygon"`
}

type jsonDoor struct {
	ID        int64     `json:"id"`
	Caption   string    `json:"caption"`
	Kind      string    `json:"kind"` // "crossing" | "transition"
	P1        jsonPoint `json:"p1"`
	P2        jsonPoint `json:"p2"`
	Room1     int       `json:"room1"`
	SubRoom1  int       `json:"sub_room1"`
	Room2     int       `json:"room2"`
	SubRoom2  int       `json:"sub_room2"`
	ToOutside bool      `json:"to_outside"`
}

// jsonStairRef is a stair/escalator reference point. Field tags are px/py
// (not the X/Y used by jsonPoint elsewhere in this file) to match the
// source schema's naming for these two fields specifically.
type jsonStairRef struct {
	PX float64 `json:"px"`
	PY float64 `json:"py"`
}

func (r jsonStairRef) toPoint() geometry.Point { return geometry.Point{X: r.PX, Y: r.PY} }

type jsonSubRoom struct {
	ID        int            `json:"id"`
	Kind      string         `json:"kind"` // "normal" | "stair" | "escalator"
	A         float64        `json:"a"`
	B         float64        `json:"b"`
	C         float64        `json:"c"`
	Walls     []jsonWall     `json:"walls"`
	Obstacles []jsonObstacle `json:"obstacles"`
	Polygon   []jsonPoint    `json:"polygon"`

	// Stair/escalator only.
	Up                 *jsonStairRef `json:"up"`
	Down               *jsonStairRef `json:"down"`
	EscalatorSpeed     float64       `json:"escalator_speed"`
	EscalatorDirection string        `json:"escalator_direction"` // "up" | "down"
}

type jsonRoom struct {
	ID       int           `json:"id"`
	Caption  string        `json:"caption"`
	ZPos     float64       `json:"z_pos"`
	SubRooms []jsonSubRoom `json:"sub_rooms"`
}

type jsonGoal struct {
	ID      int         `json:"id"`
	Caption string      `json:"caption"`
	IsFinal bool        `json:"is_final"`
	RoomID  int         `json:"room_id"` // -1 for outside
	SubRoom int         `json:"sub_room_id"`
	Polygon []jsonPoint `json:"polygon"`
}

// jsonWaitingArea embeds jsonGoal so waiting-area JSON records share the
// base goal fields (id, caption, room/subroom, polygon) without
// repeating them.
type jsonWaitingArea struct {
	jsonGoal
	Trigger       string             `json:"trigger"`
	MinPeds       int                `json:"min_peds"`
	MaxPeds       int                `json:"max_peds"`
	WaitingTime   float64            `json:"waiting_time"`
	MirrorDoorID  int64              `json:"mirror_door_id"`
	GlobalRelease float64            `json:"global_release"`
	Successors    map[string]float64 `json:"successors"`
}

type jsonGeometry struct {
	Rooms        []jsonRoom        `json:"rooms"`
	Doors        []jsonDoor        `json:"doors"`
	Goals        []jsonGoal        `json:"goals"`
	WaitingAreas []jsonWaitingArea `json:"waiting_areas"`
}

type jsonDoorEvent struct {
	Time  float64 `json:"time"`
	Door  int64   `json:"door"`
	State string  `json:"state"`
}

type jsonPopulationSpec struct {
	RoomID      int     `json:"room_id"`
	SubRoomID   int     `json:"sub_room_id"` // -1 for room-wide proportional allocation
	Count       int     `json:"count"`
	GroupID     int     `json:"group_id"`
	FinalGoalID int     `json:"final_goal_id"`
	V0          float64 `json:"v0"`
	Tau         float64 `json:"tau"`
}

type jsonFile struct {
	Geometry   jsonGeometry         `json:"geometry"`
	Events     []jsonDoorEvent      `json:"events"`
	Population []jsonPopulationSpec `json:"population"`
}

// Load reads cfg.GeometryFile (a single JSON document combining
// geometry, events and population, for simplicity) and builds the
// in-memory model.
func (JSONLoader) Load(cfg Config) (*Loaded, error) {
	raw, err := os.ReadFile(cfg.GeometryFile)
	if err != nil {
		return nil, simerr.Wrap(simerr.KindIO, "config", cfg.GeometryFile, "read geometry file", err)
	}
	var doc jsonFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, simerr.Wrap(simerr.KindParse, "config", cfg.GeometryFile, "unmarshal geometry file", err)
	}

	alloc := geometry.NewUIDAllocator()
	b := building.New(alloc)

	for _, jr := range doc.Geometry.Rooms {
		room := &building.Room{ID: jr.ID, Caption: jr.Caption, ZPos: jr.ZPos}
		for _, js := range jr.SubRooms {
			sr := &building.SubRoom{
				Key:                building.Key{RoomID: jr.ID, SubRoomID: js.ID},
				Kind:               parseSubRoomKind(js.Kind),
				A:                  js.A,
				B:                  js.B,
				C:                  js.C,
				Polygon:            toPoints(js.Polygon),
				EscalatorSpeed:     js.EscalatorSpeed,
				EscalatorDirection: parseEscalatorDirection(js.EscalatorDirection),
			}
			if js.Up != nil {
				p := js.Up.toPoint()
				sr.Up = &p
			}
			if js.Down != nil {
				p := js.Down.toPoint()
				sr.Down = &p
			}
			for _, w := range js.Walls {
				sr.Walls = append(sr.Walls, toWall(alloc, w))
			}
			for _, o := range js.Obstacles {
				obs := building.Obstacle{ID: o.ID, Caption: o.Caption, Height: o.Height, Polygon: toPoints(o.Polygon)}
				for _, w := range o.Walls {
					obs.Walls = append(obs.Walls, toWall(alloc, w))
				}
				sr.Obstacles = append(sr.Obstacles, obs)
			}
			room.SubRooms = append(room.SubRooms, sr)
		}
		b.AddRoom(room)
	}

	for _, jd := range doc.Geometry.Doors {
		kind := building.KindCrossing
		if jd.Kind == "transition" {
			kind = building.KindTransition
		}
		uid := geometry.UID(jd.ID)
		door := &building.Door{
			UID:     uid,
			Caption: jd.Caption,
			Kind:    kind,
			Segment: geometry.Segment{UID: uid, P1: jd.P1.toPoint(), P2: jd.P2.toPoint()},
			Subrooms: [2]building.Key{
				subroomKeyOrNone(jd.Room1, jd.SubRoom1),
				subroomKeyOrNone(jd.Room2, jd.SubRoom2),
			},
			ToOutside: jd.ToOutside,
			State:     building.StateOpen,
		}
		b.AddDoor(door)
		for _, k := range door.Subrooms {
			if k == building.NoSubroom {
				continue
			}
			sr := b.SubRoom(k)
			if sr == nil {
				continue
			}
			if kind == building.KindTransition {
				sr.TransitionUIDs = append(sr.TransitionUIDs, uid)
			} else {
				sr.CrossingUIDs = append(sr.CrossingUIDs, uid)
			}
		}
	}

	for _, jg := range doc.Geometry.Goals {
		home := building.NoSubroom
		if jg.RoomID >= 0 {
			home = building.Key{RoomID: jg.RoomID, SubRoomID: jg.SubRoom}
		}
		b.Goals[jg.ID] = &building.Goal{ID: jg.ID, Caption: jg.Caption, IsFinal: jg.IsFinal, Home: home, Polygon: toPoints(jg.Polygon)}
	}

	for _, jw := range doc.Geometry.WaitingAreas {
		w := building.NewWaitingArea(jw.ID, parseTrigger(jw.Trigger))
		w.Caption = jw.Caption
		w.IsFinal = jw.IsFinal
		w.Polygon = toPoints(jw.Polygon)
		if jw.RoomID >= 0 {
			w.Home = building.Key{RoomID: jw.RoomID, SubRoomID: jw.SubRoom}
		} else {
			w.Home = building.NoSubroom
		}
		w.MinPeds = jw.MinPeds
		w.MaxPeds = jw.MaxPeds
		w.WaitingTime = jw.WaitingTime
		w.MirrorTransitionUID = geometry.UID(jw.MirrorDoorID)
		w.GlobalReleaseTime = jw.GlobalRelease
		w.Successors = make(map[int]float64, len(jw.Successors))
		for k, v := range jw.Successors {
			var goalID int
			if _, err := fmt.Sscanf(k, "%d", &goalID); err != nil {
				return nil, simerr.Wrap(simerr.KindParse, "config", "waiting-area", "successor goal id", err)
			}
			w.Successors[goalID] = v
		}
		b.WaitingAreas[jw.ID] = w
	}

	eq := event.NewQueue()
	for _, je := range doc.Events {
		eq.Schedule(event.NewDoorEvent(je.Time, geometry.UID(je.Door), parseDoorState(je.State)))
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	var nextAgentID int64
	var population []*pedestrian.Pedestrian
	for _, jp := range doc.Population {
		spec := pedestrian.SourceSpec{
			RoomID: jp.RoomID, SubRoomID: jp.SubRoomID, Count: jp.Count,
			FinalGoalID: jp.FinalGoalID,
			Params: pedestrian.AgentsParameters{
				GroupID: jp.GroupID,
				V0:      pedestrian.Constant(jp.V0),
				Tau:     pedestrian.Constant(jp.Tau),
			},
		}
		peds, err := pedestrian.Distribute(b, spec, rng, func() int64 { nextAgentID++; return nextAgentID })
		if err != nil {
			return nil, err
		}
		population = append(population, peds...)
	}

	finalGoals := make(map[int]bool)
	for id, g := range b.Goals {
		if g.IsFinal {
			finalGoals[id] = true
		}
	}

	return &Loaded{
		Building:    b,
		UIDs:        alloc,
		Events:      eq,
		Population:  population,
		FinalGoalID: finalGoals,
	}, nil
}

func toPoints(pts []jsonPoint) []geometry.Point {
	out := make([]geometry.Point, len(pts))
	for i, p := range pts {
		out[i] = p.toPoint()
	}
	return out
}

func toWall(alloc *geometry.UIDAllocator, w jsonWall) building.Wall {
	t := building.WallTypeWall
	if w.Type == "track" {
		t = building.WallTypeTrack
	}
	return building.Wall{Segment: geometry.NewSegment(alloc, w.P1.toPoint(), w.P2.toPoint()), Type: t}
}

func subroomKeyOrNone(room, sub int) building.Key {
	if room < 0 {
		return building.NoSubroom
	}
	return building.Key{RoomID: room, SubRoomID: sub}
}

func parseSubRoomKind(k string) building.SubRoomKind {
	switch k {
	case "stair":
		return building.KindStair
	case "escalator":
		return building.KindEscalator
	default:
		return building.KindNormal
	}
}

func parseEscalatorDirection(s string) building.EscalatorDirection {
	if s == "down" {
		return building.EscalatorDown
	}
	return building.EscalatorUp
}

func parseDoorState(s string) building.DoorState {
	switch s {
	case "closed":
		return building.StateClosed
	case "temp_closed":
		return building.StateTempClosed
	default:
		return building.StateOpen
	}
}

func parseTrigger(s string) building.WaitingTrigger {
	switch s {
	case "transition_mirror":
		return building.TriggerTransitionMirror
	case "global_timer":
		return building.TriggerGlobalTimer
	default:
		return building.TriggerMinMaxTime
	}
}
