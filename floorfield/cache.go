package floorfield

import (
	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"github.com/puzpuzpuz/xsync/v3"
)

// destKey makes Destination usable as a map key.
type destKey struct {
	subroom building.Key
	door    geometry.UID
	px, py  float64
}

func keyOf(sr building.Key, dest Destination) destKey {
	return destKey{subroom: sr, door: dest.DoorUID, px: dest.Point.X, py: dest.Point.Y}
}

// Cache owns every built floor field and wall field for the run,
// building them lazily on first request and holding them until ReInit
// drops everything (called whenever the building changes: a door state
// flip, a train overlay, per spec §4.4 "Fields are allocated on first
// request and cached until ReInit"). Reads happen concurrently during
// the per-agent compute phase (spec §5); ReInit only ever runs between
// steps, so an RBMutex — cheap for the many concurrent readers, safe
// against the rare exclusive writer — guards the maps.
type Cache struct {
	building *building.Building
	h        float64
	mode     Mode

	mu     *xsync.RBMutex
	fields map[destKey]*Field
	walls  map[building.Key]*WallField
}

// NewCache returns a cache building fields at grid spacing h under mode.
func NewCache(b *building.Building, h float64, mode Mode) *Cache {
	return &Cache{
		building: b,
		h:        h,
		mode:     mode,
		mu:       xsync.NewRBMutex(),
		fields:   make(map[destKey]*Field),
		walls:    make(map[building.Key]*WallField),
	}
}

// Field returns the cached field for (subroom, destination), building it
// on first request.
func (c *Cache) Field(sr building.Key, dest Destination) *Field {
	k := keyOf(sr, dest)

	token := c.mu.RLock()
	f, ok := c.fields[k]
	c.mu.RUnlock(token)
	if ok {
		return f
	}

	room := c.building.SubRoom(sr)
	if room == nil {
		return nil
	}
	built := Build(c.building, room, dest, c.h, c.mode)

	c.mu.Lock()
	c.fields[k] = built
	c.mu.Unlock()
	return built
}

// WallField returns the cached wall-distance field for a subroom,
// building it on first request.
func (c *Cache) WallField(sr building.Key) *WallField {
	token := c.mu.RLock()
	w, ok := c.walls[sr]
	c.mu.RUnlock(token)
	if ok {
		return w
	}

	room := c.building.SubRoom(sr)
	if room == nil {
		return nil
	}
	built := BuildWallField(c.building, room, c.h)

	c.mu.Lock()
	c.walls[sr] = built
	c.mu.Unlock()
	return built
}

// ReInit drops every cached field. Called whenever the building's
// geometry-affecting state changes: door open/close, train arrival or
// departure, waiting-area open/close.
func (c *Cache) ReInit() {
	c.mu.Lock()
	c.fields = make(map[destKey]*Field)
	c.walls = make(map[building.Key]*WallField)
	c.mu.Unlock()
}
