// Package goal implements the waiting-area triggering policies and the
// goal manager that runs after every location update, per spec §4.7.
package goal

import (
	"math/rand"
	"sort"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"git.fiblab.net/sim/crowddynamics/logutil"
	"github.com/samber/lo"
)

var log = logutil.For("goal")

// Agent is the minimal view of a pedestrian the goal manager needs.
type Agent interface {
	Position() geometry.Point
	FinalGoalID() (int, bool)
	SetFinalGoalID(int)
	IsWaiting() bool
	SetWaiting(bool, float64) // (waiting, start time)
	WaitStartTime() float64
	RNG() *rand.Rand
}

// Manager runs the per-step waiting-area state machine and successor
// assignment of spec §4.7.
type Manager struct {
	b *building.Building
}

// New returns a goal manager over b's waiting areas.
func New(b *building.Building) *Manager {
	return &Manager{b: b}
}

// Step implements spec §4.7's three-part per-step update: count
// occupancy, update each waiting area's trigger state (propagating
// mirrored doors), then assign waiting/released agents. Returns true if
// any waiting area's open/closed state changed (the door graph is then
// stale).
func (m *Manager) Step(now float64, agents []Agent) bool {
	occupancy := m.countOccupancy(agents)
	stale := m.updateTriggers(now, occupancy)
	m.updateAgents(now, agents)
	return stale
}

func (m *Manager) countOccupancy(agents []Agent) map[int]int {
	occupancy := make(map[int]int)
	for id, w := range m.b.WaitingAreas {
		count := 0
		for _, a := range agents {
			if w.Contains(a.Position()) {
				count++
			}
		}
		occupancy[id] = count
	}
	return occupancy
}

func (m *Manager) updateTriggers(now float64, occupancy map[int]int) bool {
	stale := false
	for _, id := range sortedWaitingAreaIDs(m.b) {
		w := m.b.WaitingAreas[id]
		wasOpen := w.Open
		switch w.Trigger {
		case building.TriggerMinMaxTime:
			m.applyMinMaxTime(now, w, occupancy[id])
		case building.TriggerTransitionMirror:
			m.applyTransitionMirror(w)
		case building.TriggerGlobalTimer:
			w.Open = now < w.GlobalReleaseTime
		}
		if w.Open != wasOpen {
			stale = true
		}
	}
	return stale
}

func (m *Manager) applyMinMaxTime(now float64, w *building.WaitingArea, count int) {
	if count >= w.MaxPeds {
		w.Open = false
		w.ResetOpenTimer()
		return
	}
	if !w.Open {
		w.Open = true
	}
	if count >= w.MinPeds {
		if w.OpenSinceUnset() {
			w.MarkOpenedAt(now)
		}
		if now-w.OpenedAt() >= w.WaitingTime {
			w.Open = false
			w.ResetOpenTimer()
		}
	}
}

func (m *Manager) applyTransitionMirror(w *building.WaitingArea) {
	d := m.b.Door(w.MirrorTransitionUID)
	if d == nil {
		return
	}
	w.Open = d.State != building.StateTempClosed
}

// updateAgents implements spec §4.7 step 3: edge-triggered transitions
// into and out of waiting.
func (m *Manager) updateAgents(now float64, agents []Agent) {
	for _, a := range agents {
		gid, ok := a.FinalGoalID()
		if !ok {
			continue
		}
		w, isWaitingArea := m.b.WaitingAreas[gid]
		if !isWaitingArea {
			continue
		}
		inside := w.Contains(a.Position())
		switch {
		case inside && !a.IsWaiting():
			a.SetWaiting(true, now)
		case a.IsWaiting() && (!inside || m.releaseConditionMet(now, w)):
			a.SetWaiting(false, 0)
			a.SetFinalGoalID(sampleSuccessor(w, a.RNG()))
		}
	}
}

func (m *Manager) releaseConditionMet(now float64, w *building.WaitingArea) bool {
	return !w.Open
}

// sampleSuccessor draws a successor goal id from w's probability
// distribution using rng, reproducibly per spec §4.7's "reproducible
// from the per-agent RNG seeded deterministically".
func sampleSuccessor(w *building.WaitingArea, rng *rand.Rand) int {
	ids := lo.Keys(w.Successors)
	sort.Ints(ids)
	r := rng.Float64()
	cum := 0.0
	for _, id := range ids {
		cum += w.Successors[id]
		if r < cum {
			return id
		}
	}
	if len(ids) > 0 {
		return ids[len(ids)-1]
	}
	return 0
}

func sortedWaitingAreaIDs(b *building.Building) []int {
	ids := lo.Keys(b.WaitingAreas)
	sort.Ints(ids)
	return ids
}
