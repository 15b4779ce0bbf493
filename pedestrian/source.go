package pedestrian

import (
	"math/rand"

	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/event"
)

// Source produces additional agents at a configured rate, sampling from
// the same SourceSpec/AgentsParameters machinery as the initial
// distributor, until either its own cap or the simulation's max time is
// reached, per spec §4.10.
type Source struct {
	Spec       SourceSpec
	Rate       float64 // agents/second
	MaxAgents  int      // 0 = unlimited
	spawned    int
	carryover  float64 // fractional agents accumulated between ticks
}

// NewSource returns a Source that emits at rate agents/second, capped at
// maxAgents (0 for unlimited).
func NewSource(spec SourceSpec, rate float64, maxAgents int) *Source {
	return &Source{Spec: spec, Rate: rate, MaxAgents: maxAgents}
}

// Exhausted reports whether the source has reached its own cap.
func (s *Source) Exhausted() bool {
	return s.MaxAgents > 0 && s.spawned >= s.MaxAgents
}

// Tick advances the source by dt seconds, returning any newly created
// agents. Fractional-agent accumulation means a rate of 0.5/s still
// produces exactly one agent every two seconds rather than rounding
// every tick down to zero.
func (s *Source) Tick(b *building.Building, dt float64, rng *rand.Rand, nextID func() int64) ([]*Pedestrian, error) {
	if s.Exhausted() {
		return nil, nil
	}
	s.carryover += s.Rate * dt
	n := int(s.carryover)
	if n <= 0 {
		return nil, nil
	}
	if s.MaxAgents > 0 && s.spawned+n > s.MaxAgents {
		n = s.MaxAgents - s.spawned
	}
	s.carryover -= float64(n)

	spec := s.Spec
	spec.Count = n
	peds, err := Distribute(b, spec, rng, nextID)
	if err != nil {
		return nil, err
	}
	s.spawned += len(peds)
	return peds, nil
}

// SourceSpawner adapts a set of Sources to the event.Spawner interface,
// so a CreatePedestrianEvent can trigger an immediate one-shot draw (as
// opposed to a Source's own rate-based ticking, which the simulation
// loop drives directly).
type SourceSpawner struct {
	B      *building.Building
	RNG    *rand.Rand
	NextID func() int64
	Sink   func([]*Pedestrian)
}

// Spawn implements event.Spawner. spec must be a SourceSpec.
func (s *SourceSpawner) Spawn(_ float64, spec event.PedestrianSpec) error {
	ss, ok := spec.(SourceSpec)
	if !ok {
		return nil
	}
	peds, err := Distribute(s.B, ss, s.RNG, s.NextID)
	if err != nil {
		return err
	}
	if s.Sink != nil {
		s.Sink(peds)
	}
	return nil
}
