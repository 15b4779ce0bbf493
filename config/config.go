// Package config holds the run configuration spec.md's ini file would
// otherwise declare (project root, geometry/event/schedule/train/goal
// file paths, routing mode, fps, T_max), and the Loader plug point that
// turns those paths into the in-memory model the kernel actually runs
// against. Per spec §1/§6, parsing any particular file format (XML, in
// the original) is an external collaborator; this package defines the
// interface and ships one minimal JSON-backed implementation so the
// binary is runnable end to end.
package config

import (
	"git.fiblab.net/sim/crowddynamics/building"
	"git.fiblab.net/sim/crowddynamics/event"
	"git.fiblab.net/sim/crowddynamics/geometry"
	"git.fiblab.net/sim/crowddynamics/pedestrian"
	"git.fiblab.net/sim/crowddynamics/router"
)

// Config is the run configuration, populated from command-line flags in
// main.go exactly as the teacher's main.go does.
type Config struct {
	ProjectRoot    string
	GeometryFile   string
	EventFile      string
	ScheduleFile   string
	TrainFile      string
	GoalFile       string
	PopulationFile string

	// WithinSubroom mirrors spec §4.5's routing-scope flag: true
	// restricts FindExit's candidate doors to the agent's subroom,
	// false widens it to the whole room.
	WithinSubroom bool

	FPS    float64
	TMax   float64
	DT     float64
	Seed   int64
}

// RoutingScope translates the config flag into a router.Scope.
func (c Config) RoutingScope() router.Scope {
	if c.WithinSubroom {
		return router.ScopeSubroom
	}
	return router.ScopeRoom
}

// Loaded is everything a Loader must produce: the finalized building
// geometry, the initial event schedule, and the initial population
// (already distributed) plus any configured ongoing sources.
type Loaded struct {
	Building    *building.Building
	UIDs        *geometry.UIDAllocator
	Events      *event.Queue
	Population  []*pedestrian.Pedestrian
	Sources     []*pedestrian.Source
	FinalGoalID map[int]bool // ids of goals that terminate an agent's journey
}

// Loader turns a Config into a Loaded run, per spec §6's external
// geometry/config/event/schedule/train/goal file interfaces. XML parsing
// of those formats is explicitly out of scope for the core (spec §1); a
// Loader implementation owns that translation.
type Loader interface {
	Load(cfg Config) (*Loaded, error)
}
