package main

import (
	"flag"
	"time"

	"git.fiblab.net/sim/crowddynamics/sim"
	"github.com/sirupsen/logrus"
)

var benchmarkSteps = flag.Int("benchmark.steps", 2000, "the number of simulated steps to run for benchmark")

// runBenchmark drives s for benchmark.steps simulated steps (or until it
// terminates on its own) with logging quieted, and reports wall-clock
// throughput, mirroring the teacher's timed-loop-plus-summary shape but
// over simulated steps rather than independent routing requests: a
// simulation step has no natural unit of cross-step parallelism the way
// N independent routing queries do (spec §5 confines per-step
// parallelism to within a step), so there is no benchmark.cpu knob here.
func runBenchmark(s *sim.Simulation) {
	logrus.SetLevel(logrus.WarnLevel)

	start := time.Now()
	steps := 0
	for steps < *benchmarkSteps && !s.Done() {
		if err := s.Step(); err != nil {
			logrus.Errorf("benchmark step failed at t=%.3f: %v", s.Now(), err)
			break
		}
		steps++
	}
	elapsed := time.Since(start)

	avg := elapsed
	if steps > 0 {
		avg = elapsed / time.Duration(steps)
	}
	logrus.Warnf(
		"benchmark finished\nsteps: %d\ntime: %v\navg per step: %v\nsimulated time reached: %.3f\nagents remaining: %d",
		steps, elapsed, avg, s.Now(), s.AgentCount(),
	)
}
