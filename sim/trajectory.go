package sim

import (
	"fmt"
	"io"

	"git.fiblab.net/sim/crowddynamics/pedestrian"
)

// Frame is one trajectory-file record: every agent's position at a given
// simulated time, per spec §6's "streaming binary or text record, header
// followed by one frame per emit interval, each frame a sequence of
// (agent_id, x, y, z, [optional fields])".
type Frame struct {
	Time  float64
	Peds  []*pedestrian.Pedestrian
}

// TrajectoryWriter is the external collaborator that persists frames;
// the core only calls WriteFrame at fixed simulated-time intervals and
// never inspects what the implementation does with the data (spec §1's
// "trajectory file writing" is explicitly out of core scope).
type TrajectoryWriter interface {
	WriteHeader() error
	WriteFrame(f Frame) error
	Close() error
}

// CSVTrajectoryWriter is the minimal reference TrajectoryWriter: one CSV
// line per (frame, agent).
type CSVTrajectoryWriter struct {
	w io.Writer
}

// NewCSVTrajectoryWriter wraps w as a TrajectoryWriter.
func NewCSVTrajectoryWriter(w io.Writer) *CSVTrajectoryWriter {
	return &CSVTrajectoryWriter{w: w}
}

func (c *CSVTrajectoryWriter) WriteHeader() error {
	_, err := fmt.Fprintln(c.w, "time,agent_id,x,y")
	return err
}

func (c *CSVTrajectoryWriter) WriteFrame(f Frame) error {
	for _, p := range f.Peds {
		pos := p.Position()
		if _, err := fmt.Fprintf(c.w, "%.3f,%d,%.4f,%.4f\n", f.Time, p.ID(), pos.X, pos.Y); err != nil {
			return err
		}
	}
	return nil
}

func (c *CSVTrajectoryWriter) Close() error {
	if closer, ok := c.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// NullTrajectoryWriter discards every frame, for benchmark runs that
// don't want I/O on the step-boundary critical path.
type NullTrajectoryWriter struct{}

func (NullTrajectoryWriter) WriteHeader() error      { return nil }
func (NullTrajectoryWriter) WriteFrame(f Frame) error { return nil }
func (NullTrajectoryWriter) Close() error            { return nil }
