// Package racer holds the per-agent kinematics and reward of a track race.
package racer

import (
	"errors"
	"fmt"
	"math"

	"radarrace/internal/radar"
	"radarrace/internal/track"
)

const (
	Speed           = 13.0
	TurnSpeedFactor = 0.4
	TurnAngle       = 45

	IdleLimit      = 30
	StillLimit     = 10
	StillThreshold = 0.5
	StuckWindowX   = 200
	StuckWindowY   = 110
	StuckLimit     = 60
	MaxTicks       = 1360

	CommandThreshold = 0.5
	CommandSize      = 4
)

var ErrShortOutput = errors.New("controller output too short")

// Cause records which rule retired a racer.
type Cause string

const (
	CauseNone       Cause = ""
	CauseIdle       Cause = "idle"
	CauseDegenerate Cause = "degenerate_move"
	CauseWall       Cause = "wall"
	CauseStill      Cause = "still"
	CauseStuck      Cause = "stuck"
	CauseTimeout    Cause = "timeout"
)

// Command is one tick of motor signals.
type Command struct {
	Forward bool
	Left    bool
	Right   bool
	Brake   bool
}

// DecodeCommand thresholds controller outputs as forward, left, right, brake.
// Values past the fourth are ignored; NaN and infinities read as false.
func DecodeCommand(outputs []float64) (Command, error) {
	if len(outputs) < CommandSize {
		return Command{}, fmt.Errorf("%w: got=%d want>=%d", ErrShortOutput, len(outputs), CommandSize)
	}
	return Command{
		Forward: signal(outputs[0]),
		Left:    signal(outputs[1]),
		Right:   signal(outputs[2]),
		Brake:   signal(outputs[3]),
	}, nil
}

func signal(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v > CommandThreshold
}

// Racer is the mutable state of one agent for one episode.
type Racer struct {
	X, Y    float64
	Heading int
	Color   track.Color

	Alive    bool
	Finished bool
	Cause    Cause

	Distance float64
	Ticks    int
	Turns    int

	// IdleTicks counts consecutive ticks without a requested move.
	IdleTicks int
	// StillTicks counts consecutive moves that displaced less than StillThreshold.
	StillTicks int

	StuckX, StuckY float64
	StuckTicks     int

	LastX, LastY float64
}

func New(x, y float64, color track.Color) *Racer {
	return &Racer{
		X:      x,
		Y:      y,
		Color:  color,
		Alive:  true,
		StuckX: x,
		StuckY: y,
		LastX:  x,
		LastY:  y,
	}
}

// Active reports whether the racer is still simulated.
func (r *Racer) Active() bool {
	return r.Alive && !r.Finished
}

// Observe reads the radar for the current pose.
func (r *Racer) Observe(t *track.Track) radar.Observation {
	return radar.Observe(t, r.X, r.Y, r.Heading, r.Color)
}

// Step advances the racer by one tick. It is a no-op once the racer is
// retired or finished.
func (r *Racer) Step(t *track.Track, cmd Command) {
	if !r.Active() {
		return
	}
	r.Ticks++

	if cmd.Left {
		r.Heading = radar.WrapDegrees(r.Heading - TurnAngle)
		r.Turns++
	}
	if cmd.Right {
		r.Heading = radar.WrapDegrees(r.Heading + TurnAngle)
		r.Turns++
	}

	magnitude := 0.0
	switch {
	case cmd.Forward && !cmd.Brake:
		magnitude = Speed
	case cmd.Left || cmd.Right:
		magnitude = Speed * TurnSpeedFactor
	}

	if magnitude == 0 {
		r.IdleTicks++
		if r.IdleTicks > IdleLimit {
			r.retire(CauseIdle)
			return
		}
	} else {
		r.IdleTicks = 0
		if !r.move(t, magnitude) {
			return
		}
	}

	r.LastX, r.LastY = r.X, r.Y

	if math.Abs(r.X-r.StuckX) < StuckWindowX && math.Abs(r.Y-r.StuckY) < StuckWindowY {
		r.StuckTicks++
		if r.StuckTicks > StuckLimit {
			r.retire(CauseStuck)
			return
		}
	} else {
		r.StuckTicks = 0
		r.StuckX, r.StuckY = r.X, r.Y
	}

	if r.Ticks > MaxTicks {
		r.retire(CauseTimeout)
	}
}

// move projects the racer along its heading. It returns false when the tick
// ended early because the racer was retired or reached its goal.
func (r *Racer) move(t *track.Track, magnitude float64) bool {
	angle := radar.Radians(r.Heading)
	nx := r.X + magnitude*math.Cos(angle)
	ny := r.Y + magnitude*math.Sin(angle)

	// A move that lands in the previous cell is an oscillation that cancelled out.
	if int(nx) == int(r.LastX) && int(ny) == int(r.LastY) {
		r.retire(CauseDegenerate)
		return false
	}

	cx, cy := t.Clamp(nx, ny)
	cell := t.Classify(cx, cy)
	if cell.Obstructs() {
		r.retire(CauseWall)
		return false
	}

	displacement := math.Hypot(cx-r.X, cy-r.Y)
	if displacement < StillThreshold {
		r.StillTicks++
		if r.StillTicks > StillLimit {
			r.retire(CauseStill)
			return false
		}
	} else {
		r.StillTicks = 0
		r.Distance += displacement
		r.X, r.Y = cx, cy
	}

	if cell.IsGoalFor(r.Color) {
		r.Finished = true
		return false
	}
	return true
}

func (r *Racer) retire(cause Cause) {
	r.Alive = false
	r.Cause = cause
}
