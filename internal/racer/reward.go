package racer

import "math"

const (
	FinishBonus      = 50000.0
	FinishDistanceW  = 10.0
	FinishTickW      = 100.0
	FailurePenalty   = -100.0
	DistanceW        = 1.0
	TickW            = 0.05
	TurnW            = 0.3
	failureIdleScale = 0.2
	activeIdleScale  = 1.0
)

// Reward scores the racer from its current state. The failure branch divides
// the idle streak by 0.2, so any idle tick zeroes the turn term.
func (r *Racer) Reward() float64 {
	ticks := float64(r.Ticks)
	if r.Finished {
		return FinishBonus + FinishDistanceW*r.Distance + FinishTickW*ticks
	}

	if !r.Alive {
		penalty := math.Max(0, 1-float64(r.IdleTicks)/failureIdleScale)
		return FailurePenalty + DistanceW*r.Distance + TickW*ticks + TurnW*float64(r.Turns)*penalty
	}

	penalty := math.Max(0, 1-float64(r.IdleTicks)/activeIdleScale)
	return DistanceW*r.Distance + TickW*ticks + TurnW*float64(r.Turns)*penalty
}
