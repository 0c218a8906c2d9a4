package scape

import "context"

type Fitness float64

type Trace map[string]any

type Agent interface {
	ID() string
}

// Controller maps an observation vector to motor outputs once per tick.
type Controller interface {
	Evaluate(ctx context.Context, observation []float64) ([]float64, error)
}

// ControllerFunc adapts a function to Controller.
type ControllerFunc func(ctx context.Context, observation []float64) ([]float64, error)

func (f ControllerFunc) Evaluate(ctx context.Context, observation []float64) ([]float64, error) {
	return f(ctx, observation)
}

// ControlledAgent is an agent that drives itself.
type ControlledAgent interface {
	Agent
	Controller
}

// Scape evaluates one agent in isolation.
type Scape interface {
	Name() string
	Evaluate(ctx context.Context, agent Agent) (Fitness, Trace, error)
}

// PopulationScape evaluates a whole generation in one shared episode and
// returns one result per entrant, in entrant order.
type PopulationScape interface {
	Name() string
	RunEpisode(ctx context.Context, ec *EpisodeContext, entrants []Entrant) ([]Result, error)
}
