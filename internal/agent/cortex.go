package agent

import (
	"context"
	"fmt"

	"radarrace/internal/model"
	"radarrace/internal/nn"
)

// Cortex drives one racer with a compiled genome. It is not safe for
// concurrent use; each racer gets its own cortex.
type Cortex struct {
	id      string
	genome  model.Genome
	network *nn.Network
}

func NewCortex(id string, genome model.Genome) (*Cortex, error) {
	if id == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if len(genome.SensorIDs) == 0 {
		return nil, fmt.Errorf("input neuron ids are required")
	}
	if len(genome.ActuatorIDs) == 0 {
		return nil, fmt.Errorf("output neuron ids are required")
	}

	network, err := nn.Compile(genome)
	if err != nil {
		return nil, fmt.Errorf("compile genome %s: %w", genome.ID, err)
	}
	return &Cortex{
		id:      id,
		genome:  genome,
		network: network,
	}, nil
}

func (c *Cortex) ID() string {
	return c.id
}

func (c *Cortex) Genome() model.Genome {
	return c.genome
}

// Evaluate maps one radar observation to motor outputs.
func (c *Cortex) Evaluate(ctx context.Context, observation []float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.network.Activate(observation)
}
