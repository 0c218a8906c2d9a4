package evo

import (
	"context"

	"radarrace/internal/model"
)

type Operator interface {
	Name() string
	Apply(ctx context.Context, genome model.Genome) (model.Genome, error)
}

// WeightedMutation is one entry of a mutation policy. Operators are drawn
// with probability proportional to Weight.
type WeightedMutation struct {
	Operator Operator
	Weight   float64
}
