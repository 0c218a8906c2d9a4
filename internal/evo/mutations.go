package evo

import (
	"context"
	"errors"
	"math"
	"math/rand"

	"radarrace/internal/genotype"
	"radarrace/internal/model"
)

var (
	ErrNoSynapses       = errors.New("genome has no synapses")
	ErrNoNeurons        = errors.New("genome has no mutable neurons")
	ErrNoMutationChoice = errors.New("no mutation choice available")
)

// PerturbRandomWeight mutates a random synapse using uniform delta in [-MaxDelta, MaxDelta].
type PerturbRandomWeight struct {
	Rand     *rand.Rand
	MaxDelta float64
}

func (o *PerturbRandomWeight) Name() string {
	return "perturb_random_weight"
}

func (o *PerturbRandomWeight) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if len(genome.Synapses) == 0 {
		return model.Genome{}, ErrNoSynapses
	}
	if err := checkPerturb(o.Rand, o.MaxDelta); err != nil {
		return model.Genome{}, err
	}

	idx := o.Rand.Intn(len(genome.Synapses))
	mutated := genotype.CloneGenome(genome)
	mutated.Synapses[idx].Weight += randomDelta(o.Rand, o.MaxDelta)
	return mutated, nil
}

// PerturbWeightsProportional mutates each synapse with probability
// 1/sqrt(total_weights). At least one synapse is always perturbed.
type PerturbWeightsProportional struct {
	Rand     *rand.Rand
	MaxDelta float64
}

func (o *PerturbWeightsProportional) Name() string {
	return "perturb_weights_proportional"
}

func (o *PerturbWeightsProportional) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if len(genome.Synapses) == 0 {
		return model.Genome{}, ErrNoSynapses
	}
	if err := checkPerturb(o.Rand, o.MaxDelta); err != nil {
		return model.Genome{}, err
	}

	mutated := genotype.CloneGenome(genome)
	mp := 1 / math.Sqrt(float64(len(mutated.Synapses)))
	mutatedCount := 0
	for i := range mutated.Synapses {
		if o.Rand.Float64() >= mp {
			continue
		}
		mutated.Synapses[i].Weight += randomDelta(o.Rand, o.MaxDelta)
		mutatedCount++
	}
	if mutatedCount == 0 {
		idx := o.Rand.Intn(len(mutated.Synapses))
		mutated.Synapses[idx].Weight += randomDelta(o.Rand, o.MaxDelta)
	}
	return mutated, nil
}

// PerturbRandomBias shifts the bias of one non-sensor neuron.
type PerturbRandomBias struct {
	Rand     *rand.Rand
	MaxDelta float64
}

func (o *PerturbRandomBias) Name() string {
	return "perturb_random_bias"
}

func (o *PerturbRandomBias) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	candidates := neuronIndexes(genome, true)
	if len(candidates) == 0 {
		return model.Genome{}, ErrNoNeurons
	}
	if err := checkPerturb(o.Rand, o.MaxDelta); err != nil {
		return model.Genome{}, err
	}

	idx := candidates[o.Rand.Intn(len(candidates))]
	mutated := genotype.CloneGenome(genome)
	mutated.Neurons[idx].Bias += randomDelta(o.Rand, o.MaxDelta)
	return mutated, nil
}

// ChangeRandomActivation swaps the activation of one hidden neuron for a
// different one from Activations.
type ChangeRandomActivation struct {
	Rand        *rand.Rand
	Activations []string
}

func (o *ChangeRandomActivation) Name() string {
	return "change_random_activation"
}

func (o *ChangeRandomActivation) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o.Rand == nil {
		return model.Genome{}, errors.New("random source is required")
	}
	candidates := neuronIndexes(genome, false)
	if len(candidates) == 0 {
		return model.Genome{}, ErrNoNeurons
	}

	idx := candidates[o.Rand.Intn(len(candidates))]
	current := genome.Neurons[idx].Activation
	choices := make([]string, 0, len(o.Activations))
	for _, name := range o.Activations {
		if name != current {
			choices = append(choices, name)
		}
	}
	if len(choices) == 0 {
		return model.Genome{}, ErrNoMutationChoice
	}

	mutated := genotype.CloneGenome(genome)
	mutated.Neurons[idx].Activation = choices[o.Rand.Intn(len(choices))]
	return mutated, nil
}

// neuronIndexes lists neurons that are not sensors. Actuators are included
// only when withActuators is set.
func neuronIndexes(genome model.Genome, withActuators bool) []int {
	excluded := make(map[string]bool, len(genome.SensorIDs)+len(genome.ActuatorIDs))
	for _, id := range genome.SensorIDs {
		excluded[id] = true
	}
	if !withActuators {
		for _, id := range genome.ActuatorIDs {
			excluded[id] = true
		}
	}
	out := make([]int, 0, len(genome.Neurons))
	for i, neuron := range genome.Neurons {
		if !excluded[neuron.ID] {
			out = append(out, i)
		}
	}
	return out
}

func checkPerturb(rng *rand.Rand, maxDelta float64) error {
	if rng == nil {
		return errors.New("random source is required")
	}
	if maxDelta <= 0 {
		return errors.New("max delta must be > 0")
	}
	return nil
}

func randomDelta(rng *rand.Rand, maxDelta float64) float64 {
	return (rng.Float64()*2 - 1) * maxDelta
}
