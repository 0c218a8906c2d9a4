package genotype

import "radarrace/internal/model"

// CloneGenome deep-copies every slice so mutations on the clone never reach
// the parent.
func CloneGenome(g model.Genome) model.Genome {
	out := g
	out.Neurons = append([]model.Neuron(nil), g.Neurons...)
	out.Synapses = append([]model.Synapse(nil), g.Synapses...)
	out.SensorIDs = append([]string(nil), g.SensorIDs...)
	out.ActuatorIDs = append([]string(nil), g.ActuatorIDs...)
	return out
}

// CloneAs clones g under a new id stamped with the given generation. Neuron
// and synapse ids are kept so lineage can compare parent and child weights.
func CloneAs(g model.Genome, id string, generation int) model.Genome {
	out := CloneGenome(g)
	out.ID = id
	out.Generation = generation
	return out
}
