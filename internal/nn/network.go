package nn

import (
	"errors"
	"fmt"

	"radarrace/internal/model"
)

var (
	ErrInputSize       = errors.New("input size mismatch")
	ErrUnknownNeuron   = errors.New("synapse references unknown neuron")
	ErrDuplicateNeuron = errors.New("duplicate neuron id")
)

type node struct {
	fn       ActivationFunc
	bias     float64
	input    bool
	incoming []edge
}

type edge struct {
	from   int
	weight float64
}

// Network is a genome compiled for repeated activation. Neurons fire in
// genome order, so a synapse from a later neuron reads that neuron's value
// from the previous activation.
type Network struct {
	nodes   []node
	inputs  []int
	outputs []int
	values  []float64
}

// Compile resolves activations and synapse endpoints once. Sensor ids name
// the input neurons and actuator ids the output neurons, in order.
func Compile(genome model.Genome) (*Network, error) {
	index := make(map[string]int, len(genome.Neurons))
	nodes := make([]node, len(genome.Neurons))
	for i, neuron := range genome.Neurons {
		if _, exists := index[neuron.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNeuron, neuron.ID)
		}
		index[neuron.ID] = i
		fn, err := GetActivation(neuron.Activation)
		if err != nil {
			return nil, fmt.Errorf("neuron %s: %w", neuron.ID, err)
		}
		nodes[i] = node{fn: fn, bias: neuron.Bias}
	}

	inputs, err := lookup(index, genome.SensorIDs)
	if err != nil {
		return nil, fmt.Errorf("sensor %w", err)
	}
	for _, idx := range inputs {
		nodes[idx].input = true
	}
	outputs, err := lookup(index, genome.ActuatorIDs)
	if err != nil {
		return nil, fmt.Errorf("actuator %w", err)
	}

	for _, synapse := range genome.Synapses {
		if !synapse.Enabled {
			continue
		}
		from, ok := index[synapse.From]
		if !ok {
			return nil, fmt.Errorf("%w: %s (from %s)", ErrUnknownNeuron, synapse.ID, synapse.From)
		}
		to, ok := index[synapse.To]
		if !ok {
			return nil, fmt.Errorf("%w: %s (to %s)", ErrUnknownNeuron, synapse.ID, synapse.To)
		}
		nodes[to].incoming = append(nodes[to].incoming, edge{from: from, weight: synapse.Weight})
	}

	return &Network{
		nodes:   nodes,
		inputs:  inputs,
		outputs: outputs,
		values:  make([]float64, len(nodes)),
	}, nil
}

func lookup(index map[string]int, ids []string) ([]int, error) {
	out := make([]int, len(ids))
	for i, id := range ids {
		idx, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("neuron not found: %s", id)
		}
		out[i] = idx
	}
	return out, nil
}

func (n *Network) InputSize() int {
	return len(n.inputs)
}

func (n *Network) OutputSize() int {
	return len(n.outputs)
}

// Activate runs one forward pass. Weighted sums are saturated before the
// activation so large weights cannot produce non-finite outputs.
func (n *Network) Activate(inputs []float64) ([]float64, error) {
	if len(inputs) != len(n.inputs) {
		return nil, fmt.Errorf("%w: got=%d want=%d", ErrInputSize, len(inputs), len(n.inputs))
	}
	for i, idx := range n.inputs {
		n.values[idx] = inputs[i]
	}
	for i := range n.nodes {
		nd := &n.nodes[i]
		if nd.input {
			continue
		}
		total := nd.bias
		for _, e := range nd.incoming {
			total += n.values[e.from] * e.weight
		}
		n.values[i] = nd.fn(Saturation(total))
	}

	out := make([]float64, len(n.outputs))
	for i, idx := range n.outputs {
		out[i] = n.values[idx]
	}
	return out, nil
}
