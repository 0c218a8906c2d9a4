package evo

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

var (
	ErrOperatorExists   = errors.New("operator already registered")
	ErrOperatorNotFound = errors.New("operator not found")
)

// OperatorParams carries the shared tuning knobs handed to operator factories.
type OperatorParams struct {
	Rand        *rand.Rand
	MaxDelta    float64
	Activations []string
}

type OperatorFactory func(params OperatorParams) Operator

var operatorRegistry = struct {
	mu sync.RWMutex
	m  map[string]OperatorFactory
}{
	m: make(map[string]OperatorFactory),
}

func init() {
	initializeBuiltInOperators()
}

func initializeBuiltInOperators() {
	mustRegisterOperator("perturb_random_weight", func(p OperatorParams) Operator {
		return &PerturbRandomWeight{Rand: p.Rand, MaxDelta: p.MaxDelta}
	})
	mustRegisterOperator("perturb_weights_proportional", func(p OperatorParams) Operator {
		return &PerturbWeightsProportional{Rand: p.Rand, MaxDelta: p.MaxDelta}
	})
	mustRegisterOperator("perturb_random_bias", func(p OperatorParams) Operator {
		return &PerturbRandomBias{Rand: p.Rand, MaxDelta: p.MaxDelta}
	})
	mustRegisterOperator("change_random_activation", func(p OperatorParams) Operator {
		return &ChangeRandomActivation{Rand: p.Rand, Activations: append([]string(nil), p.Activations...)}
	})
}

func RegisterOperator(name string, factory OperatorFactory) error {
	if name == "" {
		return errors.New("operator name is required")
	}
	if factory == nil {
		return errors.New("operator factory is required")
	}

	operatorRegistry.mu.Lock()
	defer operatorRegistry.mu.Unlock()

	if _, exists := operatorRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrOperatorExists, name)
	}
	operatorRegistry.m[name] = factory
	return nil
}

func mustRegisterOperator(name string, factory OperatorFactory) {
	if err := RegisterOperator(name, factory); err != nil {
		panic(err)
	}
}

func NewOperator(name string, params OperatorParams) (Operator, error) {
	operatorRegistry.mu.RLock()
	factory, ok := operatorRegistry.m[name]
	operatorRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, name)
	}
	return factory(params), nil
}

func ListOperators() []string {
	operatorRegistry.mu.RLock()
	defer operatorRegistry.mu.RUnlock()

	names := make([]string, 0, len(operatorRegistry.m))
	for name := range operatorRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildMutationPolicy resolves a name → weight table into a policy ordered by
// operator name, so equal seeds draw equal operators.
func BuildMutationPolicy(weights map[string]float64, params OperatorParams) ([]WeightedMutation, error) {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	policy := make([]WeightedMutation, 0, len(names))
	for _, name := range names {
		weight := weights[name]
		if weight < 0 {
			return nil, fmt.Errorf("mutation weight for %s must be >= 0", name)
		}
		if weight == 0 {
			continue
		}
		op, err := NewOperator(name, params)
		if err != nil {
			return nil, err
		}
		policy = append(policy, WeightedMutation{Operator: op, Weight: weight})
	}
	if len(policy) == 0 {
		return nil, fmt.Errorf("mutation policy requires at least one positive weight")
	}
	return policy, nil
}

func resetOperatorRegistryForTests() {
	operatorRegistry.mu.Lock()
	operatorRegistry.m = make(map[string]OperatorFactory)
	operatorRegistry.mu.Unlock()
	initializeBuiltInOperators()
}
