package genotype

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"radarrace/internal/model"
	"radarrace/internal/nn"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

// Sensor and actuator neuron ids, in radar observation and motor command order.
var (
	RacerSensorIDs = []string{
		"L0:radar_front",
		"L0:radar_left",
		"L0:radar_right",
		"L0:heading",
		"L0:goal_r",
		"L0:goal_g",
		"L0:goal_b",
	}
	RacerActuatorIDs = []string{
		"L2:forward",
		"L2:left",
		"L2:right",
		"L2:brake",
	}
)

type SeedConfig struct {
	// Hidden is the hidden layer width; zero wires sensors straight to actuators.
	Hidden int
	// HiddenActivations is sampled per hidden neuron; empty means tanh.
	HiddenActivations []string
	OutputActivation  string
	// WeightSpread bounds initial weights and biases to [-spread, spread).
	WeightSpread float64
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Hidden:            6,
		HiddenActivations: []string{"tanh"},
		OutputActivation:  "sigmoid",
		WeightSpread:      1,
	}
}

// ConstructRacer builds a fully connected feed-forward controller genome
// with random weights.
func ConstructRacer(id string, generation int, cfg SeedConfig, rng *rand.Rand) (model.Genome, error) {
	if strings.TrimSpace(id) == "" {
		return model.Genome{}, fmt.Errorf("genome id is required")
	}
	if cfg.Hidden < 0 {
		return model.Genome{}, fmt.Errorf("hidden width must be >= 0")
	}
	if cfg.WeightSpread <= 0 {
		cfg.WeightSpread = 1
	}
	outputAF := defaultActivation(cfg.OutputActivation, "sigmoid")
	for _, af := range append([]string{outputAF}, cfg.HiddenActivations...) {
		if _, err := nn.GetActivation(defaultActivation(af, "tanh")); err != nil {
			return model.Genome{}, err
		}
	}
	rng = ensureRNG(rng)

	genome := model.Genome{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              id,
		Generation:      generation,
		SensorIDs:       append([]string(nil), RacerSensorIDs...),
		ActuatorIDs:     append([]string(nil), RacerActuatorIDs...),
	}
	for _, sensorID := range RacerSensorIDs {
		genome.Neurons = append(genome.Neurons, model.Neuron{ID: sensorID, Activation: "identity"})
	}

	sources := RacerSensorIDs
	if cfg.Hidden > 0 {
		hiddenIDs := make([]string, cfg.Hidden)
		for i := range hiddenIDs {
			hiddenIDs[i] = fmt.Sprintf("L1:h%d", i)
		}
		addLayer(&genome, hiddenIDs, sources, cfg.HiddenActivations, cfg.WeightSpread, rng)
		sources = hiddenIDs
	}
	addLayer(&genome, RacerActuatorIDs, sources, []string{outputAF}, cfg.WeightSpread, rng)
	return genome, nil
}

func addLayer(genome *model.Genome, ids, sources, activations []string, spread float64, rng *rand.Rand) {
	for _, id := range ids {
		genome.Neurons = append(genome.Neurons, model.Neuron{
			ID:         id,
			Activation: GenerateNeuronAF(rng, activations),
			Bias:       randomSpread(rng, spread),
		})
		for _, from := range sources {
			genome.Synapses = append(genome.Synapses, model.Synapse{
				ID:      fmt.Sprintf("%s:in:%s", id, sanitizeID(from)),
				From:    from,
				To:      id,
				Weight:  randomSpread(rng, spread),
				Enabled: true,
			})
		}
	}
}

// GenerateNeuronAF picks one activation from the candidates. Empty inputs
// default to tanh.
func GenerateNeuronAF(rng *rand.Rand, activationFunctions []string) string {
	choice, err := RandomElement(ensureRNG(rng), activationFunctions)
	if err != nil {
		return "tanh"
	}
	return defaultActivation(choice, "tanh")
}

func defaultActivation(name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	return name
}

func ensureRNG(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rng
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func randomCentered(rng *rand.Rand) float64 {
	return rng.Float64() - 0.5
}

func randomSpread(rng *rand.Rand, spread float64) float64 {
	return 2 * spread * randomCentered(rng)
}

func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	replacer := strings.NewReplacer(":", "_", "|", "_", "/", "_", " ", "_")
	return replacer.Replace(id)
}
