package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"radarrace/internal/track"
	"radarrace/pkg/radarrace"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// RunConfig is the file form of a run request.
type RunConfig struct {
	RunID     string          `yaml:"run_id"`
	Store     StoreConfig     `yaml:"store"`
	Track     TrackConfig     `yaml:"track"`
	Evolution EvolutionConfig `yaml:"evolution"`
	Network   NetworkConfig   `yaml:"network"`
	Output    OutputConfig    `yaml:"output"`
}

type StoreConfig struct {
	Kind   string `yaml:"kind"`
	DBPath string `yaml:"db_path"`
}

type TrackConfig struct {
	Path   string  `yaml:"path"`
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	StartX float64 `yaml:"start_x"`
	StartY float64 `yaml:"start_y"`
	// Palette replaces the default wall/goal/free colors when set.
	Palette *track.Palette `yaml:"palette,omitempty"`
}

type EvolutionConfig struct {
	Population        int                `yaml:"population"`
	Generations       int                `yaml:"generations"`
	EliteCount        int                `yaml:"elite_count"`
	Selection         string             `yaml:"selection"`
	MutationsPerChild int                `yaml:"mutations_per_child"`
	MaxDelta          float64            `yaml:"max_delta"`
	MutationWeights   map[string]float64 `yaml:"mutation_weights"`
	FitnessGoal       float64            `yaml:"fitness_goal"`
	Seed              int64              `yaml:"seed"`
	Workers           int                `yaml:"workers"`
}

type NetworkConfig struct {
	HiddenNeurons     int      `yaml:"hidden_neurons"`
	HiddenActivations []string `yaml:"hidden_activations"`
	OutputActivation  string   `yaml:"output_activation"`
	WeightSpread      float64  `yaml:"weight_spread"`
}

type OutputConfig struct {
	HUD      bool `yaml:"hud"`
	HUDEvery int  `yaml:"hud_every"`
}

// loadRunConfig decodes the embedded defaults and overlays the file at path.
// Keys missing from the file keep their default values.
func loadRunConfig(path string) (RunConfig, error) {
	var cfg RunConfig
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return RunConfig{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return RunConfig{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := cfg.validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

func (c RunConfig) validate() error {
	if c.Track.Width < 0 || c.Track.Height < 0 {
		return errors.New("track dimensions must be >= 0")
	}
	if c.Evolution.Population < 0 || c.Evolution.Generations < 0 {
		return errors.New("population and generations must be >= 0")
	}
	if c.Evolution.EliteCount > c.Evolution.Population && c.Evolution.Population > 0 {
		return fmt.Errorf("elite count %d exceeds population %d", c.Evolution.EliteCount, c.Evolution.Population)
	}
	if c.Network.HiddenNeurons < 0 {
		return errors.New("hidden neurons must be >= 0")
	}
	for name, weight := range c.Evolution.MutationWeights {
		if weight < 0 {
			return fmt.Errorf("mutation weight for %s must be >= 0", name)
		}
	}
	if c.Output.HUDEvery < 0 {
		return errors.New("hud_every must be >= 0")
	}
	return nil
}

func (c RunConfig) runRequest() radarrace.RunRequest {
	weights := make(map[string]float64, len(c.Evolution.MutationWeights))
	for name, weight := range c.Evolution.MutationWeights {
		weights[name] = weight
	}
	return radarrace.RunRequest{
		RunID:             c.RunID,
		TrackPath:         c.Track.Path,
		TrackWidth:        c.Track.Width,
		TrackHeight:       c.Track.Height,
		Palette:           c.Track.Palette,
		StartX:            c.Track.StartX,
		StartY:            c.Track.StartY,
		Population:        c.Evolution.Population,
		Generations:       c.Evolution.Generations,
		EliteCount:        c.Evolution.EliteCount,
		Selection:         c.Evolution.Selection,
		MutationsPerChild: c.Evolution.MutationsPerChild,
		MaxDelta:          c.Evolution.MaxDelta,
		MutationWeights:   weights,
		HiddenNeurons:     c.Network.HiddenNeurons,
		HiddenActivations: append([]string(nil), c.Network.HiddenActivations...),
		OutputActivation:  c.Network.OutputActivation,
		WeightSpread:      c.Network.WeightSpread,
		FitnessGoal:       c.Evolution.FitnessGoal,
		Seed:              c.Evolution.Seed,
		Workers:           c.Evolution.Workers,
	}
}

// writeRunConfig dumps the resolved config, e.g. for `run -dump-config`.
func writeRunConfig(path string, cfg RunConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
